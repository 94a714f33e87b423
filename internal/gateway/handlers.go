package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Active int    `json:"active_executions"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status: "ok",
			Active: g.eng.ActiveCount(),
		})
	}
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime    string   `json:"uptime"`
	Hooks     int      `json:"hooks"`
	Types     []string `json:"types"`
	Pipelines int      `json:"pipelines"`
	Active    int      `json:"active_executions"`
}

func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			Uptime:    time.Since(g.startedAt).Round(time.Second).String(),
			Hooks:     g.eng.Registry().Count(),
			Types:     g.eng.Registry().Types(),
			Pipelines: g.orch.Count(),
			Active:    g.eng.ActiveCount(),
		})
	}
}

// handleMetrics serves the flat metrics snapshot as JSON.
func (g *Gateway) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.eng.MetricsSnapshot())
	}
}

// HookInfo is one entry of GET /api/hooks.
type HookInfo struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Priority int    `json:"priority"`
}

func (g *Gateway) handleListHooks() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		reg := g.eng.Registry()
		var out []HookInfo
		for _, typ := range reg.Types() {
			for _, h := range reg.GetHooks(typ, nil) {
				out = append(out, HookInfo{ID: h.ID, Type: h.Type, Priority: h.Priority})
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PipelineInfo is one entry of GET /api/pipelines.
type PipelineInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Strategy string `json:"strategy"`
	Stages   int    `json:"stages"`
	Metrics  any    `json:"metrics"`
}

func (g *Gateway) handleListPipelines() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		var out []PipelineInfo
		for _, p := range g.orch.Pipelines() {
			out = append(out, PipelineInfo{
				ID:       p.ID,
				Name:     p.Name,
				Strategy: string(p.Strategy()),
				Stages:   p.Stages(),
				Metrics:  p.Metrics(),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
