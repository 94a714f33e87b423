package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public, no auth required.
	r.Get("/health", g.handleHealth())

	// Observability endpoints require auth when a token is set.
	r.Group(func(r chi.Router) {
		if g.cfg.BearerToken != "" {
			r.Use(authMiddleware(g.cfg.BearerToken))
		}
		r.Get("/status", g.handleStatus())
		r.Get("/metrics", g.handleMetrics())
		r.Handle("/metrics/prometheus", promhttp.HandlerFor(g.prom, promhttp.HandlerOpts{}))
		r.Route("/api", func(r chi.Router) {
			r.Get("/hooks", g.handleListHooks())
			r.Get("/pipelines", g.handleListPipelines())
		})
	})

	return r
}
