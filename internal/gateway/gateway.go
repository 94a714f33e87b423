// Package gateway serves flowd's observability surface over HTTP:
// health, status, the flat metrics snapshot (JSON and Prometheus), and
// read-only listings of registered hooks and pipelines.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/whrit/flow-agent-sub006/internal/config"
	"github.com/whrit/flow-agent-sub006/internal/engine"
	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/internal/pipeline"
)

// Gateway is the HTTP observability server.
type Gateway struct {
	cfg    config.Gateway
	eng    *engine.Engine
	orch   *pipeline.Orchestrator
	prom   *prometheus.Registry
	logger *slog.Logger

	server    *http.Server
	startedAt time.Time
}

// New creates a gateway over the engine and orchestrator. The
// aggregator is exported to Prometheus through a collector bridge.
func New(cfg config.Gateway, eng *engine.Engine, orch *pipeline.Orchestrator, agg *metrics.Aggregator, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.NewCollector(agg))

	return &Gateway{
		cfg:    cfg,
		eng:    eng,
		orch:   orch,
		prom:   promReg,
		logger: logger,
	}
}

// Validate checks the bind address.
func (g *Gateway) Validate() error {
	if g.cfg.Bind == "" {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", g.cfg.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.cfg.Bind)
	}
	return nil
}

// Start binds and serves in the background. A gateway with no bind
// address is a no-op.
func (g *Gateway) Start() error {
	if g.cfg.Bind == "" {
		return nil
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.cfg.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ReadTimeout,
		WriteTimeout: g.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down within the configured timeout.
func (g *Gateway) Stop() {
	if g.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), g.cfg.ShutdownTimeout)
	defer cancel()

	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Warn("gateway shutdown", "error", err)
	}
}
