package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/whrit/flow-agent-sub006/internal/config"
)

// Start builds config-declared pipelines, then brings up tracing, the
// maintenance scheduler, and the gateway. Call after registering hooks.
func (a *App) Start(ctx context.Context) error {
	if err := a.buildPipelines(); err != nil {
		return err
	}

	if a.cfg.Tracing.Enabled {
		stop, err := setupTracing(ctx, a.cfg.Tracing)
		if err != nil {
			return err
		}
		a.stopTracing = stop
	}

	if err := a.scheduler.Start(); err != nil {
		return err
	}
	if err := a.gateway.Start(); err != nil {
		a.scheduler.Stop()
		return err
	}

	a.logger.Info("flowd started",
		"hooks", a.registry.Count(),
		"pipelines", a.orchestrator.Count(),
	)
	return nil
}

// Stop shuts components down in reverse order: gateway first (no new
// observers), then the scheduler, then a bounded engine drain.
func (a *App) Stop(ctx context.Context) {
	a.gateway.Stop()
	a.scheduler.Stop()
	a.engine.Shutdown(a.cfg.Engine.DrainTimeout)

	if a.memory != nil {
		if err := a.memory.Close(); err != nil {
			a.logger.Warn("memory store close", "error", err)
		}
	}
	if a.stopTracing != nil {
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn("tracer shutdown", "error", err)
		}
	}
	a.logger.Info("flowd stopped")
}

// Run loads configuration, starts the app, and blocks until a shutdown
// signal arrives.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	a, err := New(cfg, logger)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	a.Stop(ctx)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
