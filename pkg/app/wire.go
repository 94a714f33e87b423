// Package app is flowd's composition root: it builds the engine,
// dispatcher, orchestrator, gateway, and maintenance scheduler from
// configuration and manages their lifecycle. Embedding programs create
// an App, register hooks on its Engine's registry, then Start it; there
// is no process-wide engine instance.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/whrit/flow-agent-sub006/internal/config"
	"github.com/whrit/flow-agent-sub006/internal/effect"
	"github.com/whrit/flow-agent-sub006/internal/engine"
	"github.com/whrit/flow-agent-sub006/internal/gateway"
	"github.com/whrit/flow-agent-sub006/internal/maintenance"
	"github.com/whrit/flow-agent-sub006/internal/match"
	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/internal/pipeline"
	"github.com/whrit/flow-agent-sub006/internal/registry"
	"github.com/whrit/flow-agent-sub006/modules/memory/sqlite"
	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// App owns every wired component.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	aggregator   *metrics.Aggregator
	registry     *registry.Registry
	matcher      *match.Matcher
	dispatcher   *effect.Dispatcher
	engine       *engine.Engine
	orchestrator *pipeline.Orchestrator
	gateway      *gateway.Gateway
	scheduler    *maintenance.Scheduler
	memory       *sqlite.Store

	stopTracing func(context.Context) error
}

// New wires an App from configuration. Pipelines declared in config are
// built later by Start, once embedding code has registered its hooks.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{cfg: cfg, logger: logger}

	a.aggregator = metrics.NewAggregator()
	a.registry = registry.New()
	a.matcher = match.New(match.Config{
		TTL:        cfg.Engine.MatcherCacheTTL,
		MaxEntries: cfg.Engine.MatcherCacheMax,
	})

	notifier := effect.NotifierFunc(func(_ context.Context, event, message string, data map[string]any) {
		a.aggregator.Increment("notifications.emitted")
		logger.Info("notification", "event", event, "message", message, "data", data)
	})
	a.dispatcher = effect.NewDispatcher(a.aggregator, notifier, logger.With("component", "effects"))

	a.engine = engine.New(a.registry, a.matcher, a.dispatcher, a.aggregator, logger.With("component", "engine"))
	a.orchestrator = pipeline.NewOrchestrator(a.engine, a.aggregator, logger.With("component", "pipeline"))
	a.gateway = gateway.New(cfg.Gateway, a.engine, a.orchestrator, a.aggregator, logger.With("component", "gateway"))

	if err := a.gateway.Validate(); err != nil {
		return nil, err
	}

	a.scheduler = maintenance.NewScheduler(logger.With("component", "maintenance"))
	if s := cfg.Maintenance.PruneSchedule; s != "" {
		if err := a.scheduler.RegisterJob(&maintenance.PruneJob{Matcher: a.matcher, Spec: s, Logger: logger}); err != nil {
			return nil, err
		}
	}
	if s := cfg.Maintenance.MetricsSchedule; s != "" {
		if err := a.scheduler.RegisterJob(&maintenance.MetricsJob{Engine: a.engine, Spec: s, Logger: logger}); err != nil {
			return nil, err
		}
	}

	if cfg.Memory.Path != "" {
		store, err := sqlite.Open(cfg.Memory.Path)
		if err != nil {
			return nil, err
		}
		a.memory = store
	}

	return a, nil
}

// Engine returns the execution engine.
func (a *App) Engine() *engine.Engine { return a.engine }

// Registry returns the hook registry for registrations.
func (a *App) Registry() *registry.Registry { return a.registry }

// Orchestrator returns the pipeline orchestrator.
func (a *App) Orchestrator() *pipeline.Orchestrator { return a.orchestrator }

// Memory returns the SQLite memory store, or nil when not configured.
func (a *App) Memory() *sqlite.Store { return a.memory }

// NewContext builds an ExecutionContext pre-wired with the app's memory
// store (when configured) and logger.
func (a *App) NewContext() *hook.ExecutionContext {
	b := hook.NewContextBuilder().WithLogger(a.logger)
	if a.memory != nil {
		b = b.WithMemory("default", a.memory)
	}
	return b.Build()
}

// buildPipelines creates every config-declared pipeline, resolving hook
// references against the registry. Unknown hook ids fail fast.
func (a *App) buildPipelines() error {
	for _, ps := range a.cfg.Pipelines {
		stages := make([]pipeline.Stage, 0, len(ps.Stages))
		for _, ss := range ps.Stages {
			hooks := make([]*hook.Registration, 0, len(ss.Hooks))
			for _, id := range ss.Hooks {
				reg, ok := a.registry.Lookup(id)
				if !ok {
					return fmt.Errorf("app: pipeline %s: stage %s: unknown hook %q", ps.ID, ss.Name, id)
				}
				hooks = append(hooks, reg)
			}
			stages = append(stages, pipeline.Stage{
				Name:      ss.Name,
				Hooks:     hooks,
				Parallel:  ss.Parallel,
				Condition: metadataCondition(ss.When),
			})
		}

		_, err := a.orchestrator.CreatePipeline(pipeline.Spec{
			ID:            ps.ID,
			Name:          ps.Name,
			Stages:        stages,
			ErrorStrategy: pipeline.ErrorStrategy(ps.ErrorStrategy),
		})
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
	}
	return nil
}

// metadataCondition builds a stage condition requiring every (key,
// value) pair to match the context metadata. Nil for an empty spec.
func metadataCondition(when map[string]string) func(*hook.ExecutionContext) bool {
	if len(when) == 0 {
		return nil
	}
	return func(ec *hook.ExecutionContext) bool {
		for k, want := range when {
			got, ok := ec.Meta(k)
			if !ok || fmt.Sprint(got) != want {
				return false
			}
		}
		return true
	}
}
