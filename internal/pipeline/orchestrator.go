package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/whrit/flow-agent-sub006/internal/engine"
	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// Orchestrator owns the registered pipelines and executes them through
// the engine. Thread-safe.
type Orchestrator struct {
	engine  *engine.Engine
	metrics *metrics.Aggregator
	logger  *slog.Logger
	tracer  trace.Tracer

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewOrchestrator creates an orchestrator over the engine.
func NewOrchestrator(eng *engine.Engine, agg *metrics.Aggregator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		engine:    eng,
		metrics:   agg,
		logger:    logger,
		tracer:    otel.Tracer("flowd/pipeline"),
		pipelines: make(map[string]*Pipeline),
	}
}

// CreatePipeline builds and registers a pipeline from the spec. The
// error strategy defaults to fail-fast.
func (o *Orchestrator) CreatePipeline(spec Spec) (*Pipeline, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("pipeline: id is required")
	}
	if spec.ErrorStrategy == "" {
		spec.ErrorStrategy = FailFast
	}
	if !spec.ErrorStrategy.Valid() {
		return nil, fmt.Errorf("pipeline %s: unknown error strategy %q", spec.ID, spec.ErrorStrategy)
	}

	p := &Pipeline{
		ID:         spec.ID,
		Name:       spec.Name,
		stages:     spec.Stages,
		strategy:   spec.ErrorStrategy,
		onRollback: spec.OnRollback,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.pipelines[spec.ID]; exists {
		return nil, fmt.Errorf("pipeline: duplicate id %q", spec.ID)
	}
	o.pipelines[spec.ID] = p
	o.metrics.Set("pipelines.count", float64(len(o.pipelines)))
	return p, nil
}

// Pipeline returns the pipeline with the given id, if registered.
func (o *Orchestrator) Pipeline(id string) (*Pipeline, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.pipelines[id]
	return p, ok
}

// Pipelines returns every registered pipeline sorted by id.
func (o *Orchestrator) Pipelines() []*Pipeline {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]*Pipeline, 0, len(o.pipelines))
	for _, p := range o.pipelines {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of registered pipelines.
func (o *Orchestrator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pipelines)
}

// ExecutePipeline runs the pipeline's stages in order against the
// initial payload, accumulating every stage's results. Stage failures
// are handled per the pipeline's error strategy; metrics update on every
// run, success or failure.
func (o *Orchestrator) ExecutePipeline(ctx context.Context, pipelineID string, payload any, ec *hook.ExecutionContext) ([]*hook.Result, error) {
	o.mu.RLock()
	p, ok := o.pipelines[pipelineID]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", hook.ErrPipelineNotFound, pipelineID)
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.execute",
		trace.WithAttributes(attribute.String("pipeline.id", p.ID)),
	)
	defer span.End()

	start := time.Now()
	current := payload
	failed := false
	var all []*hook.Result

	// Counted per run, success or failure, so the gateway snapshot
	// agrees with Pipeline.Metrics().Executions.
	o.metrics.Increment("pipelines." + p.ID + ".executions")

	for _, stage := range p.stages {
		if stage.Condition != nil && !stage.Condition(ec) {
			continue
		}

		stageResults, err := o.runStage(ctx, p, stage, current, ec)

		if stage.Transform != nil {
			for i, res := range stageResults {
				if mapped := stage.Transform(res); mapped != nil {
					stageResults[i] = mapped
				}
			}
		}

		// Most-recent-modified-wins payload adoption for the next stage.
		for _, res := range stageResults {
			if res.Modified && res.Payload != nil {
				current = res.Payload
			}
		}

		all = append(all, stageResults...)

		if err != nil {
			failed = true
			o.metrics.Increment("pipelines." + p.ID + ".errors")
			span.RecordError(err)

			switch p.strategy {
			case Continue:
				o.logger.Warn("pipeline stage failed, continuing",
					"pipeline", p.ID,
					"stage", stage.Name,
					"error", err,
				)
				continue
			case Rollback:
				if p.onRollback != nil {
					p.onRollback(ctx, p, all)
				}
				p.recordExecution(time.Since(start), true)
				return all, fmt.Errorf("pipeline %s: stage %s: %w", p.ID, stage.Name, err)
			default: // FailFast
				p.recordExecution(time.Since(start), true)
				return all, fmt.Errorf("pipeline %s: stage %s: %w", p.ID, stage.Name, err)
			}
		}
	}

	p.recordExecution(time.Since(start), failed)
	return all, nil
}

// runStage dispatches the stage's hooks through the engine.
func (o *Orchestrator) runStage(ctx context.Context, p *Pipeline, stage Stage, payload any, ec *hook.ExecutionContext) ([]*hook.Result, error) {
	ctx, span := o.tracer.Start(ctx, "pipeline.stage",
		trace.WithAttributes(
			attribute.String("pipeline.id", p.ID),
			attribute.String("stage.name", stage.Name),
			attribute.Bool("stage.parallel", stage.Parallel),
		),
	)
	defer span.End()

	if stage.Parallel {
		return o.engine.RunParallel(ctx, stage.Hooks, payload, ec)
	}
	results, _, err := o.engine.RunSequence(ctx, stage.Hooks, payload, ec)
	return results, err
}
