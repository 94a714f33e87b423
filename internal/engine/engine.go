// Package engine drives hook invocation for event occurrences: payload
// threading, short-circuiting, per-hook timeout/retry/fallback/caching,
// error isolation, and metrics recording.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/whrit/flow-agent-sub006/internal/effect"
	"github.com/whrit/flow-agent-sub006/internal/match"
	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/internal/registry"
	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

const (
	// drainPollInterval is how often Drain re-checks the active set.
	drainPollInterval = 50 * time.Millisecond

	// DefaultDrainTimeout bounds the best-effort shutdown drain.
	DefaultDrainTimeout = 10 * time.Second
)

// Engine executes hook chains. Construct one per application via New
// and pass it by reference to anything that raises events; there is no
// process-wide instance.
type Engine struct {
	registry *registry.Registry
	matcher  *match.Matcher
	effects  *effect.Dispatcher
	metrics  *metrics.Aggregator
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	active  map[string]activeExecution
	results map[string]cachedResult

	// now and sleep are injectable for testing.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// activeExecution is observability bookkeeping for one in-flight
// ExecuteHooks call. It is never used for mutual exclusion.
type activeExecution struct {
	Type      string
	StartedAt time.Time
}

// New creates an engine over the given collaborators.
func New(reg *registry.Registry, m *match.Matcher, d *effect.Dispatcher, agg *metrics.Aggregator, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry: reg,
		matcher:  m,
		effects:  d,
		metrics:  agg,
		logger:   logger,
		tracer:   otel.Tracer("flowd/engine"),
		active:   make(map[string]activeExecution),
		results:  make(map[string]cachedResult),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Registry returns the engine's hook registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Matcher returns the engine's matcher.
func (e *Engine) Matcher() *match.Matcher { return e.matcher }

// ExecuteHooks runs every matched hook for the event type, in descending
// priority order, threading payload mutations. It returns one result per
// executed hook; a propagated hook error aborts the chain and is
// returned to the caller. Concurrent calls execute independently.
func (e *Engine) ExecuteHooks(ctx context.Context, hookType string, payload any, ec *hook.ExecutionContext) ([]*hook.Result, error) {
	ctx, span := e.tracer.Start(ctx, "hooks.execute",
		trace.WithAttributes(attribute.String("hook.type", hookType)),
	)
	defer span.End()

	execID := uuid.NewString()
	start := e.now()
	e.trackStart(execID, hookType)
	defer func() {
		e.trackEnd(execID)
		e.metrics.RecordExecution(e.now().Sub(start))
	}()

	candidates := e.registry.GetHooks(hookType, nil)
	matched := make([]*hook.Registration, 0, len(candidates))
	for _, reg := range candidates {
		dec := e.matcher.Match(reg, payload, ec)
		if dec.CacheHit {
			e.metrics.Increment("matcher.cache_hits")
		}
		if dec.Matched {
			matched = append(matched, reg)
		}
	}
	span.SetAttributes(attribute.Int("hook.matched", len(matched)))

	e.metrics.Increment("hooks." + hookType + ".executions")

	results, _, err := e.RunSequence(ctx, matched, payload, ec)
	if err != nil {
		e.metrics.Increment("hooks." + hookType + ".errors")
		span.RecordError(err)
		return results, err
	}
	return results, nil
}

// RunSequence invokes hooks in slice order with payload threading and
// short-circuit semantics. It returns the collected results and the
// final payload. Used by ExecuteHooks and by sequential pipeline stages.
func (e *Engine) RunSequence(ctx context.Context, regs []*hook.Registration, payload any, ec *hook.ExecutionContext) ([]*hook.Result, any, error) {
	current := payload
	results := make([]*hook.Result, 0, len(regs))

	for _, reg := range regs {
		res, err := e.invoke(ctx, reg, current, ec)
		if err != nil {
			if handled := e.containError(ctx, reg, err, current, ec); handled {
				continue
			}
			return results, current, err
		}

		results = append(results, res)
		if res.Modified && res.Payload != nil {
			current = res.Payload
		}
		if !res.Continue {
			break
		}
	}
	return results, current, nil
}

// RunParallel invokes every hook concurrently against the same payload.
// No hook's output feeds another; results keep declaration order, and
// Continue is not consulted (there is no chain to cut). Every hook runs
// to completion: a failure never cancels its siblings, and uncontained
// failures are joined into the returned error. Used by parallel
// pipeline stages.
func (e *Engine) RunParallel(ctx context.Context, regs []*hook.Registration, payload any, ec *hook.ExecutionContext) ([]*hook.Result, error) {
	slots := make([]*hook.Result, len(regs))
	errs := make([]error, len(regs))
	var g errgroup.Group

	for i, reg := range regs {
		i, reg := i, reg
		g.Go(func() error {
			res, err := e.invoke(ctx, reg, payload, ec)
			if err != nil {
				if handled := e.containError(ctx, reg, err, payload, ec); handled {
					return nil
				}
				errs[i] = err
				return nil
			}
			slots[i] = res
			return nil
		})
	}

	// Errors are collected per slot; Wait only synchronizes.
	_ = g.Wait()

	results := make([]*hook.Result, 0, len(slots))
	for _, res := range slots {
		if res != nil {
			results = append(results, res)
		}
	}
	return results, errors.Join(errs...)
}

// containError reports the failure to the hook's error handler if one is
// declared. A contained error lets the chain continue past the hook.
func (e *Engine) containError(ctx context.Context, reg *hook.Registration, err error, payload any, ec *hook.ExecutionContext) bool {
	e.metrics.Increment("hooks." + reg.ID + ".errors")

	if reg.Options == nil || reg.Options.ErrorHandler == nil {
		return false
	}
	e.logger.Warn("hook failed, contained by error handler",
		"hook", reg.ID,
		"type", reg.Type,
		"error", err,
	)
	reg.Options.ErrorHandler(ctx, err, payload, ec)
	return true
}

func (e *Engine) trackStart(execID, hookType string) {
	e.mu.Lock()
	e.active[execID] = activeExecution{Type: hookType, StartedAt: e.now()}
	n := len(e.active)
	e.mu.Unlock()
	e.metrics.Set("executions.active", float64(n))
}

func (e *Engine) trackEnd(execID string) {
	e.mu.Lock()
	delete(e.active, execID)
	n := len(e.active)
	e.mu.Unlock()
	e.metrics.Set("executions.active", float64(n))
}

// ActiveCount returns the number of in-flight ExecuteHooks calls.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Drain polls the active set until it is empty or ctx expires. Returns
// an error with the remaining count when the deadline hits first. This
// is a best-effort drain: in-flight handlers are not cancelled.
func (e *Engine) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		n := e.ActiveCount()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("engine: drain timed out with %d execution(s) still active", n)
		case <-ticker.C:
		}
	}
}

// Shutdown drains with a bounded wait and logs a forced shutdown if
// executions have not finished in time.
func (e *Engine) Shutdown(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultDrainTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := e.Drain(ctx); err != nil {
		e.logger.Warn("engine: forcing shutdown", "error", err)
		return
	}
	e.logger.Info("engine: drained")
}

// MetricsSnapshot assembles the flat observability map: registry and
// matcher gauges plus every aggregated counter.
func (e *Engine) MetricsSnapshot() map[string]any {
	snap := e.metrics.Snapshot()
	snap["hooks.count"] = e.registry.Count()
	snap["hooks.types"] = e.registry.Types()
	snap["executions.active"] = float64(e.ActiveCount())

	stats := e.matcher.CacheStats()
	snap["matcher.cache.size"] = stats.Size
	snap["matcher.cache.hit_rate"] = stats.HitRate
	return snap
}
