// Package effect interprets the side effects declared by hook results
// and forwards them to the external collaborators: memory store, neural
// store, metrics, notifications, and logging. Dispatch is best-effort;
// individual failures are logged and never abort the originating chain.
package effect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// Notifier receives notification side effects as internal events
// consumable by external observers.
type Notifier interface {
	Notify(ctx context.Context, event, message string, data map[string]any)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event, message string, data map[string]any)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event, message string, data map[string]any) {
	f(ctx, event, message, data)
}

// Dispatcher routes side effects to their collaborators.
type Dispatcher struct {
	metrics  *metrics.Aggregator
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. notifier may be nil, in which case
// notification effects are dropped with a debug log.
func NewDispatcher(agg *metrics.Aggregator, notifier Notifier, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{metrics: agg, notifier: notifier, logger: logger}
}

// Dispatch delivers each effect in order. Memory and neural effects go
// to the stores attached to the execution context. Errors are counted
// and logged per effect; subsequent effects still run.
func (d *Dispatcher) Dispatch(ctx context.Context, ec *hook.ExecutionContext, effects []hook.SideEffect) {
	for _, e := range effects {
		if err := d.dispatchOne(ctx, ec, e); err != nil {
			d.metrics.Increment("effects.errors")
			d.logger.Warn("side effect failed",
				"type", string(e.Type),
				"action", e.Action,
				"error", err,
			)
		} else {
			d.metrics.Increment("effects.dispatched")
		}
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ec *hook.ExecutionContext, e hook.SideEffect) error {
	switch e.Type {
	case hook.EffectMemory:
		return d.dispatchMemory(ctx, ec, e)
	case hook.EffectNeural:
		return d.dispatchNeural(ctx, ec, e)
	case hook.EffectMetric:
		return d.dispatchMetric(e)
	case hook.EffectNotification:
		return d.dispatchNotification(ctx, e)
	case hook.EffectLog:
		return d.dispatchLog(e)
	default:
		return fmt.Errorf("effect: unknown type %q", e.Type)
	}
}

func (d *Dispatcher) dispatchMemory(ctx context.Context, ec *hook.ExecutionContext, e hook.SideEffect) error {
	data, ok := e.Data.(hook.MemoryData)
	if !ok {
		return fmt.Errorf("effect: memory %s: data must be hook.MemoryData, got %T", e.Action, e.Data)
	}
	if ec == nil || ec.Memory == nil {
		return fmt.Errorf("effect: memory %s: no memory cache on context", e.Action)
	}

	ns := data.Namespace
	if ns == "" {
		ns = ec.MemoryNamespace
	}
	if data.Key == "" {
		return fmt.Errorf("effect: memory %s: key is required", e.Action)
	}

	switch e.Action {
	case "store":
		return ec.Memory.Set(ctx, ns, data.Key, data.Value, 0)
	case "delete":
		return ec.Memory.Delete(ctx, ns, data.Key)
	default:
		return fmt.Errorf("effect: memory: unknown action %q", e.Action)
	}
}

func (d *Dispatcher) dispatchNeural(ctx context.Context, ec *hook.ExecutionContext, e hook.SideEffect) error {
	data, ok := e.Data.(hook.NeuralData)
	if !ok {
		return fmt.Errorf("effect: neural %s: data must be hook.NeuralData, got %T", e.Action, e.Data)
	}
	if ec == nil || ec.Neural == nil {
		return fmt.Errorf("effect: neural %s: no neural store on context", e.Action)
	}

	switch e.Action {
	case "train", "record":
		modelID := data.ModelID
		if modelID == "" {
			modelID = ec.NeuralModelID
		}
		return ec.Neural.Record(ctx, modelID, data.Pattern, data.Data)
	default:
		return fmt.Errorf("effect: neural: unknown action %q", e.Action)
	}
}

func (d *Dispatcher) dispatchMetric(e hook.SideEffect) error {
	data, ok := e.Data.(hook.MetricData)
	if !ok {
		return fmt.Errorf("effect: metric %s: data must be hook.MetricData, got %T", e.Action, e.Data)
	}
	if data.Name == "" {
		return fmt.Errorf("effect: metric %s: name is required", e.Action)
	}

	switch e.Action {
	case "update":
		d.metrics.Set(data.Name, data.Value)
		return nil
	case "increment":
		d.metrics.Increment(data.Name)
		return nil
	default:
		return fmt.Errorf("effect: metric: unknown action %q", e.Action)
	}
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, e hook.SideEffect) error {
	data, ok := e.Data.(hook.NotificationData)
	if !ok {
		return fmt.Errorf("effect: notification %s: data must be hook.NotificationData, got %T", e.Action, e.Data)
	}
	if e.Action != "emit" {
		return fmt.Errorf("effect: notification: unknown action %q", e.Action)
	}
	if d.notifier == nil {
		d.logger.Debug("notification dropped, no notifier wired", "event", data.Event)
		return nil
	}
	d.notifier.Notify(ctx, data.Event, data.Message, data.Data)
	return nil
}

func (d *Dispatcher) dispatchLog(e hook.SideEffect) error {
	data, ok := e.Data.(hook.LogData)
	if !ok {
		return fmt.Errorf("effect: log %s: data must be hook.LogData, got %T", e.Action, e.Data)
	}
	if e.Action != "write" {
		return fmt.Errorf("effect: log: unknown action %q", e.Action)
	}

	args := make([]any, 0, len(data.Fields)*2)
	for k, v := range data.Fields {
		args = append(args, k, v)
	}
	d.logger.Log(context.Background(), data.Level, data.Message, args...)
	return nil
}
