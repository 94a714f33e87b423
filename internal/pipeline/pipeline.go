// Package pipeline composes groups of hooks into named, ordered stages
// with conditional execution and a configurable error-handling strategy.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// ErrorStrategy selects how a pipeline reacts to a failing stage.
type ErrorStrategy string

const (
	// FailFast re-raises the stage error immediately. Default.
	FailFast ErrorStrategy = "fail-fast"

	// Continue swallows the error and proceeds to the next stage,
	// keeping the results accumulated so far.
	Continue ErrorStrategy = "continue"

	// Rollback invokes the pipeline's rollback routine with the
	// partial results before re-raising.
	Rollback ErrorStrategy = "rollback"
)

// Valid reports whether s names a known strategy.
func (s ErrorStrategy) Valid() bool {
	switch s {
	case FailFast, Continue, Rollback:
		return true
	}
	return false
}

// Stage is one step of a pipeline. Hooks reference registrations by
// identity; the registry remains the sole owner.
type Stage struct {
	Name string

	// Hooks run sequentially with payload threading, or concurrently
	// against the same payload when Parallel is set.
	Hooks []*hook.Registration

	Parallel bool

	// Condition skips the stage entirely when it returns false: no
	// hooks run and no metrics are recorded for the stage.
	Condition func(ec *hook.ExecutionContext) bool

	// Transform maps each individual hook result before accumulation.
	// Returning nil keeps the original result.
	Transform func(res *hook.Result) *hook.Result
}

// RollbackFunc receives the pipeline and the partial results gathered
// before the failure.
type RollbackFunc func(ctx context.Context, p *Pipeline, partial []*hook.Result)

// Spec declares a pipeline to create.
type Spec struct {
	ID            string
	Name          string
	Stages        []Stage
	ErrorStrategy ErrorStrategy
	OnRollback    RollbackFunc
}

// Metrics is the running per-pipeline view. Executions counts every run,
// success or failure; ErrorRate is the running mean of the 0/1 error
// indicator; Throughput is executions-per-minute normalized to the most
// recent run's duration (a deliberately simple, non-windowed estimator).
type Metrics struct {
	Executions  int64         `json:"executions"`
	AvgDuration time.Duration `json:"avg_duration_ns"`
	ErrorRate   float64       `json:"error_rate"`
	Throughput  float64       `json:"throughput"`
}

// Pipeline is a registered, executable stage sequence.
type Pipeline struct {
	ID   string
	Name string

	stages     []Stage
	strategy   ErrorStrategy
	onRollback RollbackFunc

	mu            sync.Mutex
	metrics       Metrics
	totalDuration time.Duration
	errorCount    int64
}

// Strategy returns the pipeline's error strategy.
func (p *Pipeline) Strategy() ErrorStrategy { return p.strategy }

// Stages returns the stage count.
func (p *Pipeline) Stages() int { return len(p.stages) }

// Metrics returns a copy of the running metrics.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// recordExecution folds one run into the running means.
func (p *Pipeline) recordExecution(d time.Duration, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.Executions++
	p.totalDuration += d
	if failed {
		p.errorCount++
	}

	p.metrics.AvgDuration = p.totalDuration / time.Duration(p.metrics.Executions)
	p.metrics.ErrorRate = float64(p.errorCount) / float64(p.metrics.Executions)

	if ms := float64(d) / float64(time.Millisecond); ms > 0 {
		p.metrics.Throughput = float64(p.metrics.Executions) / ms * 60000
	}
}
