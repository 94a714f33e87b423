// Package metrics aggregates counters and rolling statistics for hook
// and pipeline activity. The aggregator is the single flat metrics store
// shared by the engine, the dispatcher, and the orchestrator; the
// gateway exposes its snapshot as JSON and via Prometheus.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Aggregator holds named float counters/gauges plus rolling execution
// statistics. Safe for concurrent use.
type Aggregator struct {
	mu     sync.RWMutex
	values map[string]float64

	executions    int64
	totalDuration time.Duration
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{values: make(map[string]float64)}
}

// Increment adds 1 to the named counter.
func (a *Aggregator) Increment(name string) {
	a.Add(name, 1)
}

// Add adds v to the named counter.
func (a *Aggregator) Add(name string, v float64) {
	a.mu.Lock()
	a.values[name] += v
	a.mu.Unlock()
}

// Set overwrites the named gauge.
func (a *Aggregator) Set(name string, v float64) {
	a.mu.Lock()
	a.values[name] = v
	a.mu.Unlock()
}

// Get returns the named value, or 0 when absent.
func (a *Aggregator) Get(name string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.values[name]
}

// RecordExecution folds one hook-chain execution into the rolling stats.
func (a *Aggregator) RecordExecution(d time.Duration) {
	a.mu.Lock()
	a.executions++
	a.totalDuration += d
	a.mu.Unlock()
}

// Executions returns the total number of recorded executions.
func (a *Aggregator) Executions() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.executions
}

// AvgDuration returns the mean recorded execution duration.
func (a *Aggregator) AvgDuration() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.executions == 0 {
		return 0
	}
	return a.totalDuration / time.Duration(a.executions)
}

// Snapshot returns a copy of every named value plus the rolling stats,
// as a flat map.
func (a *Aggregator) Snapshot() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := make(map[string]any, len(a.values)+2)
	for k, v := range a.values {
		snap[k] = v
	}
	snap["executions.total"] = float64(a.executions)
	if a.executions > 0 {
		snap["executions.avg_duration_ms"] = float64(a.totalDuration.Milliseconds()) / float64(a.executions)
	}
	return snap
}

// Names returns the sorted list of known metric names.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.values))
	for k := range a.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
