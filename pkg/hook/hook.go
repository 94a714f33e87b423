// Package hook defines the shared types of the flowd extensibility
// substrate: hook registrations, handler results, side effects, and the
// execution context threaded through every hook chain. It is imported by
// both the engine internals and by external code that contributes hooks.
package hook

import (
	"context"
	"time"
)

// Handler is the function a hook contributes. It receives the current
// payload (possibly replaced by an earlier hook in the chain) and the
// shared ExecutionContext. A nil *Result is treated as "continue,
// unmodified".
type Handler func(ctx context.Context, payload any, ec *ExecutionContext) (*Result, error)

// ErrorHandler is notified when a hook's handler fails after all retries
// and any fallback have been exhausted. If present, the failure is
// contained and the chain continues past the hook.
type ErrorHandler func(ctx context.Context, err error, payload any, ec *ExecutionContext)

// Registration binds a handler to an event type with a priority and an
// optional execution policy. IDs must be unique across all
// registrations; unregistration and pipeline wiring address hooks by
// bare id.
type Registration struct {
	// ID uniquely identifies the hook.
	ID string

	// Type is the event type the hook subscribes to.
	Type string

	// Priority orders execution: higher values run first. Equal
	// priorities keep registration order. Must be >= 0.
	Priority int

	// Handler is invoked for every matching event occurrence.
	Handler Handler

	// Filter restricts which executions the hook applies to.
	// A nil Filter matches everything.
	Filter *Filter

	// Options declares the hook's execution policy (timeout, retry,
	// fallback, caching). A nil Options means plain invocation.
	Options *Options
}

// Filter is a capability predicate. Each non-empty set constrains the
// corresponding value derived from the payload or context; all non-empty
// sets must intersect for the hook to match.
type Filter struct {
	Providers  []string
	Models     []string
	Operations []string
	Namespaces []string
}

// Empty reports whether the filter constrains nothing.
func (f *Filter) Empty() bool {
	if f == nil {
		return true
	}
	return len(f.Providers) == 0 && len(f.Models) == 0 &&
		len(f.Operations) == 0 && len(f.Namespaces) == 0
}

// Options declares per-hook execution policy.
type Options struct {
	// Timeout bounds a single handler invocation. Zero means no limit.
	// On expiry the engine stops waiting; the handler may keep running
	// in the background if it ignores context cancellation.
	Timeout time.Duration

	// Retry re-invokes the raw handler on failure with exponential
	// backoff. Nil means no retries.
	Retry *RetryPolicy

	// Fallback is invoked with the same arguments once the handler has
	// exhausted its retries; its result is used as if the handler had
	// succeeded.
	Fallback Handler

	// ErrorHandler contains a final failure instead of aborting the
	// chain. See ErrorHandler.
	ErrorHandler ErrorHandler

	// Cache short-circuits the handler for repeated payloads.
	Cache *CacheSpec
}

// RetryPolicy is an explicit backoff schedule: attempt n (1-based) waits
// BaseDelay * Multiplier^(n-1), plus up to Jitter fraction of that delay.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial failure.
	MaxAttempts int

	// BaseDelay is the wait before the first retry. Defaults to 100ms.
	BaseDelay time.Duration

	// Multiplier grows the delay between attempts. Defaults to 2.
	Multiplier float64

	// Jitter in [0,1] adds a random fraction of the delay. Default 0.
	Jitter float64
}

// Defaults fills zero-value fields in place.
func (p *RetryPolicy) Defaults() {
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
}

// Delay returns the backoff before retry attempt n (1-based). Jitter is
// excluded; callers add it so tests stay deterministic.
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// CacheSpec enables result caching for a hook. Entries are keyed by
// (hook ID, Key(payload)) so two hooks can never collide.
type CacheSpec struct {
	Enabled bool

	// Key derives the cache key from the current payload. If nil, a
	// fingerprint of the payload is used.
	Key func(payload any) string

	// TTL bounds entry lifetime. Defaults to 60s.
	TTL time.Duration
}

// Result is what a handler returns to the engine.
type Result struct {
	// Continue tells the engine whether hooks after this one should
	// still run. False short-circuits the chain (not an error).
	Continue bool

	// Modified marks Payload as a replacement for the in-flight
	// payload. Payload is ignored when Modified is false.
	Modified bool

	// Payload replaces the chain's current payload when Modified.
	Payload any

	// SideEffects are dispatched, in order, after the handler returns.
	SideEffects []SideEffect

	// FromCache is set by the engine when the result was served from
	// the hook's result cache without invoking the handler.
	FromCache bool
}

// Clone returns a shallow copy so cached results can be handed out with
// engine-owned flags (FromCache) without mutating the stored value.
func (r *Result) Clone() *Result {
	cp := *r
	return &cp
}
