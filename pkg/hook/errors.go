package hook

import (
	"errors"
	"fmt"
	"time"
)

// Registration and lookup errors. Always surfaced to the caller, never
// swallowed.
var (
	// ErrInvalidRegistration marks a registration missing its id, type,
	// or handler, or carrying a negative priority.
	ErrInvalidRegistration = errors.New("hook: invalid registration")

	// ErrDuplicateHook marks an id collision with an existing
	// registration.
	ErrDuplicateHook = errors.New("hook: duplicate hook id")

	// ErrHookNotFound marks an unregister of an unknown id.
	ErrHookNotFound = errors.New("hook: not found")

	// ErrPipelineNotFound marks execution of an unknown pipeline id.
	ErrPipelineNotFound = errors.New("pipeline: not found")
)

// TimeoutError reports that a hook's handler exceeded its per-invocation
// timeout. The handler may still be running in the background.
type TimeoutError struct {
	HookID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("hook %s: timed out after %s", e.HookID, e.Timeout)
}

// ExecutionError reports that a handler failed after exhausting its
// retries with no fallback (or a failing fallback). It aborts the chain
// for the current event occurrence.
type ExecutionError struct {
	HookID   string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("hook %s: failed after %d attempt(s): %v", e.HookID, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
