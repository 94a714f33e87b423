// Package hooktest provides test doubles for the hook engine.
package hooktest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// Reg builds a minimal registration with an echo handler.
func Reg(id, typ string, priority int) *hook.Registration {
	return &hook.Registration{
		ID:       id,
		Type:     typ,
		Priority: priority,
		Handler:  Echo(),
	}
}

// Echo returns a handler that continues without modifying the payload.
func Echo() hook.Handler {
	return func(context.Context, any, *hook.ExecutionContext) (*hook.Result, error) {
		return &hook.Result{Continue: true}, nil
	}
}

// Modify returns a handler that replaces the payload.
func Modify(replacement any) hook.Handler {
	return func(context.Context, any, *hook.ExecutionContext) (*hook.Result, error) {
		return &hook.Result{Continue: true, Modified: true, Payload: replacement}, nil
	}
}

// Stop returns a handler that short-circuits the chain.
func Stop() hook.Handler {
	return func(context.Context, any, *hook.ExecutionContext) (*hook.Result, error) {
		return &hook.Result{Continue: false}, nil
	}
}

// Fail returns a handler that always fails with the given error.
func Fail(err error) hook.Handler {
	if err == nil {
		err = errors.New("hooktest: forced failure")
	}
	return func(context.Context, any, *hook.ExecutionContext) (*hook.Result, error) {
		return nil, err
	}
}

// FailN returns a handler that fails n times, then succeeds. The
// returned counter reports total invocations.
func FailN(n int) (hook.Handler, *Counter) {
	c := &Counter{}
	handler := func(context.Context, any, *hook.ExecutionContext) (*hook.Result, error) {
		call := c.inc()
		if call <= n {
			return nil, errors.New("hooktest: transient failure")
		}
		return &hook.Result{Continue: true}, nil
	}
	return handler, c
}

// Sleep returns a handler that waits for d (or until ctx ends) before
// continuing.
func Sleep(d time.Duration) hook.Handler {
	return func(ctx context.Context, _ any, _ *hook.ExecutionContext) (*hook.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return &hook.Result{Continue: true}, nil
		}
	}
}

// Counting wraps a handler, counting invocations.
func Counting(inner hook.Handler) (hook.Handler, *Counter) {
	c := &Counter{}
	handler := func(ctx context.Context, payload any, ec *hook.ExecutionContext) (*hook.Result, error) {
		c.inc()
		return inner(ctx, payload, ec)
	}
	return handler, c
}

// Counter is a thread-safe invocation counter.
type Counter struct {
	mu sync.Mutex
	n  int
}

func (c *Counter) inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n
}

// Calls returns the number of recorded invocations.
func (c *Counter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Ctx builds a fully populated ExecutionContext for tests.
func Ctx() *hook.ExecutionContext {
	return hook.NewContextBuilder().Build()
}
