package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strconv"
	"time"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// defaultResultTTL bounds result-cache entries when the hook's CacheSpec
// leaves TTL unset.
const defaultResultTTL = 60 * time.Second

type cachedResult struct {
	result    *hook.Result
	expiresAt time.Time
}

// invoke runs one hook with its full execution policy: result cache,
// timeout race, retries with exponential backoff, fallback. On success
// it stores the cache entry and dispatches side effects.
func (e *Engine) invoke(ctx context.Context, reg *hook.Registration, payload any, ec *hook.ExecutionContext) (*hook.Result, error) {
	opts := reg.Options

	var cacheKey string
	if opts != nil && opts.Cache != nil && opts.Cache.Enabled {
		cacheKey = reg.ID + "\x00" + e.cacheKeyFor(opts.Cache, payload)
		if res, ok := e.cacheGet(cacheKey); ok {
			e.metrics.Increment("hooks." + reg.ID + ".cache_hits")
			served := res.Clone()
			served.FromCache = true
			return served, nil
		}
	}

	res, err := e.attempt(ctx, reg, payload, ec)
	attempts := 1

	if err != nil && opts != nil && opts.Retry != nil && opts.Retry.MaxAttempts > 0 {
		policy := *opts.Retry
		policy.Defaults()

		for retry := 1; retry <= policy.MaxAttempts; retry++ {
			delay := policy.Delay(retry)
			if policy.Jitter > 0 {
				delay += time.Duration(rand.Float64() * policy.Jitter * float64(delay))
			}
			if serr := e.sleep(ctx, delay); serr != nil {
				return nil, serr
			}

			// Retries re-invoke the raw handler; the cache is bypassed.
			res, err = e.attempt(ctx, reg, payload, ec)
			attempts++
			if err == nil {
				break
			}
		}
	}

	if err != nil && opts != nil && opts.Fallback != nil {
		res, err = opts.Fallback(ctx, payload, ec)
		if err != nil {
			err = fmt.Errorf("fallback: %w", err)
		}
	}

	if err != nil {
		var te *hook.TimeoutError
		if errors.As(err, &te) && attempts == 1 {
			return nil, te
		}
		return nil, &hook.ExecutionError{HookID: reg.ID, Attempts: attempts, Err: err}
	}

	if res == nil {
		res = &hook.Result{Continue: true}
	}

	if cacheKey != "" {
		ttl := opts.Cache.TTL
		if ttl <= 0 {
			ttl = defaultResultTTL
		}
		e.cacheStore(cacheKey, res, ttl)
	}

	if len(res.SideEffects) > 0 {
		e.effects.Dispatch(ctx, ec, res.SideEffects)
	}
	return res, nil
}

// attempt runs the handler once, racing its completion against the
// hook's timeout. On expiry the engine stops waiting; a handler that
// ignores cancellation keeps running in the background.
func (e *Engine) attempt(ctx context.Context, reg *hook.Registration, payload any, ec *hook.ExecutionContext) (*hook.Result, error) {
	timeout := time.Duration(0)
	if reg.Options != nil {
		timeout = reg.Options.Timeout
	}
	if timeout <= 0 {
		return reg.Handler(ctx, payload, ec)
	}

	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *hook.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := reg.Handler(hctx, payload, ec)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-hctx.Done():
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			return nil, &hook.TimeoutError{HookID: reg.ID, Timeout: timeout}
		}
		return nil, hctx.Err()
	}
}

func (e *Engine) cacheGet(key string) (*hook.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.results[key]
	if !ok {
		return nil, false
	}
	if e.now().After(entry.expiresAt) {
		delete(e.results, key)
		return nil, false
	}
	return entry.result, true
}

func (e *Engine) cacheStore(key string, res *hook.Result, ttl time.Duration) {
	e.mu.Lock()
	e.results[key] = cachedResult{result: res, expiresAt: e.now().Add(ttl)}
	e.mu.Unlock()
}

// cacheKeyFor uses the hook's key function, falling back to a payload
// fingerprint.
func (e *Engine) cacheKeyFor(spec *hook.CacheSpec, payload any) string {
	if spec.Key != nil {
		return spec.Key(payload)
	}
	return fingerprint(payload)
}

// fingerprint derives a key from an arbitrary payload. %v prints maps
// with sorted keys, but pointers render as addresses, so payloads
// containing pointers should supply CacheSpec.Key instead.
func fingerprint(payload any) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%T|%v", payload, payload)
	return strconv.FormatUint(h.Sum64(), 16)
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
