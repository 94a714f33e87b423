// Package registry owns the mapping from event type to its
// priority-ordered hook registrations. It is a pure data structure with
// validation; execution lives in the engine.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

// Registry stores hook registrations grouped by event type. Each type's
// list is kept in descending priority order; equal priorities keep
// arrival order. Thread-safe.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string][]*hook.Registration
	byID  map[string]*hook.Registration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		hooks: make(map[string][]*hook.Registration),
		byID:  make(map[string]*hook.Registration),
	}
}

// Register validates and inserts a registration. The insertion point is
// the first entry with strictly lower priority, so later registrations
// with equal priority land after existing ones.
func (r *Registry) Register(reg *hook.Registration) error {
	if reg == nil || reg.ID == "" || reg.Type == "" || reg.Handler == nil {
		return fmt.Errorf("%w: id, type, and handler are required", hook.ErrInvalidRegistration)
	}
	if reg.Priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0, got %d", hook.ErrInvalidRegistration, reg.Priority)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Unregister and pipeline specs address hooks by bare id, so ids
	// are unique across all types, not just within one.
	if _, exists := r.byID[reg.ID]; exists {
		return fmt.Errorf("%w: %q already registered", hook.ErrDuplicateHook, reg.ID)
	}

	bucket := r.hooks[reg.Type]
	idx := len(bucket)
	for i, existing := range bucket {
		if existing.Priority < reg.Priority {
			idx = i
			break
		}
	}
	bucket = append(bucket, nil)
	copy(bucket[idx+1:], bucket[idx:])
	bucket[idx] = reg
	r.hooks[reg.Type] = bucket
	r.byID[reg.ID] = reg
	return nil
}

// Unregister removes a registration by id, searching all types. The
// type bucket is dropped entirely once empty.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for typ, bucket := range r.hooks {
		for i, reg := range bucket {
			if reg.ID != id {
				continue
			}
			bucket = append(bucket[:i], bucket[i+1:]...)
			if len(bucket) == 0 {
				delete(r.hooks, typ)
			} else {
				r.hooks[typ] = bucket
			}
			delete(r.byID, id)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", hook.ErrHookNotFound, id)
}

// GetHooks returns a snapshot copy of the ordered list for a type,
// optionally pre-filtered by static capability overlap. Used at
// pipeline-build time; the async matcher is not involved.
func (r *Registry) GetHooks(typ string, filter *hook.Filter) []*hook.Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket := r.hooks[typ]
	out := make([]*hook.Registration, 0, len(bucket))
	for _, reg := range bucket {
		if filter.Empty() || overlaps(reg.Filter, filter) {
			out = append(out, reg)
		}
	}
	return out
}

// Lookup returns the registration with the given id, if present.
func (r *Registry) Lookup(id string) (*hook.Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[id]
	return reg, ok
}

// Count returns the total number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Types returns the sorted list of event types with registrations.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.hooks))
	for typ := range r.hooks {
		types = append(types, typ)
	}
	sort.Strings(types)
	return types
}

// overlaps reports whether a registration's capability sets intersect
// the requested filter. A registration with no filter overlaps
// everything.
func overlaps(have, want *hook.Filter) bool {
	if have.Empty() {
		return true
	}
	return intersects(have.Providers, want.Providers) ||
		intersects(have.Models, want.Models) ||
		intersects(have.Operations, want.Operations) ||
		intersects(have.Namespaces, want.Namespaces)
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
