// Package match decides whether a registered hook applies to a given
// execution, caching recent decisions with a TTL to stay cheap under
// high event volume.
package match

import (
	"strings"
	"sync"
	"time"

	"github.com/whrit/flow-agent-sub006/pkg/hook"
)

const (
	// DefaultTTL bounds how long a cached decision stays valid.
	DefaultTTL = 60 * time.Second

	// DefaultMaxEntries bounds the decision cache size.
	DefaultMaxEntries = 4096
)

// Decision is the outcome of one match evaluation.
type Decision struct {
	Matched  bool
	Duration time.Duration
	CacheHit bool
}

// Stats is a point-in-time view of the decision cache.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Config controls cache behavior.
type Config struct {
	// TTL for cached decisions. Default 60s.
	TTL time.Duration

	// MaxEntries bounds the cache. Default 4096.
	MaxEntries int
}

func (c *Config) defaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = DefaultMaxEntries
	}
}

// Matcher evaluates hook filters against executions. Thread-safe.
type Matcher struct {
	cfg Config

	mu      sync.Mutex
	cache   map[string]entry
	hits    int64
	misses  int64

	// now is injectable for testing. Defaults to time.Now.
	now func() time.Time
}

type entry struct {
	matched  bool
	storedAt time.Time
}

// New creates a matcher with the given cache config.
func New(cfg Config) *Matcher {
	cfg.defaults()
	return &Matcher{
		cfg:   cfg,
		cache: make(map[string]entry),
		now:   time.Now,
	}
}

// Match reports whether the hook applies to (payload, ec). A hook with
// no filter always matches. Each non-empty filter set must intersect the
// value derived from the payload or context; a value that cannot be
// derived fails its set.
func (m *Matcher) Match(reg *hook.Registration, payload any, ec *hook.ExecutionContext) Decision {
	start := m.now()

	if reg.Filter.Empty() {
		return Decision{Matched: true, Duration: m.now().Sub(start)}
	}

	key := reg.ID + "\x00" + deriveKey(payload, ec)

	m.mu.Lock()
	if e, ok := m.cache[key]; ok && m.now().Sub(e.storedAt) < m.cfg.TTL {
		m.hits++
		m.mu.Unlock()
		return Decision{Matched: e.matched, Duration: m.now().Sub(start), CacheHit: true}
	}
	m.misses++
	m.mu.Unlock()

	matched := m.evaluate(reg.Filter, payload, ec)

	m.mu.Lock()
	if len(m.cache) >= m.cfg.MaxEntries {
		m.pruneLocked()
	}
	if len(m.cache) < m.cfg.MaxEntries {
		m.cache[key] = entry{matched: matched, storedAt: m.now()}
	}
	m.mu.Unlock()

	return Decision{Matched: matched, Duration: m.now().Sub(start)}
}

func (m *Matcher) evaluate(f *hook.Filter, payload any, ec *hook.ExecutionContext) bool {
	checks := []struct {
		declared []string
		field    string
	}{
		{f.Providers, "provider"},
		{f.Models, "model"},
		{f.Operations, "operation"},
		{f.Namespaces, "namespace"},
	}
	for _, c := range checks {
		if len(c.declared) == 0 {
			continue
		}
		value, ok := derive(payload, ec, c.field)
		if !ok || !contains(c.declared, value) {
			return false
		}
	}
	return true
}

// PruneCache removes entries older than the TTL and returns how many
// were dropped.
func (m *Matcher) PruneCache() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked()
}

func (m *Matcher) pruneLocked() int {
	cutoff := m.now().Add(-m.cfg.TTL)
	dropped := 0
	for k, e := range m.cache {
		if e.storedAt.Before(cutoff) {
			delete(m.cache, k)
			dropped++
		}
	}
	return dropped
}

// ClearCache drops every cached decision.
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]entry)
	m.mu.Unlock()
}

// CacheStats returns cache size and hit rate.
func (m *Matcher) CacheStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{Size: len(m.cache), Hits: m.hits, Misses: m.misses}
	if total := m.hits + m.misses; total > 0 {
		s.HitRate = float64(m.hits) / float64(total)
	}
	return s
}

// derive extracts a named capability value from the payload (map form)
// first, then from context metadata.
func derive(payload any, ec *hook.ExecutionContext, field string) (string, bool) {
	if pm, ok := payload.(map[string]any); ok {
		if v, ok := pm[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	if ec != nil {
		if v, ok := ec.Meta(field); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// deriveKey builds the cache key component shared by all hooks for one
// (context, payload) shape: session id plus the derivable capability
// values.
func deriveKey(payload any, ec *hook.ExecutionContext) string {
	var b strings.Builder
	if ec != nil {
		b.WriteString(ec.SessionID)
	}
	for _, field := range [...]string{"provider", "model", "operation", "namespace"} {
		b.WriteByte('|')
		if v, ok := derive(payload, ec, field); ok {
			b.WriteString(v)
		}
	}
	return b.String()
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
