package hook

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCache is the namespaced key/value store attached to an
// ExecutionContext and targeted by memory side effects.
// Implementations must be safe for concurrent use.
type MemoryCache interface {
	Get(ctx context.Context, namespace, key string) (any, bool, error)
	Set(ctx context.Context, namespace, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, namespace, key string) error
}

// NeuralStore receives neural side effects (pattern recordings).
// Implementations must be safe for concurrent use.
type NeuralStore interface {
	Record(ctx context.Context, modelID, pattern string, data map[string]any) error
}

// ExecutionContext is built once per logical operation and passed by
// reference through the whole hook chain. Hooks may read and write
// Metadata and the attached stores but must not replace the context
// itself.
type ExecutionContext struct {
	SessionID     string
	CorrelationID string
	Timestamp     time.Time

	// Memory is the cache handed to memory side effects and available
	// to handlers. MemoryNamespace is the default namespace.
	Memory          MemoryCache
	MemoryNamespace string

	// Neural receives neural side effects for NeuralModelID.
	Neural        NeuralStore
	NeuralModelID string

	// Performance is an open per-operation metrics map shared between
	// hooks. Guarded by the same lock as Metadata.
	Performance map[string]float64

	Logger *slog.Logger

	mu       sync.RWMutex
	metadata map[string]any
}

// Meta returns the metadata value for key.
func (ec *ExecutionContext) Meta(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.metadata[key]
	return v, ok
}

// SetMeta stores a metadata value. Metadata is a narrow extension point
// for hooks to pass data down the chain, not a general escape hatch.
func (ec *ExecutionContext) SetMeta(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.metadata[key] = value
}

// MetaSnapshot returns a copy of the metadata map.
func (ec *ExecutionContext) MetaSnapshot() map[string]any {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	cp := make(map[string]any, len(ec.metadata))
	for k, v := range ec.metadata {
		cp[k] = v
	}
	return cp
}

// RecordPerformance adds v to the named performance counter.
func (ec *ExecutionContext) RecordPerformance(name string, v float64) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.Performance[name] += v
}

// ContextBuilder assembles an ExecutionContext. Build fills any unset
// section with generated defaults so every context handed to a hook is
// fully populated. The builder holds plain fields and constructs the
// context struct exactly once; an ExecutionContext embeds a mutex and
// must never be copied.
type ContextBuilder struct {
	sessionID       string
	correlationID   string
	memoryNamespace string
	memory          MemoryCache
	neuralModelID   string
	neural          NeuralStore
	performance     map[string]float64
	metadata        map[string]any
	logger          *slog.Logger
}

// NewContextBuilder returns an empty builder.
func NewContextBuilder() *ContextBuilder {
	return &ContextBuilder{}
}

// WithSession sets the session id.
func (b *ContextBuilder) WithSession(sessionID string) *ContextBuilder {
	b.sessionID = sessionID
	return b
}

// WithCorrelation sets the correlation id.
func (b *ContextBuilder) WithCorrelation(correlationID string) *ContextBuilder {
	b.correlationID = correlationID
	return b
}

// WithMemory attaches a memory cache under the given default namespace.
func (b *ContextBuilder) WithMemory(namespace string, provider MemoryCache) *ContextBuilder {
	b.memoryNamespace = namespace
	b.memory = provider
	return b
}

// WithNeural attaches the neural store target model.
func (b *ContextBuilder) WithNeural(modelID string, store NeuralStore) *ContextBuilder {
	b.neuralModelID = modelID
	b.neural = store
	return b
}

// WithPerformance seeds the performance metrics map.
func (b *ContextBuilder) WithPerformance(metrics map[string]float64) *ContextBuilder {
	b.performance = metrics
	return b
}

// WithMetadata merges the given entries into the metadata map.
func (b *ContextBuilder) WithMetadata(partial map[string]any) *ContextBuilder {
	if b.metadata == nil {
		b.metadata = make(map[string]any, len(partial))
	}
	for k, v := range partial {
		b.metadata[k] = v
	}
	return b
}

// WithLogger sets the logger hooks see on the context.
func (b *ContextBuilder) WithLogger(logger *slog.Logger) *ContextBuilder {
	b.logger = logger
	return b
}

// Build finalizes the context, generating defaults for every unset
// required section. Each call produces an independent context; the
// metadata map is copied so a reused builder cannot alias it.
func (b *ContextBuilder) Build() *ExecutionContext {
	ec := &ExecutionContext{
		SessionID:       b.sessionID,
		CorrelationID:   b.correlationID,
		Memory:          b.memory,
		MemoryNamespace: b.memoryNamespace,
		Neural:          b.neural,
		NeuralModelID:   b.neuralModelID,
		Performance:     b.performance,
		Logger:          b.logger,
	}
	if ec.SessionID == "" {
		ec.SessionID = uuid.NewString()
	}
	if ec.CorrelationID == "" {
		ec.CorrelationID = uuid.NewString()
	}
	ec.Timestamp = time.Now().UTC()
	if ec.Memory == nil {
		ec.Memory = NewMemCache()
	}
	if ec.MemoryNamespace == "" {
		ec.MemoryNamespace = "default"
	}
	if ec.Neural == nil {
		ec.Neural = nopNeural{}
	}
	if ec.Performance == nil {
		ec.Performance = make(map[string]float64)
	}
	ec.metadata = make(map[string]any, len(b.metadata))
	for k, v := range b.metadata {
		ec.metadata[k] = v
	}
	if ec.Logger == nil {
		ec.Logger = slog.Default()
	}
	return ec
}

// nopNeural discards recordings. Default when no neural store is wired.
type nopNeural struct{}

func (nopNeural) Record(context.Context, string, string, map[string]any) error { return nil }
