package hook

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func TestContextBuilder_Defaults(t *testing.T) {
	t.Parallel()

	ec := NewContextBuilder().Build()

	if ec.SessionID == "" || ec.CorrelationID == "" {
		t.Error("Build() left ids unset")
	}
	if ec.Timestamp.IsZero() {
		t.Error("Build() left timestamp unset")
	}
	if ec.Memory == nil {
		t.Error("Build() left memory unset")
	}
	if ec.MemoryNamespace != "default" {
		t.Errorf("MemoryNamespace = %q, want %q", ec.MemoryNamespace, "default")
	}
	if ec.Neural == nil || ec.Performance == nil || ec.Logger == nil {
		t.Error("Build() left a section unset")
	}

	// The default neural store discards recordings without error.
	if err := ec.Neural.Record(context.Background(), "m", "p", nil); err != nil {
		t.Errorf("default neural store Record() = %v", err)
	}
}

func TestContextBuilder_Explicit(t *testing.T) {
	t.Parallel()

	mem := NewMemCache()
	logger := slog.Default()
	ec := NewContextBuilder().
		WithSession("s-1").
		WithCorrelation("c-1").
		WithMemory("agents", mem).
		WithMetadata(map[string]any{"provider": "openai"}).
		WithPerformance(map[string]float64{"seed": 1}).
		WithLogger(logger).
		Build()

	if ec.SessionID != "s-1" || ec.CorrelationID != "c-1" {
		t.Errorf("ids = (%q, %q)", ec.SessionID, ec.CorrelationID)
	}
	if ec.Memory != MemoryCache(mem) || ec.MemoryNamespace != "agents" {
		t.Error("memory provider not carried through")
	}
	if v, ok := ec.Meta("provider"); !ok || v != "openai" {
		t.Errorf("Meta(provider) = (%v, %v)", v, ok)
	}
	if ec.Performance["seed"] != 1 {
		t.Error("performance seed not carried through")
	}
}

func TestContextBuilder_BuildsAreIndependent(t *testing.T) {
	t.Parallel()

	b := NewContextBuilder().WithMetadata(map[string]any{"shared": "seed"})
	first := b.Build()
	second := b.Build()

	first.SetMeta("only-first", true)
	if _, ok := second.Meta("only-first"); ok {
		t.Error("contexts from the same builder share metadata")
	}
	if v, ok := second.Meta("shared"); !ok || v != "seed" {
		t.Errorf("Meta(shared) = (%v, %v)", v, ok)
	}
	if first.SessionID == second.SessionID {
		t.Error("generated session ids collided across builds")
	}
}

func TestExecutionContext_Metadata(t *testing.T) {
	t.Parallel()

	ec := NewContextBuilder().Build()
	ec.SetMeta("k", 1)

	if v, ok := ec.Meta("k"); !ok || v != 1 {
		t.Errorf("Meta(k) = (%v, %v)", v, ok)
	}
	if _, ok := ec.Meta("absent"); ok {
		t.Error("Meta returned a value for an absent key")
	}

	snap := ec.MetaSnapshot()
	snap["k"] = 99
	if v, _ := ec.Meta("k"); v != 1 {
		t.Error("mutating the snapshot changed the context")
	}
}

func TestExecutionContext_ConcurrentMetadata(t *testing.T) {
	t.Parallel()

	ec := NewContextBuilder().Build()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ec.SetMeta("k", i)
				ec.Meta("k")
				ec.RecordPerformance("ops", 1)
			}
		}()
	}
	wg.Wait()

	ec.mu.RLock()
	defer ec.mu.RUnlock()
	if ec.Performance["ops"] != 400 {
		t.Errorf("ops = %v, want 400", ec.Performance["ops"])
	}
}

func TestMemCache_TTL(t *testing.T) {
	t.Parallel()

	c := NewMemCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	if err := c.Set(ctx, "ns", "ephemeral", "v", time.Minute); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if err := c.Set(ctx, "ns", "durable", "v", 0); err != nil {
		t.Fatalf("Set() = %v", err)
	}

	if _, ok, _ := c.Get(ctx, "ns", "ephemeral"); !ok {
		t.Error("fresh entry missing")
	}

	now = now.Add(2 * time.Minute)

	if _, ok, _ := c.Get(ctx, "ns", "ephemeral"); ok {
		t.Error("expired entry still readable")
	}
	if _, ok, _ := c.Get(ctx, "ns", "durable"); !ok {
		t.Error("zero-ttl entry expired")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after lazy expiry", c.Len())
	}
}

func TestMemCache_NamespaceIsolation(t *testing.T) {
	t.Parallel()

	c := NewMemCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", "k", 1, 0)
	_ = c.Set(ctx, "b", "k", 2, 0)

	va, _, _ := c.Get(ctx, "a", "k")
	vb, _, _ := c.Get(ctx, "b", "k")
	if va != 1 || vb != 2 {
		t.Errorf("namespaces collided: a=%v b=%v", va, vb)
	}

	if err := c.Delete(ctx, "a", "k"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a", "k"); ok {
		t.Error("deleted entry still readable")
	}
	if _, ok, _ := c.Get(ctx, "b", "k"); !ok {
		t.Error("delete crossed namespaces")
	}

	if err := c.Delete(ctx, "a", "missing"); err != nil {
		t.Errorf("Delete(missing) = %v", err)
	}
}
