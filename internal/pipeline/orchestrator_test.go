package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/whrit/flow-agent-sub006/internal/effect"
	"github.com/whrit/flow-agent-sub006/internal/engine"
	"github.com/whrit/flow-agent-sub006/internal/match"
	"github.com/whrit/flow-agent-sub006/internal/metrics"
	"github.com/whrit/flow-agent-sub006/internal/registry"
	"github.com/whrit/flow-agent-sub006/pkg/hook"
	"github.com/whrit/flow-agent-sub006/pkg/hook/hooktest"
)

func newOrchestrator() (*Orchestrator, *metrics.Aggregator) {
	agg := metrics.NewAggregator()
	reg := registry.New()
	m := match.New(match.Config{})
	d := effect.NewDispatcher(agg, nil, slog.Default())
	eng := engine.New(reg, m, d, agg, slog.Default())
	return NewOrchestrator(eng, agg, slog.Default()), agg
}

func TestCreatePipeline_Validation(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	if _, err := o.CreatePipeline(Spec{}); err == nil {
		t.Error("CreatePipeline accepted an empty id")
	}
	if _, err := o.CreatePipeline(Spec{ID: "p", ErrorStrategy: "explode"}); err == nil {
		t.Error("CreatePipeline accepted an unknown strategy")
	}

	p, err := o.CreatePipeline(Spec{ID: "p"})
	if err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}
	if p.Strategy() != FailFast {
		t.Errorf("default strategy = %q, want %q", p.Strategy(), FailFast)
	}

	if _, err := o.CreatePipeline(Spec{ID: "p"}); err == nil {
		t.Error("CreatePipeline accepted a duplicate id")
	}
	if o.Count() != 1 {
		t.Errorf("Count() = %d, want 1", o.Count())
	}
}

func TestExecutePipeline_NotFound(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	_, err := o.ExecutePipeline(context.Background(), "nope", nil, hooktest.Ctx())
	if !errors.Is(err, hook.ErrPipelineNotFound) {
		t.Fatalf("error = %v, want ErrPipelineNotFound", err)
	}
}

func TestExecutePipeline_SequentialThreading(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	enrich := hooktest.Reg("enrich", "stage", 0)
	enrich.Handler = hooktest.Modify(map[string]any{"enriched": true})

	var seen any
	inspect := hooktest.Reg("inspect", "stage", 0)
	inspect.Handler = func(_ context.Context, payload any, _ *hook.ExecutionContext) (*hook.Result, error) {
		seen = payload
		return &hook.Result{Continue: true}, nil
	}

	if _, err := o.CreatePipeline(Spec{
		ID: "thread",
		Stages: []Stage{
			{Name: "enrich", Hooks: []*hook.Registration{enrich}},
			{Name: "inspect", Hooks: []*hook.Registration{inspect}},
		},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	results, err := o.ExecutePipeline(context.Background(), "thread", map[string]any{"raw": true}, hooktest.Ctx())
	if err != nil {
		t.Fatalf("ExecutePipeline() = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	got, ok := seen.(map[string]any)
	if !ok || got["enriched"] != true {
		t.Errorf("second stage saw %v, want the enriched payload", seen)
	}
}

func TestExecutePipeline_ConditionSkipsStage(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	handler, calls := hooktest.Counting(hooktest.Echo())
	reg := hooktest.Reg("guarded", "stage", 0)
	reg.Handler = handler

	if _, err := o.CreatePipeline(Spec{
		ID: "cond",
		Stages: []Stage{{
			Name:      "guarded",
			Hooks:     []*hook.Registration{reg},
			Condition: func(ec *hook.ExecutionContext) bool { _, ok := ec.Meta("enabled"); return ok },
		}},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	results, err := o.ExecutePipeline(context.Background(), "cond", nil, hooktest.Ctx())
	if err != nil {
		t.Fatalf("ExecutePipeline() = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("skipped stage produced %d result(s)", len(results))
	}
	if calls.Calls() != 0 {
		t.Errorf("skipped stage invoked its hook %d time(s)", calls.Calls())
	}

	ec := hook.NewContextBuilder().WithMetadata(map[string]any{"enabled": true}).Build()
	if _, err := o.ExecutePipeline(context.Background(), "cond", nil, ec); err != nil {
		t.Fatalf("ExecutePipeline() = %v", err)
	}
	if calls.Calls() != 1 {
		t.Errorf("enabled stage invoked its hook %d time(s), want 1", calls.Calls())
	}
}

func TestExecutePipeline_ParallelStageRunsConcurrently(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	slow := hooktest.Reg("slow", "stage", 0)
	slow.Handler = hooktest.Sleep(50 * time.Millisecond)
	quick := hooktest.Reg("quick", "stage", 0)
	quick.Handler = hooktest.Sleep(10 * time.Millisecond)

	if _, err := o.CreatePipeline(Spec{
		ID: "par",
		Stages: []Stage{{
			Name:     "fanout",
			Hooks:    []*hook.Registration{slow, quick},
			Parallel: true,
		}},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	start := time.Now()
	results, err := o.ExecutePipeline(context.Background(), "par", nil, hooktest.Ctx())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("ExecutePipeline() = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	// Sequential execution would take at least 60ms.
	if elapsed >= 60*time.Millisecond {
		t.Errorf("parallel stage took %v, expected roughly the slowest hook's 50ms", elapsed)
	}
}

func TestExecutePipeline_Transform(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	reg := hooktest.Reg("raw", "stage", 0)

	if _, err := o.CreatePipeline(Spec{
		ID: "xf",
		Stages: []Stage{{
			Name:  "tag",
			Hooks: []*hook.Registration{reg},
			Transform: func(res *hook.Result) *hook.Result {
				out := res.Clone()
				out.Modified = true
				out.Payload = "tagged"
				return out
			},
		}},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	results, err := o.ExecutePipeline(context.Background(), "xf", nil, hooktest.Ctx())
	if err != nil {
		t.Fatalf("ExecutePipeline() = %v", err)
	}
	if len(results) != 1 || results[0].Payload != "tagged" {
		t.Errorf("transform not applied: %+v", results)
	}
}

func TestExecutePipeline_FailFast(t *testing.T) {
	t.Parallel()

	o, agg := newOrchestrator()

	failing := hooktest.Reg("failing", "stage", 0)
	failing.Handler = hooktest.Fail(errors.New("boom"))
	afterHandler, afterCalls := hooktest.Counting(hooktest.Echo())
	after := hooktest.Reg("after", "stage", 0)
	after.Handler = afterHandler

	if _, err := o.CreatePipeline(Spec{
		ID: "ff",
		Stages: []Stage{
			{Name: "bad", Hooks: []*hook.Registration{failing}},
			{Name: "next", Hooks: []*hook.Registration{after}},
		},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	_, err := o.ExecutePipeline(context.Background(), "ff", nil, hooktest.Ctx())
	if err == nil {
		t.Fatal("fail-fast pipeline succeeded despite a failing stage")
	}
	if afterCalls.Calls() != 0 {
		t.Errorf("stage after the failure ran %d time(s)", afterCalls.Calls())
	}

	// A failed run still counts as an execution in the aggregator.
	if got := agg.Get("pipelines.ff.executions"); got != 1 {
		t.Errorf("pipelines.ff.executions = %v, want 1", got)
	}
	if got := agg.Get("pipelines.ff.errors"); got != 1 {
		t.Errorf("pipelines.ff.errors = %v, want 1", got)
	}
}

func TestExecutePipeline_ContinueKeepsPartials(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	okBefore := hooktest.Reg("ok-before", "stage", 0)
	failing := hooktest.Reg("failing", "stage", 0)
	failing.Handler = hooktest.Fail(errors.New("boom"))
	okAfter := hooktest.Reg("ok-after", "stage", 0)

	if _, err := o.CreatePipeline(Spec{
		ID:            "cont",
		ErrorStrategy: Continue,
		Stages: []Stage{
			{Name: "a", Hooks: []*hook.Registration{okBefore}},
			{Name: "b", Hooks: []*hook.Registration{failing}},
			{Name: "c", Hooks: []*hook.Registration{okAfter}},
		},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	results, err := o.ExecutePipeline(context.Background(), "cont", nil, hooktest.Ctx())
	if err != nil {
		t.Fatalf("continue pipeline returned %v", err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want the 2 successful stages", len(results))
	}

	p, _ := o.Pipeline("cont")
	m := p.Metrics()
	if m.Executions != 1 {
		t.Errorf("Executions = %d, want 1", m.Executions)
	}
	if m.ErrorRate != 1 {
		t.Errorf("ErrorRate = %v, want 1 for a run with a failed stage", m.ErrorRate)
	}
}

func TestExecutePipeline_ContinueParallelStageKeepsSiblings(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	failing := hooktest.Reg("failing", "stage", 0)
	failing.Handler = hooktest.Fail(errors.New("boom"))
	slow := hooktest.Reg("slow", "stage", 0)
	slow.Handler = hooktest.Sleep(100 * time.Millisecond)

	if _, err := o.CreatePipeline(Spec{
		ID:            "par-cont",
		ErrorStrategy: Continue,
		Stages: []Stage{{
			Name:     "fanout",
			Hooks:    []*hook.Registration{failing, slow},
			Parallel: true,
		}},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	results, err := o.ExecutePipeline(context.Background(), "par-cont", nil, hooktest.Ctx())
	if err != nil {
		t.Fatalf("continue pipeline returned %v", err)
	}
	if len(results) != 1 {
		t.Errorf("len(results) = %d, want the slow sibling's 1", len(results))
	}

	p, _ := o.Pipeline("par-cont")
	if rate := p.Metrics().ErrorRate; rate != 1 {
		t.Errorf("ErrorRate = %v, want 1", rate)
	}
}

func TestExecutePipeline_RollbackInvokedThenReRaised(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()

	ok := hooktest.Reg("ok", "stage", 0)
	failing := hooktest.Reg("failing", "stage", 0)
	failing.Handler = hooktest.Fail(errors.New("boom"))

	var rolledBack []*hook.Result
	if _, err := o.CreatePipeline(Spec{
		ID:            "rb",
		ErrorStrategy: Rollback,
		OnRollback: func(_ context.Context, _ *Pipeline, partial []*hook.Result) {
			rolledBack = partial
		},
		Stages: []Stage{
			{Name: "a", Hooks: []*hook.Registration{ok}},
			{Name: "b", Hooks: []*hook.Registration{failing}},
		},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	_, err := o.ExecutePipeline(context.Background(), "rb", nil, hooktest.Ctx())
	if err == nil {
		t.Fatal("rollback pipeline swallowed the stage error")
	}
	if rolledBack == nil {
		t.Fatal("rollback routine was not invoked")
	}
	if len(rolledBack) != 1 {
		t.Errorf("rollback saw %d partial result(s), want 1", len(rolledBack))
	}
}

func TestExecutePipeline_Metrics(t *testing.T) {
	t.Parallel()

	o, agg := newOrchestrator()

	reg := hooktest.Reg("ok", "stage", 0)
	if _, err := o.CreatePipeline(Spec{
		ID:     "m",
		Stages: []Stage{{Name: "s", Hooks: []*hook.Registration{reg}}},
	}); err != nil {
		t.Fatalf("CreatePipeline() = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := o.ExecutePipeline(ctx, "m", nil, hooktest.Ctx()); err != nil {
			t.Fatalf("ExecutePipeline() = %v", err)
		}
	}

	p, _ := o.Pipeline("m")
	m := p.Metrics()
	if m.Executions != 3 {
		t.Errorf("Executions = %d, want 3", m.Executions)
	}
	if m.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", m.ErrorRate)
	}
	if got := agg.Get("pipelines.m.executions"); got != 3 {
		t.Errorf("pipelines.m.executions = %v, want 3", got)
	}
	if got := agg.Get("pipelines.count"); got != 1 {
		t.Errorf("pipelines.count = %v, want 1", got)
	}
}

func TestPipelines_SortedByID(t *testing.T) {
	t.Parallel()

	o, _ := newOrchestrator()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		if _, err := o.CreatePipeline(Spec{ID: id}); err != nil {
			t.Fatalf("CreatePipeline(%s) = %v", id, err)
		}
	}

	list := o.Pipelines()
	want := []string{"alpha", "mid", "zeta"}
	for i, p := range list {
		if p.ID != want[i] {
			t.Fatalf("Pipelines() order = %v...", p.ID)
		}
	}
}
