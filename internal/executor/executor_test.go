package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/planner"
)

func testAdapters() (map[adapter.Family]adapter.Adapter, *adapter.Mock, *adapter.Mock, *adapter.Mock) {
	v := adapter.NewMock("vector", adapter.FamilyVector)
	a := adapter.NewMock("analytical", adapter.FamilyAnalytical)
	g := adapter.NewMock("graph", adapter.FamilyGraph)
	return map[adapter.Family]adapter.Adapter{
		adapter.FamilyVector:     v,
		adapter.FamilyAnalytical: a,
		adapter.FamilyGraph:      g,
	}, v, a, g
}

func fanOutPlan() planner.Plan {
	return planner.Plan{
		Strategy: "hybrid",
		Steps: []planner.Step{
			{ID: "vector", Family: adapter.FamilyVector, Request: adapter.Request{Text: "q", Limit: 5}},
			{ID: "analytical", Family: adapter.FamilyAnalytical, Request: adapter.Request{Text: "q", Limit: 5}},
			{ID: "graph", Family: adapter.FamilyGraph, Request: adapter.Request{Text: "q", Limit: 5}},
		},
	}
}

func twoPhasePlan() planner.Plan {
	return planner.Plan{
		Strategy: "multi_step",
		Steps: []planner.Step{
			{ID: "resolve", Family: adapter.FamilyGraph, Request: adapter.Request{Text: "q", Entities: []string{"Sarah Chen"}, Limit: 5}},
			{ID: "followup", Family: adapter.FamilyAnalytical, Request: adapter.Request{Text: "q", Limit: 5}, DependsOn: "resolve"},
		},
	}
}

func TestExecuteFanOut(t *testing.T) {
	adapters, v, _, _ := testAdapters()
	v.Results = []adapter.Result{{PacketID: "pkt-1", Score: 0.9, Excerpt: "deployment uses blue-green"}}

	e := New(Config{}, nil, nil, nil)
	results := e.Execute(context.Background(), fanOutPlan(), adapters)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	// Plan order is preserved regardless of completion order.
	for i, wantID := range []string{"vector", "analytical", "graph"} {
		if results[i].StepID != wantID {
			t.Errorf("results[%d].StepID = %q, want %q", i, results[i].StepID, wantID)
		}
		if results[i].Status != StatusOK {
			t.Errorf("step %s status = %s, want ok", wantID, results[i].Status)
		}
	}
	if len(results[0].Response.Results) != 1 {
		t.Errorf("vector payload lost: %+v", results[0].Response)
	}
}

func TestExecuteDependentStepSeededWithEntities(t *testing.T) {
	adapters, _, a, g := testAdapters()
	g.Results = []adapter.Result{
		{PacketID: "pkt-g", Excerpt: "Sarah Chen works_on Atlas", Entities: []string{"Atlas", "Priya Patel"}},
	}

	e := New(Config{}, nil, nil, nil)
	results := e.Execute(context.Background(), twoPhasePlan(), adapters)

	if results[1].Status != StatusOK {
		t.Fatalf("followup status = %s, want ok", results[1].Status)
	}
	queries := a.Queries()
	if len(queries) != 1 {
		t.Fatalf("analytical queried %d times, want 1", len(queries))
	}
	got := queries[0].Entities
	want := []string{"Atlas", "Priya Patel"}
	for _, w := range want {
		found := false
		for _, e := range got {
			if e == w {
				found = true
			}
		}
		if !found {
			t.Errorf("followup entities = %v, missing %q from phase 1", got, w)
		}
	}
}

func TestExecuteDependentStepSkippedOnFailure(t *testing.T) {
	adapters, _, a, g := testAdapters()
	g.QueryErr = errors.New("invalid traversal")

	e := New(Config{}, nil, nil, nil)
	results := e.Execute(context.Background(), twoPhasePlan(), adapters)

	if results[0].Status != StatusError {
		t.Errorf("resolve status = %s, want error", results[0].Status)
	}
	if results[1].Status != StatusSkipped {
		t.Errorf("followup status = %s, want skipped", results[1].Status)
	}
	if len(a.Queries()) != 0 {
		t.Error("skipped step must not reach the adapter")
	}
}

func TestExecuteSlowStepDoesNotBlockSiblings(t *testing.T) {
	adapters, v, a, _ := testAdapters()
	a.Delay = 500 * time.Millisecond
	v.Results = []adapter.Result{{PacketID: "pkt-1", Excerpt: "fast"}}

	e := New(Config{StepTimeout: 50 * time.Millisecond, GlobalTimeout: 5 * time.Second}, nil, nil, nil)
	start := time.Now()
	results := e.Execute(context.Background(), fanOutPlan(), adapters)
	elapsed := time.Since(start)

	byID := map[string]Result{}
	for _, r := range results {
		byID[r.StepID] = r
	}
	if byID["analytical"].Status != StatusTimeout {
		t.Errorf("slow step status = %s, want timeout", byID["analytical"].Status)
	}
	if byID["vector"].Status != StatusOK || byID["graph"].Status != StatusOK {
		t.Error("fast siblings should complete ok")
	}
	if elapsed > 2*time.Second {
		t.Errorf("execution took %v despite per-step timeout", elapsed)
	}
}

func TestExecuteGlobalDeadlineTruncates(t *testing.T) {
	adapters, v, a, g := testAdapters()
	for _, m := range []*adapter.Mock{v, a, g} {
		m.Delay = 2 * time.Second
	}

	e := New(Config{GlobalTimeout: 100 * time.Millisecond, StepTimeout: 5 * time.Second}, nil, nil, nil)
	start := time.Now()
	results := e.Execute(context.Background(), fanOutPlan(), adapters)
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("Execute blocked %v past the global deadline", elapsed)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want every step reported", len(results))
	}
	for _, r := range results {
		if r.Status != StatusTimeout {
			t.Errorf("step %s status = %s, want timeout", r.StepID, r.Status)
		}
	}
}

// flaky fails transiently n times before delegating to the mock.
type flaky struct {
	*adapter.Mock
	remaining atomic.Int64
	calls     atomic.Int64
	err       error
}

func (f *flaky) Query(ctx context.Context, req adapter.Request) (*adapter.Response, error) {
	f.calls.Add(1)
	if f.remaining.Add(-1) >= 0 {
		return nil, f.err
	}
	return f.Mock.Query(ctx, req)
}

func TestExecuteRetriesTransientOnce(t *testing.T) {
	m := adapter.NewMock("vector", adapter.FamilyVector)
	m.Results = []adapter.Result{{PacketID: "pkt-1"}}
	f := &flaky{Mock: m, err: errors.New("connection refused")}
	f.remaining.Store(1)

	adapters := map[adapter.Family]adapter.Adapter{adapter.FamilyVector: f}
	plan := planner.Plan{Steps: []planner.Step{
		{ID: "vector", Family: adapter.FamilyVector, Request: adapter.Request{Text: "q"}},
	}}

	e := New(Config{RetryBackoff: time.Millisecond}, nil, nil, nil)
	results := e.Execute(context.Background(), plan, adapters)

	if results[0].Status != StatusOK {
		t.Errorf("status = %s, want ok after retry", results[0].Status)
	}
	if f.calls.Load() != 2 {
		t.Errorf("adapter called %d times, want 2", f.calls.Load())
	}
}

func TestExecuteDoesNotRetryPermanentErrors(t *testing.T) {
	m := adapter.NewMock("analytical", adapter.FamilyAnalytical)
	f := &flaky{Mock: m, err: fmt.Errorf("reject: %w", adapter.ErrBadRequest)}
	f.remaining.Store(10)

	adapters := map[adapter.Family]adapter.Adapter{adapter.FamilyAnalytical: f}
	plan := planner.Plan{Steps: []planner.Step{
		{ID: "analytical", Family: adapter.FamilyAnalytical, Request: adapter.Request{Text: "q"}},
	}}

	e := New(Config{RetryBackoff: time.Millisecond}, nil, nil, nil)
	results := e.Execute(context.Background(), plan, adapters)

	if results[0].Status != StatusError {
		t.Errorf("status = %s, want error", results[0].Status)
	}
	if f.calls.Load() != 1 {
		t.Errorf("adapter called %d times, want 1 (no retry)", f.calls.Load())
	}
}

func TestExecuteObservesTracker(t *testing.T) {
	adapters, v, _, _ := testAdapters()
	v.QueryErr = errors.New("connection reset")

	tr := adapter.NewTracker(adapter.TrackerConfig{FailureThreshold: 1})
	e := New(Config{RetryBackoff: time.Millisecond}, tr, nil, nil)
	plan := planner.Plan{Steps: []planner.Step{
		{ID: "vector", Family: adapter.FamilyVector, Request: adapter.Request{Text: "q"}},
	}}
	e.Execute(context.Background(), plan, adapters)

	if got := tr.Status(adapter.FamilyVector); got != adapter.Unavailable {
		t.Errorf("tracker status = %v, want Unavailable after observed failure", got)
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	adapters, _, _, _ := testAdapters()
	e := New(Config{}, nil, nil, nil)
	if got := e.Execute(context.Background(), planner.Plan{}, adapters); got != nil {
		t.Errorf("empty plan should produce nil results, got %v", got)
	}
}
