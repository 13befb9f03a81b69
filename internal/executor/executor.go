// Package executor runs strategy plans against live adapters under
// global and per-step timeouts, tolerating partial failure.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/metrics"
	"github.com/dstrand/trivium/internal/planner"
)

// Status is the outcome of one plan step.
type Status string

const (
	StatusOK      Status = "ok"
	StatusTimeout Status = "timeout"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of executing one step. A skipped or failed step
// carries no response.
type Result struct {
	StepID   string
	Adapter  string
	Family   adapter.Family
	Status   Status
	Response *adapter.Response
	Err      error
	Latency  time.Duration
}

// Config bounds plan execution.
type Config struct {
	GlobalTimeout time.Duration // whole-plan deadline
	StepTimeout   time.Duration // per-step deadline, spans the retry
	MaxParallel   int           // concurrent independent steps
	RetryBackoff  time.Duration // pause before the single transient retry
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GlobalTimeout: 30 * time.Second,
		StepTimeout:   10 * time.Second,
		MaxParallel:   4,
		RetryBackoff:  200 * time.Millisecond,
	}
}

// Executor coordinates step execution. It holds no per-query state;
// concurrent Execute calls are independent.
type Executor struct {
	cfg       Config
	tracker   *adapter.Tracker
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates an executor. The tracker, when set, observes every live
// adapter call so circuit-breaker state reflects real traffic.
func New(cfg Config, tracker *adapter.Tracker, collector *metrics.Collector, logger *slog.Logger) *Executor {
	def := DefaultConfig()
	if cfg.GlobalTimeout <= 0 {
		cfg.GlobalTimeout = def.GlobalTimeout
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = def.StepTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg, tracker: tracker, collector: collector, logger: logger}
}

type stepState struct {
	done chan struct{}
	res  Result
}

// Execute runs every step of the plan. Independent steps run
// concurrently up to MaxParallel; a dependent step waits for its
// prerequisite and is skipped unless that prerequisite returned ok.
// When the global deadline elapses, unfinished steps are reported as
// timeout and whatever results exist are returned immediately. Results
// come back in plan order.
func (e *Executor) Execute(ctx context.Context, plan planner.Plan, adapters map[adapter.Family]adapter.Adapter) []Result {
	if len(plan.Steps) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.GlobalTimeout)
	defer cancel()

	states := make(map[string]*stepState, len(plan.Steps))
	for _, s := range plan.Steps {
		states[s.ID] = &stepState{done: make(chan struct{})}
	}

	sem := make(chan struct{}, e.cfg.MaxParallel)
	resCh := make(chan Result, len(plan.Steps))
	for _, s := range plan.Steps {
		go e.runStep(ctx, s, adapters, states, sem, resCh)
	}

	byID := make(map[string]Result, len(plan.Steps))
	remaining := len(plan.Steps)
	for remaining > 0 {
		select {
		case r := <-resCh:
			byID[r.StepID] = r
			remaining--
		case <-ctx.Done():
			for _, s := range plan.Steps {
				if _, ok := byID[s.ID]; !ok {
					byID[s.ID] = Result{
						StepID:  s.ID,
						Family:  s.Family,
						Adapter: adapterName(adapters, s.Family),
						Status:  StatusTimeout,
						Err:     ctx.Err(),
					}
				}
			}
			remaining = 0
		}
	}

	out := make([]Result, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		out = append(out, byID[s.ID])
	}
	return out
}

func adapterName(adapters map[adapter.Family]adapter.Adapter, f adapter.Family) string {
	if a, ok := adapters[f]; ok {
		return a.Name()
	}
	return string(f)
}

func (e *Executor) runStep(ctx context.Context, s planner.Step, adapters map[adapter.Family]adapter.Adapter, states map[string]*stepState, sem chan struct{}, resCh chan<- Result) {
	st := states[s.ID]
	finish := func(r Result) {
		r.StepID = s.ID
		r.Family = s.Family
		if r.Adapter == "" {
			r.Adapter = adapterName(adapters, s.Family)
		}
		st.res = r
		close(st.done)
		resCh <- r
	}

	req := s.Request
	if s.DependsOn != "" {
		prereq := states[s.DependsOn]
		select {
		case <-prereq.done:
		case <-ctx.Done():
			finish(Result{Status: StatusTimeout, Err: ctx.Err()})
			return
		}
		if prereq.res.Status != StatusOK {
			finish(Result{Status: StatusSkipped,
				Err: fmt.Errorf("prerequisite step %s was %s", s.DependsOn, prereq.res.Status)})
			return
		}
		if seeded := entityOutput(prereq.res.Response); len(seeded) > 0 {
			req.Entities = mergeEntities(req.Entities, seeded)
		}
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		finish(Result{Status: StatusTimeout, Err: ctx.Err()})
		return
	}

	a, ok := adapters[s.Family]
	if !ok {
		finish(Result{Status: StatusError, Err: fmt.Errorf("no adapter for family %s", s.Family)})
		return
	}

	start := time.Now()
	resp, err := e.query(ctx, a, req)
	latency := time.Since(start)

	if e.tracker != nil {
		e.tracker.Observe(s.Family, err)
	}
	if e.collector != nil {
		e.collector.RecordTiming(metrics.AdapterOp(metrics.OpAdapterQuery, a.Name()), latency)
	}

	r := Result{Adapter: a.Name(), Latency: latency}
	switch {
	case err == nil:
		r.Status = StatusOK
		r.Response = resp
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		r.Status = StatusTimeout
		r.Err = err
	default:
		r.Status = StatusError
		r.Err = err
		e.logger.Warn("step failed", "step", s.ID, "adapter", a.Name(), "error", err)
	}
	finish(r)
}

// query issues the adapter call under the per-step timeout, retrying
// once after a short backoff for transient failures only.
func (e *Executor) query(ctx context.Context, a adapter.Adapter, req adapter.Request) (*adapter.Response, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	resp, err := a.Query(stepCtx, req)
	if err == nil || !adapter.IsTransient(err) || stepCtx.Err() != nil {
		return resp, err
	}

	select {
	case <-time.After(e.cfg.RetryBackoff):
	case <-stepCtx.Done():
		return nil, err
	}
	e.logger.Debug("retrying transient adapter failure", "adapter", a.Name(), "error", err)
	return a.Query(stepCtx, req)
}

// entityOutput collects the entity names a step's results produced, in
// arrival order without duplicates.
func entityOutput(resp *adapter.Response) []string {
	if resp == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, r := range resp.Results {
		for _, ent := range r.Entities {
			if !seen[ent] {
				seen[ent] = true
				out = append(out, ent)
			}
		}
	}
	return out
}

func mergeEntities(base, seeded []string) []string {
	out := make([]string, 0, len(base)+len(seeded))
	seen := map[string]bool{}
	for _, lists := range [][]string{base, seeded} {
		for _, ent := range lists {
			if !seen[ent] {
				seen[ent] = true
				out = append(out, ent)
			}
		}
	}
	return out
}
