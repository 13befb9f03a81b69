// Package orchestrator wires classification, planning, execution, and
// synthesis into the end-to-end query and ingestion flows.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/executor"
	"github.com/dstrand/trivium/internal/intent"
	"github.com/dstrand/trivium/internal/metrics"
	"github.com/dstrand/trivium/internal/packet"
	"github.com/dstrand/trivium/internal/planner"
	"github.com/dstrand/trivium/internal/synthesizer"
)

// ErrBadRequest marks caller mistakes (empty query, invalid packet) so
// the boundary can map them to 400 instead of 502.
var ErrBadRequest = errors.New("bad request")

// Config tunes per-query behavior.
type Config struct {
	MaxResults int // default result limit per step
}

// Orchestrator holds every dependency of the query path. It is built
// once at startup and shared across concurrent requests; the only
// mutable state is the health tracker and the in-flight write table.
type Orchestrator struct {
	adapters   map[adapter.Family]adapter.Adapter
	classifier *intent.Classifier
	executor   *executor.Executor
	synth      *synthesizer.Synthesizer
	tracker    *adapter.Tracker
	collector  *metrics.Collector
	logger     *slog.Logger
	cfg        Config

	mu       sync.Mutex
	inflight map[string]*inflightWrite
}

type inflightWrite struct {
	done chan struct{}
	err  error
}

// Deps bundles the constructor arguments.
type Deps struct {
	Adapters   map[adapter.Family]adapter.Adapter
	Classifier *intent.Classifier
	Executor   *executor.Executor
	Synth      *synthesizer.Synthesizer
	Tracker    *adapter.Tracker
	Collector  *metrics.Collector
	Logger     *slog.Logger
}

// New assembles an orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		adapters:   deps.Adapters,
		classifier: deps.Classifier,
		executor:   deps.Executor,
		synth:      deps.Synth,
		tracker:    deps.Tracker,
		collector:  deps.Collector,
		logger:     logger,
		cfg:        cfg,
		inflight:   make(map[string]*inflightWrite),
	}
}

// QueryRequest is the boundary-agnostic query input.
type QueryRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
	TimeoutMS  int    `json:"timeout_ms,omitempty"`
}

// StepStatus reports one executed step to the caller.
type StepStatus struct {
	Adapter   string `json:"adapter"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

// QueryResponse is the boundary-agnostic query output.
type QueryResponse struct {
	Answer        string       `json:"answer"`
	Citations     []string     `json:"citations"`
	Completeness  string       `json:"completeness"`
	StrategyUsed  string       `json:"strategy_used"`
	PerStepStatus []StepStatus `json:"per_step_status"`
	Degraded      bool         `json:"degraded,omitempty"`
}

// Answer runs the full query pipeline. Classification failure is not
// fatal: the planner falls back to the default hybrid fan-out.
func (o *Orchestrator) Answer(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrBadRequest)
	}
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = o.cfg.MaxResults
	}

	it, err := o.classifier.Classify(ctx, query)
	if err != nil {
		var ce *intent.ClassificationError
		if !errors.As(err, &ce) {
			return nil, fmt.Errorf("classify: %w", err)
		}
		o.logger.Warn("classification failed, using default plan", "error", err)
		it = nil
	}

	health := o.tracker.Snapshot(ctx, o.adapters)
	plan := planner.Build(planner.Input{Query: query, MaxResults: maxResults}, it, health)
	o.logger.Debug("plan built", "strategy", plan.Strategy, "steps", len(plan.Steps), "degraded", plan.Degraded)

	results := o.executor.Execute(ctx, plan, o.adapters)

	ans, err := o.synth.Synthesize(ctx, query, results)
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}

	resp := &QueryResponse{
		Answer:        ans.Text,
		Citations:     ans.Citations,
		Completeness:  ans.Completeness,
		StrategyUsed:  plan.Strategy,
		PerStepStatus: make([]StepStatus, 0, len(results)),
		Degraded:      plan.Degraded || ans.Degraded,
	}
	if plan.Degraded {
		resp.Completeness = synthesizer.Partial
	}
	for _, r := range results {
		resp.PerStepStatus = append(resp.PerStepStatus, StepStatus{
			Adapter:   r.Adapter,
			Status:    string(r.Status),
			LatencyMS: r.Latency.Milliseconds(),
		})
	}
	return resp, nil
}

// Ingest validates the packet and fans its sub-payloads out to the
// matching adapters. A write for a packet id already in flight is not
// run again; the caller shares the in-flight outcome.
func (o *Orchestrator) Ingest(ctx context.Context, p *packet.Packet) error {
	if err := packet.Validate(p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	o.mu.Lock()
	if w, ok := o.inflight[p.PacketID]; ok {
		o.mu.Unlock()
		select {
		case <-w.done:
			return w.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w := &inflightWrite{done: make(chan struct{})}
	o.inflight[p.PacketID] = w
	o.mu.Unlock()

	w.err = o.write(ctx, p)
	close(w.done)

	o.mu.Lock()
	delete(o.inflight, p.PacketID)
	o.mu.Unlock()
	return w.err
}

func (o *Orchestrator) write(ctx context.Context, p *packet.Packet) error {
	targets := make([]adapter.Adapter, 0, len(o.adapters))
	for _, f := range adapter.FallbackOrder {
		a, ok := o.adapters[f]
		if !ok {
			continue
		}
		switch f {
		case adapter.FamilyVector:
			if p.Content.HasVector() {
				targets = append(targets, a)
			}
		case adapter.FamilyAnalytical:
			if p.Content.HasAnalytical() {
				targets = append(targets, a)
			}
		case adapter.FamilyGraph:
			if p.Content.HasGraph() {
				targets = append(targets, a)
			}
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, len(targets))
	for i, a := range targets {
		wg.Add(1)
		go func(i int, a adapter.Adapter) {
			defer wg.Done()
			start := time.Now()
			err := a.Write(ctx, p)
			if o.collector != nil {
				o.collector.RecordTiming(metrics.AdapterOp(metrics.OpAdapterWrite, a.Name()), time.Since(start))
			}
			if o.tracker != nil {
				o.tracker.Observe(a.Family(), err)
			}
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", a.Name(), err)
			}
		}(i, a)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("ingest %s: %w", p.PacketID, err)
	}
	o.logger.Info("packet ingested", "packet_id", p.PacketID, "adapters", len(targets))
	return nil
}

// Retire deletes every derived record of a packet across all adapters.
func (o *Orchestrator) Retire(ctx context.Context, packetID string) error {
	if strings.TrimSpace(packetID) == "" {
		return fmt.Errorf("%w: empty packet id", ErrBadRequest)
	}

	var errs []error
	for _, f := range adapter.FallbackOrder {
		a, ok := o.adapters[f]
		if !ok {
			continue
		}
		if err := a.Delete(ctx, packetID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("retire %s: %w", packetID, err)
	}
	o.logger.Info("packet retired", "packet_id", packetID)
	return nil
}

// Stats is a point-in-time view for the stats surfaces.
type Stats struct {
	Metrics metrics.Snapshot                        `json:"metrics"`
	Health  map[adapter.Family]adapter.HealthStatus `json:"health"`
}

// Stats snapshots metrics and live adapter health.
func (o *Orchestrator) Stats(ctx context.Context) Stats {
	s := Stats{Health: o.tracker.Snapshot(ctx, o.adapters)}
	if o.collector != nil {
		s.Metrics = o.collector.Snapshot()
	}
	return s
}
