package adapter

import (
	"context"
	"sync"
	"time"
)

// circuitState tracks per-adapter breaker state.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// TrackerConfig configures circuit-breaker health tracking.
type TrackerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // time in open state before a half-open probe
	ProbeInterval    time.Duration // min time between health probes while closed
}

// DefaultTrackerConfig returns sensible defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
		ProbeInterval:    15 * time.Second,
	}
}

// Tracker maintains per-adapter health and circuit-breaker state. It is
// the only mutable state shared across concurrent queries, so every
// transition happens under the mutex.
type Tracker struct {
	mu      sync.Mutex
	cfg     TrackerConfig
	entries map[Family]*trackerEntry

	// now is swappable for tests.
	now func() time.Time
}

type trackerEntry struct {
	state       circuitState
	failures    int
	lastFailure time.Time
	lastProbe   time.Time
	lastStatus  HealthStatus
}

// NewTracker creates a tracker with zero-value fields defaulted.
func NewTracker(cfg TrackerConfig) *Tracker {
	def := DefaultTrackerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = def.ProbeInterval
	}
	return &Tracker{
		cfg:     cfg,
		entries: make(map[Family]*trackerEntry),
		now:     time.Now,
	}
}

func (t *Tracker) entry(f Family) *trackerEntry {
	e, ok := t.entries[f]
	if !ok {
		e = &trackerEntry{lastStatus: Healthy}
		t.entries[f] = e
	}
	return e
}

// Observe records the outcome of a live call against an adapter. A
// trailing failure streak opens the circuit; any success while half-open
// closes it again.
func (t *Tracker) Observe(f Family, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(f)
	if err == nil {
		e.failures = 0
		if e.state == circuitHalfOpen {
			e.state = circuitClosed
			e.lastStatus = Healthy
		}
		return
	}

	e.failures++
	e.lastFailure = t.now()
	switch e.state {
	case circuitClosed:
		if e.failures >= t.cfg.FailureThreshold {
			e.state = circuitOpen
			e.lastStatus = Unavailable
		} else {
			e.lastStatus = Degraded
		}
	case circuitHalfOpen:
		// Probe failed, back to open.
		e.state = circuitOpen
		e.lastStatus = Unavailable
	}
}

// Status returns the tracked status without probing.
func (t *Tracker) Status(f Family) HealthStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entry(f).lastStatus
}

// Snapshot returns the health of every adapter for plan construction.
// Open circuits report unavailable until the cooldown elapses; then a
// single half-open probe decides whether the adapter rejoins planning.
// Closed circuits are re-probed at most once per probe interval.
func (t *Tracker) Snapshot(ctx context.Context, adapters map[Family]Adapter) map[Family]HealthStatus {
	out := make(map[Family]HealthStatus, len(adapters))
	for f, a := range adapters {
		out[f] = t.check(ctx, f, a)
	}
	return out
}

func (t *Tracker) check(ctx context.Context, f Family, a Adapter) HealthStatus {
	t.mu.Lock()
	e := t.entry(f)
	now := t.now()

	probe := false
	switch e.state {
	case circuitOpen:
		if now.Sub(e.lastFailure) < t.cfg.Cooldown {
			t.mu.Unlock()
			return Unavailable
		}
		e.state = circuitHalfOpen
		probe = true
	case circuitHalfOpen:
		probe = true
	case circuitClosed:
		probe = now.Sub(e.lastProbe) >= t.cfg.ProbeInterval
	}
	if !probe {
		status := e.lastStatus
		t.mu.Unlock()
		return status
	}
	e.lastProbe = now
	t.mu.Unlock()

	// Probe outside the lock; Health may block on I/O.
	status := a.Health(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	e.lastStatus = status
	switch {
	case status == Unavailable:
		e.state = circuitOpen
		e.lastFailure = t.now()
	default:
		e.state = circuitClosed
		e.failures = 0
	}
	return status
}
