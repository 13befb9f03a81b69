package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/dstrand/trivium/internal/packet"
)

// Mock is an in-memory adapter for tests. Results are scripted, every
// call is recorded, and Delay simulates a slow backend while still
// honoring context cancellation.
type Mock struct {
	name   string
	family Family

	mu         sync.Mutex
	packets    map[string]*packet.Packet
	writeCalls int
	queries    []Request

	Results      []Result
	QueryErr     error
	WriteErr     error
	Delay        time.Duration
	HealthResult HealthStatus
}

var _ Adapter = (*Mock)(nil)

// NewMock creates a healthy mock adapter.
func NewMock(name string, family Family) *Mock {
	return &Mock{
		name:    name,
		family:  family,
		packets: make(map[string]*packet.Packet),
	}
}

func (m *Mock) Name() string   { return m.name }
func (m *Mock) Family() Family { return m.family }

func (m *Mock) Write(ctx context.Context, p *packet.Packet) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCalls++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.packets[p.PacketID] = p
	return nil
}

func (m *Mock) Query(ctx context.Context, req Request) (*Response, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, req)
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	results := make([]Result, len(m.Results))
	copy(results, m.Results)
	if req.Limit > 0 && len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return &Response{Results: results}, nil
}

func (m *Mock) Delete(ctx context.Context, packetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packets, packetID)
	return nil
}

func (m *Mock) Health(context.Context) HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.HealthResult
}

func (m *Mock) wait(ctx context.Context) error {
	if m.Delay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Delay):
		return nil
	}
}

// WriteCalls returns how many times Write was invoked.
func (m *Mock) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls
}

// Stored returns the packet stored under id, or nil.
func (m *Mock) Stored(id string) *packet.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.packets[id]
}

// Queries returns a copy of all recorded query requests.
func (m *Mock) Queries() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.queries))
	copy(out, m.queries)
	return out
}
