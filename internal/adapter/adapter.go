// Package adapter defines the uniform capability surface the orchestrator
// programs against, regardless of which concrete store sits behind it.
package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/dstrand/trivium/internal/packet"
)

// Family identifies one of the three backend families.
type Family string

const (
	FamilyVector     Family = "vector"
	FamilyAnalytical Family = "analytical"
	FamilyGraph      Family = "graph"
)

// FallbackOrder is the static substitution order the planner uses when a
// preferred backend is unavailable.
var FallbackOrder = []Family{FamilyVector, FamilyAnalytical, FamilyGraph}

// HealthStatus describes an adapter's availability.
type HealthStatus int

const (
	Healthy HealthStatus = iota
	Degraded
	Unavailable
)

// MarshalJSON emits the wire representation.
func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the wire representation.
func (s *HealthStatus) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "healthy":
		*s = Healthy
	case "degraded":
		*s = Degraded
	case "unavailable":
		*s = Unavailable
	default:
		return fmt.Errorf("unknown health status %s", data)
	}
	return nil
}

// String returns the wire representation of the status.
func (s HealthStatus) String() string {
	switch s {
	case Healthy:
		return "healthy"
	case Degraded:
		return "degraded"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Request is the uniform query envelope. Each family interprets the parts
// it understands: Text drives similarity and full-text matching, Entities
// seed graph traversal, Filters apply field predicates.
type Request struct {
	Text     string
	Entities []string
	Filters  map[string]string
	Limit    int
}

// Result is one hit in the uniform response envelope.
type Result struct {
	PacketID string         `json:"packet_id"`
	Score    float64        `json:"score"`
	Excerpt  string         `json:"excerpt"`
	Fields   map[string]any `json:"fields,omitempty"`
	// Entities lists names this result resolved, used to seed the
	// dependent step of a multi-step plan.
	Entities []string `json:"entities,omitempty"`
}

// Response is the uniform response envelope shared by all families.
type Response struct {
	Results []Result `json:"results"`
}

// Adapter is the capability interface every backend implements.
// Implementations synchronize their own connection pools; the orchestrator
// calls them concurrently from independent queries.
type Adapter interface {
	// Name returns the configured adapter name (for logs and results).
	Name() string

	// Family returns which backend family this adapter serves.
	Family() Family

	// Write upserts the packet's sub-payload. Idempotent per packet id.
	Write(ctx context.Context, p *packet.Packet) error

	// Query executes a family-specific query and returns the uniform
	// envelope.
	Query(ctx context.Context, req Request) (*Response, error)

	// Delete removes every record derived from the packet. Used by
	// packet retirement.
	Delete(ctx context.Context, packetID string) error

	// Health probes the backing store.
	Health(ctx context.Context) HealthStatus
}
