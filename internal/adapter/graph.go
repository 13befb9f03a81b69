package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dstrand/trivium/internal/db"
	"github.com/dstrand/trivium/internal/packet"
)

// Graph is the relationship-traversal adapter backed by SurrealDB graph
// edges. Entities from different packets merge into shared nodes, so a
// query over one name surfaces every packet that mentioned it.
type Graph struct {
	name   string
	db     *db.Client
	logger *slog.Logger
}

var _ Adapter = (*Graph)(nil)

// NewGraph wraps a SurrealDB client as the graph backend.
func NewGraph(client *db.Client, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{name: "graph", db: client, logger: logger}
}

func (g *Graph) Name() string   { return g.name }
func (g *Graph) Family() Family { return FamilyGraph }

// Write upserts the packet's entities and relationships. Duplicate edges
// from re-ingesting the same packet are ignored.
func (g *Graph) Write(ctx context.Context, p *packet.Packet) error {
	if !p.Content.HasGraph() {
		return nil
	}
	data := p.Content.Graph

	for _, e := range data.Entities {
		if err := g.db.UpsertGraphEntity(ctx, p.PacketID, e.Type, e.Name, e.Properties); err != nil {
			return wrapError(g.name, "write", err)
		}
	}
	for _, r := range data.Relationships {
		from := db.Slugify(r.Source.Type, r.Source.Name)
		to := db.Slugify(r.Target.Type, r.Target.Name)
		err := g.db.RelateEntities(ctx, p.PacketID, from, to, r.Relationship, r.Properties)
		if err != nil && !errors.Is(err, db.ErrAlreadyExists) {
			return wrapError(g.name, "write", err)
		}
	}
	return nil
}

// Query looks up entities by name and expands one hop of relationships.
// Connected entity names come back in Result.Entities so a follow-up
// step can pivot on them.
func (g *Graph) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Text == "" && len(req.Entities) == 0 {
		return nil, wrapError(g.name, "query", fmt.Errorf("%w: graph query needs text or entities", ErrBadRequest))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	records, err := g.db.QueryGraph(ctx, req.Entities, req.Text, limit)
	if err != nil {
		return nil, wrapError(g.name, "query", err)
	}

	results := make([]Result, 0, len(records))
	for _, rec := range records {
		results = append(results, graphResults(rec)...)
	}
	return &Response{Results: results}, nil
}

// graphResults flattens one entity node into per-packet results. Each
// packet that mentions the entity gets its own citation target.
func graphResults(rec db.GraphEntityRecord) []Result {
	neighbors := make([]string, 0, len(rec.Outgoing)+len(rec.Incoming))
	edges := make([]string, 0, len(rec.Outgoing)+len(rec.Incoming))
	edgePackets := map[string][]string{}

	for _, e := range rec.Outgoing {
		neighbors = append(neighbors, e.Target)
		desc := fmt.Sprintf("%s %s %s", rec.Name, e.RelType, e.Target)
		edges = append(edges, desc)
		edgePackets[e.PacketID] = append(edgePackets[e.PacketID], desc)
	}
	for _, e := range rec.Incoming {
		neighbors = append(neighbors, e.Source)
		desc := fmt.Sprintf("%s %s %s", e.Source, e.RelType, rec.Name)
		edges = append(edges, desc)
		edgePackets[e.PacketID] = append(edgePackets[e.PacketID], desc)
	}

	results := make([]Result, 0, len(rec.PacketIDs))
	for _, pid := range rec.PacketIDs {
		excerpt := fmt.Sprintf("%s (%s)", rec.Name, rec.EntityType)
		if descs := edgePackets[pid]; len(descs) > 0 {
			excerpt += ": " + strings.Join(descs, "; ")
		} else if len(edges) > 0 {
			excerpt += ": " + strings.Join(edges, "; ")
		}
		results = append(results, Result{
			PacketID: pid,
			Score:    1.0,
			Excerpt:  excerpt,
			Fields:   rec.Properties,
			Entities: neighbors,
		})
	}
	return results
}

// Delete removes the packet's edges and entity mentions.
func (g *Graph) Delete(ctx context.Context, packetID string) error {
	if err := g.db.DeleteGraphByPacket(ctx, packetID); err != nil {
		return wrapError(g.name, "delete", err)
	}
	return nil
}

// Health pings the database.
func (g *Graph) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := g.db.Ping(probeCtx); err != nil {
		return Unavailable
	}
	return Healthy
}
