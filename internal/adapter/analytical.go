package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dstrand/trivium/internal/db"
	"github.com/dstrand/trivium/internal/packet"
)

// Analytical is the structured-query adapter backed by SurrealDB. Each
// packet's analytical sub-payload becomes one record with full-text and
// field-predicate search.
type Analytical struct {
	name   string
	db     *db.Client
	logger *slog.Logger
}

var _ Adapter = (*Analytical)(nil)

// NewAnalytical wraps a SurrealDB client as the analytical backend.
func NewAnalytical(client *db.Client, logger *slog.Logger) *Analytical {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analytical{name: "analytical", db: client, logger: logger}
}

func (a *Analytical) Name() string   { return a.name }
func (a *Analytical) Family() Family { return FamilyAnalytical }

// Write upserts the packet's analytical projection, keyed by packet id.
func (a *Analytical) Write(ctx context.Context, p *packet.Packet) error {
	if !p.Content.HasAnalytical() {
		return nil
	}
	data := p.Content.Analytical

	tables := make([]map[string]any, len(data.Tables))
	for i, tbl := range data.Tables {
		tables[i] = map[string]any{
			"name":    tbl.Name,
			"columns": tbl.Columns,
			"rows":    tbl.Rows,
		}
	}

	rec := db.AnalyticalRecord{
		PacketID:   p.PacketID,
		Title:      p.Metadata.Title,
		Tags:       p.Metadata.Tags,
		Fields:     data.StructuredFields,
		Tables:     tables,
		SearchText: buildSearchText(p),
	}
	if err := a.db.UpsertAnalyticalRecord(ctx, rec); err != nil {
		return wrapError(a.name, "write", err)
	}
	return nil
}

// buildSearchText flattens the searchable surface of a packet: title,
// tags, field values, and table names.
func buildSearchText(p *packet.Packet) string {
	parts := []string{p.Metadata.Title}
	parts = append(parts, p.Metadata.Tags...)

	data := p.Content.Analytical
	keys := make([]string, 0, len(data.StructuredFields))
	for k := range data.StructuredFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k, fmt.Sprintf("%v", data.StructuredFields[k]))
	}
	for _, tbl := range data.Tables {
		parts = append(parts, tbl.Name)
		parts = append(parts, tbl.Columns...)
	}
	return strings.Join(parts, " ")
}

// Query runs a predicate and/or full-text search over analytical records.
func (a *Analytical) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Text == "" && len(req.Filters) == 0 {
		return nil, wrapError(a.name, "query", fmt.Errorf("%w: analytical query needs text or filters", ErrBadRequest))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	records, err := a.db.QueryAnalytical(ctx, req.Text, req.Filters, limit)
	if err != nil {
		return nil, wrapError(a.name, "query", err)
	}

	results := make([]Result, 0, len(records))
	for i, rec := range records {
		results = append(results, Result{
			PacketID: rec.PacketID,
			// Rank-based: SurrealDB ordered by relevance.
			Score:   1.0 / float64(i+1),
			Excerpt: analyticalExcerpt(rec),
			Fields:  rec.Fields,
		})
	}
	return &Response{Results: results}, nil
}

// analyticalExcerpt renders a compact one-line summary of a record.
func analyticalExcerpt(rec db.AnalyticalRecord) string {
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if rec.Title != "" {
		parts = append(parts, rec.Title)
	}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, rec.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// Delete removes the packet's analytical record.
func (a *Analytical) Delete(ctx context.Context, packetID string) error {
	if err := a.db.DeleteAnalyticalByPacket(ctx, packetID); err != nil {
		return wrapError(a.name, "delete", err)
	}
	return nil
}

// Health pings the database.
func (a *Analytical) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.db.Ping(probeCtx); err != nil {
		return Unavailable
	}
	return Healthy
}
