// Package db provides SurrealDB query functions for analytical records and
// graph entities.
package db

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AnalyticalRecord is the stored analytical projection of a packet.
type AnalyticalRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	PacketID   string                 `json:"packet_id"`
	Title      string                 `json:"title"`
	Tags       []string               `json:"tags"`
	Fields     map[string]any         `json:"fields"`
	Tables     []map[string]any       `json:"tables,omitempty"`
	SearchText string                 `json:"search_text"`
	Created    time.Time              `json:"created,omitempty"`
}

// GraphEntityRecord is a stored graph node with its edges expanded.
type GraphEntityRecord struct {
	ID         surrealmodels.RecordID `json:"id"`
	EntityType string                 `json:"entity_type"`
	Name       string                 `json:"name"`
	Properties map[string]any         `json:"properties"`
	PacketIDs  []string               `json:"packet_ids"`
	Outgoing   []OutEdge              `json:"outgoing,omitempty"`
	Incoming   []InEdge               `json:"incoming,omitempty"`
}

// OutEdge is an expanded outgoing relation.
type OutEdge struct {
	RelType    string `json:"rel_type"`
	Target     string `json:"target"`
	TargetType string `json:"target_type"`
	PacketID   string `json:"packet_id"`
}

// InEdge is an expanded incoming relation.
type InEdge struct {
	RelType    string `json:"rel_type"`
	Source     string `json:"source"`
	SourceType string `json:"source_type"`
	PacketID   string `json:"packet_id"`
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns an entity type/name pair into a stable record key so the
// same entity mentioned by different packets shares one node.
func Slugify(entityType, name string) string {
	s := strings.ToLower(entityType + " " + name)
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// fieldKey restricts filter keys to a safe identifier charset, since field
// paths cannot be bound as query parameters.
var fieldKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// UpsertAnalyticalRecord writes the analytical projection of a packet,
// keyed by packet id so rewrites are idempotent.
func (c *Client) UpsertAnalyticalRecord(ctx context.Context, rec AnalyticalRecord) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("analytical_record", $pid) SET
			packet_id = $pid,
			title = $title,
			tags = $tags,
			fields = $fields,
			tables = $tables,
			search_text = $text
	`, map[string]any{
		"pid":    rec.PacketID,
		"title":  rec.Title,
		"tags":   rec.Tags,
		"fields": rec.Fields,
		"tables": rec.Tables,
		"text":   rec.SearchText,
	})
	if err != nil {
		return fmt.Errorf("upsert analytical record: %w", wrapQueryError(err))
	}
	return nil
}

// QueryAnalytical searches analytical records by full text and/or field
// predicates.
func (c *Client) QueryAnalytical(ctx context.Context, text string, filters map[string]string, limit int) ([]AnalyticalRecord, error) {
	clauses := []string{}
	vars := map[string]any{"limit": limit}

	if text != "" {
		clauses = append(clauses, "search_text @0@ $q")
		vars["q"] = text
	}
	i := 0
	for k, v := range filters {
		if !fieldKey.MatchString(k) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		param := fmt.Sprintf("f%d", i)
		clauses = append(clauses, fmt.Sprintf("fields.%s = $%s", k, param))
		vars[param] = v
		i++
	}
	where := "true"
	if len(clauses) > 0 {
		where = strings.Join(clauses, " AND ")
	}

	sql := fmt.Sprintf(`
		SELECT id, packet_id, title, tags, fields, tables, search_text
		FROM analytical_record
		WHERE %s
		LIMIT $limit
	`, where)

	results, err := surrealdb.Query[[]AnalyticalRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("query analytical: %w", wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []AnalyticalRecord{}, nil
}

// DeleteAnalyticalByPacket removes the analytical projection of a packet.
func (c *Client) DeleteAnalyticalByPacket(ctx context.Context, packetID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE analytical_record WHERE packet_id = $pid
	`, map[string]any{"pid": packetID})
	if err != nil {
		return fmt.Errorf("delete analytical record: %w", wrapQueryError(err))
	}
	return nil
}

// UpsertGraphEntity merges an entity node and records the packet mention.
func (c *Client) UpsertGraphEntity(ctx context.Context, packetID, entityType, name string, properties map[string]any) error {
	if properties == nil {
		properties = map[string]any{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("graph_entity", $slug) SET
			entity_type = $type,
			name = $name,
			properties = $props,
			packet_ids = array::union(packet_ids ?? [], [$pid])
	`, map[string]any{
		"slug":  Slugify(entityType, name),
		"type":  entityType,
		"name":  name,
		"props": properties,
		"pid":   packetID,
	})
	if err != nil {
		return fmt.Errorf("upsert graph entity: %w", wrapQueryError(err))
	}
	return nil
}

// RelateEntities creates a typed edge between two entity nodes. Duplicate
// edges for the same packet are reported as ErrAlreadyExists.
func (c *Client) RelateEntities(ctx context.Context, packetID, fromSlug, toSlug, relType string, properties map[string]any) error {
	if properties == nil {
		properties = map[string]any{}
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		RELATE (type::record("graph_entity", $from))->relates_to->(type::record("graph_entity", $to)) SET
			rel_type = $rt,
			properties = $props,
			packet_id = $pid
	`, map[string]any{
		"from":  fromSlug,
		"to":    toSlug,
		"rt":    relType,
		"props": properties,
		"pid":   packetID,
	})
	if err != nil {
		return fmt.Errorf("relate entities: %w", wrapQueryError(err))
	}
	return nil
}

// QueryGraph finds entity nodes by exact (lowercased) name or full-text
// name match and expands one hop of edges in both directions.
func (c *Client) QueryGraph(ctx context.Context, names []string, text string, limit int) ([]GraphEntityRecord, error) {
	where := "name @0@ $q"
	vars := map[string]any{"limit": limit}
	if len(names) > 0 {
		lowered := make([]string, len(names))
		for i, n := range names {
			lowered[i] = strings.ToLower(n)
		}
		where = "string::lowercase(name) INSIDE $names"
		vars["names"] = lowered
	} else {
		vars["q"] = text
	}

	sql := fmt.Sprintf(`
		SELECT id, entity_type, name, properties, packet_ids,
			(SELECT rel_type, out.name AS target, out.entity_type AS target_type, packet_id
			 FROM ->relates_to) AS outgoing,
			(SELECT rel_type, in.name AS source, in.entity_type AS source_type, packet_id
			 FROM <-relates_to) AS incoming
		FROM graph_entity
		WHERE %s
		LIMIT $limit
	`, where)

	results, err := surrealdb.Query[[]GraphEntityRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("query graph: %w", wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []GraphEntityRecord{}, nil
}

// DeleteGraphByPacket removes a packet's edges, detaches its entity
// mentions, and drops entities no packet mentions anymore.
func (c *Client) DeleteGraphByPacket(ctx context.Context, packetID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		DELETE relates_to WHERE packet_id = $pid;
		UPDATE graph_entity SET packet_ids = array::difference(packet_ids, [$pid]) WHERE $pid INSIDE packet_ids;
		DELETE graph_entity WHERE array::len(packet_ids) = 0;
	`, map[string]any{"pid": packetID})
	if err != nil {
		return fmt.Errorf("delete graph records: %w", wrapQueryError(err))
	}
	return nil
}
