// Package packet defines the knowledge packet contract shared by ingestion
// and every retrieval backend.
package packet

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Packet is the normalized, content-addressed unit of ingested knowledge.
// Packets are immutable: changed content produces a new PacketID.
type Packet struct {
	PacketID  string    `json:"packet_id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
	Metadata  Metadata  `json:"metadata"`
	Content   Content   `json:"content"`
	Hints     *Hints    `json:"processing_hints,omitempty"`
}

// Source describes where a packet came from.
type Source struct {
	Producer         string `json:"producer"`
	ProducerVersion  string `json:"producer_version"`
	OriginalLocation string `json:"original_location"`
	ContentType      string `json:"content_type"`
}

// Metadata holds schema-checked free-form attributes. Always present on a
// packet, even when every field is empty.
type Metadata struct {
	Title     string     `json:"title"`
	Author    *string    `json:"author"`
	CreatedAt *time.Time `json:"created_at"`
	Tags      []string   `json:"tags"`
}

// Content carries up to three backend sub-payloads. At least one must be
// non-empty for the packet to be valid.
type Content struct {
	Vector     *VectorData     `json:"vector_data,omitempty"`
	Analytical *AnalyticalData `json:"analytical_data,omitempty"`
	Graph      *GraphData      `json:"graph_data,omitempty"`
}

// VectorData is the semantic sub-payload: pre-chunked text.
type VectorData struct {
	Chunks         []Chunk `json:"chunks"`
	EmbeddingModel string  `json:"embedding_model"`
}

// Chunk is one embeddable text unit.
type Chunk struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
}

// AnalyticalData is the structured sub-payload.
type AnalyticalData struct {
	StructuredFields map[string]any `json:"structured_fields"`
	Tables           []Table        `json:"tables,omitempty"`
}

// Table is a named tabular payload.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// GraphData is the relationship sub-payload.
type GraphData struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Entity is a typed, named node.
type Entity struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
}

// EntityRef identifies an entity by type and name.
type EntityRef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Relationship is a typed edge between two entities.
type Relationship struct {
	Source       EntityRef      `json:"source"`
	Relationship string         `json:"relationship"`
	Target       EntityRef      `json:"target"`
	Properties   map[string]any `json:"properties"`
}

// Hints are advisory routing weights set by the producer. Never
// authoritative; the planner only uses them as a tie-break signal.
type Hints struct {
	PriorityBackend        string  `json:"priority_backend"`
	SemanticWeight         float64 `json:"semantic_weight"`
	RelationshipImportance float64 `json:"relationship_importance"`
}

// ComputeID derives the content-addressed packet id from the source
// location and the content payload. Identical content from the same
// location always yields the same id, which makes ingestion idempotent.
func ComputeID(location string, content Content) string {
	h := sha256.New()
	h.Write([]byte(location))
	h.Write([]byte{0})
	// json.Marshal is deterministic for structs and sorts map keys,
	// so the digest is stable across processes.
	raw, _ := json.Marshal(content)
	h.Write(raw)
	return hex.EncodeToString(h.Sum(nil))
}

// New builds a packet with a computed id and the current timestamp.
func New(src Source, meta Metadata, content Content, hints *Hints) *Packet {
	if meta.Tags == nil {
		meta.Tags = []string{}
	}
	return &Packet{
		PacketID:  ComputeID(src.OriginalLocation, content),
		Timestamp: time.Now().UTC(),
		Source:    src,
		Metadata:  meta,
		Content:   content,
		Hints:     hints,
	}
}

// HasVector reports whether the vector sub-payload is non-empty.
func (c Content) HasVector() bool {
	return c.Vector != nil && len(c.Vector.Chunks) > 0
}

// HasAnalytical reports whether the analytical sub-payload is non-empty.
func (c Content) HasAnalytical() bool {
	if c.Analytical == nil {
		return false
	}
	return len(c.Analytical.StructuredFields) > 0 || len(c.Analytical.Tables) > 0
}

// HasGraph reports whether the graph sub-payload is non-empty.
func (c Content) HasGraph() bool {
	if c.Graph == nil {
		return false
	}
	return len(c.Graph.Entities) > 0 || len(c.Graph.Relationships) > 0
}
