package packet

import (
	"encoding/hex"
	"fmt"
)

// SchemaError indicates a missing or malformed packet field.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("packet schema: field %q %s", e.Field, e.Reason)
}

// IntegrityError indicates the packet id does not match the recomputed
// content hash, i.e. the packet was tampered with or mis-produced.
type IntegrityError struct {
	Declared string
	Computed string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("packet integrity: declared id %s does not match computed %s", e.Declared, e.Computed)
}

// Validate enforces the packet contract. Pure, no side effects.
// Returns *SchemaError for structural problems and *IntegrityError when
// the declared id does not match the content hash.
func Validate(p *Packet) error {
	if p == nil {
		return &SchemaError{Field: "packet", Reason: "is nil"}
	}
	if p.PacketID == "" {
		return &SchemaError{Field: "packet_id", Reason: "is required"}
	}
	if _, err := hex.DecodeString(p.PacketID); err != nil {
		return &SchemaError{Field: "packet_id", Reason: "is not a hex digest"}
	}
	if p.Timestamp.IsZero() {
		return &SchemaError{Field: "timestamp", Reason: "is required"}
	}
	if p.Source.Producer == "" {
		return &SchemaError{Field: "source.producer", Reason: "is required"}
	}
	if p.Source.OriginalLocation == "" {
		return &SchemaError{Field: "source.original_location", Reason: "is required"}
	}
	if p.Source.ContentType == "" {
		return &SchemaError{Field: "source.content_type", Reason: "is required"}
	}
	if p.Metadata.Tags == nil {
		return &SchemaError{Field: "metadata.tags", Reason: "must be present (may be empty)"}
	}

	if err := validateContent(p.Content); err != nil {
		return err
	}

	if computed := ComputeID(p.Source.OriginalLocation, p.Content); computed != p.PacketID {
		return &IntegrityError{Declared: p.PacketID, Computed: computed}
	}
	return nil
}

func validateContent(c Content) error {
	if !c.HasVector() && !c.HasAnalytical() && !c.HasGraph() {
		return &SchemaError{Field: "content", Reason: "must contain at least one non-empty sub-payload"}
	}
	if c.Vector != nil {
		for i, ch := range c.Vector.Chunks {
			if ch.ChunkID == "" {
				return &SchemaError{Field: fmt.Sprintf("content.vector_data.chunks[%d].chunk_id", i), Reason: "is required"}
			}
			if ch.Text == "" {
				return &SchemaError{Field: fmt.Sprintf("content.vector_data.chunks[%d].text", i), Reason: "is required"}
			}
		}
	}
	if c.Graph != nil {
		for i, e := range c.Graph.Entities {
			if e.Type == "" || e.Name == "" {
				return &SchemaError{Field: fmt.Sprintf("content.graph_data.entities[%d]", i), Reason: "needs type and name"}
			}
		}
		for i, r := range c.Graph.Relationships {
			if r.Relationship == "" {
				return &SchemaError{Field: fmt.Sprintf("content.graph_data.relationships[%d].relationship", i), Reason: "is required"}
			}
			if r.Source.Name == "" || r.Target.Name == "" {
				return &SchemaError{Field: fmt.Sprintf("content.graph_data.relationships[%d]", i), Reason: "needs source and target"}
			}
		}
	}
	if c.Analytical != nil {
		for i, tbl := range c.Analytical.Tables {
			if tbl.Name == "" {
				return &SchemaError{Field: fmt.Sprintf("content.analytical_data.tables[%d].name", i), Reason: "is required"}
			}
			for j, row := range tbl.Rows {
				if len(row) != len(tbl.Columns) {
					return &SchemaError{
						Field:  fmt.Sprintf("content.analytical_data.tables[%d].rows[%d]", i, j),
						Reason: fmt.Sprintf("has %d values for %d columns", len(row), len(tbl.Columns)),
					}
				}
			}
		}
	}
	return nil
}
