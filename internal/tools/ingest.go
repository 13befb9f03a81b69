package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dstrand/trivium/internal/orchestrator"
	"github.com/dstrand/trivium/internal/packet"
)

// IngestInput defines the input schema for the ingest tool.
type IngestInput struct {
	Packet json.RawMessage `json:"packet" jsonschema:"required,A knowledge packet as a JSON object"`
}

// NewIngestHandler creates the ingest tool handler. The packet is
// validated (schema and content hash) before any backend is written.
func NewIngestHandler(deps *Dependencies) mcp.ToolHandlerFor[IngestInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestInput) (*mcp.CallToolResult, any, error) {
		if len(input.Packet) == 0 {
			return ErrorResult("Packet cannot be empty", "Provide a knowledge packet JSON object"), nil, nil
		}

		var p packet.Packet
		if err := json.Unmarshal(input.Packet, &p); err != nil {
			return ErrorResult("Packet is not valid JSON", err.Error()), nil, nil
		}

		if err := deps.Orchestrator.Ingest(ctx, &p); err != nil {
			if errors.Is(err, orchestrator.ErrBadRequest) {
				return ErrorResult("Packet failed validation", err.Error()), nil, nil
			}
			deps.Logger.Error("ingest failed", "packet_id", p.PacketID, "error", err)
			return ErrorResult("Ingest failed", "One or more backends may be unavailable"), nil, nil
		}

		return TextResult("Ingested packet " + p.PacketID), nil, nil
	}
}
