package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dstrand/trivium/internal/orchestrator"
)

// RetireInput defines the input schema for the retire tool.
type RetireInput struct {
	PacketID string `json:"packet_id" jsonschema:"required,The packet to remove from every backend"`
}

// NewRetireHandler creates the retire tool handler.
func NewRetireHandler(deps *Dependencies) mcp.ToolHandlerFor[RetireInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input RetireInput) (*mcp.CallToolResult, any, error) {
		if input.PacketID == "" {
			return ErrorResult("packet_id cannot be empty", "Provide the id of an ingested packet"), nil, nil
		}

		if err := deps.Orchestrator.Retire(ctx, input.PacketID); err != nil {
			if errors.Is(err, orchestrator.ErrBadRequest) {
				return ErrorResult("Invalid packet id", err.Error()), nil, nil
			}
			deps.Logger.Error("retire failed", "packet_id", input.PacketID, "error", err)
			return ErrorResult("Retire failed", "One or more backends may be unavailable"), nil, nil
		}

		return TextResult("Retired packet " + input.PacketID), nil, nil
	}
}
