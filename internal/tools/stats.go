package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StatsInput defines the input schema for the stats tool. It takes no
// arguments.
type StatsInput struct{}

// NewStatsHandler creates the stats tool handler: a point-in-time
// snapshot of operation timings, token usage, and adapter health.
func NewStatsHandler(deps *Dependencies) mcp.ToolHandlerFor[StatsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, any, error) {
		stats := deps.Orchestrator.Stats(ctx)
		jsonBytes, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return ErrorResult("Failed to encode stats", err.Error()), nil, nil
		}
		return TextResult(string(jsonBytes)), nil, nil
	}
}
