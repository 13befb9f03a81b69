package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dstrand/trivium/internal/orchestrator"
)

// QueryInput defines the input schema for the query tool.
type QueryInput struct {
	Query      string `json:"query" jsonschema:"required,The question to answer from the knowledge base"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"Max results per backend 1-100, default 10"`
	TimeoutMS  int    `json:"timeout_ms,omitempty" jsonschema:"Query timeout in milliseconds"`
}

// NewQueryHandler creates the query tool handler. It runs the full
// pipeline and returns the answer with citations and per-step status.
func NewQueryHandler(deps *Dependencies) mcp.ToolHandlerFor[QueryInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, any, error) {
		if input.Query == "" {
			return ErrorResult("Query cannot be empty", "Provide a question to answer"), nil, nil
		}
		if input.MaxResults > 100 {
			return ErrorResult("max_results must be 1-100", "Reduce max_results"), nil, nil
		}

		resp, err := deps.Orchestrator.Answer(ctx, orchestrator.QueryRequest{
			Query:      input.Query,
			MaxResults: input.MaxResults,
			TimeoutMS:  input.TimeoutMS,
		})
		if err != nil {
			if errors.Is(err, orchestrator.ErrBadRequest) {
				return ErrorResult("Invalid query", err.Error()), nil, nil
			}
			deps.Logger.Error("query failed", "error", err)
			return ErrorResult("Query failed", "Backends or providers may be unavailable"), nil, nil
		}

		jsonBytes, _ := json.MarshalIndent(resp, "", "  ")

		queryLog := input.Query
		if len(queryLog) > 30 {
			queryLog = queryLog[:30] + "..."
		}
		deps.Logger.Info("query answered",
			"query", queryLog, "strategy", resp.StrategyUsed,
			"completeness", resp.Completeness, "citations", len(resp.Citations))

		return TextResult(string(jsonBytes)), nil, nil
	}
}
