package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
// Called from the mcp command after server creation but before Run().
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the knowledge base with citations and per-step status",
	}, NewQueryHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest",
		Description: "Validate a knowledge packet and write it to every matching backend",
	}, NewIngestHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retire",
		Description: "Remove a packet's derived records from every backend",
	}, NewRetireHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stats",
		Description: "Snapshot operation timings, LLM token usage, and adapter health",
	}, NewStatsHandler(deps))
}
