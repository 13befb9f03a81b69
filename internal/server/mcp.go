// Package server provides the boundary surfaces: the HTTP API and the
// MCP stdio server.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCP wraps the MCP server with lifecycle management.
type MCP struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// NewMCP creates the MCP server with logging middleware installed.
func NewMCP(version string, logger *slog.Logger) *MCP {
	impl := &mcp.Implementation{
		Name:    "trivium",
		Version: version,
	}
	srv := mcp.NewServer(impl, nil)
	srv.AddReceivingMiddleware(MCPLoggingMiddleware(logger))
	return &MCP{mcp: srv, logger: logger}
}

// Run starts the server on stdio transport and blocks until disconnect
// or context cancellation.
func (s *MCP) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// Server returns the underlying MCP server for tool registration.
func (s *MCP) Server() *mcp.Server {
	return s.mcp
}
