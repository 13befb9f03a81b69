// Package tools provides MCP tool handlers and registration.
package tools

import (
	"log/slog"

	"github.com/dstrand/trivium/internal/orchestrator"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *slog.Logger
}
