package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dstrand/trivium/internal/db"
	"github.com/dstrand/trivium/internal/llm"
)

// FactoryDeps carries the shared clients concrete adapters are built on.
type FactoryDeps struct {
	DB       *db.Client
	Embedder *llm.Embedder
	Vector   VectorConfig
	Logger   *slog.Logger
}

// Open builds the adapter registered under the backend key. The set of
// backends is closed; unknown keys are configuration errors.
func Open(ctx context.Context, family Family, backend string, deps FactoryDeps) (Adapter, error) {
	switch backend {
	case "qdrant":
		if family != FamilyVector {
			return nil, fmt.Errorf("backend qdrant serves the vector family, not %s", family)
		}
		return NewVector(ctx, deps.Vector, deps.Embedder, deps.Logger)
	case "surrealdb":
		switch family {
		case FamilyAnalytical:
			return NewAnalytical(deps.DB, deps.Logger), nil
		case FamilyGraph:
			return NewGraph(deps.DB, deps.Logger), nil
		default:
			return nil, fmt.Errorf("backend surrealdb serves analytical and graph, not %s", family)
		}
	case "mock":
		return NewMock(string(family), family), nil
	default:
		return nil, fmt.Errorf("unknown %s backend %q", family, backend)
	}
}
