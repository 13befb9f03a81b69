package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dstrand/trivium/internal/llm"
	"github.com/dstrand/trivium/internal/packet"
	"github.com/google/uuid"
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorConfig configures the Qdrant-backed vector adapter.
type VectorConfig struct {
	Host       string
	Port       int
	Collection string
	Dimension  int
}

// Vector is the semantic similarity adapter backed by Qdrant. Chunk
// embeddings are produced at write time; queries embed the query text and
// search by cosine similarity.
type Vector struct {
	name        string
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	embedder    *llm.Embedder
	collection  string
	dimension   int
	logger      *slog.Logger
}

var _ Adapter = (*Vector)(nil)

// NewVector connects to Qdrant and ensures the collection exists.
func NewVector(ctx context.Context, cfg VectorConfig, embedder *llm.Embedder, logger *slog.Logger) (*Vector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}

	v := &Vector{
		name:        "vector",
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		embedder:    embedder,
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
		logger:      logger,
	}
	if err := v.ensureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return v, nil
}

func (v *Vector) ensureCollection(ctx context.Context) error {
	list, err := v.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, col := range list.GetCollections() {
		if col.GetName() == v.collection {
			return nil
		}
	}

	v.logger.Info("creating qdrant collection", "collection", v.collection, "dimension", v.dimension)
	_, err = v.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(v.dimension),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (v *Vector) Name() string   { return v.name }
func (v *Vector) Family() Family { return FamilyVector }

// Write embeds the packet's chunks and upserts one point per chunk.
// Point ids derive from (packet_id, chunk_id), so rewrites overwrite the
// same points instead of duplicating them.
func (v *Vector) Write(ctx context.Context, p *packet.Packet) error {
	if !p.Content.HasVector() {
		return nil
	}
	chunks := p.Content.Vector.Chunks

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return wrapError(v.name, "write", err)
	}

	points := make([]*qdrantclient.PointStruct, len(chunks))
	for i, ch := range chunks {
		pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(p.PacketID+"/"+ch.ChunkID))
		points[i] = &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Uuid{Uuid: pointID.String()},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				"packet_id": {Kind: &qdrantclient.Value_StringValue{StringValue: p.PacketID}},
				"chunk_id":  {Kind: &qdrantclient.Value_StringValue{StringValue: ch.ChunkID}},
				"text":      {Kind: &qdrantclient.Value_StringValue{StringValue: ch.Text}},
			},
		}
	}

	_, err = v.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: v.collection,
		Points:         points,
	})
	if err != nil {
		return wrapError(v.name, "write", err)
	}
	return nil
}

// Query embeds the query text and searches by similarity.
func (v *Vector) Query(ctx context.Context, req Request) (*Response, error) {
	if req.Text == "" {
		return nil, wrapError(v.name, "query", fmt.Errorf("%w: similarity query needs text", ErrBadRequest))
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := v.embedder.Embed(ctx, req.Text)
	if err != nil {
		return nil, wrapError(v.name, "query", err)
	}

	resp, err := v.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: v.collection,
		Vector:         queryVec,
		Limit:          uint64(limit),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, wrapError(v.name, "query", err)
	}

	results := make([]Result, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		payload := hit.GetPayload()
		results = append(results, Result{
			PacketID: payload["packet_id"].GetStringValue(),
			Score:    float64(hit.GetScore()),
			Excerpt:  payload["text"].GetStringValue(),
			Fields:   map[string]any{"chunk_id": payload["chunk_id"].GetStringValue()},
		})
	}
	return &Response{Results: results}, nil
}

// Delete removes every point derived from the packet.
func (v *Vector) Delete(ctx context.Context, packetID string) error {
	_, err := v.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: v.collection,
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{
				Filter: &qdrantclient.Filter{
					Must: []*qdrantclient.Condition{{
						ConditionOneOf: &qdrantclient.Condition_Field{
							Field: &qdrantclient.FieldCondition{
								Key: "packet_id",
								Match: &qdrantclient.Match{
									MatchValue: &qdrantclient.Match_Keyword{Keyword: packetID},
								},
							},
						},
					}},
				},
			},
		},
	})
	if err != nil {
		return wrapError(v.name, "delete", err)
	}
	return nil
}

// Health lists collections as a liveness probe.
func (v *Vector) Health(ctx context.Context) HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := v.collections.List(probeCtx, &qdrantclient.ListCollectionsRequest{}); err != nil {
		return Unavailable
	}
	return Healthy
}

// Close releases the gRPC connection.
func (v *Vector) Close() error {
	return v.conn.Close()
}
