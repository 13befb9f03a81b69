package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/executor"
	"github.com/dstrand/trivium/internal/intent"
	"github.com/dstrand/trivium/internal/llm"
	"github.com/dstrand/trivium/internal/metrics"
	"github.com/dstrand/trivium/internal/orchestrator"
	"github.com/dstrand/trivium/internal/packet"
	"github.com/dstrand/trivium/internal/synthesizer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubProvider struct{ content string }

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(context.Context, llm.Request) (*llm.Response, error) {
	return &llm.Response{Content: s.content, Provider: "stub"}, nil
}

func newTestServer(t *testing.T) (*HTTP, *adapter.Mock) {
	t.Helper()
	v := adapter.NewMock("vector", adapter.FamilyVector)
	adapters := map[adapter.Family]adapter.Adapter{
		adapter.FamilyVector:     v,
		adapter.FamilyAnalytical: adapter.NewMock("analytical", adapter.FamilyAnalytical),
		adapter.FamilyGraph:      adapter.NewMock("graph", adapter.FamilyGraph),
	}

	classifyChain := llm.NewChain([]llm.Provider{&stubProvider{
		content: `{"backend": "vector", "confidence": 0.9, "multi_step": false, "entities": []}`,
	}}, llm.ChainConfig{}, nil, nil)
	synthChain := llm.NewChain([]llm.Provider{&stubProvider{
		content: "The answer [pkt-1].",
	}}, llm.ChainConfig{}, nil, nil)

	collector := metrics.NewCollector()
	tracker := adapter.NewTracker(adapter.TrackerConfig{})
	orch := orchestrator.New(orchestrator.Deps{
		Adapters:   adapters,
		Classifier: intent.NewClassifier(classifyChain, intent.DefaultConfig(), collector, testLogger()),
		Executor:   executor.New(executor.Config{}, tracker, collector, testLogger()),
		Synth:      synthesizer.New(synthChain, collector, testLogger()),
		Tracker:    tracker,
		Collector:  collector,
		Logger:     testLogger(),
	}, orchestrator.Config{})

	return NewHTTP(":0", orch, testLogger()), v
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestQueryEndpoint(t *testing.T) {
	srv, v := newTestServer(t)
	v.Results = []adapter.Result{{PacketID: "pkt-1", Score: 0.9, Excerpt: "the answer"}}

	w := postJSON(t, srv.Handler(), "/query", orchestrator.QueryRequest{Query: "what is the answer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp orchestrator.QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Answer, "answer")
	assert.Equal(t, []string{"pkt-1"}, resp.Citations)
	assert.Equal(t, "vector_first", resp.StrategyUsed)
	assert.Len(t, resp.PerStepStatus, 1)
}

func TestQueryEndpointBadRequests(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "malformed_json", body.Error.Kind)

	w = postJSON(t, srv.Handler(), "/query", orchestrator.QueryRequest{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestAndRetireEndpoints(t *testing.T) {
	srv, v := newTestServer(t)

	p := packet.New(
		packet.Source{Producer: "extractor", ProducerVersion: "1.0", OriginalLocation: "docs/a.md", ContentType: "text/markdown"},
		packet.Metadata{Title: "Doc A"},
		packet.Content{Vector: &packet.VectorData{
			Chunks:         []packet.Chunk{{ChunkID: "c1", Text: "hello"}},
			EmbeddingModel: "nomic-embed-text",
		}},
		nil,
	)

	w := postJSON(t, srv.Handler(), "/packets", p)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotNil(t, v.Stored(p.PacketID))

	req := httptest.NewRequest(http.MethodDelete, "/packets/"+p.PacketID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, v.Stored(p.PacketID))
}

func TestIngestEndpointRejectsTamperedPacket(t *testing.T) {
	srv, v := newTestServer(t)

	p := packet.New(
		packet.Source{Producer: "extractor", ProducerVersion: "1.0", OriginalLocation: "docs/a.md", ContentType: "text/markdown"},
		packet.Metadata{Title: "Doc A"},
		packet.Content{Vector: &packet.VectorData{
			Chunks:         []packet.Chunk{{ChunkID: "c1", Text: "hello"}},
			EmbeddingModel: "nomic-embed-text",
		}},
		nil,
	)
	p.PacketID = "0000000000000000000000000000000000000000000000000000000000000000"

	w := postJSON(t, srv.Handler(), "/packets", p)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, v.WriteCalls())
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	adapters, ok := body["adapters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", adapters["vector"])
}

func TestStatsEndpoint(t *testing.T) {
	srv, v := newTestServer(t)
	v.Results = []adapter.Result{{PacketID: "pkt-1", Excerpt: "x"}}
	postJSON(t, srv.Handler(), "/query", orchestrator.QueryRequest{Query: "warm up the counters"})

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats orchestrator.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.NotNil(t, stats.Metrics.IntentClassify)
	assert.Equal(t, int64(1), stats.Metrics.IntentClassify.Count)
}
