package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dstrand/trivium/internal/adapter"
	"github.com/dstrand/trivium/internal/orchestrator"
	"github.com/dstrand/trivium/internal/packet"
)

// HTTP is the REST boundary over the orchestrator.
type HTTP struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	srv    *http.Server
}

// NewHTTP builds the HTTP server on addr.
func NewHTTP(addr string, orch *orchestrator.Orchestrator, logger *slog.Logger) *HTTP {
	h := &HTTP{orch: orch, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", h.handleQuery)
	mux.HandleFunc("POST /packets", h.handleIngest)
	mux.HandleFunc("DELETE /packets/{id}", h.handleRetire)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /stats", h.handleStats)

	h.srv = &http.Server{
		Addr:              addr,
		Handler:           httpLogging(logger, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return h
}

// Handler exposes the configured handler for tests.
func (h *HTTP) Handler() http.Handler { return h.srv.Handler }

// Run serves until the context is cancelled, then shuts down gracefully.
func (h *HTTP) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("starting HTTP server", "addr", h.srv.Addr)
		errCh <- h.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.srv.Shutdown(shutdownCtx)
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	var body errorBody
	body.Error.Kind = kind
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *HTTP) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_json", err)
		return
	}

	resp, err := h.orch.Answer(r.Context(), req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusBadGateway, "orchestration_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTP) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p packet.Packet
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_json", err)
		return
	}

	if err := h.orch.Ingest(r.Context(), &p); err != nil {
		if errors.Is(err, orchestrator.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, "invalid_packet", err)
			return
		}
		writeError(w, http.StatusBadGateway, "ingest_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"packet_id": p.PacketID,
		"status":    "ingested",
	})
}

func (h *HTTP) handleRetire(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.orch.Retire(r.Context(), id); err != nil {
		if errors.Is(err, orchestrator.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusBadGateway, "retire_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"packet_id": id,
		"status":    "retired",
	})
}

func (h *HTTP) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.orch.Stats(r.Context())

	allDown := len(stats.Health) > 0
	for _, s := range stats.Health {
		if s != adapter.Unavailable {
			allDown = false
			break
		}
	}

	status := http.StatusOK
	overall := "ok"
	if allDown {
		status = http.StatusServiceUnavailable
		overall = "unavailable"
	}
	writeJSON(w, status, map[string]any{
		"status":   overall,
		"adapters": stats.Health,
	})
}

func (h *HTTP) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.orch.Stats(r.Context()))
}
