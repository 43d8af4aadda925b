package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/aduro-bridge/internal/audit"
	"github.com/nerrad567/aduro-bridge/internal/bridge"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/entities", s.handleListEntities)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/journal", s.handleListJournal)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}

// handleHealth returns the bridge health snapshot. Degraded bridges still
// answer 200; only a stopping bridge answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	msg := s.bridge.Health()
	if msg.Version == "" {
		msg.Version = s.version
	}
	status := http.StatusOK
	if msg.Status == bridge.HealthStopping {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, msg)
}

// handleListEntities returns the entities published in this run.
func (s *Server) handleListEntities(w http.ResponseWriter, _ *http.Request) {
	entities := s.bridge.Entities()
	writeJSON(w, http.StatusOK, map[string]any{
		"entities": entities,
		"count":    len(entities),
	})
}

// documentResponse is one rendered discovery document.
type documentResponse struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// handleListDocuments renders the catalog documents without publishing.
func (s *Server) handleListDocuments(w http.ResponseWriter, _ *http.Request) {
	docs, err := s.bridge.Documents()
	if err != nil {
		s.logger.Error("failed to render discovery documents", "error", err)
		writeInternalError(w, "failed to render discovery documents")
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{Topic: d.Topic, Payload: d.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": out,
		"count":     len(out),
	})
}

// handleRefresh requests a debounced refresh. The refresh runs after the
// debounce window, so the response is 202.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	err := s.bridge.RequestRefresh()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, bridge.ErrRefreshDisabled):
		writeError(w, http.StatusConflict, ErrCodeConflict, "refresh is disabled")
	case errors.Is(err, refresh.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge is stopping")
	default:
		s.logger.Error("failed to trigger refresh", "error", err)
		writeInternalError(w, "failed to trigger refresh")
	}
}

// handleListJournal returns paginated journal entries with optional filters.
//
// Query parameters:
//   - action: publish, retract, skip, fail, refresh
//   - source: catalog, inference, cleanup, refresh
//   - entity_id: filter by entity id
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeNotFound(w, "discovery journal not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   q.Get("action"),
		Source:   q.Get("source"),
		EntityID: q.Get("entity_id"),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list journal entries", "error", err)
		writeInternalError(w, "failed to list journal entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
