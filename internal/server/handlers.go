package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/demewebsolutions/truai/internal/llm"
	"github.com/demewebsolutions/truai/internal/orchestrator"
	"github.com/demewebsolutions/truai/internal/redact"
	"github.com/demewebsolutions/truai/internal/requestctx"
	"github.com/demewebsolutions/truai/internal/task"
)

// maxPromptBytes caps submitted prompts; the orchestrator treats length
// limits as a caller contract, so the cap lives here at the boundary.
const maxPromptBytes = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type taskCreateRequest struct {
	UserID        string          `json:"user_id"`
	Prompt        string          `json:"prompt"`
	Context       json.RawMessage `json:"context,omitempty"`
	PreferredTier string          `json:"preferred_tier,omitempty"`
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	userID := requestctx.UserID(r.Context())
	if userID == "" {
		userID = req.UserID
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	if len(req.Prompt) > maxPromptBytes {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt exceeds maximum length")
		return
	}

	result, err := s.engine.Submit(r.Context(), &orchestrator.SubmitRequest{
		UserID:        userID,
		Prompt:        req.Prompt,
		Context:       req.Context,
		PreferredTier: req.PreferredTier,
	})
	if err != nil {
		s.writeEngineError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type taskApproveRequest struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
}

func (s *Server) handleTaskApprove(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	var req taskApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	userID := requestctx.UserID(r.Context())

	result, err := s.engine.Decide(r.Context(), userID, taskID, orchestrator.Action(req.Action), req.Target)
	if err != nil {
		s.writeEngineError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type taskOverrideRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleTaskOverride(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	var req taskOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	adminID := requestctx.UserID(r.Context())

	result, err := s.engine.Override(r.Context(), adminID, taskID, orchestrator.OverrideAction(req.Action))
	if err != nil {
		s.writeEngineError(w, err, adminID)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	view, err := s.engine.Get(r.Context(), taskID)
	if err != nil {
		s.writeEngineError(w, err, requestctx.UserID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	status := task.Status(r.URL.Query().Get("status"))
	if status != "" {
		if _, err := task.ParseStatus(string(status)); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}
	limit := parseIntParam(r, "limit", 50)

	tasks, err := s.engine.List(r.Context(), userID, status, limit)
	if err != nil {
		s.writeEngineError(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks, "count": len(tasks)})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("user_id")
	event := r.URL.Query().Get("event")
	limit := parseIntParam(r, "limit", 100)

	entries, err := s.auditStore.List(r.Context(), actor, event, time.Time{}, time.Time{}, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", redact.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	valid, err := s.auditStore.Verify(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", redact.Error(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "valid": valid})
}

// writeEngineError maps orchestrator/store errors to the HTTP taxonomy:
// validation → 400, unknown task → 404, locked/conflict → 409,
// configuration → 502 surfaced clearly, retry-exhausted classes → 503
// with a retry suggestion, anything else → 500. All messages pass through
// redaction before leaving the process.
func (s *Server) writeEngineError(w http.ResponseWriter, err error, userID string) {
	msg := redact.Error(err)
	switch {
	case errors.Is(err, orchestrator.ErrEmptyPrompt),
		errors.Is(err, orchestrator.ErrInvalidAction),
		errors.Is(err, orchestrator.ErrInvalidOverride),
		errors.Is(err, orchestrator.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
	case errors.Is(err, task.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, orchestrator.ErrTaskLocked):
		writeError(w, http.StatusConflict, "task_locked", msg)
	case errors.Is(err, task.ErrConflict):
		writeError(w, http.StatusConflict, "status_conflict", msg)
	case errors.Is(err, llm.ErrConfiguration):
		writeError(w, http.StatusBadGateway, "provider_configuration", msg)
	case errors.Is(err, llm.ErrRateLimited),
		errors.Is(err, llm.ErrTimeout),
		errors.Is(err, llm.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable", msg+" (retry later)")
	case errors.Is(err, llm.ErrInvalidResponse):
		writeError(w, http.StatusBadGateway, "provider_response", msg)
	default:
		log.Error().Str("user_id", userID).Str("error", msg).Msg("request_failed")
		writeError(w, http.StatusInternalServerError, "internal", msg)
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
