package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/concierge-ai/concierge/internal/domain"
	"github.com/concierge-ai/concierge/internal/orchestrator"
	"github.com/concierge-ai/concierge/internal/usage"
)

type handlers struct {
	orch   *orchestrator.Orchestrator
	stats  usage.Recorder
	logger *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "messages is required"})
		return
	}

	ctx := r.Context()
	AddLogField(ctx, "user_id", req.UserID)
	AddLogField(ctx, "source", req.Source)

	resp, err := h.orch.Turn(ctx, &req)
	if err != nil {
		status := statusForError(err)
		AddLogField(ctx, "error", err.Error())
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	AddLogField(ctx, "model", resp.Meta.ActualModel)
	AddLogField(ctx, "provider", resp.Meta.Provider)
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) usageStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = "default"
	}

	stats, err := h.stats.Stats(r.Context(), userID)
	if err != nil {
		h.logger.Error("usage stats failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load usage stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForError maps the error taxonomy onto HTTP statuses: caller
// errors surface as 400s, upstream trouble as 502.
func statusForError(err error) int {
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	switch apiErr.Type {
	case domain.ErrorTypeBadRequest, domain.ErrorTypeContextLength:
		return http.StatusBadRequest
	case domain.ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case domain.ErrorTypeAuthentication:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
