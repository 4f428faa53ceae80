package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/services"
)

// LLMResponder is the chatbot backend.
type LLMResponder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// LLMHandler serves POST /api/llm, the session-gated chatbot proxy.
type LLMHandler struct {
	Client    LLMResponder
	Validator *services.Validator
	Logger    *slog.Logger
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

func (h *LLMHandler) SendPrompt(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == 0 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if err := h.Validator.ValidatePrompt(body); err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": err.Error()})
			return
		}
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	var req promptRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	text, err := h.Client.Respond(r.Context(), req.Prompt)
	if err != nil {
		h.Logger.Error("llm request", "error", err)
		http.Error(w, `{"error":"llm upstream unavailable"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "response": text})
}
