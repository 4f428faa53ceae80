package activity

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/models"
)

// Lister reads activity records back out of the document store.
type Lister interface {
	ListByAccount(ctx context.Context, accountID int64) ([]models.ActivityRecord, error)
}

// Handler serves GET /api/activity: the caller's full log, store-natural
// order, no pagination.
type Handler struct {
	Activities Lister
	Logger     *slog.Logger
}

func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == 0 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	records, err := h.Activities.ListByAccount(r.Context(), accountID)
	if err != nil {
		h.Logger.Error("list activity", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "activity_log": records})
}
