package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/models"
	"github.com/leadtrail/backend/internal/repository"
	"github.com/leadtrail/backend/internal/services"
)

const (
	dateLayout      = "2006-01-02"
	auditDateLayout = "01/02/06"
)

// LeadStore is the subset of the lead repository the handler needs.
type LeadStore interface {
	Create(ctx context.Context, tx pgx.Tx, l *models.Lead) error
	GetByID(ctx context.Context, tx pgx.Tx, id, accountID int64) (*models.Lead, error)
	ListByAccount(ctx context.Context, accountID int64, includeDone bool) ([]models.Lead, error)
	UpdateTask(ctx context.Context, tx pgx.Tx, id, accountID int64, task string) (int64, error)
	UpdateStage(ctx context.Context, tx pgx.Tx, id, accountID int64, stage string) (int64, error)
	Complete(ctx context.Context, tx pgx.Tx, id, accountID int64, actionDate time.Time) (int64, error)
	Reschedule(ctx context.Context, tx pgx.Tx, id, accountID int64, actionDate time.Time, clearStatus bool) (int64, error)
	Delete(ctx context.Context, tx pgx.Tx, id, accountID int64) (int64, error)
	Metrics(ctx context.Context, accountID int64) (*repository.LeadMetrics, error)
}

// ActivityRecorder enqueues one audit record inside the caller's transaction.
type ActivityRecorder interface {
	Append(ctx context.Context, tx pgx.Tx, rec models.ActivityRecord) error
}

// EmailVerifier is the best-effort external address check.
type EmailVerifier interface {
	Check(ctx context.Context, email string) services.EmailVerdict
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LeadHandler serves the /api/leads endpoints. Every mutation runs as one
// transaction: the row change and the audit enqueue commit together, and a
// zero-row change aborts with 404 before any audit is written.
type LeadHandler struct {
	Pool      TxBeginner
	Leads     LeadStore
	Recorder  ActivityRecorder
	Email     EmailVerifier
	Validator *services.Validator
	Logger    *slog.Logger
}

// --- POST /api/leads ---

type createLeadRequest struct {
	IM          string `json:"im"`
	CompanyName string `json:"company_name"`
	AgentName   string `json:"agent_name"`
	Email       string `json:"email"`
	Task        string `json:"task"`
	Date        string `json:"date"`
}

// CreateLead handles POST /api/leads.
// Validate body -> check email (fail open) -> insert + audit in one tx.
func (h *LeadHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
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
	if err := h.Validator.ValidateLead(body); err != nil {
		if errors.Is(err, services.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": err.Error()})
			return
		}
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	var req createLeadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	actionDate, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, `{"error":"invalid date"}`, http.StatusBadRequest)
		return
	}

	// Only an explicit rejection blocks creation; an unreachable validator
	// is treated as a pass.
	if h.Email.Check(r.Context(), req.Email) == services.EmailInvalid {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"ok": false, "error": "Email format incorrect"})
		return
	}

	lead := &models.Lead{
		AccountID:   accountID,
		IM:          req.IM,
		CompanyName: req.CompanyName,
		AgentName:   req.AgentName,
		Email:       req.Email,
		Task:        req.Task,
		ActionDate:  actionDate,
	}

	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if err := h.Leads.Create(r.Context(), tx, lead); err != nil {
		h.Logger.Error("create lead", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	details := fmt.Sprintf("Lead created by user %d for %s with agent %s to %s for %s",
		accountID, lead.CompanyName, lead.AgentName, lead.Task, actionDate.Format(auditDateLayout))
	if err := h.Recorder.Append(r.Context(), tx, models.NewActivityRecord(accountID, details)); err != nil {
		h.Logger.Error("enqueue activity", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "id": lead.ID})
}

// --- GET /api/getleads ---

type leadView struct {
	ID          int64  `json:"id"`
	IM          string `json:"im"`
	CompanyName string `json:"company_name"`
	AgentName   string `json:"agent_name"`
	Email       string `json:"email"`
	Task        string `json:"task"`
	ActionDate  string `json:"action_date"`
	Stage       string `json:"stage"`
}

// GetLeads handles GET /api/getleads. source=leadpage returns everything;
// any other source hides leads whose task is done.
func (h *LeadHandler) GetLeads(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == 0 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	includeDone := r.URL.Query().Get("source") == "leadpage"
	leads, err := h.Leads.ListByAccount(r.Context(), accountID, includeDone)
	if err != nil {
		h.Logger.Error("list leads", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	views := make([]leadView, 0, len(leads))
	for _, l := range leads {
		views = append(views, leadView{
			ID:          l.ID,
			IM:          l.IM,
			CompanyName: l.CompanyName,
			AgentName:   l.AgentName,
			Email:       l.Email,
			Task:        l.Task,
			ActionDate:  l.ActionDate.Format(dateLayout),
			Stage:       l.Stage,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "leads": views})
}

// --- PATCH /api/leads/{id}/task ---

type taskUpdateRequest struct {
	Task string `json:"task"`
}

// UpdateTask handles PATCH /api/leads/{id}/task. The before-value read and
// the update share the transaction so the audit message reflects the state
// the update actually replaced.
func (h *LeadHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	accountID, leadID, ok := h.authAndLeadID(w, r)
	if !ok {
		return
	}

	var req taskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	h.mutate(w, r, func(ctx context.Context, tx pgx.Tx) (models.ActivityRecord, error) {
		before, err := h.Leads.GetByID(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if before == nil {
			return models.ActivityRecord{}, errLeadNotFound
		}
		rows, err := h.Leads.UpdateTask(ctx, tx, leadID, accountID, req.Task)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if rows == 0 {
			return models.ActivityRecord{}, errLeadNotFound
		}
		details := fmt.Sprintf("User updated lead %s task from %s to %s", before.CompanyName, before.Task, req.Task)
		return models.NewActivityRecord(accountID, details), nil
	}, map[string]interface{}{"ok": true})
}

// --- PATCH /api/leads/{id}/stage ---

type stageUpdateRequest struct {
	Stage string `json:"stage"`
}

// UpdateStage handles PATCH /api/leads/{id}/stage. Stage is free text; the
// store accepts any label.
func (h *LeadHandler) UpdateStage(w http.ResponseWriter, r *http.Request) {
	accountID, leadID, ok := h.authAndLeadID(w, r)
	if !ok {
		return
	}

	var req stageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	h.mutate(w, r, func(ctx context.Context, tx pgx.Tx) (models.ActivityRecord, error) {
		before, err := h.Leads.GetByID(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if before == nil {
			return models.ActivityRecord{}, errLeadNotFound
		}
		rows, err := h.Leads.UpdateStage(ctx, tx, leadID, accountID, req.Stage)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if rows == 0 {
			return models.ActivityRecord{}, errLeadNotFound
		}
		details := fmt.Sprintf("User updated lead %s stage from %s to %s", before.CompanyName, before.Stage, req.Stage)
		return models.NewActivityRecord(accountID, details), nil
	}, map[string]interface{}{"ok": true})
}

// --- POST /api/leads/{id}/complete ---

// CompleteLead handles POST /api/leads/{id}/complete. Done leads are
// snoozed a week out from now, not from the prior action date.
func (h *LeadHandler) CompleteLead(w http.ResponseWriter, r *http.Request) {
	accountID, leadID, ok := h.authAndLeadID(w, r)
	if !ok {
		return
	}

	h.mutate(w, r, func(ctx context.Context, tx pgx.Tx) (models.ActivityRecord, error) {
		before, err := h.Leads.GetByID(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if before == nil {
			return models.ActivityRecord{}, errLeadNotFound
		}
		rows, err := h.Leads.Complete(ctx, tx, leadID, accountID, time.Now().Add(7*24*time.Hour))
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if rows == 0 {
			return models.ActivityRecord{}, errLeadNotFound
		}
		details := fmt.Sprintf("User completed lead %s", before.CompanyName)
		return models.NewActivityRecord(accountID, details), nil
	}, map[string]interface{}{"ok": true, "id": leadID})
}

// --- PATCH /api/leads/{id}/reschedule ---

type rescheduleRequest struct {
	ActionDate string `json:"action_date"`
}

// RescheduleLead handles PATCH /api/leads/{id}/reschedule. Moving the date
// to today or earlier also reopens the task, so the lead reappears on the
// active list; a future date leaves task_status alone.
func (h *LeadHandler) RescheduleLead(w http.ResponseWriter, r *http.Request) {
	accountID, leadID, ok := h.authAndLeadID(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	newDate, err := time.Parse(dateLayout, req.ActionDate)
	if err != nil {
		http.Error(w, `{"error":"invalid action_date"}`, http.StatusBadRequest)
		return
	}
	// Compare calendar days, not instants: a date of today or earlier
	// reopens the task.
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	clearStatus := !newDate.After(today)

	h.mutate(w, r, func(ctx context.Context, tx pgx.Tx) (models.ActivityRecord, error) {
		before, err := h.Leads.GetByID(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if before == nil {
			return models.ActivityRecord{}, errLeadNotFound
		}
		rows, err := h.Leads.Reschedule(ctx, tx, leadID, accountID, newDate, clearStatus)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if rows == 0 {
			return models.ActivityRecord{}, errLeadNotFound
		}
		details := fmt.Sprintf("User rescheduled lead: %s from %s to %s",
			before.CompanyName, before.ActionDate.Format(dateLayout), req.ActionDate)
		return models.NewActivityRecord(accountID, details), nil
	}, map[string]interface{}{"ok": true, "id": leadID})
}

// --- DELETE /api/leads/{id}/delete ---

// DeleteLead handles DELETE /api/leads/{id}/delete.
func (h *LeadHandler) DeleteLead(w http.ResponseWriter, r *http.Request) {
	accountID, leadID, ok := h.authAndLeadID(w, r)
	if !ok {
		return
	}

	h.mutate(w, r, func(ctx context.Context, tx pgx.Tx) (models.ActivityRecord, error) {
		before, err := h.Leads.GetByID(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if before == nil {
			return models.ActivityRecord{}, errLeadNotFound
		}
		rows, err := h.Leads.Delete(ctx, tx, leadID, accountID)
		if err != nil {
			return models.ActivityRecord{}, err
		}
		if rows == 0 {
			return models.ActivityRecord{}, errLeadNotFound
		}
		details := fmt.Sprintf("User deleted lead: %s", before.CompanyName)
		return models.NewActivityRecord(accountID, details), nil
	}, map[string]interface{}{"ok": true})
}

// --- GET /api/leads/metrics ---

// GetMetrics handles GET /api/leads/metrics.
func (h *LeadHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromCtx(r.Context())
	if accountID == 0 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	m, err := h.Leads.Metrics(r.Context(), accountID)
	if err != nil {
		h.Logger.Error("lead metrics", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"overdue":   m.Overdue,
		"due_today": m.DueToday,
		"open":      m.Open,
	})
}

// --- helpers ---

var errLeadNotFound = errors.New("lead not found")

// mutate runs one transactional mutation: the step either returns the audit
// record to enqueue, or errLeadNotFound to abort with a uniform 404. 404s
// roll back, so no audit record survives a failed mutation.
func (h *LeadHandler) mutate(w http.ResponseWriter, r *http.Request, step func(context.Context, pgx.Tx) (models.ActivityRecord, error), success map[string]interface{}) {
	tx, err := h.Pool.Begin(r.Context())
	if err != nil {
		h.Logger.Error("begin tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	rec, err := step(r.Context(), tx)
	if err != nil {
		if errors.Is(err, errLeadNotFound) {
			http.Error(w, `{"error":"Lead not found"}`, http.StatusNotFound)
			return
		}
		h.Logger.Error("lead mutation", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := h.Recorder.Append(r.Context(), tx, rec); err != nil {
		h.Logger.Error("enqueue activity", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.Logger.Error("commit tx", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, success)
}

func (h *LeadHandler) authAndLeadID(w http.ResponseWriter, r *http.Request) (accountID, leadID int64, ok bool) {
	accountID = middleware.AccountIDFromCtx(r.Context())
	if accountID == 0 {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return 0, 0, false
	}
	leadID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"invalid lead id"}`, http.StatusBadRequest)
		return 0, 0, false
	}
	return accountID, leadID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
