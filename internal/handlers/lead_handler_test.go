package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leadtrail/backend/internal/middleware"
	"github.com/leadtrail/backend/internal/models"
	"github.com/leadtrail/backend/internal/repository"
	"github.com/leadtrail/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type fakeTx struct {
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Begin(_ context.Context) (pgx.Tx, error) { return t, nil }
func (t *fakeTx) Commit(_ context.Context) error          { t.committed = true; return nil }
func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}
func (t *fakeTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *fakeTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                             { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *fakeTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *fakeTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) { return nil, nil }
func (t *fakeTx) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row       { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                              { return nil }

type fakePool struct{ tx *fakeTx }

func (p *fakePool) Begin(_ context.Context) (pgx.Tx, error) { return p.tx, nil }

// memLeadStore is an in-memory LeadStore honoring (id, owner) scoping.
type memLeadStore struct {
	nextID int64
	leads  map[int64]*models.Lead
}

func newMemLeadStore(leads ...*models.Lead) *memLeadStore {
	s := &memLeadStore{nextID: 1, leads: make(map[int64]*models.Lead)}
	for _, l := range leads {
		cp := *l
		s.leads[l.ID] = &cp
		if l.ID >= s.nextID {
			s.nextID = l.ID + 1
		}
	}
	return s
}

func (s *memLeadStore) owned(id, accountID int64) *models.Lead {
	l, ok := s.leads[id]
	if !ok || l.AccountID != accountID {
		return nil
	}
	return l
}

func (s *memLeadStore) Create(_ context.Context, _ pgx.Tx, l *models.Lead) error {
	l.ID = s.nextID
	s.nextID++
	cp := *l
	s.leads[l.ID] = &cp
	return nil
}

func (s *memLeadStore) GetByID(_ context.Context, _ pgx.Tx, id, accountID int64) (*models.Lead, error) {
	l := s.owned(id, accountID)
	if l == nil {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memLeadStore) ListByAccount(_ context.Context, accountID int64, includeDone bool) ([]models.Lead, error) {
	out := []models.Lead{}
	for _, l := range s.leads {
		if l.AccountID != accountID {
			continue
		}
		if !includeDone && l.Done() {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (s *memLeadStore) UpdateTask(_ context.Context, _ pgx.Tx, id, accountID int64, task string) (int64, error) {
	l := s.owned(id, accountID)
	if l == nil {
		return 0, nil
	}
	l.Task = task
	return 1, nil
}

func (s *memLeadStore) UpdateStage(_ context.Context, _ pgx.Tx, id, accountID int64, stage string) (int64, error) {
	l := s.owned(id, accountID)
	if l == nil {
		return 0, nil
	}
	l.Stage = stage
	return 1, nil
}

func (s *memLeadStore) Complete(_ context.Context, _ pgx.Tx, id, accountID int64, actionDate time.Time) (int64, error) {
	l := s.owned(id, accountID)
	if l == nil {
		return 0, nil
	}
	done := models.TaskStatusDone
	l.TaskStatus = &done
	l.ActionDate = actionDate
	return 1, nil
}

func (s *memLeadStore) Reschedule(_ context.Context, _ pgx.Tx, id, accountID int64, actionDate time.Time, clearStatus bool) (int64, error) {
	l := s.owned(id, accountID)
	if l == nil {
		return 0, nil
	}
	l.ActionDate = actionDate
	if clearStatus {
		l.TaskStatus = nil
	}
	return 1, nil
}

func (s *memLeadStore) Delete(_ context.Context, _ pgx.Tx, id, accountID int64) (int64, error) {
	if s.owned(id, accountID) == nil {
		return 0, nil
	}
	delete(s.leads, id)
	return 1, nil
}

func (s *memLeadStore) Metrics(_ context.Context, accountID int64) (*repository.LeadMetrics, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var m repository.LeadMetrics
	for _, l := range s.leads {
		if l.AccountID != accountID {
			continue
		}
		// Only Lost and Won are excluded; a lead with no stage yet is open.
		if l.Stage == models.StageLost || l.Stage == models.StageWon {
			continue
		}
		m.Open++
		if !l.ActionDate.After(today) {
			m.Overdue++
		}
		if l.ActionDate.Equal(today) {
			m.DueToday++
		}
	}
	return &m, nil
}

type stubRecorder struct {
	records []models.ActivityRecord
}

func (r *stubRecorder) Append(_ context.Context, _ pgx.Tx, rec models.ActivityRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type stubEmail struct {
	verdict services.EmailVerdict
	called  bool
}

func (s *stubEmail) Check(_ context.Context, _ string) services.EmailVerdict {
	s.called = true
	return s.verdict
}

type fixture struct {
	handler  *LeadHandler
	store    *memLeadStore
	recorder *stubRecorder
	email    *stubEmail
	tx       *fakeTx
}

func newFixture(t *testing.T, leads ...*models.Lead) *fixture {
	t.Helper()
	validator, err := services.NewValidator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	f := &fixture{
		store:    newMemLeadStore(leads...),
		recorder: &stubRecorder{},
		email:    &stubEmail{verdict: services.EmailValid},
		tx:       &fakeTx{},
	}
	f.handler = &LeadHandler{
		Pool:      &fakePool{tx: f.tx},
		Leads:     f.store,
		Recorder:  f.recorder,
		Email:     f.email,
		Validator: validator,
		Logger:    slog.Default(),
	}
	return f
}

func doJSON(h http.HandlerFunc, method, path, body string, accountID int64) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if accountID != 0 {
		req = req.WithContext(middleware.WithAccountID(req.Context(), accountID))
	}
	// Lead mutation routes carry a {id} wildcard; stamp it the way the
	// mux would.
	if rest, ok := strings.CutPrefix(path, "/api/leads/"); ok {
		if idx := strings.IndexByte(rest, '/'); idx > 0 {
			req.SetPathValue("id", rest[:idx])
		}
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func seedLead(id, accountID int64) *models.Lead {
	return &models.Lead{
		ID:          id,
		AccountID:   accountID,
		IM:          "email",
		CompanyName: "Acme",
		AgentName:   "Bob",
		Email:       "b@acme.com",
		Task:        "Call",
		Stage:       models.StageQualifying,
		ActionDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

const validCreateBody = `{"im":"email","company_name":"Acme","agent_name":"Bob","email":"b@acme.com","task":"Call","date":"2026-03-01"}`

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateLead_Success(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f.handler.CreateLead, http.MethodPost, "/api/leads", validCreateBody, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		OK bool  `json:"ok"`
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK || resp.ID == 0 {
		t.Errorf("response = %+v", resp)
	}
	if !f.tx.committed {
		t.Error("transaction was not committed")
	}
	if len(f.recorder.records) != 1 {
		t.Fatalf("audit records = %d, want 1", len(f.recorder.records))
	}
	want := "Lead created by user 1 for Acme with agent Bob to Call for 03/01/26"
	if got := f.recorder.records[0].Details; got != want {
		t.Errorf("audit details = %q, want %q", got, want)
	}
}

func TestCreateLead_RejectedEmail(t *testing.T) {
	f := newFixture(t)
	f.email.verdict = services.EmailInvalid

	rec := doJSON(f.handler.CreateLead, http.MethodPost, "/api/leads", validCreateBody, 1)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Email format incorrect") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(f.store.leads) != 0 {
		t.Error("lead persisted despite rejected email")
	}
	if len(f.recorder.records) != 0 {
		t.Error("audit written despite rejected email")
	}
}

func TestCreateLead_ValidatorUnreachableFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.email.verdict = services.EmailUnreachable

	rec := doJSON(f.handler.CreateLead, http.MethodPost, "/api/leads", validCreateBody, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (fail open): %s", rec.Code, rec.Body.String())
	}
	if !f.email.called {
		t.Error("email checker never called")
	}
	if len(f.store.leads) != 1 {
		t.Errorf("leads persisted = %d, want 1", len(f.store.leads))
	}
}

func TestCreateLead_MissingFields(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f.handler.CreateLead, http.MethodPost, "/api/leads", `{"im":"email"}`, 1)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if f.email.called {
		t.Error("email checked before payload validation passed")
	}
}

func TestCreateLead_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	rec := doJSON(f.handler.CreateLead, http.MethodPost, "/api/leads", validCreateBody, 0)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGetLeads_SourceControlsDoneFilter(t *testing.T) {
	done := seedLead(2, 1)
	status := models.TaskStatusDone
	done.TaskStatus = &status
	f := newFixture(t, seedLead(1, 1), done)

	full := doJSON(f.handler.GetLeads, http.MethodGet, "/api/getleads?source=leadpage", "", 1)
	active := doJSON(f.handler.GetLeads, http.MethodGet, "/api/getleads?source=dashboard", "", 1)

	var fullResp, activeResp struct {
		OK    bool       `json:"ok"`
		Leads []leadView `json:"leads"`
	}
	if err := json.Unmarshal(full.Body.Bytes(), &fullResp); err != nil {
		t.Fatalf("decode full: %v", err)
	}
	if err := json.Unmarshal(active.Body.Bytes(), &activeResp); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if len(fullResp.Leads) != 2 {
		t.Errorf("leadpage leads = %d, want 2", len(fullResp.Leads))
	}
	if len(activeResp.Leads) != 1 {
		t.Errorf("dashboard leads = %d, want 1", len(activeResp.Leads))
	}
	if len(activeResp.Leads) == 1 && activeResp.Leads[0].ActionDate != "2026-03-01" {
		t.Errorf("action_date = %q, want 2026-03-01", activeResp.Leads[0].ActionDate)
	}
}

func TestGetLeads_ScopedToOwner(t *testing.T) {
	f := newFixture(t, seedLead(1, 1), seedLead(2, 99))

	rec := doJSON(f.handler.GetLeads, http.MethodGet, "/api/getleads?source=leadpage", "", 1)

	var resp struct {
		Leads []leadView `json:"leads"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Leads) != 1 || resp.Leads[0].ID != 1 {
		t.Errorf("leads = %+v, want only lead 1", resp.Leads)
	}
}

func TestUpdateTask_AuditsBeforeValue(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	rec := doJSON(f.handler.UpdateTask, http.MethodPatch, "/api/leads/1/task", `{"task":"Email follow-up"}`, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := f.store.leads[1].Task; got != "Email follow-up" {
		t.Errorf("task = %q", got)
	}
	want := "User updated lead Acme task from Call to Email follow-up"
	if len(f.recorder.records) != 1 || f.recorder.records[0].Details != want {
		t.Errorf("audit = %+v, want %q", f.recorder.records, want)
	}
}

func TestUpdateTask_NotOwnedIsUniform404(t *testing.T) {
	f := newFixture(t, seedLead(1, 99))

	missing := doJSON(f.handler.UpdateTask, http.MethodPatch, "/api/leads/5/task", `{"task":"x"}`, 1)
	notOwned := doJSON(f.handler.UpdateTask, http.MethodPatch, "/api/leads/1/task", `{"task":"x"}`, 1)

	if missing.Code != http.StatusNotFound || notOwned.Code != http.StatusNotFound {
		t.Fatalf("statuses = %d, %d, want 404 for both", missing.Code, notOwned.Code)
	}
	if missing.Body.String() != notOwned.Body.String() {
		t.Errorf("bodies differ: %q vs %q", missing.Body.String(), notOwned.Body.String())
	}
	if len(f.recorder.records) != 0 {
		t.Errorf("audit written for failed mutation: %+v", f.recorder.records)
	}
}

func TestUpdateStage_FreeTextAccepted(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	rec := doJSON(f.handler.UpdateStage, http.MethodPatch, "/api/leads/1/stage", `{"stage":"Negotiating hard"}`, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := f.store.leads[1].Stage; got != "Negotiating hard" {
		t.Errorf("stage = %q", got)
	}
	want := "User updated lead Acme stage from Qualifying to Negotiating hard"
	if len(f.recorder.records) != 1 || f.recorder.records[0].Details != want {
		t.Errorf("audit = %+v, want %q", f.recorder.records, want)
	}
}

func TestCompleteLead_SnoozesSevenDaysFromNow(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	before := time.Now()
	rec := doJSON(f.handler.CompleteLead, http.MethodPost, "/api/leads/1/complete", "", 1)
	after := time.Now()

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	l := f.store.leads[1]
	if !l.Done() {
		t.Error("lead not marked done")
	}
	lo := before.Add(7 * 24 * time.Hour)
	hi := after.Add(7 * 24 * time.Hour)
	if l.ActionDate.Before(lo) || l.ActionDate.After(hi) {
		t.Errorf("action date %v not now+7d (prior date was %v)", l.ActionDate, seedLead(1, 1).ActionDate)
	}
	want := "User completed lead Acme"
	if len(f.recorder.records) != 1 || f.recorder.records[0].Details != want {
		t.Errorf("audit = %+v, want %q", f.recorder.records, want)
	}
}

func TestRescheduleLead_PastDateReopensTask(t *testing.T) {
	lead := seedLead(1, 1)
	status := models.TaskStatusDone
	lead.TaskStatus = &status
	f := newFixture(t, lead)

	rec := doJSON(f.handler.RescheduleLead, http.MethodPatch, "/api/leads/1/reschedule", `{"action_date":"2020-01-01"}`, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	l := f.store.leads[1]
	if l.TaskStatus != nil {
		t.Errorf("task_status = %q, want cleared", *l.TaskStatus)
	}
	if l.ActionDate.Format("2006-01-02") != "2020-01-01" {
		t.Errorf("action date = %v", l.ActionDate)
	}
	want := "User rescheduled lead: Acme from 2026-03-01 to 2020-01-01"
	if len(f.recorder.records) != 1 || f.recorder.records[0].Details != want {
		t.Errorf("audit = %+v, want %q", f.recorder.records, want)
	}
}

func TestRescheduleLead_FutureDateKeepsStatus(t *testing.T) {
	lead := seedLead(1, 1)
	status := models.TaskStatusDone
	lead.TaskStatus = &status
	f := newFixture(t, lead)

	futureDate := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	rec := doJSON(f.handler.RescheduleLead, http.MethodPatch, "/api/leads/1/reschedule", `{"action_date":"`+futureDate+`"}`, 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	l := f.store.leads[1]
	if l.TaskStatus == nil || *l.TaskStatus != models.TaskStatusDone {
		t.Error("future reschedule cleared task_status")
	}
}

func TestRescheduleLead_DayBoundary(t *testing.T) {
	now := time.Now().UTC()
	todayStr := now.Format("2006-01-02")
	tomorrowStr := now.AddDate(0, 0, 1).Format("2006-01-02")

	// Today's own date counts as due, regardless of the time of day.
	lead := seedLead(1, 1)
	status := models.TaskStatusDone
	lead.TaskStatus = &status
	f := newFixture(t, lead)
	doJSON(f.handler.RescheduleLead, http.MethodPatch, "/api/leads/1/reschedule", `{"action_date":"`+todayStr+`"}`, 1)
	if f.store.leads[1].TaskStatus != nil {
		t.Errorf("reschedule to %s kept task_status, want cleared", todayStr)
	}

	// Tomorrow does not, even while the clock is still short of midnight.
	lead = seedLead(1, 1)
	status = models.TaskStatusDone
	lead.TaskStatus = &status
	f = newFixture(t, lead)
	doJSON(f.handler.RescheduleLead, http.MethodPatch, "/api/leads/1/reschedule", `{"action_date":"`+tomorrowStr+`"}`, 1)
	if l := f.store.leads[1]; l.TaskStatus == nil || *l.TaskStatus != models.TaskStatusDone {
		t.Errorf("reschedule to %s cleared task_status", tomorrowStr)
	}
}

func TestRescheduleLead_BadDate(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	rec := doJSON(f.handler.RescheduleLead, http.MethodPatch, "/api/leads/1/reschedule", `{"action_date":"March 1st"}`, 1)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDeleteLead_RemovesAndAudits(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	rec := doJSON(f.handler.DeleteLead, http.MethodDelete, "/api/leads/1/delete", "", 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(f.store.leads) != 0 {
		t.Error("lead still present after delete")
	}
	want := "User deleted lead: Acme"
	if len(f.recorder.records) != 1 || f.recorder.records[0].Details != want {
		t.Errorf("audit = %+v, want %q", f.recorder.records, want)
	}
}

func TestDeleteLead_NotOwned404(t *testing.T) {
	f := newFixture(t, seedLead(1, 99))

	rec := doJSON(f.handler.DeleteLead, http.MethodDelete, "/api/leads/1/delete", "", 1)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if _, ok := f.store.leads[1]; !ok {
		t.Error("someone else's lead was deleted")
	}
}

func TestGetMetrics_ResponseShape(t *testing.T) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	yesterday := seedLead(1, 1)
	yesterday.Stage = ""
	yesterday.ActionDate = today.AddDate(0, 0, -1)
	dueToday := seedLead(2, 1)
	dueToday.ActionDate = today
	future := seedLead(3, 1)
	future.ActionDate = today.AddDate(0, 0, 14)
	won := seedLead(4, 1)
	won.Stage = models.StageWon
	won.ActionDate = today
	f := newFixture(t, yesterday, dueToday, future, won)

	rec := doJSON(f.handler.GetMetrics, http.MethodGet, "/api/leads/metrics", "", 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for key, want := range map[string]float64{"overdue": 2, "due_today": 1, "open": 3} {
		if got, ok := resp[key].(float64); !ok || got != want {
			t.Errorf("%s = %v, want %v", key, resp[key], want)
		}
	}
	if ok, _ := resp["ok"].(bool); !ok {
		t.Errorf("ok = %v", resp["ok"])
	}
}

func TestGetMetrics_CountsLeadsWithoutStage(t *testing.T) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// A freshly created lead has no stage at all. It must still show up
	// in every count.
	unstaged := seedLead(1, 1)
	unstaged.Stage = ""
	unstaged.ActionDate = today
	f := newFixture(t, unstaged)

	rec := doJSON(f.handler.GetMetrics, http.MethodGet, "/api/leads/metrics", "", 1)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"overdue", "due_today", "open"} {
		if got, _ := resp[key].(float64); got != 1 {
			t.Errorf("%s = %v, want 1", key, resp[key])
		}
	}
}

func TestMutations_RejectNonNumericLeadID(t *testing.T) {
	f := newFixture(t, seedLead(1, 1))

	rec := doJSON(f.handler.UpdateTask, http.MethodPatch, "/api/leads/abc/task", `{"task":"Email"}`, 1)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(f.recorder.records) != 0 {
		t.Errorf("audit records = %d, want 0", len(f.recorder.records))
	}
}
