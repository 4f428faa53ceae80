package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadtrail/backend/internal/models"
)

// LeadRepo is the Postgres lead store. Mutating methods run inside the
// caller's transaction and report rows affected: zero rows means the lead
// does not exist or belongs to someone else, and callers must not be able
// to tell which.
type LeadRepo struct {
	pool *pgxpool.Pool
}

func NewLeadRepo(pool *pgxpool.Pool) *LeadRepo {
	return &LeadRepo{pool: pool}
}

func (r *LeadRepo) Create(ctx context.Context, tx pgx.Tx, l *models.Lead) error {
	return tx.QueryRow(ctx, `
		INSERT INTO leads (account_id, im, company_name, agent_name, email, task, action_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, l.AccountID, l.IM, l.CompanyName, l.AgentName, l.Email, l.Task, l.ActionDate).Scan(&l.ID)
}

// GetByID returns the lead scoped to its owner, or nil if absent. Used for
// before-value reads inside mutation transactions.
func (r *LeadRepo) GetByID(ctx context.Context, tx pgx.Tx, id, accountID int64) (*models.Lead, error) {
	var l models.Lead
	err := tx.QueryRow(ctx, `
		SELECT id, account_id, im, company_name, agent_name, email, task, COALESCE(stage, ''), action_date, task_status
		FROM leads WHERE id = $1 AND account_id = $2
	`, id, accountID).Scan(&l.ID, &l.AccountID, &l.IM, &l.CompanyName, &l.AgentName, &l.Email, &l.Task, &l.Stage, &l.ActionDate, &l.TaskStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// ListByAccount returns the caller's leads, newest id first. When
// includeDone is false, leads whose task is done are filtered out; a NULL
// task_status counts as open.
func (r *LeadRepo) ListByAccount(ctx context.Context, accountID int64, includeDone bool) ([]models.Lead, error) {
	query := `
		SELECT id, account_id, im, company_name, agent_name, email, task, COALESCE(stage, ''), action_date, task_status
		FROM leads
		WHERE account_id = $1
		ORDER BY id DESC
	`
	if !includeDone {
		query = `
		SELECT id, account_id, im, company_name, agent_name, email, task, COALESCE(stage, ''), action_date, task_status
		FROM leads
		WHERE account_id = $1
		AND COALESCE(task_status, 'open') <> 'done'
		ORDER BY id DESC
	`
	}
	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		var l models.Lead
		if err := rows.Scan(&l.ID, &l.AccountID, &l.IM, &l.CompanyName, &l.AgentName, &l.Email, &l.Task, &l.Stage, &l.ActionDate, &l.TaskStatus); err != nil {
			return nil, err
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// UpdateTask sets the free-text task, scoped to (id, owner).
func (r *LeadRepo) UpdateTask(ctx context.Context, tx pgx.Tx, id, accountID int64, task string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET task = $3 WHERE id = $1 AND account_id = $2
	`, id, accountID, task)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UpdateStage sets the pipeline stage, scoped to (id, owner). Any string is
// accepted; Won/Lost are only special-cased when querying.
func (r *LeadRepo) UpdateStage(ctx context.Context, tx pgx.Tx, id, accountID int64, stage string) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET stage = $3 WHERE id = $1 AND account_id = $2
	`, id, accountID, stage)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Complete marks the task done and snoozes the follow-up to actionDate
// (completion time + 7 days, computed by the caller).
func (r *LeadRepo) Complete(ctx context.Context, tx pgx.Tx, id, accountID int64, actionDate time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE leads SET task_status = 'done', action_date = $3
		WHERE id = $1 AND account_id = $2
	`, id, accountID, actionDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Reschedule moves the follow-up date. When clearStatus is set the task
// also reopens (task_status back to NULL).
func (r *LeadRepo) Reschedule(ctx context.Context, tx pgx.Tx, id, accountID int64, actionDate time.Time, clearStatus bool) (int64, error) {
	query := `UPDATE leads SET action_date = $3 WHERE id = $1 AND account_id = $2`
	if clearStatus {
		query = `UPDATE leads SET action_date = $3, task_status = NULL WHERE id = $1 AND account_id = $2`
	}
	tag, err := tx.Exec(ctx, query, id, accountID, actionDate)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Delete hard-deletes the lead, scoped to (id, owner).
func (r *LeadRepo) Delete(ctx context.Context, tx pgx.Tx, id, accountID int64) (int64, error) {
	tag, err := tx.Exec(ctx, `
		DELETE FROM leads WHERE id = $1 AND account_id = $2
	`, id, accountID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LeadMetrics holds the dashboard counts. All three exclude leads whose
// stage is Lost or Won; a NULL stage is neither and stays counted.
type LeadMetrics struct {
	Overdue  int
	DueToday int
	Open     int
}

// Metrics computes the three counts as independent aggregate queries, each
// scoped to the account.
func (r *LeadRepo) Metrics(ctx context.Context, accountID int64) (*LeadMetrics, error) {
	var m LeadMetrics
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE account_id = $1
		AND COALESCE(stage, '') NOT IN ('Lost', 'Won')
		AND action_date <= CURRENT_DATE
	`, accountID).Scan(&m.Overdue)
	if err != nil {
		return nil, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE account_id = $1
		AND COALESCE(stage, '') NOT IN ('Lost', 'Won')
		AND action_date = CURRENT_DATE
	`, accountID).Scan(&m.DueToday)
	if err != nil {
		return nil, err
	}
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE account_id = $1
		AND COALESCE(stage, '') NOT IN ('Lost', 'Won')
	`, accountID).Scan(&m.Open)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
