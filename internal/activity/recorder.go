// Package activity implements the audit trail as an outbox: mutating
// handlers enqueue one record inside their Postgres transaction, and a
// river worker flushes records to the Mongo activity collection. The
// relational write and the enqueue commit or roll back together; only the
// queue-to-Mongo hop is eventually consistent, and river retries it.
package activity

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"

	"github.com/leadtrail/backend/internal/models"
)

// AppendArgs is the river job payload for one activity record.
type AppendArgs struct {
	AccountID int64     `json:"account_id"`
	Timestamp time.Time `json:"timestamp"`
	Time      string    `json:"time"`
	Date      string    `json:"date"`
	Details   string    `json:"details"`
}

func (AppendArgs) Kind() string { return "activity_append" }

// Recorder enqueues activity records transactionally.
type Recorder struct {
	client *river.Client[pgx.Tx]
}

func NewRecorder(client *river.Client[pgx.Tx]) *Recorder {
	return &Recorder{client: client}
}

// Append enqueues the record in the caller's transaction. The record only
// becomes visible to the worker if the transaction commits.
func (r *Recorder) Append(ctx context.Context, tx pgx.Tx, rec models.ActivityRecord) error {
	_, err := r.client.InsertTx(ctx, tx, AppendArgs{
		AccountID: rec.AccountID,
		Timestamp: rec.Timestamp,
		Time:      rec.Time,
		Date:      rec.Date,
		Details:   rec.Details,
	}, nil)
	return err
}
