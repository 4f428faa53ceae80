package activity

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/leadtrail/backend/internal/models"
)

// Store is the contract the worker needs to persist a record.
type Store interface {
	Insert(ctx context.Context, rec models.ActivityRecord) error
}

// AppendWorker drains the outbox into the document store. Failures return
// an error so river retries the job; duplicate appends are harmless since
// the log is a denormalized dump, not a relation.
type AppendWorker struct {
	river.WorkerDefaults[AppendArgs]
	store Store
}

func NewAppendWorker(store Store) *AppendWorker {
	return &AppendWorker{store: store}
}

func (w *AppendWorker) Work(ctx context.Context, job *river.Job[AppendArgs]) error {
	args := job.Args
	rec := models.ActivityRecord{
		AccountID: args.AccountID,
		Timestamp: args.Timestamp,
		Time:      args.Time,
		Date:      args.Date,
		Details:   args.Details,
	}
	if err := w.store.Insert(ctx, rec); err != nil {
		return fmt.Errorf("append activity record: %w", err)
	}
	return nil
}
