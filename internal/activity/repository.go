package activity

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leadtrail/backend/internal/models"
	"github.com/leadtrail/backend/pkg/mongodb"
)

// Repository stores activity records in a Mongo collection. Records are
// append-only; there is no update or delete path.
type Repository struct {
	collection *mongo.Collection
}

func NewRepository(client *mongodb.Client, collection string) *Repository {
	return &Repository{collection: client.Collection(collection)}
}

// Insert appends one record.
func (r *Repository) Insert(ctx context.Context, rec models.ActivityRecord) error {
	if _, err := r.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("error inserting activity record: %w", err)
	}
	return nil
}

// ListByAccount returns every record for the account in insertion order.
// The log is an intentional dump: no pagination, no date filter.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]models.ActivityRecord, error) {
	filter := bson.M{"account_id": accountID}
	opts := options.Find().SetProjection(bson.M{"_id": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing activity records: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.ActivityRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("error decoding activity records: %w", err)
	}
	return records, nil
}
