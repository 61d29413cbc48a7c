package reservationRepo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the necessary indexes on the reservations collection.
func (repo *MongoReservationRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		// Conflict lookups: service + status + interval.
		{
			Keys: bson.D{
				{Key: "serviceId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "checkIn", Value: 1},
				{Key: "checkOut", Value: 1},
			},
			Options: options.Index().SetName("service_status_interval_idx"),
		},
		{
			Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("customer_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "pendingOperation.claimedAt", Value: 1}},
			Options: options.Index().SetSparse(true).SetName("claimed_at_idx"),
		},
	}

	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create reservation indexes: %w", err)
	}
	return nil
}
