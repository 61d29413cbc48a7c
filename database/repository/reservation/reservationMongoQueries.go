package reservationRepo

import (
	"context"
	"fmt"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Find returns every reservation matching q.
func (repo *MongoReservationRepo) Find(ctx context.Context, q *Query) ([]models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := repo.coll.Find(ctx, q.BSON())
	if err != nil {
		return nil, fmt.Errorf("error finding reservations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Reservation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("error decoding reservations: %w", err)
	}
	return out, nil
}

func (repo *MongoReservationRepo) Count(ctx context.Context, q *Query) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := repo.coll.CountDocuments(ctx, q.BSON())
	if err != nil {
		return 0, fmt.Errorf("error counting reservations: %w", err)
	}
	return n, nil
}

// List returns one page of matches, newest first, and the total match count.
func (repo *MongoReservationRepo) List(ctx context.Context, q *Query, page models.Page) ([]models.Reservation, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	page = page.Normalize()
	filter := q.BSON()

	total, err := repo.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting reservations: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Size))
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing reservations: %w", err)
	}
	defer cursor.Close(ctx)

	items := make([]models.Reservation, 0, page.Size)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("error decoding reservations: %w", err)
	}
	return items, total, nil
}

// StatusBuckets groups matches by status with count, amount and refunded sums.
// Cancellations that only released a hold add nothing to the amount.
func (repo *MongoReservationRepo) StatusBuckets(ctx context.Context, q *Query) ([]StatusBucket, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	releasedHold := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{"$status", models.StatusCanceled}},
		bson.M{"$lte": bson.A{bson.M{"$ifNull": bson.A{"$refundAmount", 0}}, 0}},
	}}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: q.BSON()}},
		{{Key: "$group", Value: bson.M{
			"_id":      "$status",
			"count":    bson.M{"$sum": 1},
			"amount":   bson.M{"$sum": bson.M{"$cond": bson.A{releasedHold, 0, "$totalAmount"}}},
			"refunded": bson.M{"$sum": "$refundAmount"},
		}}},
	}
	cursor, err := repo.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregation error: %w", err)
	}
	defer cursor.Close(ctx)

	var buckets []StatusBucket
	if err := cursor.All(ctx, &buckets); err != nil {
		return nil, fmt.Errorf("error decoding aggregation result: %w", err)
	}
	return buckets, nil
}
