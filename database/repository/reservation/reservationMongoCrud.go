package reservationRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetByID retrieves a non-deleted reservation by its ID.
func (repo *MongoReservationRepo) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var r models.Reservation
	err := repo.coll.FindOne(ctx, bson.M{"id": id, "isDeleted": bson.M{"$ne": true}}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching reservation %s: %w", id, err)
	}
	return &r, nil
}

// InsertIfAvailable inserts r inside a transaction that first touches the
// service's lock document. Two transactions for the same service therefore
// write-conflict, and the retried loser sees the winner's row.
func (repo *MongoReservationRepo) InsertIfAvailable(ctx context.Context, r *models.Reservation) error {
	sess, err := repo.client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := repo.lockService(sc, r.ServiceID); err != nil {
			return nil, err
		}
		n, err := repo.coll.CountDocuments(sc, ConflictQuery(r.ServiceID, r.CheckIn, r.CheckOut, r.ID).BSON())
		if err != nil {
			return nil, fmt.Errorf("conflict check failed: %w", err)
		}
		if n > 0 {
			return nil, ErrSlotTaken
		}
		if _, err := repo.coll.InsertOne(sc, r); err != nil {
			return nil, fmt.Errorf("insert reservation failed: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return ErrSlotTaken
		}
		return fmt.Errorf("reservation insert transaction failed: %w", err)
	}
	return nil
}

// Update is an optimistic read-modify-write keyed on the version field.
func (repo *MongoReservationRepo) Update(ctx context.Context, id string, fn Mutator) (*models.Reservation, error) {
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		current, err := repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		next, err := apply(*current, fn)
		if err != nil {
			return nil, err
		}
		ok, err := repo.replace(ctx, current.Version, next)
		if err != nil {
			return nil, err
		}
		if ok {
			return next, nil
		}
	}
	return nil, ErrVersionConflict
}

// UpdateIfAvailable runs Update inside the service-lock transaction and
// refuses the write if the new interval collides with another reservation.
func (repo *MongoReservationRepo) UpdateIfAvailable(ctx context.Context, id string, fn Mutator) (*models.Reservation, error) {
	sess, err := repo.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	out, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		var current models.Reservation
		err := repo.coll.FindOne(sc, bson.M{"id": id, "isDeleted": bson.M{"$ne": true}}).Decode(&current)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("error fetching reservation %s: %w", id, err)
		}
		next, err := apply(current, fn)
		if err != nil {
			return nil, err
		}
		if next.Status.HoldsSlot() {
			if err := repo.lockService(sc, next.ServiceID); err != nil {
				return nil, err
			}
			n, err := repo.coll.CountDocuments(sc, ConflictQuery(next.ServiceID, next.CheckIn, next.CheckOut, next.ID).BSON())
			if err != nil {
				return nil, fmt.Errorf("conflict check failed: %w", err)
			}
			if n > 0 {
				return nil, ErrSlotTaken
			}
		}
		ok, err := repo.replace(sc, current.Version, next)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrVersionConflict
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Reservation), nil
}

func (repo *MongoReservationRepo) replace(ctx context.Context, expectedVersion int64, next *models.Reservation) (bool, error) {
	filter := bson.M{"id": next.ID, "version": expectedVersion}
	res, err := repo.coll.ReplaceOne(ctx, filter, next)
	if err != nil {
		return false, fmt.Errorf("error updating reservation %s: %w", next.ID, err)
	}
	return res.MatchedCount == 1, nil
}

func (repo *MongoReservationRepo) lockService(ctx context.Context, serviceID string) error {
	_, err := repo.locks.UpdateOne(ctx,
		bson.M{"_id": serviceID},
		bson.M{"$inc": bson.M{"version": 1}, "$set": bson.M{"lockedAt": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to lock service %s: %w", serviceID, err)
	}
	return nil
}

// apply runs fn on a copy and stamps the version bump.
func apply(current models.Reservation, fn Mutator) (*models.Reservation, error) {
	next := current.Clone()
	if err := fn(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.Version = current.Version + 1
	next.UpdatedAt = time.Now()
	return &next, nil
}
