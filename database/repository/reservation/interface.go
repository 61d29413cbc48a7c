package reservationRepo

import (
	"context"
	"errors"

	"staybook/models"
)

var (
	ErrNotFound        = errors.New("reservation not found")
	ErrSlotTaken       = errors.New("interval overlaps an existing reservation")
	ErrVersionConflict = errors.New("reservation was modified concurrently")
)

// Mutator edits a reservation in place. Returning an error aborts the write
// and the error is passed back to the caller unchanged.
type Mutator func(r *models.Reservation) error

// StatusBucket is one row of the per-status aggregation.
type StatusBucket struct {
	Status   models.ReservationStatus `bson:"_id"`
	Count    int64                    `bson:"count"`
	Amount   int64                    `bson:"amount"`
	Refunded int64                    `bson:"refunded"`
}

type ReservationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	Find(ctx context.Context, q *Query) ([]models.Reservation, error)
	Count(ctx context.Context, q *Query) (int64, error)
	List(ctx context.Context, q *Query, page models.Page) ([]models.Reservation, int64, error)
	StatusBuckets(ctx context.Context, q *Query) ([]StatusBucket, error)

	// InsertIfAvailable persists r unless a holding reservation on the same
	// service overlaps it; the check and the insert are atomic.
	InsertIfAvailable(ctx context.Context, r *models.Reservation) error

	// Update applies fn to the current document and writes it back only if
	// nobody else wrote in between.
	Update(ctx context.Context, id string, fn Mutator) (*models.Reservation, error)

	// UpdateIfAvailable is Update plus an atomic re-check that the mutated
	// interval still does not overlap another holding reservation.
	UpdateIfAvailable(ctx context.Context, id string, fn Mutator) (*models.Reservation, error)
}
