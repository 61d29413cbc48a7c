package booking

import (
	"context"
	"time"

	catalogRepo "staybook/database/repository/catalog"
	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ReservationService is the reservation and payment core.
type ReservationService interface {
	CheckAvailability(ctx context.Context, serviceID string, checkIn, checkOut time.Time) (bool, error)
	IsAvailable(ctx context.Context, serviceID string, checkIn, checkOut time.Time, excludeID string) (bool, error)

	Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, error)
	Decide(ctx context.Context, id string, decision models.ReservationStatus) (*models.Reservation, error)
	RequestCancellation(ctx context.Context, id, userID, reason string) (*models.Reservation, error)
	Refund(ctx context.Context, id string, refundType models.RefundType, customAmount *int64) (*models.Reservation, error)
	Complete(ctx context.Context, id string) (*models.Reservation, error)

	RequestExtension(ctx context.Context, id, userID string, newCheckOut time.Time) (*models.Reservation, error)
	ResolveExtension(ctx context.Context, id string, action models.ExtensionStatus, paymentMethodRef string) (*models.Reservation, error)

	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	ListReservations(ctx context.Context, viewer models.Viewer, filter models.ReservationFilter, page models.Page) (*models.ReservationPage, error)
	Upcoming(ctx context.Context, viewer models.Viewer, page models.Page) (*models.ReservationPage, error)
	VendorStats(ctx context.Context, vendorID string) (*models.VendorStats, error)

	Reconcile(ctx context.Context, p models.ReconcilePayload) error
	SweepClaims(ctx context.Context) (int, error)
	CompleteStays(ctx context.Context) (int, error)
}

// Reconciler schedules follow-up work for gateway effects that did not commit.
type Reconciler interface {
	ScheduleReconcile(ctx context.Context, p models.ReconcilePayload) error
}

// EventPublisher announces lifecycle transitions to other systems.
type EventPublisher interface {
	Publish(ctx context.Context, evt models.ReservationEvent) error
}

// DefaultReservationService implements ReservationService. Tasks, Events and
// Cache are optional.
type DefaultReservationService struct {
	Repo     reservationRepo.ReservationRepository
	Payments *PaymentOrchestrator
	Catalog  catalogRepo.ServiceCatalog
	Tasks    Reconciler
	Events   EventPublisher
	Cache    *redis.Client
	Logger   *zap.Logger

	Now      func() time.Time
	NewID    func() string
	ClaimTTL time.Duration
	StatsTTL time.Duration
	Currency string
}

var _ ReservationService = (*DefaultReservationService)(nil)
