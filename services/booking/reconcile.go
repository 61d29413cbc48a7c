package booking

import (
	"context"
	"errors"
	"fmt"

	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"

	"go.uber.org/zap"
)

// Reconcile settles a gateway effect whose domain commit did not land.
// Returning an error makes the task queue retry it.
func (s *DefaultReservationService) Reconcile(ctx context.Context, p models.ReconcilePayload) error {
	logger := s.logger().With(zap.String("reservationId", p.ReservationID), zap.String("op", p.Op))

	switch p.Op {
	case OpAuthorize:
		// The hold exists; the reservation may not.
		_, err := s.Repo.GetByID(ctx, p.ReservationID)
		if err == nil {
			logger.Info("reservation was stored after all, keeping hold")
			return nil
		}
		if !errors.Is(err, reservationRepo.ErrNotFound) {
			return fmt.Errorf("reconcile lookup failed: %w", err)
		}
		logger.Info("voiding hold of unsaved reservation", zap.String("intentRef", p.PaymentIntentRef))
		return s.Payments.Void(ctx, p.PaymentIntentRef, CompensationKey(p.ReservationID, p.PaymentIntentRef))

	case OpCompensate:
		if p.Amount > 0 {
			_, err := s.Payments.Refund(ctx, p.PaymentIntentRef, p.Amount, CompensationKey(p.ReservationID, p.PaymentIntentRef))
			return err
		}
		return s.Payments.Void(ctx, p.PaymentIntentRef, CompensationKey(p.ReservationID, p.PaymentIntentRef))
	}

	r, err := s.Repo.GetByID(ctx, p.ReservationID)
	if errors.Is(err, reservationRepo.ErrNotFound) {
		logger.Warn("reservation vanished before reconciliation")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reconcile lookup failed: %w", err)
	}
	if r.PendingOperation == nil || r.PendingOperation.Op != p.Op {
		logger.Info("operation already settled")
		return nil
	}
	_, err = s.resume(ctx, r, true)
	return err
}

// SweepClaims resumes operations whose claim outlived the claim TTL. The
// repeated gateway calls reuse the original idempotency keys.
func (s *DefaultReservationService) SweepClaims(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.claimTTL())
	stale, err := s.Repo.Find(ctx, reservationRepo.NewQuery().ClaimedBefore(cutoff))
	if err != nil {
		return 0, NewStorageError("failed to list stale claims", err)
	}

	resumed := 0
	for i := range stale {
		r := &stale[i]
		if _, err := s.resume(ctx, r, false); err != nil {
			s.logger().Warn("could not resume abandoned operation",
				zap.String("reservationId", r.ID), zap.String("op", r.PendingOperation.Op), zap.Error(err))
			continue
		}
		resumed++
	}
	if len(stale) > 0 {
		s.logger().Info("claim sweep finished", zap.Int("stale", len(stale)), zap.Int("resumed", resumed))
	}
	return resumed, nil
}

// CompleteStays moves booked reservations whose checkout has passed to completed.
func (s *DefaultReservationService) CompleteStays(ctx context.Context) (int, error) {
	due, err := s.Repo.Find(ctx, reservationRepo.NewQuery().
		Statuses(models.StatusBooked).
		CheckOutBy(s.now()))
	if err != nil {
		return 0, NewStorageError("failed to list finished stays", err)
	}

	completed := 0
	for _, r := range due {
		if _, err := s.Complete(ctx, r.ID); err != nil {
			s.logger().Debug("stay not completed", zap.String("reservationId", r.ID), zap.Error(err))
			continue
		}
		completed++
	}
	return completed, nil
}

// resume repeats the claimed operation of r. takeover lets it proceed
// while the claim is still fresh.
func (s *DefaultReservationService) resume(ctx context.Context, r *models.Reservation, takeover bool) (*models.Reservation, error) {
	c := *r.PendingOperation
	var (
		st  step
		err error
	)
	switch c.Op {
	case OpCapture:
		st, err = s.decideStep(models.StatusBooked)
	case OpVoid:
		st, err = s.decideStep(models.StatusRejected)
	case OpRefund:
		st = s.refundStep(c.RefundType, c.Amount)
	case OpExtension:
		st = s.extensionStep(c.PaymentMethodRef)
	default:
		err = fmt.Errorf("unknown operation %q on reservation %s", c.Op, r.ID)
	}
	if err != nil {
		return nil, err
	}
	return s.runClaim(ctx, r.ID, st, c, takeover)
}
