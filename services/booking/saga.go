package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"
	"staybook/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operations that move money. The name is stored on the claim and is part
// of the idempotency key.
const (
	OpAuthorize  = "authorize"
	OpCapture    = "capture"
	OpVoid       = "void"
	OpRefund     = "refund"
	OpExtension  = "extension"
	OpCompensate = "compensate"
)

const defaultClaimTTL = 2 * time.Minute

var errClaimLost = errors.New("operation claim no longer held")

// outcome is what a gateway effect hands to its commit.
type outcome struct {
	intentRef  string
	refundRefs []string
	amount     int64
	at         time.Time
	// spent marks a failed effect whose idempotency keys cannot be reused.
	spent bool
}

// step is one claim, effect, commit unit of a reservation transition.
type step struct {
	op string
	// pre is the state the reservation must be in to claim the step.
	pre func(r *models.Reservation) error
	// effect performs the gateway calls and must be safe to repeat.
	effect func(ctx context.Context, r *models.Reservation) (outcome, error)
	commit func(r *models.Reservation, out outcome)
	// checkSlot routes the commit through the availability-checked update.
	checkSlot bool
	// compensate undoes effect when checkSlot refuses the commit; abandon
	// then records the give-up on the reservation.
	compensate func(ctx context.Context, r *models.Reservation, out outcome) error
	abandon    func(r *models.Reservation)
	// retry prepares a fresh attempt after an effect failed with spent keys.
	retry func(r *models.Reservation)
	event string
}

// run claims the reservation for st, performs its effect and commits it.
func (s *DefaultReservationService) run(ctx context.Context, id string, st step, c models.OperationClaim) (*models.Reservation, error) {
	return s.runClaim(ctx, id, st, c, false)
}

// runClaim is run for a caller that may also take over a live claim of the
// same operation, as reconciliation does after a failed commit.
func (s *DefaultReservationService) runClaim(ctx context.Context, id string, st step, c models.OperationClaim, takeover bool) (*models.Reservation, error) {
	c.Op = st.op
	r, err := s.claim(ctx, id, st.pre, c, takeover)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, r, st)
}

func (s *DefaultReservationService) claim(ctx context.Context, id string, pre func(*models.Reservation) error, c models.OperationClaim, takeover bool) (*models.Reservation, error) {
	now := s.now()
	r, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if err := pre(r); err != nil {
			return err
		}
		// A claim may only be taken over by the same operation, which repeats
		// the gateway call under the same idempotency key. Callers other than
		// reconciliation wait for it to expire.
		if p := r.PendingOperation; p != nil && (p.Op != c.Op || (!takeover && !p.Expired(now, s.claimTTL()))) {
			return NewConflictError(fmt.Sprintf("reservation has a %s in progress", p.Op))
		}
		c.ClaimedAt = now
		r.PendingOperation = &c
		return nil
	})
	if err != nil {
		return nil, storageErr(err, id)
	}
	return r, nil
}

func (s *DefaultReservationService) execute(ctx context.Context, r *models.Reservation, st step) (*models.Reservation, error) {
	logger := s.logger().With(zap.String("reservationId", r.ID), zap.String("op", st.op))

	out, err := st.effect(ctx, r)
	if err != nil {
		var also func(*models.Reservation)
		if out.spent {
			also = st.retry
		}
		s.release(ctx, r.ID, st.op, also)
		logger.Warn("gateway effect failed, claim released", zap.Error(err))
		return nil, err
	}

	mutate := func(cur *models.Reservation) error {
		if cur.PendingOperation == nil || cur.PendingOperation.Op != st.op {
			return errClaimLost
		}
		st.commit(cur, out)
		cur.PendingOperation = nil
		return nil
	}
	var updated *models.Reservation
	if st.checkSlot {
		updated, err = s.Repo.UpdateIfAvailable(ctx, r.ID, mutate)
	} else {
		updated, err = s.Repo.Update(ctx, r.ID, mutate)
	}

	switch {
	case err == nil:
		logger.Info("reservation transition committed", zap.String("status", string(updated.Status)))
		if st.event != "" {
			s.publish(ctx, st.event, updated)
		}
		return updated, nil

	case errors.Is(err, errClaimLost):
		// A resumed copy of this step committed first.
		logger.Info("operation already settled by another worker")
		return s.GetReservation(ctx, r.ID)

	case errors.Is(err, reservationRepo.ErrSlotTaken) && st.compensate != nil:
		if cerr := st.compensate(ctx, r, out); cerr != nil {
			logger.Error("compensation failed, scheduling reconciliation", zap.Error(cerr))
			s.scheduleReconcile(ctx, models.ReconcilePayload{
				ReservationID:    r.ID,
				Op:               OpCompensate,
				PaymentIntentRef: out.intentRef,
				Amount:           out.amount,
				Reason:           "commit refused, interval taken",
			})
		}
		s.release(ctx, r.ID, st.op, st.abandon)
		return nil, NewConflictError("the requested dates are no longer available")

	default:
		logger.Error("commit failed after gateway success", zap.Error(err))
		s.scheduleReconcile(ctx, models.ReconcilePayload{
			ReservationID:    r.ID,
			Op:               st.op,
			PaymentIntentRef: out.intentRef,
			Amount:           out.amount,
			Reason:           err.Error(),
		})
		return nil, NewStorageError("payment went through but the reservation could not be updated; reconciliation scheduled", err)
	}
}

// release drops a claim after a failed effect so the operation can be retried.
func (s *DefaultReservationService) release(ctx context.Context, id, op string, also func(*models.Reservation)) {
	_, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if r.PendingOperation == nil || r.PendingOperation.Op != op {
			return errClaimLost
		}
		r.PendingOperation = nil
		if also != nil {
			also(r)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errClaimLost) {
		s.logger().Warn("failed to release operation claim; it will expire",
			zap.String("reservationId", id), zap.String("op", op), zap.Error(err))
	}
}

func (s *DefaultReservationService) scheduleReconcile(ctx context.Context, p models.ReconcilePayload) {
	if s.Tasks == nil {
		s.logger().Error("no reconciler configured, payment left unreconciled",
			zap.String("reservationId", p.ReservationID), zap.String("op", p.Op))
		return
	}
	if err := s.Tasks.ScheduleReconcile(context.WithoutCancel(ctx), p); err != nil {
		s.logger().Error("failed to schedule reconciliation",
			zap.String("reservationId", p.ReservationID), zap.String("op", p.Op), zap.Error(err))
	}
}

func (s *DefaultReservationService) publish(ctx context.Context, eventType string, r *models.Reservation) {
	if s.Events == nil {
		return
	}
	evt := models.ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		CustomerID:    r.CustomerID,
		ServiceID:     r.ServiceID,
		Status:        r.Status,
		Amount:        r.TotalAmount,
		Currency:      r.Currency,
		OccurredAt:    s.now().UTC().Format(time.RFC3339),
	}
	if err := s.Events.Publish(ctx, evt); err != nil {
		s.logger().Warn("failed to publish reservation event", zap.String("type", eventType), zap.String("reservationId", r.ID), zap.Error(err))
	}
}

func (s *DefaultReservationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *DefaultReservationService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.New().String()
}

func (s *DefaultReservationService) claimTTL() time.Duration {
	if s.ClaimTTL > 0 {
		return s.ClaimTTL
	}
	return defaultClaimTTL
}

func (s *DefaultReservationService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return utils.GetLogger()
}
