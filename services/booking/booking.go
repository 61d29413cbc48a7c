package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	catalogRepo "staybook/database/repository/catalog"
	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"

	"go.uber.org/zap"
)

const maxGuests = 20

// CreateReservationInput is a customer's request for a new reservation.
type CreateReservationInput struct {
	CustomerID         string    `json:"customerId"`
	ServiceID          string    `json:"serviceId" binding:"required"`
	CheckIn            time.Time `json:"checkIn" binding:"required"`
	CheckOut           time.Time `json:"checkOut" binding:"required"`
	Guests             int       `json:"guests"`
	TotalAmount        int64     `json:"totalAmount"`
	Currency           string    `json:"currency,omitempty"`
	CouponCode         string    `json:"couponCode,omitempty"`
	PaymentMethodRef   string    `json:"paymentMethodRef" binding:"required"`
	PaymentCustomerRef string    `json:"paymentCustomerRef,omitempty"`
}

func (in CreateReservationInput) Validate() error {
	switch {
	case in.CustomerID == "":
		return NewValidationError("customerId is required")
	case in.ServiceID == "":
		return NewValidationError("serviceId is required")
	case in.PaymentMethodRef == "":
		return NewValidationError("paymentMethodRef is required")
	case !in.CheckOut.After(in.CheckIn):
		return NewValidationError("checkOut must be after checkIn")
	case in.Guests < 1 || in.Guests > maxGuests:
		return NewValidationError(fmt.Sprintf("guests must be between 1 and %d", maxGuests))
	case in.TotalAmount < 0:
		return NewValidationError("totalAmount must not be negative")
	}
	return nil
}

// Create authorizes payment for a free interval and persists a pending
// reservation. The insert re-checks availability atomically; a hold placed
// for a request that loses the race is voided.
func (s *DefaultReservationService) Create(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	logger := s.logger().With(zap.String("serviceId", in.ServiceID), zap.String("customerId", in.CustomerID))

	if s.Catalog != nil {
		if _, err := s.Catalog.VendorOf(ctx, in.ServiceID); err != nil {
			if errors.Is(err, catalogRepo.ErrServiceNotFound) {
				return nil, NewNotFoundError(fmt.Sprintf("service %s not found", in.ServiceID))
			}
			return nil, NewStorageError("service lookup failed", err)
		}
	}

	ok, err := s.IsAvailable(ctx, in.ServiceID, in.CheckIn, in.CheckOut, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewConflictError("the requested dates are not available")
	}

	amount, discount := in.TotalAmount, int64(0)
	var couponID string
	if code := strings.TrimSpace(in.CouponCode); code != "" {
		coupon, err := s.Payments.VerifyCoupon(ctx, code)
		if err != nil {
			return nil, err
		}
		if coupon == nil {
			return nil, NewValidationError(fmt.Sprintf("coupon %s does not exist", code))
		}
		if amount, discount, err = ApplyCoupon(in.TotalAmount, coupon); err != nil {
			return nil, err
		}
		couponID = coupon.ID
	}

	id := s.newID()
	currency := in.Currency
	if currency == "" {
		currency = s.Currency
	}
	if currency == "" {
		currency = "usd"
	}

	intentRef, err := s.Payments.Authorize(ctx, models.AuthorizeRequest{
		Amount:           amount,
		Currency:         currency,
		CustomerRef:      in.PaymentCustomerRef,
		PaymentMethodRef: in.PaymentMethodRef,
		Description:      fmt.Sprintf("Reservation %s", id),
		Metadata: map[string]string{
			"reservationId": id,
			"serviceId":     in.ServiceID,
			"customerId":    in.CustomerID,
		},
		IdempotencyKey: OperationKey(id, OpAuthorize),
	})
	if err != nil {
		logger.Warn("payment authorization failed, nothing persisted", zap.Error(err))
		return nil, err
	}

	now := s.now()
	r := &models.Reservation{
		ID:                 id,
		CustomerID:         in.CustomerID,
		ServiceID:          in.ServiceID,
		CheckIn:            in.CheckIn,
		CheckOut:           in.CheckOut,
		Guests:             in.Guests,
		TotalAmount:        amount,
		BaseAmount:         amount,
		DiscountAmount:     discount,
		CouponID:           couponID,
		Currency:           currency,
		PaymentIntentRef:   intentRef,
		PaymentMethodRef:   in.PaymentMethodRef,
		PaymentCustomerRef: in.PaymentCustomerRef,
		Status:             models.StatusPending,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.Repo.InsertIfAvailable(ctx, r); err != nil {
		if errors.Is(err, reservationRepo.ErrSlotTaken) {
			logger.Info("lost the race for the interval, voiding hold", zap.String("intentRef", intentRef))
			if verr := s.Payments.Void(ctx, intentRef, CompensationKey(id, intentRef)); verr != nil {
				s.scheduleReconcile(ctx, models.ReconcilePayload{
					ReservationID:    id,
					Op:               OpCompensate,
					PaymentIntentRef: intentRef,
					Reason:           "hold for a reservation that was never stored",
				})
			}
			return nil, NewConflictError("the requested dates are no longer available")
		}
		logger.Error("failed to persist authorized reservation", zap.String("intentRef", intentRef), zap.Error(err))
		s.scheduleReconcile(ctx, models.ReconcilePayload{
			ReservationID:    id,
			Op:               OpAuthorize,
			PaymentIntentRef: intentRef,
			Reason:           err.Error(),
		})
		return nil, NewStorageError("failed to save reservation", err)
	}

	logger.Info("reservation created", zap.String("reservationId", id), zap.Int64("amount", amount))
	s.publish(ctx, "reservation.created", r)
	return r, nil
}

// Decide moves a pending reservation to booked (capture) or rejected (void).
func (s *DefaultReservationService) Decide(ctx context.Context, id string, decision models.ReservationStatus) (*models.Reservation, error) {
	st, err := s.decideStep(decision)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, id, st, models.OperationClaim{})
}

func (s *DefaultReservationService) decideStep(decision models.ReservationStatus) (step, error) {
	pre := requireStatus(models.StatusPending)
	switch decision {
	case models.StatusBooked:
		return step{
			op:  OpCapture,
			pre: pre,
			effect: func(ctx context.Context, r *models.Reservation) (outcome, error) {
				receipt, err := s.Payments.Capture(ctx, r.PaymentIntentRef, OperationKey(r.ID, OpCapture))
				if err != nil {
					return outcome{}, err
				}
				return outcome{intentRef: r.PaymentIntentRef, amount: receipt.AmountCaptured}, nil
			},
			commit: func(r *models.Reservation, _ outcome) { r.Status = models.StatusBooked },
			event:  "reservation.booked",
		}, nil
	case models.StatusRejected:
		return step{
			op:  OpVoid,
			pre: pre,
			effect: func(ctx context.Context, r *models.Reservation) (outcome, error) {
				if err := s.Payments.Void(ctx, r.PaymentIntentRef, OperationKey(r.ID, OpVoid)); err != nil {
					return outcome{}, err
				}
				return outcome{intentRef: r.PaymentIntentRef}, nil
			},
			commit: func(r *models.Reservation, _ outcome) { r.Status = models.StatusRejected },
			event:  "reservation.rejected",
		}, nil
	}
	return step{}, NewValidationError(fmt.Sprintf("decision must be %q or %q", models.StatusBooked, models.StatusRejected))
}

// RequestCancellation records the customer's wish to cancel. It does not
// touch the gateway; the refund flow does.
func (s *DefaultReservationService) RequestCancellation(ctx context.Context, id, userID, reason string) (*models.Reservation, error) {
	now := s.now()
	r, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if r.CustomerID != userID {
			return NewAuthorizationError("only the reservation's customer can request a cancellation")
		}
		if !r.Status.HoldsSlot() {
			return NewConflictError(fmt.Sprintf("a %s reservation cannot be canceled", r.Status))
		}
		if r.CancelRequest {
			return NewConflictError("cancellation was already requested")
		}
		r.CancelRequest = true
		r.CancelRequestBy = userID
		r.CancelRequestDate = &now
		r.CancelReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, storageErr(err, id)
	}
	s.logger().Info("cancellation requested", zap.String("reservationId", id), zap.String("userId", userID))
	s.publish(ctx, "reservation.cancel_requested", r)
	return r, nil
}

// Refund returns funds for a reservation whose customer asked to cancel and
// marks it canceled. customAmount is only read for partial refunds.
func (s *DefaultReservationService) Refund(ctx context.Context, id string, refundType models.RefundType, customAmount *int64) (*models.Reservation, error) {
	var amount int64
	switch refundType {
	case models.RefundFull:
	case models.RefundPartial:
		if customAmount == nil || *customAmount <= 0 {
			return nil, NewValidationError("a partial refund needs a positive amount")
		}
		amount = *customAmount
	default:
		return nil, NewValidationError(fmt.Sprintf("refundType must be %q or %q", models.RefundFull, models.RefundPartial))
	}
	return s.run(ctx, id, s.refundStep(refundType, amount), models.OperationClaim{Amount: amount, RefundType: refundType})
}

func (s *DefaultReservationService) refundStep(refundType models.RefundType, custom int64) step {
	amountFor := func(r *models.Reservation) int64 {
		if refundType == models.RefundPartial {
			return custom
		}
		return r.TotalAmount
	}
	return step{
		op: OpRefund,
		pre: func(r *models.Reservation) error {
			if !r.CancelRequest {
				return NewConflictError("cancellation has not been requested")
			}
			if r.Refunded {
				return NewConflictError("reservation was already refunded")
			}
			if !r.Status.HoldsSlot() {
				return NewConflictError(fmt.Sprintf("a %s reservation cannot be refunded", r.Status))
			}
			if refundType == models.RefundPartial {
				if custom > r.TotalAmount {
					return NewValidationError("partial refund exceeds the reservation total")
				}
				if r.Status == models.StatusPending {
					return NewValidationError("nothing was captured yet; only a full refund can release the hold")
				}
			}
			if r.Status == models.StatusBooked {
				if captured := refundable(r); amountFor(r) > captured {
					return NewValidationError(fmt.Sprintf("refund of %d exceeds the %d captured", amountFor(r), captured))
				}
			}
			return nil
		},
		effect: func(ctx context.Context, r *models.Reservation) (outcome, error) {
			// Releasing a hold refunds nothing.
			out := outcome{intentRef: r.PaymentIntentRef}
			if r.Status == models.StatusPending {
				if err := s.Payments.Void(ctx, r.PaymentIntentRef, OperationKey(r.ID, OpVoid)); err != nil {
					return outcome{}, err
				}
				return out, nil
			}
			for _, part := range allocateRefund(r, amountFor(r)) {
				receipt, err := s.Payments.Refund(ctx, part.intentRef, part.amount, RefundKey(r.ID, part.intentRef))
				if err != nil {
					if len(out.refundRefs) > 0 {
						s.logger().Warn("refund stopped part way; a retry replays the issued parts",
							zap.String("reservationId", r.ID), zap.Strings("issued", out.refundRefs))
					}
					return outcome{}, err
				}
				out.refundRefs = append(out.refundRefs, receipt.RefundRef)
				out.amount += receipt.Amount
			}
			return out, nil
		},
		commit: func(r *models.Reservation, out outcome) {
			r.Refunded = true
			r.RefundAmount = out.amount
			r.RefundType = refundType
			r.RefundIDs = out.refundRefs
			if len(out.refundRefs) > 0 {
				r.RefundID = out.refundRefs[0]
			}
			r.Status = models.StatusCanceled
			closeExtension(r)
		},
		event: "reservation.canceled",
	}
}

type refundPart struct {
	intentRef string
	amount    int64
}

// refundable is what the main intent and the extension charges captured.
func refundable(r *models.Reservation) int64 {
	total := r.BaseAmount
	for _, ch := range r.ExtensionCharges {
		total += ch.Amount
	}
	return total
}

// closeExtension rejects an extension request left open when the stay ends
// or is canceled.
func closeExtension(r *models.Reservation) {
	if r.ExtensionRequest && r.ExtensionDetails != nil {
		r.ExtensionDetails.Status = models.ExtensionRejected
	}
	r.ExtensionRequest = false
}

// allocateRefund spreads amount over the main intent first and then over
// each extension charge, never exceeding what an intent captured.
func allocateRefund(r *models.Reservation, amount int64) []refundPart {
	var parts []refundPart
	remaining := amount
	take := func(intentRef string, captured int64) {
		if remaining <= 0 || captured <= 0 || intentRef == "" {
			return
		}
		n := min(remaining, captured)
		parts = append(parts, refundPart{intentRef: intentRef, amount: n})
		remaining -= n
	}
	take(r.PaymentIntentRef, r.BaseAmount)
	for _, ch := range r.ExtensionCharges {
		take(ch.PaymentIntentRef, ch.Amount)
	}
	return parts
}

// Complete marks a booked reservation whose stay has ended as completed.
func (s *DefaultReservationService) Complete(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.now()
	r, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if r.Status != models.StatusBooked {
			return NewConflictError(fmt.Sprintf("a %s reservation cannot be completed", r.Status))
		}
		if now.Before(r.CheckOut) {
			return NewConflictError("the stay has not ended yet")
		}
		if r.PendingOperation != nil {
			return NewConflictError(fmt.Sprintf("reservation has a %s in progress", r.PendingOperation.Op))
		}
		closeExtension(r)
		r.Status = models.StatusCompleted
		return nil
	})
	if err != nil {
		return nil, storageErr(err, id)
	}
	s.logger().Info("reservation completed", zap.String("reservationId", id))
	s.publish(ctx, "reservation.completed", r)
	return r, nil
}

func (s *DefaultReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, storageErr(err, id)
	}
	return r, nil
}

func requireStatus(allowed ...models.ReservationStatus) func(*models.Reservation) error {
	return func(r *models.Reservation) error {
		if slices.Contains(allowed, r.Status) {
			return nil
		}
		return NewConflictError(fmt.Sprintf("reservation is already %s", r.Status))
	}
}
