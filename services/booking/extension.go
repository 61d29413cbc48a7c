package booking

import (
	"context"
	"fmt"
	"time"

	"staybook/models"

	"go.uber.org/zap"
)

// RequestExtension opens a negotiation to move a booked reservation's
// checkout to newCheckOut, priced at the reservation's daily rate.
func (s *DefaultReservationService) RequestExtension(ctx context.Context, id, userID string, newCheckOut time.Time) (*models.Reservation, error) {
	current, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := extensionRequestable(current, userID, newCheckOut); err != nil {
		return nil, err
	}

	ok, err := s.IsAvailable(ctx, current.ServiceID, current.CheckOut, newCheckOut, current.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewConflictError("the service is not available for the extended dates")
	}

	additional, err := Prorate(current.TotalAmount, current.CheckIn, current.CheckOut, newCheckOut)
	if err != nil {
		return nil, err
	}

	r, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if err := extensionRequestable(r, userID, newCheckOut); err != nil {
			return err
		}
		if !r.CheckOut.Equal(current.CheckOut) || r.TotalAmount != current.TotalAmount {
			return NewConflictError("reservation changed while pricing the extension, try again")
		}
		r.ExtensionSeq++
		r.ExtensionRequest = true
		r.ExtensionDetails = &models.ExtensionDetails{
			RequestedCheckOut: newCheckOut,
			AdditionalAmount:  additional,
			Status:            models.ExtensionPending,
			Attempt:           1,
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err, id)
	}

	s.logger().Info("extension requested",
		zap.String("reservationId", id),
		zap.Time("requestedCheckOut", newCheckOut),
		zap.Int64("additionalAmount", additional))
	s.publish(ctx, "reservation.extension_requested", r)
	return r, nil
}

// ResolveExtension accepts (charging the additional amount) or rejects the
// pending extension request.
func (s *DefaultReservationService) ResolveExtension(ctx context.Context, id string, action models.ExtensionStatus, paymentMethodRef string) (*models.Reservation, error) {
	switch action {
	case models.ExtensionRejected:
		return s.rejectExtension(ctx, id)
	case models.ExtensionAccepted:
	default:
		return nil, NewValidationError(fmt.Sprintf("action must be %q or %q", models.ExtensionAccepted, models.ExtensionRejected))
	}

	current, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := extensionPending(current); err != nil {
		return nil, err
	}
	// Checked before charging; the commit checks again atomically.
	ok, err := s.IsAvailable(ctx, current.ServiceID, current.CheckOut, current.ExtensionDetails.RequestedCheckOut, current.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, NewConflictError("the service is no longer available for the extended dates")
	}

	return s.run(ctx, id, s.extensionStep(paymentMethodRef), models.OperationClaim{PaymentMethodRef: paymentMethodRef})
}

func (s *DefaultReservationService) extensionStep(paymentMethodRef string) step {
	return step{
		op: OpExtension,
		pre: func(r *models.Reservation) error {
			if r.Status != models.StatusBooked {
				return NewConflictError(fmt.Sprintf("a %s reservation cannot be extended", r.Status))
			}
			return extensionPending(r)
		},
		effect: func(ctx context.Context, r *models.Reservation) (outcome, error) {
			d := r.ExtensionDetails
			if d.AdditionalAmount <= 0 {
				return outcome{at: s.now()}, nil
			}
			method := paymentMethodRef
			if method == "" {
				method = r.PaymentMethodRef
			}
			attempt := d.ChargeAttempt()

			intentRef, err := s.Payments.Authorize(ctx, models.AuthorizeRequest{
				Amount:           d.AdditionalAmount,
				Currency:         r.Currency,
				CustomerRef:      r.PaymentCustomerRef,
				PaymentMethodRef: method,
				Description:      fmt.Sprintf("Extension of reservation %s", r.ID),
				Metadata: map[string]string{
					"reservationId": r.ID,
					"extension":     fmt.Sprint(r.ExtensionSeq),
					"attempt":       fmt.Sprint(attempt),
				},
				IdempotencyKey: ExtensionKey(r.ID, r.ExtensionSeq, attempt, "authorize"),
			})
			if err != nil {
				// A transient failure may still have created the hold, so the
				// next try reuses the key; a decline is replayed by the gateway.
				return outcome{spent: !isTransient(err)}, err
			}
			receipt, err := s.Payments.Capture(ctx, intentRef, ExtensionKey(r.ID, r.ExtensionSeq, attempt, "capture"))
			if err != nil {
				if verr := s.Payments.Void(ctx, intentRef, CompensationKey(r.ID, intentRef)); verr != nil {
					s.scheduleReconcile(ctx, models.ReconcilePayload{
						ReservationID:    r.ID,
						Op:               OpCompensate,
						PaymentIntentRef: intentRef,
						Reason:           "extension hold left after failed capture",
					})
				}
				return outcome{spent: true}, err
			}
			at := receipt.CapturedAt
			if at.IsZero() {
				at = s.now()
			}
			return outcome{intentRef: intentRef, amount: d.AdditionalAmount, at: at}, nil
		},
		commit: func(r *models.Reservation, out outcome) {
			d := r.ExtensionDetails
			if out.intentRef != "" {
				r.ExtensionCharges = append(r.ExtensionCharges, models.ExtensionCharge{
					PaymentIntentRef: out.intentRef,
					Amount:           out.amount,
					CheckOut:         d.RequestedCheckOut,
					CapturedAt:       out.at,
				})
			}
			r.CheckOut = d.RequestedCheckOut
			r.TotalAmount += d.AdditionalAmount
			d.Status = models.ExtensionAccepted
			d.PaymentIntentRef = out.intentRef
			r.ExtensionRequest = false
		},
		checkSlot: true,
		compensate: func(ctx context.Context, r *models.Reservation, out outcome) error {
			if out.intentRef == "" {
				return nil
			}
			_, err := s.Payments.Refund(ctx, out.intentRef, out.amount, CompensationKey(r.ID, out.intentRef))
			return err
		},
		abandon: func(r *models.Reservation) {
			if r.ExtensionDetails != nil {
				r.ExtensionDetails.Status = models.ExtensionRejected
			}
			r.ExtensionRequest = false
		},
		retry: func(r *models.Reservation) {
			if d := r.ExtensionDetails; d != nil {
				d.Attempt = d.ChargeAttempt() + 1
			}
		},
		event: "reservation.extended",
	}
}

func (s *DefaultReservationService) rejectExtension(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := s.Repo.Update(ctx, id, func(r *models.Reservation) error {
		if err := extensionPending(r); err != nil {
			return err
		}
		if r.PendingOperation != nil {
			return NewConflictError(fmt.Sprintf("reservation has a %s in progress", r.PendingOperation.Op))
		}
		r.ExtensionDetails.Status = models.ExtensionRejected
		r.ExtensionRequest = false
		return nil
	})
	if err != nil {
		return nil, storageErr(err, id)
	}
	s.logger().Info("extension rejected", zap.String("reservationId", id))
	s.publish(ctx, "reservation.extension_rejected", r)
	return r, nil
}

func extensionRequestable(r *models.Reservation, userID string, newCheckOut time.Time) error {
	if r.CustomerID != userID {
		return NewAuthorizationError("only the reservation's customer can request an extension")
	}
	if r.Status != models.StatusBooked {
		return NewConflictError(fmt.Sprintf("a %s reservation cannot be extended", r.Status))
	}
	if r.ExtensionRequest {
		return NewConflictError("an extension request is already pending")
	}
	if !newCheckOut.After(r.CheckOut) {
		return NewValidationError("new checkout must be after the current checkout")
	}
	return nil
}

func extensionPending(r *models.Reservation) error {
	if !r.ExtensionRequest || r.ExtensionDetails == nil || r.ExtensionDetails.Status != models.ExtensionPending {
		return NewConflictError("there is no pending extension request")
	}
	return nil
}
