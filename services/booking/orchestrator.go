package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"staybook/models"

	"go.uber.org/zap"
)

var (
	// ErrTransient marks gateway failures worth repeating with the same idempotency key.
	ErrTransient = errors.New("transient gateway failure")
	// ErrDeclined marks a definitive refusal from the gateway.
	ErrDeclined = errors.New("payment declined")
)

// Gateway is the payment provider. Every mutating call takes the idempotency
// key the provider must deduplicate on.
type Gateway interface {
	Authorize(ctx context.Context, req models.AuthorizeRequest) (string, error)
	Capture(ctx context.Context, intentRef, idempotencyKey string) (*models.PaymentReceipt, error)
	Void(ctx context.Context, intentRef, idempotencyKey string) error
	Refund(ctx context.Context, intentRef string, amount int64, idempotencyKey string) (*models.RefundReceipt, error)
	VerifyCoupon(ctx context.Context, code string) (*models.Coupon, error)
}

// Idempotency keys are deterministic so a repeated call after a timeout or a
// crash lands on the same gateway object.
func OperationKey(reservationID, op string) string {
	return reservationID + ":" + op
}

// ExtensionKey names one step of one charge attempt of the seq-th extension.
func ExtensionKey(reservationID string, seq, attempt int, step string) string {
	return fmt.Sprintf("%s:extension-%d:%s:%d", reservationID, seq, step, attempt)
}

func RefundKey(reservationID, intentRef string) string {
	return reservationID + ":refund:" + intentRef
}

// CompensationKey covers voids and refunds that undo an effect the
// reservation never recorded.
func CompensationKey(reservationID, intentRef string) string {
	return reservationID + ":compensate:" + intentRef
}

// PaymentOrchestrator bounds and retries gateway calls. It owns no state.
type PaymentOrchestrator struct {
	Gateway     Gateway
	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Logger      *zap.Logger
}

func NewPaymentOrchestrator(gw Gateway, timeout time.Duration, maxAttempts int, logger *zap.Logger) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		Gateway:     gw,
		Timeout:     timeout,
		MaxAttempts: maxAttempts,
		Backoff:     250 * time.Millisecond,
		Logger:      logger,
	}
}

func (o *PaymentOrchestrator) Authorize(ctx context.Context, req models.AuthorizeRequest) (string, error) {
	var ref string
	err := o.call(ctx, "authorize", req.IdempotencyKey, func(ctx context.Context) error {
		var err error
		ref, err = o.Gateway.Authorize(ctx, req)
		return err
	})
	return ref, err
}

func (o *PaymentOrchestrator) Capture(ctx context.Context, intentRef, key string) (*models.PaymentReceipt, error) {
	var receipt *models.PaymentReceipt
	err := o.call(ctx, "capture", key, func(ctx context.Context) error {
		var err error
		receipt, err = o.Gateway.Capture(ctx, intentRef, key)
		return err
	})
	return receipt, err
}

func (o *PaymentOrchestrator) Void(ctx context.Context, intentRef, key string) error {
	return o.call(ctx, "void", key, func(ctx context.Context) error {
		return o.Gateway.Void(ctx, intentRef, key)
	})
}

func (o *PaymentOrchestrator) Refund(ctx context.Context, intentRef string, amount int64, key string) (*models.RefundReceipt, error) {
	var receipt *models.RefundReceipt
	err := o.call(ctx, "refund", key, func(ctx context.Context) error {
		var err error
		receipt, err = o.Gateway.Refund(ctx, intentRef, amount, key)
		return err
	})
	return receipt, err
}

func (o *PaymentOrchestrator) VerifyCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon *models.Coupon
	err := o.call(ctx, "verify_coupon", "", func(ctx context.Context) error {
		var err error
		coupon, err = o.Gateway.VerifyCoupon(ctx, code)
		return err
	})
	return coupon, err
}

func (o *PaymentOrchestrator) call(ctx context.Context, op, key string, fn func(context.Context) error) error {
	attempts := o.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := o.logger().With(zap.String("op", op), zap.String("idempotencyKey", key))

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err = fn(callCtx)
		cancel()
		if err == nil {
			if attempt > 1 {
				logger.Info("gateway call succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !isTransient(err) || ctx.Err() != nil || attempt == attempts {
			break
		}
		logger.Warn("transient gateway failure, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return NewPaymentError(fmt.Sprintf("%s interrupted", op), ctx.Err())
		case <-time.After(o.Backoff * time.Duration(attempt)):
		}
	}
	logger.Error("gateway call failed", zap.Error(err))
	return NewPaymentError(fmt.Sprintf("payment %s failed", op), err)
}

func (o *PaymentOrchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
