package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"staybook/models"
	"staybook/services/booking"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeGateway places manual-capture holds with Stripe PaymentIntents.
// Retries are left to the orchestrator, so the client never retries on its own.
type StripeGateway struct {
	API    *client.API
	Logger *zap.Logger
}

var _ booking.Gateway = (*StripeGateway)(nil)

// NewStripeGateway builds a gateway for key. baseURL overrides the Stripe API
// endpoint and is only set when pointing at a mock.
func NewStripeGateway(key string, timeout time.Duration, baseURL string, logger *zap.Logger) *StripeGateway {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     logger.Sugar(),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &StripeGateway{API: client.New(key, backends), Logger: logger}
}

func (g *StripeGateway) Authorize(ctx context.Context, req models.AuthorizeRequest) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		PaymentMethod: stripe.String(req.PaymentMethodRef),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if req.CustomerRef != "" {
		params.Customer = stripe.String(req.CustomerRef)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.API.PaymentIntents.New(params)
	if err != nil {
		return "", mapError("authorize", err)
	}
	if pi.Status != stripe.PaymentIntentStatusRequiresCapture {
		g.logger().Warn("payment intent not held for capture",
			zap.String("paymentIntent", pi.ID), zap.String("status", string(pi.Status)))
		return "", fmt.Errorf("%w: payment intent %s is %s", booking.ErrDeclined, pi.ID, pi.Status)
	}
	return pi.ID, nil
}

func (g *StripeGateway) Capture(ctx context.Context, intentRef, idempotencyKey string) (*models.PaymentReceipt, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := g.API.PaymentIntents.Capture(intentRef, params)
	if err != nil {
		return nil, mapError("capture", err)
	}
	return &models.PaymentReceipt{
		PaymentIntentRef: pi.ID,
		AmountCaptured:   pi.AmountReceived,
		Status:           string(pi.Status),
		CapturedAt:       time.Now().UTC(),
	}, nil
}

func (g *StripeGateway) Void(ctx context.Context, intentRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	if _, err := g.API.PaymentIntents.Cancel(intentRef, params); err != nil {
		return mapError("void", err)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, intentRef string, amount int64, idempotencyKey string) (*models.RefundReceipt, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentRef),
		Amount:        stripe.Int64(amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	re, err := g.API.Refunds.New(params)
	if err != nil {
		return nil, mapError("refund", err)
	}
	return &models.RefundReceipt{
		RefundRef:        re.ID,
		PaymentIntentRef: intentRef,
		Amount:           re.Amount,
		Status:           string(re.Status),
	}, nil
}

// VerifyCoupon looks the code up as a Stripe coupon id. Unknown codes come
// back as invalid coupons rather than errors.
func (g *StripeGateway) VerifyCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	params := &stripe.CouponParams{}
	params.Context = ctx

	c, err := g.API.Coupons.Get(code, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodeResourceMissing {
			return &models.Coupon{ID: code, Valid: false}, nil
		}
		return nil, mapError("verify coupon", err)
	}
	return &models.Coupon{
		ID:         c.ID,
		Valid:      c.Valid,
		PercentOff: c.PercentOff,
		AmountOff:  c.AmountOff,
	}, nil
}

func (g *StripeGateway) logger() *zap.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return zap.NewNop()
}

// mapError sorts Stripe failures into retryable and final ones.
func mapError(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		// No response at all: network trouble or the client timeout.
		return fmt.Errorf("stripe %s: %w: %v", op, booking.ErrTransient, err)
	}
	switch {
	case serr.HTTPStatusCode == http.StatusTooManyRequests,
		serr.HTTPStatusCode >= http.StatusInternalServerError,
		serr.HTTPStatusCode == 0:
		return fmt.Errorf("stripe %s: %w: %s", op, booking.ErrTransient, serr.Msg)
	case serr.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("stripe %s: %w: %s (%s)", op, booking.ErrDeclined, serr.Msg, serr.Code)
	}
	return fmt.Errorf("stripe %s failed with %d %s: %s", op, serr.HTTPStatusCode, serr.Code, serr.Msg)
}
