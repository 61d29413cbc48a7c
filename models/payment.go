package models

import "time"

// AuthorizeRequest asks the gateway to place a manual-capture hold.
type AuthorizeRequest struct {
	Amount           int64
	Currency         string
	CustomerRef      string
	PaymentMethodRef string
	Description      string
	Metadata         map[string]string
	IdempotencyKey   string
}

// PaymentReceipt is the gateway's answer to a capture.
type PaymentReceipt struct {
	PaymentIntentRef string
	AmountCaptured   int64
	Status           string
	CapturedAt       time.Time
}

// RefundReceipt is the gateway's answer to a refund.
type RefundReceipt struct {
	RefundRef        string
	PaymentIntentRef string
	Amount           int64
	Status           string
}

// Coupon is a discount looked up by code.
type Coupon struct {
	ID         string
	Valid      bool
	PercentOff float64
	AmountOff  int64
}
