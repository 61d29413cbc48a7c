package models

import (
	"math"
	"time"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "pending"
	StatusBooked    ReservationStatus = "booked"
	StatusRejected  ReservationStatus = "rejected"
	StatusCanceled  ReservationStatus = "canceled"
	StatusCompleted ReservationStatus = "completed"
)

// HoldingStatuses are the statuses that occupy a service's calendar.
var HoldingStatuses = []ReservationStatus{StatusPending, StatusBooked}

// HoldsSlot reports whether a reservation in this status blocks its interval.
func (s ReservationStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusBooked
}

type RefundType string

const (
	RefundFull    RefundType = "Full"
	RefundPartial RefundType = "Partial"
)

type ExtensionStatus string

const (
	ExtensionPending  ExtensionStatus = "pending"
	ExtensionAccepted ExtensionStatus = "accepted"
	ExtensionRejected ExtensionStatus = "rejected"
)

// Reservation is a customer's hold on a service for [CheckIn, CheckOut).
type Reservation struct {
	ID         string `bson:"id" json:"id"`
	CustomerID string `bson:"customerId" json:"customerId"`
	ServiceID  string `bson:"serviceId" json:"serviceId"`

	CheckIn  time.Time `bson:"checkIn" json:"checkIn"`
	CheckOut time.Time `bson:"checkOut" json:"checkOut"`
	Guests   int       `bson:"guests" json:"guests"`

	// Amounts are in the gateway's minor currency unit.
	TotalAmount    int64  `bson:"totalAmount" json:"totalAmount"`
	BaseAmount     int64  `bson:"baseAmount" json:"baseAmount"`
	DiscountAmount int64  `bson:"discountAmount,omitempty" json:"discountAmount,omitempty"`
	CouponID       string `bson:"couponId,omitempty" json:"couponId,omitempty"`
	Currency       string `bson:"currency" json:"currency"`

	PaymentIntentRef   string `bson:"paymentIntentRef" json:"paymentIntentRef"`
	PaymentMethodRef   string `bson:"paymentMethodRef,omitempty" json:"-"`
	PaymentCustomerRef string `bson:"paymentCustomerRef,omitempty" json:"-"`

	Status    ReservationStatus `bson:"status" json:"status"`
	IsDeleted bool              `bson:"isDeleted" json:"-"`

	CancelRequest     bool       `bson:"cancelRequest" json:"cancelRequest"`
	CancelRequestBy   string     `bson:"cancelRequestBy,omitempty" json:"cancelRequestBy,omitempty"`
	CancelRequestDate *time.Time `bson:"cancelRequestDate,omitempty" json:"cancelRequestDate,omitempty"`
	CancelReason      string     `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`

	Refunded     bool       `bson:"refunded" json:"refunded"`
	RefundAmount int64      `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundType   RefundType `bson:"refundType,omitempty" json:"refundType,omitempty"`
	RefundID     string     `bson:"refundId,omitempty" json:"refundId,omitempty"`
	RefundIDs    []string   `bson:"refundIds,omitempty" json:"refundIds,omitempty"`

	ExtensionRequest bool              `bson:"extensionRequest" json:"extensionRequest"`
	ExtensionDetails *ExtensionDetails `bson:"extensionDetails,omitempty" json:"extensionDetails,omitempty"`
	ExtensionSeq     int               `bson:"extensionSeq" json:"-"`
	ExtensionCharges []ExtensionCharge `bson:"extensionCharges,omitempty" json:"extensionCharges,omitempty"`

	PendingOperation *OperationClaim `bson:"pendingOperation,omitempty" json:"-"`
	Version          int64           `bson:"version" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// ExtensionDetails is the negotiation state of the latest extension request.
type ExtensionDetails struct {
	RequestedCheckOut time.Time       `bson:"requestedCheckOut" json:"requestedCheckOut"`
	AdditionalAmount  int64           `bson:"additionalAmount" json:"additionalAmount"`
	Status            ExtensionStatus `bson:"status" json:"status"`
	PaymentIntentRef  string          `bson:"paymentIntentRef,omitempty" json:"paymentIntentRef,omitempty"`
	// Attempt numbers the charge attempts of this request. A failed charge
	// spends its idempotency keys, so the next one starts a new attempt.
	Attempt int `bson:"attempt" json:"-"`
}

// ChargeAttempt is the current attempt, counting rows stored before attempts
// were recorded as the first.
func (d *ExtensionDetails) ChargeAttempt() int {
	return max(d.Attempt, 1)
}

// ExtensionCharge records a captured extension payment.
type ExtensionCharge struct {
	PaymentIntentRef string    `bson:"paymentIntentRef" json:"paymentIntentRef"`
	Amount           int64     `bson:"amount" json:"amount"`
	CheckOut         time.Time `bson:"checkOut" json:"checkOut"`
	CapturedAt       time.Time `bson:"capturedAt" json:"capturedAt"`
}

// OperationClaim marks a gateway call in flight for this reservation. It
// carries the operation's arguments so an abandoned claim can be resumed.
type OperationClaim struct {
	Op               string     `bson:"op" json:"op"`
	Amount           int64      `bson:"amount,omitempty" json:"amount,omitempty"`
	RefundType       RefundType `bson:"refundType,omitempty" json:"refundType,omitempty"`
	PaymentMethodRef string     `bson:"paymentMethodRef,omitempty" json:"-"`
	ClaimedAt        time.Time  `bson:"claimedAt" json:"claimedAt"`
}

// ReleasedHold reports a cancellation that only released an uncaptured hold.
func (r Reservation) ReleasedHold() bool {
	return r.Status == StatusCanceled && r.RefundAmount <= 0
}

// Expired reports whether the claim is older than ttl at now.
func (c *OperationClaim) Expired(now time.Time, ttl time.Duration) bool {
	return c == nil || now.Sub(c.ClaimedAt) > ttl
}

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd)
// intersect iff bStart < aEnd && bEnd > aStart. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return bStart.Before(aEnd) && bEnd.After(aStart)
}

// Nights counts started days between two instants.
func Nights(from, to time.Time) int {
	return int(math.Ceil(to.Sub(from).Hours() / 24))
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (r Reservation) Clone() Reservation {
	c := r
	if r.CancelRequestDate != nil {
		t := *r.CancelRequestDate
		c.CancelRequestDate = &t
	}
	if r.ExtensionDetails != nil {
		d := *r.ExtensionDetails
		c.ExtensionDetails = &d
	}
	if r.PendingOperation != nil {
		p := *r.PendingOperation
		c.PendingOperation = &p
	}
	c.RefundIDs = append([]string(nil), r.RefundIDs...)
	c.ExtensionCharges = append([]ExtensionCharge(nil), r.ExtensionCharges...)
	return c
}

// CapturedAmount is what the gateway has moved for this reservation so far.
func (r Reservation) CapturedAmount() int64 {
	if r.Status == StatusPending || r.Status == StatusRejected {
		return 0
	}
	total := r.BaseAmount
	for _, ch := range r.ExtensionCharges {
		total += ch.Amount
	}
	return total
}
