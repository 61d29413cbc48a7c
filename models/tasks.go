package models

// ReconcilePayload describes a gateway effect whose domain commit did not land.
type ReconcilePayload struct {
	ReservationID    string `json:"reservationId"`
	Op               string `json:"op"`
	PaymentIntentRef string `json:"paymentIntentRef,omitempty"`
	Amount           int64  `json:"amount,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// ReservationEvent is published on lifecycle transitions.
type ReservationEvent struct {
	Type          string            `json:"type"`
	ReservationID string            `json:"reservationId"`
	CustomerID    string            `json:"customerId"`
	ServiceID     string            `json:"serviceId"`
	Status        ReservationStatus `json:"status"`
	Amount        int64             `json:"amount,omitempty"`
	Currency      string            `json:"currency,omitempty"`
	OccurredAt    string            `json:"occurredAt"`
}
