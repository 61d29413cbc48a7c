package models

import "time"

// Page is a window over a listing, 1-based.
type Page struct {
	Number int `json:"page" form:"page"`
	Size   int `json:"limit" form:"limit"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Skip() int64 {
	return int64((p.Number - 1) * p.Size)
}

// ReservationFilter is what a caller may ask a listing for.
type ReservationFilter struct {
	CustomerID string
	ServiceIDs []string
	Statuses   []ReservationStatus
	From       *time.Time
	To         *time.Time
	Search     string
}

type ReservationPage struct {
	Items      []Reservation `json:"items"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

// VendorStats summarises reservations over a vendor's services.
type VendorStats struct {
	VendorID     string                      `json:"vendorId"`
	StatusCounts map[ReservationStatus]int64 `json:"statusCounts"`
	Revenue      int64                       `json:"revenue"`
	Refunded     int64                       `json:"refunded"`
	Total        int64                       `json:"total"`
}

// Role scopes read views.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Viewer is an authenticated caller as asserted by the identity layer.
type Viewer struct {
	UserID string
	Role   Role
}
