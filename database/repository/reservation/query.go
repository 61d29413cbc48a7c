package reservationRepo

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"staybook/models"

	"go.mongodb.org/mongo-driver/bson"
)

// Query is a storage-agnostic predicate over reservations. The Mongo
// repository renders it to a filter document, the memory repository
// evaluates it directly.
type Query struct {
	serviceIDs     []string
	customerID     string
	statuses       []models.ReservationStatus
	overlapStart   *time.Time
	overlapEnd     *time.Time
	checkInFrom    *time.Time
	checkInTo      *time.Time
	checkOutBefore *time.Time
	excludeID      string
	search         string
	claimedBefore  *time.Time
	includeDeleted bool
}

func NewQuery() *Query {
	return &Query{}
}

// ConflictQuery selects holding reservations on serviceID overlapping [checkIn, checkOut).
func ConflictQuery(serviceID string, checkIn, checkOut time.Time, excludeID string) *Query {
	return NewQuery().
		Services(serviceID).
		Statuses(models.HoldingStatuses...).
		Overlapping(checkIn, checkOut).
		Exclude(excludeID)
}

// FromFilter maps a caller-facing filter onto a query.
func FromFilter(f models.ReservationFilter) *Query {
	q := NewQuery().
		Services(f.ServiceIDs...).
		Customer(f.CustomerID).
		Statuses(f.Statuses...).
		Search(f.Search)
	return q.CheckInBetween(f.From, f.To)
}

func (q *Query) Services(ids ...string) *Query {
	for _, id := range ids {
		if id != "" {
			q.serviceIDs = append(q.serviceIDs, id)
		}
	}
	return q
}

func (q *Query) Customer(id string) *Query {
	q.customerID = id
	return q
}

func (q *Query) Statuses(statuses ...models.ReservationStatus) *Query {
	q.statuses = append(q.statuses, statuses...)
	return q
}

// Overlapping keeps reservations whose interval intersects [start, end).
func (q *Query) Overlapping(start, end time.Time) *Query {
	q.overlapStart, q.overlapEnd = &start, &end
	return q
}

func (q *Query) CheckInBetween(from, to *time.Time) *Query {
	q.checkInFrom, q.checkInTo = from, to
	return q
}

// CheckOutBy keeps reservations whose checkout is at or before t.
func (q *Query) CheckOutBy(t time.Time) *Query {
	q.checkOutBefore = &t
	return q
}

func (q *Query) Exclude(id string) *Query {
	q.excludeID = id
	return q
}

func (q *Query) Search(term string) *Query {
	q.search = strings.TrimSpace(term)
	return q
}

// ClaimedBefore keeps reservations carrying an operation claim older than t.
func (q *Query) ClaimedBefore(t time.Time) *Query {
	q.claimedBefore = &t
	return q
}

func (q *Query) IncludeDeleted() *Query {
	q.includeDeleted = true
	return q
}

// ServiceIDs returns the service scope of the query.
func (q *Query) ServiceIDs() []string {
	return q.serviceIDs
}

// Matches evaluates the query against a single reservation.
func (q *Query) Matches(r models.Reservation) bool {
	if !q.includeDeleted && r.IsDeleted {
		return false
	}
	if len(q.serviceIDs) > 0 && !slices.Contains(q.serviceIDs, r.ServiceID) {
		return false
	}
	if q.customerID != "" && r.CustomerID != q.customerID {
		return false
	}
	if len(q.statuses) > 0 && !slices.Contains(q.statuses, r.Status) {
		return false
	}
	if q.excludeID != "" && r.ID == q.excludeID {
		return false
	}
	if q.overlapStart != nil && !models.Overlaps(*q.overlapStart, *q.overlapEnd, r.CheckIn, r.CheckOut) {
		return false
	}
	if q.checkInFrom != nil && r.CheckIn.Before(*q.checkInFrom) {
		return false
	}
	if q.checkInTo != nil && r.CheckIn.After(*q.checkInTo) {
		return false
	}
	if q.checkOutBefore != nil && r.CheckOut.After(*q.checkOutBefore) {
		return false
	}
	if q.claimedBefore != nil {
		if r.PendingOperation == nil || !r.PendingOperation.ClaimedAt.Before(*q.claimedBefore) {
			return false
		}
	}
	if q.search != "" {
		term := strings.ToLower(q.search)
		found := false
		for _, field := range []string{r.ID, r.CustomerID, r.ServiceID, r.CouponID} {
			if strings.Contains(strings.ToLower(field), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BSON renders the query as a MongoDB filter.
func (q *Query) BSON() bson.M {
	filter := bson.M{}
	if !q.includeDeleted {
		filter["isDeleted"] = bson.M{"$ne": true}
	}
	switch len(q.serviceIDs) {
	case 0:
	case 1:
		filter["serviceId"] = q.serviceIDs[0]
	default:
		filter["serviceId"] = bson.M{"$in": q.serviceIDs}
	}
	if q.customerID != "" {
		filter["customerId"] = q.customerID
	}
	if len(q.statuses) > 0 {
		statuses := make(bson.A, 0, len(q.statuses))
		for _, s := range q.statuses {
			statuses = append(statuses, string(s))
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if q.excludeID != "" {
		filter["id"] = bson.M{"$ne": q.excludeID}
	}

	checkIn, checkOut := bson.M{}, bson.M{}
	if q.overlapStart != nil {
		// existing.checkIn < end AND existing.checkOut > start
		checkIn["$lt"] = *q.overlapEnd
		checkOut["$gt"] = *q.overlapStart
	}
	if q.checkOutBefore != nil {
		checkOut["$lte"] = *q.checkOutBefore
	}
	if q.checkInFrom != nil {
		checkIn["$gte"] = *q.checkInFrom
	}
	if q.checkInTo != nil {
		checkIn["$lte"] = *q.checkInTo
	}
	if len(checkIn) > 0 {
		filter["checkIn"] = checkIn
	}
	if len(checkOut) > 0 {
		filter["checkOut"] = checkOut
	}

	if q.claimedBefore != nil {
		filter["pendingOperation.claimedAt"] = bson.M{"$lt": *q.claimedBefore}
	}
	if q.search != "" {
		pattern := regexp.QuoteMeta(q.search)
		or := bson.A{}
		for _, field := range []string{"id", "customerId", "serviceId", "couponId"} {
			or = append(or, bson.M{field: bson.M{"$regex": pattern, "$options": "i"}})
		}
		filter["$or"] = or
	}
	return filter
}
