package booking

import (
	"context"
	"time"

	reservationRepo "staybook/database/repository/reservation"

	"go.uber.org/zap"
)

// CheckAvailability reports whether serviceID is free for [checkIn, checkOut).
func (s *DefaultReservationService) CheckAvailability(ctx context.Context, serviceID string, checkIn, checkOut time.Time) (bool, error) {
	return s.IsAvailable(ctx, serviceID, checkIn, checkOut, "")
}

// IsAvailable reports whether no pending or booked reservation other than
// excludeID overlaps [checkIn, checkOut) on serviceID.
func (s *DefaultReservationService) IsAvailable(ctx context.Context, serviceID string, checkIn, checkOut time.Time, excludeID string) (bool, error) {
	if serviceID == "" {
		return false, NewValidationError("serviceId is required")
	}
	if !checkOut.After(checkIn) {
		return false, NewValidationError("checkOut must be after checkIn")
	}

	n, err := s.Repo.Count(ctx, reservationRepo.ConflictQuery(serviceID, checkIn, checkOut, excludeID))
	if err != nil {
		s.logger().Error("availability lookup failed", zap.String("serviceId", serviceID), zap.Error(err))
		return false, NewStorageError("availability lookup failed", err)
	}
	return n == 0, nil
}
