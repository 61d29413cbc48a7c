package booking

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	statsKeyPrefix  = "stats:vendor:"
	defaultStatsTTL = 30 * time.Second
)

// ListReservations returns one page of the reservations viewer may see,
// newest first.
func (s *DefaultReservationService) ListReservations(ctx context.Context, viewer models.Viewer, filter models.ReservationFilter, page models.Page) (*models.ReservationPage, error) {
	page = page.Normalize()
	filter, visible, err := s.scope(ctx, viewer, filter)
	if err != nil {
		return nil, err
	}
	if !visible {
		return newReservationPage(nil, 0, page), nil
	}

	items, total, err := s.Repo.List(ctx, reservationRepo.FromFilter(filter), page)
	if err != nil {
		return nil, NewStorageError("failed to list reservations", err)
	}
	return newReservationPage(items, total, page), nil
}

// Upcoming lists pending and booked reservations that have not started yet.
func (s *DefaultReservationService) Upcoming(ctx context.Context, viewer models.Viewer, page models.Page) (*models.ReservationPage, error) {
	now := s.now()
	return s.ListReservations(ctx, viewer, models.ReservationFilter{
		Statuses: models.HoldingStatuses,
		From:     &now,
	}, page)
}

// VendorStats counts reservations per status over the vendor's services and
// sums revenue as captured totals less refunds.
func (s *DefaultReservationService) VendorStats(ctx context.Context, vendorID string) (*models.VendorStats, error) {
	key := statsKeyPrefix + vendorID
	if s.Cache != nil {
		raw, err := s.Cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var cached models.VendorStats
			if jerr := json.Unmarshal(raw, &cached); jerr == nil {
				return &cached, nil
			}
		case !errors.Is(err, redis.Nil):
			s.logger().Warn("stats cache read failed", zap.String("key", key), zap.Error(err))
		}
	}

	if s.Catalog == nil {
		return nil, NewStorageError("service catalog is not configured", nil)
	}
	serviceIDs, err := s.Catalog.ServiceIDsByVendor(ctx, vendorID)
	if err != nil {
		return nil, NewStorageError("failed to resolve vendor services", err)
	}

	stats := &models.VendorStats{VendorID: vendorID, StatusCounts: map[models.ReservationStatus]int64{}}
	if len(serviceIDs) > 0 {
		buckets, err := s.Repo.StatusBuckets(ctx, reservationRepo.NewQuery().Services(serviceIDs...))
		if err != nil {
			return nil, NewStorageError("failed to aggregate reservations", err)
		}
		for _, b := range buckets {
			stats.StatusCounts[b.Status] = b.Count
			stats.Total += b.Count
			switch b.Status {
			case models.StatusBooked, models.StatusCompleted:
				stats.Revenue += b.Amount
			case models.StatusCanceled:
				stats.Revenue += b.Amount
				stats.Refunded += b.Refunded
			}
		}
		stats.Revenue -= stats.Refunded
	}

	if s.Cache != nil {
		ttl := s.StatsTTL
		if ttl <= 0 {
			ttl = defaultStatsTTL
		}
		if data, err := json.Marshal(stats); err == nil {
			if err := s.Cache.Set(ctx, key, data, ttl).Err(); err != nil {
				s.logger().Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return stats, nil
}

// scope narrows filter to what viewer may read. visible is false when the
// viewer can see nothing at all.
func (s *DefaultReservationService) scope(ctx context.Context, viewer models.Viewer, f models.ReservationFilter) (models.ReservationFilter, bool, error) {
	switch viewer.Role {
	case models.RoleAdmin:
		return f, true, nil
	case models.RoleCustomer:
		f.CustomerID = viewer.UserID
		return f, true, nil
	case models.RoleVendor:
		if s.Catalog == nil {
			return f, false, NewStorageError("service catalog is not configured", nil)
		}
		owned, err := s.Catalog.ServiceIDsByVendor(ctx, viewer.UserID)
		if err != nil {
			return f, false, NewStorageError("failed to resolve vendor services", err)
		}
		if len(f.ServiceIDs) > 0 {
			requested := f.ServiceIDs
			owned = slices.DeleteFunc(owned, func(id string) bool { return !slices.Contains(requested, id) })
		}
		f.ServiceIDs = owned
		return f, len(owned) > 0, nil
	}
	return f, false, NewAuthorizationError("unknown role")
}

func newReservationPage(items []models.Reservation, total int64, page models.Page) *models.ReservationPage {
	if items == nil {
		items = []models.Reservation{}
	}
	pages := int((total + int64(page.Size) - 1) / int64(page.Size))
	return &models.ReservationPage{
		Items:      items,
		Total:      total,
		Page:       page.Number,
		Limit:      page.Size,
		TotalPages: pages,
	}
}
