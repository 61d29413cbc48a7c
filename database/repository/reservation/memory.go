package reservationRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"staybook/models"
)

// MemoryReservationRepo keeps reservations in process. Every operation runs
// under one mutex, which gives it the same atomicity the Mongo repository
// gets from transactions. Used by STORAGE_DRIVER=memory and by tests.
type MemoryReservationRepo struct {
	mu    sync.Mutex
	items map[string]models.Reservation
}

func NewMemoryReservationRepo() *MemoryReservationRepo {
	return &MemoryReservationRepo{items: make(map[string]models.Reservation)}
}

var _ ReservationRepository = (*MemoryReservationRepo)(nil)

func (m *MemoryReservationRepo) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.items[id]
	if !ok || r.IsDeleted {
		return nil, ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (m *MemoryReservationRepo) Find(_ context.Context, q *Query) ([]models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.match(q), nil
}

func (m *MemoryReservationRepo) Count(_ context.Context, q *Query) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.match(q))), nil
}

func (m *MemoryReservationRepo) List(_ context.Context, q *Query, page models.Page) ([]models.Reservation, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page = page.Normalize()
	all := m.match(q)
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := int(page.Skip())
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *MemoryReservationRepo) StatusBuckets(_ context.Context, q *Query) ([]StatusBucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus := map[models.ReservationStatus]*StatusBucket{}
	for _, r := range m.match(q) {
		b, ok := byStatus[r.Status]
		if !ok {
			b = &StatusBucket{Status: r.Status}
			byStatus[r.Status] = b
		}
		b.Count++
		if !r.ReleasedHold() {
			b.Amount += r.TotalAmount
		}
		b.Refunded += r.RefundAmount
	}
	out := make([]StatusBucket, 0, len(byStatus))
	for _, b := range byStatus {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (m *MemoryReservationRepo) InsertIfAvailable(_ context.Context, r *models.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.match(ConflictQuery(r.ServiceID, r.CheckIn, r.CheckOut, r.ID))) > 0 {
		return ErrSlotTaken
	}
	m.items[r.ID] = r.Clone()
	return nil
}

func (m *MemoryReservationRepo) Update(_ context.Context, id string, fn Mutator) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(id, fn, false)
}

func (m *MemoryReservationRepo) UpdateIfAvailable(_ context.Context, id string, fn Mutator) (*models.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update(id, fn, true)
}

func (m *MemoryReservationRepo) update(id string, fn Mutator, checkSlot bool) (*models.Reservation, error) {
	current, ok := m.items[id]
	if !ok || current.IsDeleted {
		return nil, ErrNotFound
	}
	next, err := apply(current, fn)
	if err != nil {
		return nil, err
	}
	if checkSlot && next.Status.HoldsSlot() {
		if len(m.match(ConflictQuery(next.ServiceID, next.CheckIn, next.CheckOut, next.ID))) > 0 {
			return nil, ErrSlotTaken
		}
	}
	m.items[id] = next.Clone()
	out := next.Clone()
	return &out, nil
}

// Put stores r as-is, bypassing conflict checks. Test seeding only.
func (m *MemoryReservationRepo) Put(r models.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.items[r.ID] = r.Clone()
}

func (m *MemoryReservationRepo) match(q *Query) []models.Reservation {
	var out []models.Reservation
	for _, r := range m.items {
		if q.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out
}
