package booking

import (
	"context"
	"testing"
	"time"

	"staybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedListing(h *harness) {
	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.Reservation{
		{ID: "r1", ServiceID: "S", CustomerID: "cust-1", Status: models.StatusBooked, CheckIn: day(1), CheckOut: day(5), TotalAmount: 400},
		{ID: "r2", ServiceID: "T", CustomerID: "cust-2", Status: models.StatusCompleted, CheckIn: day(1), CheckOut: day(4), TotalAmount: 300},
		{ID: "r3", ServiceID: "S", CustomerID: "cust-2", Status: models.StatusCanceled, CheckIn: day(10), CheckOut: day(12), TotalAmount: 200, Refunded: true, RefundAmount: 50},
		{ID: "r4", ServiceID: "T", CustomerID: "cust-1", Status: models.StatusPending, CheckIn: day(20), CheckOut: day(22), TotalAmount: 100},
		{ID: "r5", ServiceID: "U", CustomerID: "cust-1", Status: models.StatusBooked, CheckIn: day(2), CheckOut: day(3), TotalAmount: 900},
		{ID: "r6", ServiceID: "S", CustomerID: "cust-1", Status: models.StatusRejected, CheckIn: day(25), CheckOut: day(27), TotalAmount: 100},
		{ID: "past", ServiceID: "S", CustomerID: "cust-1", Status: models.StatusBooked, CheckIn: base.AddDate(0, 0, 9), CheckOut: base.AddDate(0, 0, 12), TotalAmount: 100},
	}
	for i, r := range rows {
		r.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		h.seed(r)
	}
}

func ids(items []models.Reservation) []string {
	out := make([]string, 0, len(items))
	for _, r := range items {
		out = append(out, r.ID)
	}
	return out
}

func TestListReservationsScopesByRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedListing(h)

	cases := []struct {
		name   string
		viewer models.Viewer
		filter models.ReservationFilter
		want   []string
	}{
		{"admin sees all", models.Viewer{UserID: "root", Role: models.RoleAdmin}, models.ReservationFilter{},
			[]string{"past", "r6", "r5", "r4", "r3", "r2", "r1"}},
		{"customer sees own", models.Viewer{UserID: "cust-2", Role: models.RoleCustomer}, models.ReservationFilter{},
			[]string{"r3", "r2"}},
		{"customer cannot widen scope", models.Viewer{UserID: "cust-2", Role: models.RoleCustomer}, models.ReservationFilter{CustomerID: "cust-1"},
			[]string{"r3", "r2"}},
		{"vendor sees own services", models.Viewer{UserID: "vendor-2", Role: models.RoleVendor}, models.ReservationFilter{},
			[]string{"r5"}},
		{"vendor narrows to a service", models.Viewer{UserID: "vendor-1", Role: models.RoleVendor}, models.ReservationFilter{ServiceIDs: []string{"T"}},
			[]string{"r4", "r2"}},
		{"vendor asking for foreign service sees nothing", models.Viewer{UserID: "vendor-1", Role: models.RoleVendor}, models.ReservationFilter{ServiceIDs: []string{"U"}},
			[]string{}},
		{"vendor without services sees nothing", models.Viewer{UserID: "vendor-9", Role: models.RoleVendor}, models.ReservationFilter{},
			[]string{}},
		{"status filter", models.Viewer{UserID: "root", Role: models.RoleAdmin}, models.ReservationFilter{Statuses: []models.ReservationStatus{models.StatusBooked}},
			[]string{"past", "r5", "r1"}},
		{"search", models.Viewer{UserID: "root", Role: models.RoleAdmin}, models.ReservationFilter{Search: "R3"},
			[]string{"r3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := h.svc.ListReservations(ctx, tc.viewer, tc.filter, models.Page{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(page.Items))
			assert.Equal(t, int64(len(tc.want)), page.Total)
		})
	}

	_, err := h.svc.ListReservations(ctx, models.Viewer{UserID: "x", Role: "guest"}, models.ReservationFilter{}, models.Page{})
	assert.Equal(t, KindAuthorization, KindOf(err))
}

func TestListReservationsPaginates(t *testing.T) {
	h := newHarness(t)
	seedListing(h)
	admin := models.Viewer{UserID: "root", Role: models.RoleAdmin}

	page, err := h.svc.ListReservations(context.Background(), admin, models.ReservationFilter{}, models.Page{Number: 3, Size: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids(page.Items))
	assert.Equal(t, int64(7), page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, page.Limit)
	assert.Equal(t, 3, page.TotalPages)

	page, err = h.svc.ListReservations(context.Background(), admin, models.ReservationFilter{}, models.Page{Number: 9, Size: 3})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestUpcoming(t *testing.T) {
	h := newHarness(t)
	seedListing(h)

	page, err := h.svc.Upcoming(context.Background(), models.Viewer{UserID: "cust-1", Role: models.RoleCustomer}, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"r5", "r4", "r1"}, ids(page.Items))
}

func TestVendorStats(t *testing.T) {
	h := newHarness(t)
	seedListing(h)

	stats, err := h.svc.VendorStats(context.Background(), "vendor-1")
	require.NoError(t, err)

	assert.Equal(t, "vendor-1", stats.VendorID)
	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, map[models.ReservationStatus]int64{
		models.StatusBooked:    2,
		models.StatusCompleted: 1,
		models.StatusCanceled:  1,
		models.StatusPending:   1,
		models.StatusRejected:  1,
	}, stats.StatusCounts)
	// booked 400+100, completed 300, canceled 200 less 50 refunded
	assert.Equal(t, int64(950), stats.Revenue)
	assert.Equal(t, int64(50), stats.Refunded)

	empty, err := h.svc.VendorStats(context.Background(), "vendor-9")
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Zero(t, empty.Revenue)
}
