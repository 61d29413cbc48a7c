package booking

import (
	"context"
	"testing"
	"time"

	"staybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedBooked(h *harness, id, service string, in, out int, total int64) {
	h.seed(models.Reservation{
		ID: id, ServiceID: service, Status: models.StatusBooked,
		CheckIn: day(in), CheckOut: day(out), TotalAmount: total,
		PaymentMethodRef: "pm_card",
	})
}

func TestRequestExtensionPricesProrata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)

	r, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	assert.True(t, r.ExtensionRequest)
	require.NotNil(t, r.ExtensionDetails)
	assert.Equal(t, models.ExtensionPending, r.ExtensionDetails.Status)
	assert.Equal(t, int64(300), r.ExtensionDetails.AdditionalAmount)
	assert.True(t, day(8).Equal(r.ExtensionDetails.RequestedCheckOut))
	assert.True(t, day(5).Equal(r.CheckOut), "checkout only moves on acceptance")
	assert.Equal(t, 1, r.ExtensionSeq)
	assert.Zero(t, h.gw.moneyCalls())
}

func TestRequestExtensionRefusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	h.seed(models.Reservation{ID: "p", ServiceID: "T", Status: models.StatusPending, CheckIn: day(1), CheckOut: day(5), TotalAmount: 400})
	h.seed(models.Reservation{ID: "next", ServiceID: "S", Status: models.StatusPending, CheckIn: day(6), CheckOut: day(9), TotalAmount: 300, CustomerID: "cust-2"})

	_, err := h.svc.RequestExtension(ctx, "a", "cust-2", day(8))
	assert.Equal(t, KindAuthorization, KindOf(err))

	_, err = h.svc.RequestExtension(ctx, "a", "cust-1", day(5))
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = h.svc.RequestExtension(ctx, "p", "cust-1", day(8))
	assert.Equal(t, KindConflict, KindOf(err), "only booked reservations extend")

	_, err = h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	assert.Equal(t, KindConflict, KindOf(err), "tail overlaps the next guest")

	_, err = h.svc.RequestExtension(ctx, "missing", "cust-1", day(8))
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = h.svc.RequestExtension(ctx, "a", "cust-1", day(6))
	require.NoError(t, err, "up to the next guest's checkin is free")

	_, err = h.svc.RequestExtension(ctx, "a", "cust-1", day(6))
	assert.Equal(t, KindConflict, KindOf(err), "one request at a time")
}

func TestResolveExtensionAccepted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	r, err := h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	require.NoError(t, err)

	assert.True(t, day(8).Equal(r.CheckOut))
	assert.Equal(t, int64(700), r.TotalAmount)
	assert.Equal(t, int64(400), r.BaseAmount)
	assert.False(t, r.ExtensionRequest)
	assert.Equal(t, models.ExtensionAccepted, r.ExtensionDetails.Status)
	assert.Nil(t, r.PendingOperation)
	require.Len(t, r.ExtensionCharges, 1)
	assert.Equal(t, int64(300), r.ExtensionCharges[0].Amount)
	assert.Equal(t, r.ExtensionDetails.PaymentIntentRef, r.ExtensionCharges[0].PaymentIntentRef)

	auths := h.gw.callsOf("authorize")
	require.Len(t, auths, 1)
	assert.Equal(t, "a:extension-1:authorize:1", auths[0].key)
	assert.Equal(t, int64(300), auths[0].amount)
	captures := h.gw.callsOf("capture")
	require.Len(t, captures, 1)
	assert.Equal(t, "a:extension-1:capture:1", captures[0].key)

	free, err := h.svc.CheckAvailability(ctx, "S", day(6), day(7))
	require.NoError(t, err)
	assert.False(t, free, "the extended nights are held")

	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	assert.Equal(t, KindConflict, KindOf(err))
	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionRejected, "")
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Len(t, h.gw.callsOf("capture"), 1)
	assert.Contains(t, h.events.types(), "reservation.extended")
}

func TestResolveExtensionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	r, err := h.svc.ResolveExtension(ctx, "a", models.ExtensionRejected, "")
	require.NoError(t, err)
	assert.Equal(t, models.ExtensionRejected, r.ExtensionDetails.Status)
	assert.False(t, r.ExtensionRequest)
	assert.True(t, day(5).Equal(r.CheckOut))
	assert.Equal(t, int64(400), r.TotalAmount)
	assert.Zero(t, h.gw.moneyCalls())

	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionStatus("maybe"), "")
	assert.Equal(t, KindValidation, KindOf(err))

	// A new request may follow a rejected one.
	r, err = h.svc.RequestExtension(ctx, "a", "cust-1", day(6))
	require.NoError(t, err)
	assert.Equal(t, 2, r.ExtensionSeq)
}

func TestResolveExtensionCaptureFailureVoidsHold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	h.gw.failNext("capture", ErrDeclined)
	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "pm_other")
	assert.Equal(t, KindPayment, KindOf(err))

	voids := h.gw.callsOf("void")
	require.Len(t, voids, 1)
	assert.Contains(t, voids[0].key, "a:compensate:")

	r, err := h.svc.GetReservation(ctx, "a")
	require.NoError(t, err)
	assert.True(t, day(5).Equal(r.CheckOut))
	assert.Equal(t, models.ExtensionPending, r.ExtensionDetails.Status, "the vendor may try again")
	assert.Equal(t, 2, r.ExtensionDetails.Attempt)
	assert.Nil(t, r.PendingOperation)
}

func TestResolveExtensionRetryAfterFailedCaptureUsesFreshKeys(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	h.gw.failNext("capture", ErrDeclined)
	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	require.Equal(t, KindPayment, KindOf(err))
	voided := h.gw.callsOf("void")[0].ref

	// A different card under the spent key would be refused by the gateway.
	r, err := h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "pm_new")
	require.NoError(t, err)
	assert.True(t, day(8).Equal(r.CheckOut))
	assert.Equal(t, int64(700), r.TotalAmount)

	auths := h.gw.callsOf("authorize")
	require.Len(t, auths, 2)
	assert.Equal(t, "a:extension-1:authorize:1", auths[0].key)
	assert.Equal(t, "a:extension-1:authorize:2", auths[1].key)

	captures := h.gw.callsOf("capture")
	require.Len(t, captures, 2)
	assert.Equal(t, "a:extension-1:capture:2", captures[1].key)
	assert.NotEqual(t, voided, captures[1].ref)
	require.Len(t, r.ExtensionCharges, 1)
	assert.Equal(t, captures[1].ref, r.ExtensionCharges[0].PaymentIntentRef)
}

func TestResolveExtensionTransientAuthorizeFailureKeepsKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	h.gw.failNext("authorize", ErrTransient, ErrTransient, ErrTransient)
	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	require.Equal(t, KindPayment, KindOf(err))

	r, err := h.svc.GetReservation(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ExtensionDetails.Attempt)

	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	require.NoError(t, err)
	for _, c := range h.gw.callsOf("authorize") {
		assert.Equal(t, "a:extension-1:authorize:1", c.key)
	}
}

func TestResolveExtensionLateConflictRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	// Another reservation lands on the tail after the pre-check.
	h.gw.beforeCapture = func(context.Context) {
		h.repo.Put(models.Reservation{ID: "intruder", ServiceID: "S", CustomerID: "cust-2", Status: models.StatusPending, CheckIn: day(6), CheckOut: day(9), TotalAmount: 300})
	}

	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	assert.Equal(t, KindConflict, KindOf(err))

	auths := h.gw.callsOf("authorize")
	require.Len(t, auths, 1)
	refunds := h.gw.callsOf("refund")
	require.Len(t, refunds, 1)
	assert.Equal(t, int64(300), refunds[0].amount)
	assert.Equal(t, CompensationKey("a", refunds[0].ref), refunds[0].key)

	r, err := h.svc.GetReservation(ctx, "a")
	require.NoError(t, err)
	assert.True(t, day(5).Equal(r.CheckOut))
	assert.Equal(t, int64(400), r.TotalAmount)
	assert.Empty(t, r.ExtensionCharges)
	assert.Equal(t, models.ExtensionRejected, r.ExtensionDetails.Status)
	assert.False(t, r.ExtensionRequest)
	assert.Nil(t, r.PendingOperation)
}

func TestResolveExtensionFreeOfCharge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 0)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(7))
	require.NoError(t, err)

	r, err := h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	require.NoError(t, err)
	assert.True(t, day(7).Equal(r.CheckOut))
	assert.Empty(t, r.ExtensionCharges)
	assert.Zero(t, h.gw.moneyCalls())
}

func TestCompleteRejectsOpenExtension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)

	h.clock.Advance(17 * 24 * time.Hour) // June 6th
	r, err := h.svc.Complete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, r.Status)
	assert.Equal(t, models.ExtensionRejected, r.ExtensionDetails.Status)
}

func TestRefundRejectsOpenExtension(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedBooked(h, "a", "S", 1, 5, 400)
	_, err := h.svc.RequestExtension(ctx, "a", "cust-1", day(8))
	require.NoError(t, err)
	_, err = h.svc.RequestCancellation(ctx, "a", "cust-1", "")
	require.NoError(t, err)

	r, err := h.svc.Refund(ctx, "a", models.RefundFull, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCanceled, r.Status)
	assert.False(t, r.ExtensionRequest)
	assert.Equal(t, models.ExtensionRejected, r.ExtensionDetails.Status)

	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionRejected, "")
	assert.Equal(t, KindConflict, KindOf(err))
	_, err = h.svc.ResolveExtension(ctx, "a", models.ExtensionAccepted, "")
	assert.Equal(t, KindConflict, KindOf(err))
	assert.NotContains(t, h.events.types(), "reservation.extension_rejected")
	assert.Empty(t, h.gw.callsOf("authorize"))
}
