package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"staybook/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrchestrator(gw Gateway) *PaymentOrchestrator {
	o := NewPaymentOrchestrator(gw, time.Second, 3, zap.NewNop())
	o.Backoff = time.Millisecond
	return o
}

func TestOrchestratorRetriesTransientFailures(t *testing.T) {
	gw := newFakeGateway()
	gw.failNext("authorize", ErrTransient, ErrTransient)

	ref, err := newTestOrchestrator(gw).Authorize(context.Background(), models.AuthorizeRequest{Amount: 100, IdempotencyKey: "r:authorize"})
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	calls := gw.callsOf("authorize")
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "r:authorize", c.key)
	}
}

func TestOrchestratorGivesUp(t *testing.T) {
	gw := newFakeGateway()
	gw.failNext("capture", ErrTransient, ErrTransient, ErrTransient, ErrTransient)

	_, err := newTestOrchestrator(gw).Capture(context.Background(), "pi_1", "r:capture")
	assert.Equal(t, KindPayment, KindOf(err))
	assert.ErrorIs(t, err, ErrTransient)
	assert.Len(t, gw.callsOf("capture"), 3)
}

func TestOrchestratorDoesNotRetryDeclines(t *testing.T) {
	gw := newFakeGateway()
	gw.failNext("refund", ErrDeclined)

	_, err := newTestOrchestrator(gw).Refund(context.Background(), "pi_1", 50, "r:refund:pi_1")
	assert.Equal(t, KindPayment, KindOf(err))
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Len(t, gw.callsOf("refund"), 1)
}

func TestOrchestratorStopsWhenCallerGivesUp(t *testing.T) {
	gw := newFakeGateway()
	gw.failNext("void", ErrTransient, ErrTransient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := newTestOrchestrator(gw).Void(ctx, "pi_1", "r:void")
	assert.Equal(t, KindPayment, KindOf(err))
	assert.Len(t, gw.callsOf("void"), 1)
}

// slowGateway blocks until the per-call deadline fires.
type slowGateway struct {
	*fakeGateway
	calls int
}

func (g *slowGateway) Void(ctx context.Context, intentRef, key string) error {
	g.calls++
	if g.calls == 1 {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.fakeGateway.Void(ctx, intentRef, key)
}

func TestOrchestratorBoundsEachCall(t *testing.T) {
	gw := &slowGateway{fakeGateway: newFakeGateway()}
	o := newTestOrchestrator(gw)
	o.Timeout = 20 * time.Millisecond

	require.NoError(t, o.Void(context.Background(), "pi_1", "r:void"))
	assert.Equal(t, 2, gw.calls)
}

func TestIdempotencyKeys(t *testing.T) {
	assert.Equal(t, "r1:capture", OperationKey("r1", OpCapture))
	assert.Equal(t, "r1:extension-2:authorize:1", ExtensionKey("r1", 2, 1, "authorize"))
	assert.NotEqual(t, ExtensionKey("r1", 2, 1, "capture"), ExtensionKey("r1", 2, 2, "capture"))
	assert.Equal(t, "r1:refund:pi_9", RefundKey("r1", "pi_9"))
	assert.Equal(t, "r1:compensate:pi_9", CompensationKey("r1", "pi_9"))
	assert.NotEqual(t, CompensationKey("r1", "pi_9"), OperationKey("r1", OpVoid))
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := NewStorageError("save failed", cause)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
	assert.Equal(t, "conflict: taken", NewConflictError("taken").Error())
}
