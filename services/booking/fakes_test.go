package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	catalogRepo "staybook/database/repository/catalog"
	reservationRepo "staybook/database/repository/reservation"
	"staybook/models"

	"go.uber.org/zap"
)

type gatewayCall struct {
	op     string
	ref    string
	key    string
	amount int64
}

// fakeGateway records every call and honours idempotency keys the way a
// real provider does: the same key returns the same object.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	byKey   map[string]string
	params  map[string]string
	voided  map[string]bool
	seq     int
	fail    map[string][]error
	coupons map[string]*models.Coupon

	// beforeCapture runs inside Capture, outside the lock.
	beforeCapture func(ctx context.Context)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		byKey:   map[string]string{},
		params:  map[string]string{},
		voided:  map[string]bool{},
		fail:    map[string][]error{},
		coupons: map[string]*models.Coupon{},
	}
}

func (g *fakeGateway) failNext(op string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = append(g.fail[op], errs...)
}

func (g *fakeGateway) record(op, ref, key string, amount int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, gatewayCall{op: op, ref: ref, key: key, amount: amount})
	if q := g.fail[op]; len(q) > 0 {
		g.fail[op] = q[1:]
		return q[0]
	}
	return nil
}

func (g *fakeGateway) objectFor(prefix, key string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.byKey[key]; ok {
		return ref
	}
	g.seq++
	ref := fmt.Sprintf("%s_%d", prefix, g.seq)
	g.byKey[key] = ref
	return ref
}

var (
	errKeyReused      = errors.New("idempotency key reused with different parameters")
	errIntentCanceled = errors.New("payment intent was canceled")
)

func (g *fakeGateway) Authorize(_ context.Context, req models.AuthorizeRequest) (string, error) {
	if err := g.record("authorize", "", req.IdempotencyKey, req.Amount); err != nil {
		return "", err
	}
	// A key is bound to the parameters of its first request.
	sig := fmt.Sprintf("%d/%s/%s", req.Amount, req.Currency, req.PaymentMethodRef)
	g.mu.Lock()
	if prev, ok := g.params[req.IdempotencyKey]; ok && prev != sig {
		g.mu.Unlock()
		return "", errKeyReused
	}
	g.params[req.IdempotencyKey] = sig
	g.mu.Unlock()
	return g.objectFor("pi", req.IdempotencyKey), nil
}

func (g *fakeGateway) Capture(ctx context.Context, intentRef, key string) (*models.PaymentReceipt, error) {
	if g.beforeCapture != nil {
		g.beforeCapture(ctx)
	}
	if err := g.record("capture", intentRef, key, 0); err != nil {
		return nil, err
	}
	g.mu.Lock()
	canceled := g.voided[intentRef]
	g.mu.Unlock()
	if canceled {
		return nil, errIntentCanceled
	}
	return &models.PaymentReceipt{PaymentIntentRef: intentRef, Status: "succeeded"}, nil
}

func (g *fakeGateway) Void(_ context.Context, intentRef, key string) error {
	if err := g.record("void", intentRef, key, 0); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.voided[intentRef] = true
	return nil
}

func (g *fakeGateway) Refund(_ context.Context, intentRef string, amount int64, key string) (*models.RefundReceipt, error) {
	if err := g.record("refund", intentRef, key, amount); err != nil {
		return nil, err
	}
	return &models.RefundReceipt{RefundRef: g.objectFor("re", key), PaymentIntentRef: intentRef, Amount: amount, Status: "succeeded"}, nil
}

func (g *fakeGateway) VerifyCoupon(_ context.Context, code string) (*models.Coupon, error) {
	if err := g.record("coupon", "", code, 0); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.coupons[code]; ok {
		return c, nil
	}
	return &models.Coupon{ID: code, Valid: false}, nil
}

func (g *fakeGateway) callsOf(op string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gatewayCall
	for _, c := range g.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (g *fakeGateway) moneyCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.op != "coupon" {
			n++
		}
	}
	return n
}

type recordingReconciler struct {
	mu       sync.Mutex
	payloads []models.ReconcilePayload
}

func (r *recordingReconciler) ScheduleReconcile(_ context.Context, p models.ReconcilePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, p)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt models.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// flakyRepo fails the Nth Update call, counting from 1.
type flakyRepo struct {
	*reservationRepo.MemoryReservationRepo
	mu         sync.Mutex
	updates    int
	failUpdate int
}

func (f *flakyRepo) Update(ctx context.Context, id string, fn reservationRepo.Mutator) (*models.Reservation, error) {
	f.mu.Lock()
	f.updates++
	fail := f.updates == f.failUpdate
	f.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return f.MemoryReservationRepo.Update(ctx, id, fn)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	svc     *DefaultReservationService
	repo    *reservationRepo.MemoryReservationRepo
	gw      *fakeGateway
	catalog *catalogRepo.MemoryServiceCatalog
	tasks   *recordingReconciler
	events  *recordingPublisher
	clock   *clock
}

func day(d int) time.Time {
	return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:    reservationRepo.NewMemoryReservationRepo(),
		gw:      newFakeGateway(),
		catalog: catalogRepo.NewMemoryServiceCatalog(),
		tasks:   &recordingReconciler{},
		events:  &recordingPublisher{},
		clock:   &clock{t: time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)},
	}
	h.catalog.Register("S", "vendor-1")
	h.catalog.Register("T", "vendor-1")
	h.catalog.Register("U", "vendor-2")

	var ids atomic.Int64
	h.svc = &DefaultReservationService{
		Repo: h.repo,
		Payments: &PaymentOrchestrator{
			Gateway:     h.gw,
			Timeout:     time.Second,
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
			Logger:      zap.NewNop(),
		},
		Catalog:  h.catalog,
		Tasks:    h.tasks,
		Events:   h.events,
		Logger:   zap.NewNop(),
		Now:      h.clock.Now,
		ClaimTTL: time.Minute,
		Currency: "usd",
		NewID: func() string {
			return fmt.Sprintf("res-%d", ids.Add(1))
		},
	}
	return h
}

func createInput(service string, in, out int, amount int64) CreateReservationInput {
	return CreateReservationInput{
		CustomerID:       "cust-1",
		ServiceID:        service,
		CheckIn:          day(in),
		CheckOut:         day(out),
		Guests:           2,
		TotalAmount:      amount,
		PaymentMethodRef: "pm_card",
	}
}

// seed stores a reservation directly, as if created earlier.
func (h *harness) seed(r models.Reservation) models.Reservation {
	if r.CustomerID == "" {
		r.CustomerID = "cust-1"
	}
	if r.PaymentIntentRef == "" {
		r.PaymentIntentRef = "pi_" + r.ID
	}
	if r.BaseAmount == 0 {
		r.BaseAmount = r.TotalAmount
	}
	if r.Version == 0 {
		r.Version = 1
	}
	r.Currency = "usd"
	h.repo.Put(r)
	return r
}
