package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/embermillco/embermill/internal/cart"
	"github.com/embermillco/embermill/internal/catalog"
	"github.com/embermillco/embermill/internal/models"
	"github.com/embermillco/embermill/internal/payments"
	"github.com/embermillco/embermill/internal/shipping"
)

// testWindow keeps debounce waits short without making timing flaky.
const testWindow = 20 * time.Millisecond

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	updates  []payments.IntentParams
	onUpdate func()

	updateErr  error
	confirmErr error
	getStatus  stripe.PaymentIntentStatus
}

func (g *fakeGateway) CreateIntent(_ context.Context, params payments.IntentParams) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "create")
	return &payments.Intent{
		ID:           "pi_test",
		ClientSecret: "pi_test_secret",
		AmountCents:  params.AmountCents,
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (g *fakeGateway) UpdateIntentAmount(_ context.Context, intentID string, params payments.IntentParams) (*payments.Intent, error) {
	g.mu.Lock()
	g.calls = append(g.calls, "update")
	g.updates = append(g.updates, params)
	onUpdate := g.onUpdate
	err := g.updateErr
	g.mu.Unlock()

	if onUpdate != nil {
		onUpdate()
	}
	if err != nil {
		return nil, err
	}
	return &payments.Intent{ID: intentID, AmountCents: params.AmountCents}, nil
}

func (g *fakeGateway) ConfirmIntent(_ context.Context, intentID, _ string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "confirm")
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return &payments.Intent{ID: intentID, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (*payments.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, "get")
	return &payments.Intent{ID: intentID, Status: g.getStatus}, nil
}

func (g *fakeGateway) updateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, call := range g.calls {
		if call == "update" {
			count++
		}
	}
	return count
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func (g *fakeGateway) lastUpdate() (payments.IntentParams, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.updates) == 0 {
		return payments.IntentParams{}, false
	}
	return g.updates[len(g.updates)-1], true
}

type fakeOrderStore struct {
	mu        sync.Mutex
	orders    []*models.Order
	createErr error
}

func (s *fakeOrderStore) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.orders = append(s.orders, order)
	return nil
}

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Store: catalog.StoreConfig{Name: "Embermill", Currency: "usd"},
		Products: []catalog.Product{{
			SKU:    "candle-amber-noir",
			Name:   "Amber Noir Candle",
			Active: true,
			Variants: []catalog.Variant{
				{ID: "amber-8oz", Label: "8 oz", UnitPriceCents: 2800, WeightGrams: 310},
			},
		}},
	}
}

func testResolver(t *testing.T) *shipping.Resolver {
	t.Helper()

	table, err := shipping.NewTable([]shipping.Zone{{
		Name:      "domestic",
		Countries: []string{"US"},
		Methods: []shipping.Method{{
			ID:                    "ground",
			Name:                  "Ground Shipping",
			Carrier:               "usps",
			BasePrice:             decimal.RequireFromString("4.99"),
			FreeShippingThreshold: decimal.RequireFromString("100.00"),
		}},
	}})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return shipping.NewResolver(table)
}

type serviceFixture struct {
	service *Service
	gateway *fakeGateway
	orders  *fakeOrderStore
	carts   cart.Store
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	gateway := &fakeGateway{}
	orders := &fakeOrderStore{}
	carts := cart.NewMemoryStore()

	service := NewService(
		gateway,
		orders,
		carts,
		testResolver(t),
		testCatalog(),
		catalog.NewPricer(),
		nil,
		"usd",
		testWindow,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	return &serviceFixture{service: service, gateway: gateway, orders: orders, carts: carts}
}

func (f *serviceFixture) seedCart(t *testing.T, cartID string, quantity int) {
	t.Helper()

	bag := &cart.Cart{}
	err := bag.AddItem(cart.Line{
		ProductID:   "candle-amber-noir",
		VariantID:   "amber-8oz",
		Title:       "Amber Noir Candle - 8 oz",
		UnitPrice:   decimal.RequireFromString("28.00"),
		Quantity:    quantity,
		WeightGrams: 310,
	})
	if err != nil {
		t.Fatalf("failed to build cart: %v", err)
	}
	if err := f.carts.Save(context.Background(), cartID, bag); err != nil {
		t.Fatalf("failed to save cart: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestStart_EmptyCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.service.Start(context.Background(), "sess-1", "cart-1"); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestStart_CreatesIntentWithSubtotal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)

	result, err := f.service.Start(context.Background(), "sess-1", "cart-1")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if result.AmountCents != 5600 {
		t.Fatalf("unexpected amount: got=%d want=5600", result.AmountCents)
	}
	if result.ClientSecret == "" {
		t.Fatalf("expected client secret handle")
	}

	// Restarting the same session reuses the open flow.
	again, err := f.service.Start(context.Background(), "sess-1", "cart-1")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if again.IntentID != result.IntentID {
		t.Fatalf("expected same intent, got %s and %s", result.IntentID, again.IntentID)
	}
	if got := f.gateway.callLog(); len(got) != 1 || got[0] != "create" {
		t.Fatalf("expected a single create call, got %v", got)
	}
}

func TestRecordChange_DebouncedReconciliation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	status, err := f.service.RecordChange(ctx, "sess-1", ChangeInput{
		Country:          "US",
		ShippingMethodID: "ground",
		Email:            "shopper@example.com",
	})
	if err != nil {
		t.Fatalf("record change failed: %v", err)
	}
	if status.State != StateComputing {
		t.Fatalf("expected computing state, got %s", status.State)
	}
	if status.TotalCents != 5600+499 {
		t.Fatalf("unexpected local total: got=%d want=%d", status.TotalCents, 5600+499)
	}

	waitFor(t, time.Second, func() bool { return f.gateway.updateCount() == 1 })

	update, ok := f.gateway.lastUpdate()
	if !ok {
		t.Fatalf("expected a remote update")
	}
	if update.AmountCents != 6099 || update.ShippingCents != 499 {
		t.Fatalf("unexpected update params: %+v", update)
	}

	waitFor(t, time.Second, func() bool {
		st, err := f.service.Status("sess-1")
		return err == nil && st.State == StateSynced
	})
}

func TestRecordChange_IdenticalParamsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	input := ChangeInput{Country: "US", ShippingMethodID: "ground", Email: "shopper@example.com"}
	if _, err := f.service.RecordChange(ctx, "sess-1", input); err != nil {
		t.Fatalf("record change failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return f.gateway.updateCount() == 1 })

	// The same parameters again must not produce a second remote call.
	status, err := f.service.RecordChange(ctx, "sess-1", input)
	if err != nil {
		t.Fatalf("record change failed: %v", err)
	}
	if status.State != StateSynced {
		t.Fatalf("expected synced state after skip, got %s", status.State)
	}

	time.Sleep(4 * testWindow)
	if got := f.gateway.updateCount(); got != 1 {
		t.Fatalf("expected identical update to be skipped, got %d remote calls", got)
	}
}

func TestRecordChange_EmptyEmailHoldsSync(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := f.service.RecordChange(ctx, "sess-1", ChangeInput{
		Country:          "US",
		ShippingMethodID: "ground",
	}); err != nil {
		t.Fatalf("record change failed: %v", err)
	}

	time.Sleep(4 * testWindow)
	if got := f.gateway.updateCount(); got != 0 {
		t.Fatalf("expected no remote call without an email, got %d", got)
	}
}

func TestRecordChange_UnknownMethod(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	_, err := f.service.RecordChange(ctx, "sess-1", ChangeInput{
		Country:          "US",
		ShippingMethodID: "pigeon",
		Email:            "shopper@example.com",
	})
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
}

func TestRecordChange_NoCheckout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.service.RecordChange(context.Background(), "sess-1", ChangeInput{}); !errors.Is(err, ErrNoCheckout) {
		t.Fatalf("expected ErrNoCheckout, got %v", err)
	}
}

func TestReconcile_StaleCompletionDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	flow := f.service.flow("sess-1")

	flow.mu.Lock()
	flow.params = syncParams{SubtotalCents: 5600, ShippingCents: 499, Email: "shopper@example.com"}
	before := *flow.synced
	flow.mu.Unlock()

	// A newer dispatch lands while this update is in flight.
	f.gateway.onUpdate = func() {
		flow.mu.Lock()
		flow.seq++
		flow.mu.Unlock()
	}

	if err := f.service.reconcile(ctx, flow); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()
	if *flow.synced != before {
		t.Fatalf("stale completion overwrote newer synced state: %+v", flow.synced)
	}
}

func confirmInput() ConfirmInput {
	return ConfirmInput{
		Email:           "shopper@example.com",
		PaymentMethodID: "pm_card",
		Address: models.Address{
			Name:       "Jo Ember",
			Line1:      "1 Wick Lane",
			City:       "Portland",
			PostalCode: "97201",
			Country:    "US",
		},
	}
}

func startAndQuote(t *testing.T, f *serviceFixture) {
	t.Helper()

	ctx := context.Background()
	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := f.service.RecordChange(ctx, "sess-1", ChangeInput{
		Country:          "US",
		ShippingMethodID: "ground",
		Email:            "shopper@example.com",
	}); err != nil {
		t.Fatalf("record change failed: %v", err)
	}
}

func TestConfirm_CreatesOrderAndClearsCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()
	startAndQuote(t, f)

	order, err := f.service.Confirm(ctx, "sess-1", confirmInput())
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if order.TotalCents != 6099 {
		t.Fatalf("unexpected order total: got=%d want=6099", order.TotalCents)
	}
	if order.Status != models.StatusPaid {
		t.Fatalf("unexpected order status: %s", order.Status)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 2 || order.Items[0].UnitPriceCents != 2800 {
		t.Fatalf("unexpected order items: %+v", order.Items)
	}
	if order.Carrier != "USPS" {
		t.Fatalf("unexpected carrier: %s", order.Carrier)
	}

	// The forced sync is strictly ordered before the confirmation call.
	log := f.gateway.callLog()
	sawConfirm := false
	for _, call := range log {
		if call == "confirm" {
			sawConfirm = true
		}
		if call == "update" && sawConfirm {
			t.Fatalf("amount update after confirm: %v", log)
		}
	}
	if !sawConfirm {
		t.Fatalf("expected a confirm call: %v", log)
	}

	bag, err := f.carts.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("cart load failed: %v", err)
	}
	if !bag.IsEmpty() {
		t.Fatalf("expected cart cleared after successful order")
	}

	if _, err := f.service.Status("sess-1"); !errors.Is(err, ErrNoCheckout) {
		t.Fatalf("expected flow removed after success, got %v", err)
	}
}

func TestConfirm_SyncFailureIsBlocking(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()
	startAndQuote(t, f)

	// Wait out the debounced sync, then make the forced one fail on new params.
	waitFor(t, time.Second, func() bool { return f.gateway.updateCount() >= 1 })
	f.gateway.mu.Lock()
	f.gateway.updateErr = fmt.Errorf("stripe unavailable")
	f.gateway.mu.Unlock()

	// A new email at submission time diverges from the synced set, so the
	// forced sync must run and its failure must block the confirmation.
	input := confirmInput()
	input.Email = "other@example.com"
	if _, err := f.service.Confirm(ctx, "sess-1", input); !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("expected ErrSyncFailed, got %v", err)
	}

	bag, err := f.carts.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("cart load failed: %v", err)
	}
	if bag.IsEmpty() {
		t.Fatalf("expected cart untouched after blocked confirm")
	}
	if len(f.orders.orders) != 0 {
		t.Fatalf("expected no order after blocked confirm")
	}
}

func TestConfirm_PaymentFailureKeepsCart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()
	startAndQuote(t, f)
	f.gateway.confirmErr = fmt.Errorf("card declined")

	if _, err := f.service.Confirm(ctx, "sess-1", confirmInput()); !errors.Is(err, ErrPaymentFailed) {
		t.Fatalf("expected ErrPaymentFailed, got %v", err)
	}

	bag, err := f.carts.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("cart load failed: %v", err)
	}
	if bag.IsEmpty() {
		t.Fatalf("expected cart untouched after failed payment")
	}

	status, err := f.service.Status("sess-1")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.State != StateFailed {
		t.Fatalf("expected failed state, got %s", status.State)
	}
}

func TestConfirm_RecoversCapturedIntentOnConfirmError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()
	startAndQuote(t, f)
	f.gateway.confirmErr = fmt.Errorf("connection reset")
	f.gateway.getStatus = stripe.PaymentIntentStatusSucceeded

	order, err := f.service.Confirm(ctx, "sess-1", confirmInput())
	if err != nil {
		t.Fatalf("expected captured intent to be recovered, got %v", err)
	}
	if order == nil {
		t.Fatal("expected an order")
	}

	calls := f.gateway.callLog()
	sawGet := false
	for _, call := range calls {
		if call == "get" {
			sawGet = true
		}
	}
	if !sawGet {
		t.Fatalf("expected remote intent lookup after confirm error, calls: %v", calls)
	}

	bag, err := f.carts.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("cart load failed: %v", err)
	}
	if !bag.IsEmpty() {
		t.Fatal("expected cart cleared after recovered capture")
	}
	if len(f.orders.orders) != 1 {
		t.Fatalf("expected one order, got %d", len(f.orders.orders))
	}
}

func TestConfirm_OrderCreateFailureIsBlocking(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()
	startAndQuote(t, f)
	f.orders.createErr = fmt.Errorf("db down")

	if _, err := f.service.Confirm(ctx, "sess-1", confirmInput()); err == nil {
		t.Fatalf("expected order creation failure to surface")
	}

	bag, err := f.carts.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("cart load failed: %v", err)
	}
	if bag.IsEmpty() {
		t.Fatalf("expected cart untouched when the order row was not created")
	}
}

func TestConfirm_RequiresEmailAndMethod(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, "sess-1", "cart-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	input := confirmInput()
	input.Email = ""
	if _, err := f.service.Confirm(ctx, "sess-1", input); !errors.Is(err, ErrEmailRequired) {
		t.Fatalf("expected ErrEmailRequired, got %v", err)
	}

	// Email but no shipping method selected yet.
	if _, err := f.service.Confirm(ctx, "sess-1", confirmInput()); !errors.Is(err, ErrShippingMethodRequired) {
		t.Fatalf("expected ErrShippingMethodRequired, got %v", err)
	}
}

func TestClose_StopsPendingSyncOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedCart(t, "cart-1", 2)
	startAndQuote(t, f)

	f.service.Close("sess-1")

	time.Sleep(4 * testWindow)
	if got := f.gateway.updateCount(); got != 0 {
		t.Fatalf("expected pending sync cancelled on close, got %d calls", got)
	}
	if _, err := f.service.Status("sess-1"); !errors.Is(err, ErrNoCheckout) {
		t.Fatalf("expected flow removed after close, got %v", err)
	}
}
