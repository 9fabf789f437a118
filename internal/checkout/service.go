// Package checkout keeps the remote payment authorization amount consistent
// with locally computed totals, then converts a successful authorization
// into a persisted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/embermillco/embermill/internal/cart"
	"github.com/embermillco/embermill/internal/catalog"
	"github.com/embermillco/embermill/internal/logging"
	"github.com/embermillco/embermill/internal/models"
	"github.com/embermillco/embermill/internal/observability"
	"github.com/embermillco/embermill/internal/payments"
	"github.com/embermillco/embermill/internal/shipping"
)

var (
	ErrNoCheckout             = errors.New("no active checkout for session")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrEmailRequired          = errors.New("contact email is required")
	ErrShippingMethodRequired = errors.New("shipping method is required")
	ErrMethodNotFound         = errors.New("shipping method not available for destination")
	ErrSyncFailed             = errors.New("failed to reconcile payment amount")
	ErrPaymentFailed          = errors.New("payment confirmation failed")
)

// DefaultQuiescenceWindow is how long a burst of checkout changes must be
// quiet before the remote amount update fires.
const DefaultQuiescenceWindow = time.Second

// PaymentGateway is the remote payment authorization the flow reconciles
// against.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, params payments.IntentParams) (*payments.Intent, error)
	UpdateIntentAmount(ctx context.Context, intentID string, params payments.IntentParams) (*payments.Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*payments.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*payments.Intent, error)
}

type orderCreator interface {
	Create(ctx context.Context, order *models.Order) error
}

type linePricer interface {
	ComputeLineCents(c *catalog.Catalog, variantID string, quantity int) (int, error)
}

// OrderEmailSender delivers the order confirmation. Implementations must not
// block checkout: delivery failures are logged, never surfaced.
type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order)
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderConfirmation(context.Context, *models.Order) {}

type Service struct {
	gateway     PaymentGateway
	orders      orderCreator
	carts       cart.Store
	resolver    *shipping.Resolver
	catalog     *catalog.Catalog
	pricer      linePricer
	emailSender OrderEmailSender
	logger      *slog.Logger
	window      time.Duration
	currency    string

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewService(gateway PaymentGateway, orders orderCreator, carts cart.Store, resolver *shipping.Resolver, cat *catalog.Catalog, pricer linePricer, emailSender OrderEmailSender, currency string, window time.Duration, logger *slog.Logger) *Service {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}
	if window <= 0 {
		window = DefaultQuiescenceWindow
	}

	return &Service{
		gateway:     gateway,
		orders:      orders,
		carts:       carts,
		resolver:    resolver,
		catalog:     cat,
		pricer:      pricer,
		emailSender: emailSender,
		logger:      logger,
		window:      window,
		currency:    currency,
		flows:       make(map[string]*Flow),
	}
}

func (s *Service) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// StartResult is the client-side handle for a freshly opened checkout.
type StartResult struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	AmountCents  int64  `json:"amount_cents"`
	Status       Status `json:"status"`
}

// Start opens a payment authorization for the session's cart and registers
// the reconciliation flow. Starting an already-started session returns the
// existing handle.
func (s *Service) Start(ctx context.Context, sessionID, cartID string) (*StartResult, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.start",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Start"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	if flow := s.flow(sessionID); flow != nil {
		flow.mu.Lock()
		defer flow.mu.Unlock()
		return &StartResult{
			IntentID:     flow.intentID,
			ClientSecret: flow.clientSecret,
			AmountCents:  flow.params.SubtotalCents + flow.params.ShippingCents,
			Status:       flow.status(),
		}, nil
	}

	bag, err := s.carts.Load(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if bag.IsEmpty() {
		return nil, ErrEmptyCart
	}

	subtotalCents := minorUnits(bag.Subtotal())
	intent, err := s.gateway.CreateIntent(ctx, payments.IntentParams{
		AmountCents:   subtotalCents,
		SubtotalCents: subtotalCents,
		SessionID:     sessionID,
		CartID:        cartID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	flow := &Flow{
		sessionID:    sessionID,
		cartID:       cartID,
		intentID:     intent.ID,
		clientSecret: intent.ClientSecret,
		state:        StateIdle,
		params:       syncParams{SubtotalCents: subtotalCents},
	}
	flow.synced = &syncParams{SubtotalCents: subtotalCents}
	flow.debouncer = NewDebouncer(s.window, func(ctx context.Context) error {
		return s.reconcile(ctx, flow)
	}, func(err error) {
		// Advisory only: the next reconciliation attempt, or the forced
		// pre-confirmation sync, corrects the amount.
		s.logger.Warn("debounced reconciliation failed", "error", err, "session_id", sessionID)
	})

	s.mu.Lock()
	s.flows[sessionID] = flow
	s.mu.Unlock()

	observability.MeterFromContext(ctx).Count("checkout.started", 1)

	return &StartResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  subtotalCents,
		Status:       flow.status(),
	}, nil
}

// ChangeInput is a shipping method, destination, or contact email change on
// an open checkout.
type ChangeInput struct {
	Country          string
	ShippingMethodID string
	Email            string
}

// RecordChange recomputes the local total for a change and schedules a
// debounced remote amount update. Identical-parameter and empty-email
// updates are skipped.
func (s *Service) RecordChange(ctx context.Context, sessionID string, input ChangeInput) (*Status, error) {
	flow := s.flow(sessionID)
	if flow == nil {
		return nil, ErrNoCheckout
	}

	meter := observability.MeterFromContext(ctx)

	bag, err := s.carts.Load(ctx, flow.cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	if input.Email != "" {
		flow.params.Email = strings.TrimSpace(input.Email)
	}
	flow.params.SubtotalCents = minorUnits(bag.Subtotal())

	country := flow.destination
	methodID := flow.methodID
	if input.Country != "" {
		country = input.Country
	}
	if input.ShippingMethodID != "" {
		methodID = input.ShippingMethodID
	}

	if country != "" && methodID != "" {
		resolution := s.resolver.Resolve(country, bag.Subtotal(), bag.WeightGrams())
		quote, ok := findQuote(resolution.Quotes, methodID)
		if !ok {
			return nil, fmt.Errorf("%w: %s in %s", ErrMethodNotFound, methodID, country)
		}
		flow.setQuote(country, quote, resolution.Fallback)
		flow.params.ShippingCents = quote.PriceCents()
	}

	if flow.synced != nil && flow.params == *flow.synced {
		meter.Count("checkout.sync.skipped", 1, sentry.WithAttributes(
			attribute.String("reason", "identical_params"),
		))
		return statusOf(flow), nil
	}

	if flow.params.Email == "" {
		// The remote intent needs a receipt email to be meaningful; hold the
		// update until one arrives.
		meter.Count("checkout.sync.skipped", 1, sentry.WithAttributes(
			attribute.String("reason", "missing_email"),
		))
		return statusOf(flow), nil
	}

	flow.state = StateComputing
	flow.debouncer.Trigger()
	meter.Count("checkout.sync.scheduled", 1)

	return statusOf(flow), nil
}

// reconcile pushes the latest parameter set to the remote intent. It is the
// debounced body and the forced pre-confirmation sync; stale completions are
// discarded via the flow's sequence token.
func (s *Service) reconcile(ctx context.Context, flow *Flow) error {
	meter := observability.MeterFromContext(ctx)

	flow.mu.Lock()
	params := flow.params
	if params.Email == "" {
		flow.mu.Unlock()
		return nil
	}
	if flow.synced != nil && params == *flow.synced {
		if flow.state == StateComputing {
			flow.state = StateSynced
		}
		flow.mu.Unlock()
		return nil
	}
	flow.seq++
	seq := flow.seq
	intentID := flow.intentID
	sessionID := flow.sessionID
	cartID := flow.cartID
	flow.mu.Unlock()

	_, err := s.gateway.UpdateIntentAmount(ctx, intentID, payments.IntentParams{
		AmountCents:   params.SubtotalCents + params.ShippingCents,
		SubtotalCents: params.SubtotalCents,
		ShippingCents: params.ShippingCents,
		ReceiptEmail:  params.Email,
		SessionID:     sessionID,
		CartID:        cartID,
	})
	if err != nil {
		meter.Count("checkout.sync.failed", 1)
		return fmt.Errorf("failed to update payment amount: %w", err)
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()

	if flow.seq != seq {
		// A newer update was dispatched while this one was in flight; its
		// result supersedes ours.
		meter.Count("checkout.sync.stale_discarded", 1)
		return nil
	}

	flow.synced = &params
	if flow.state == StateComputing {
		flow.state = StateSynced
	}
	meter.Count("checkout.sync.completed", 1)

	return nil
}

// ConfirmInput carries the final submission of a checkout.
type ConfirmInput struct {
	Email           string
	PaymentMethodID string
	Address         models.Address
}

// Confirm runs the forced pre-confirmation sync, captures the payment, and
// converts the authorization into a persisted order. The sync is strictly
// ordered before the confirmation call. Any failure here is blocking: the
// cart is left intact so the shopper can retry without re-entering data.
func (s *Service) Confirm(ctx context.Context, sessionID string, input ConfirmInput) (*models.Order, error) {
	span := sentry.StartSpan(
		ctx,
		"service.checkout.confirm",
		sentry.WithOpName("service.checkout"),
		sentry.WithDescription("Confirm"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailure := func(reason string) {
		meter.Count("checkout.confirm.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	flow := s.flow(sessionID)
	if flow == nil {
		recordFailure("no_checkout")
		return nil, ErrNoCheckout
	}

	flow.mu.Lock()
	if input.Email != "" {
		flow.params.Email = strings.TrimSpace(input.Email)
	}
	if flow.params.Email == "" {
		flow.mu.Unlock()
		recordFailure("missing_email")
		return nil, ErrEmailRequired
	}
	if flow.methodID == "" {
		flow.mu.Unlock()
		recordFailure("missing_shipping_method")
		return nil, ErrShippingMethodRequired
	}
	flow.state = StateConfirming
	cartID := flow.cartID
	flow.mu.Unlock()

	bag, err := s.carts.Load(ctx, cartID)
	if err != nil {
		recordFailure("cart_load_failed")
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if bag.IsEmpty() {
		recordFailure("empty_cart")
		return nil, ErrEmptyCart
	}

	items, err := s.snapshotItems(ctx, bag)
	if err != nil {
		recordFailure("availability_check_failed")
		return nil, err
	}

	// Forced sync: guarantees the authorized amount is current at the moment
	// of capture, even when the shopper changed shipping and submitted
	// before the debounce fired.
	if err := flow.debouncer.Flush(ctx); err != nil {
		flow.mu.Lock()
		flow.state = StateComputing
		flow.mu.Unlock()
		recordFailure("sync_failed")
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	intent, err := s.gateway.ConfirmIntent(ctx, flow.intentID, input.PaymentMethodID)
	if err != nil {
		// The confirm call can fail transport-side after Stripe already
		// captured. Check the remote state before declaring the payment dead.
		remote, getErr := s.gateway.GetIntent(ctx, flow.intentID)
		if getErr == nil && remote.Succeeded() {
			logger.Warn("confirm call failed but intent already captured", "error", err, "payment_intent_id", flow.intentID)
			intent = remote
		} else {
			flow.mu.Lock()
			flow.state = StateFailed
			flow.mu.Unlock()
			recordFailure("confirm_call_failed")
			return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
	}
	if !intent.Succeeded() {
		flow.mu.Lock()
		flow.state = StateFailed
		flow.mu.Unlock()
		recordFailure("not_succeeded")
		return nil, fmt.Errorf("%w: intent status %s", ErrPaymentFailed, intent.Status)
	}

	flow.mu.Lock()
	params := flow.params
	order := &models.Order{
		ID:              uuid.New(),
		CustomerEmail:   params.Email,
		Items:           items,
		SubtotalCents:   int(params.SubtotalCents),
		ShippingCents:   int(params.ShippingCents),
		TotalCents:      int(params.SubtotalCents + params.ShippingCents),
		Currency:        s.currency,
		PaymentIntentID: flow.intentID,
		ShippingAddress: input.Address,
		ShippingMethod:  flow.methodName,
		Carrier:         shipping.CanonicalCarrierName(flow.methodCarrier),
		Status:          models.StatusPaid,
	}
	flow.mu.Unlock()

	if err := s.orders.Create(ctx, order); err != nil {
		// Payment captured but no order row: blocking, cart untouched, the
		// shopper support path has the intent ID to reconcile manually.
		flow.mu.Lock()
		flow.state = StateFailed
		flow.mu.Unlock()
		recordFailure("order_create_failed")
		logger.Error("order creation failed after successful payment", "error", err, "payment_intent_id", order.PaymentIntentID)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	flow.mu.Lock()
	flow.state = StateSucceeded
	flow.mu.Unlock()

	if err := s.carts.Delete(ctx, cartID); err != nil {
		logger.Warn("failed to clear cart after order creation", "error", err, "cart_id", cartID)
	}

	s.emailSender.SendOrderConfirmation(ctx, order)

	s.mu.Lock()
	delete(s.flows, sessionID)
	s.mu.Unlock()

	meter.Count("order.created", 1)
	logger.Info("order created", "order_id", order.ID, "total_cents", order.TotalCents)

	return order, nil
}

// Status returns the flow snapshot for a session.
func (s *Service) Status(sessionID string) (*Status, error) {
	flow := s.flow(sessionID)
	if flow == nil {
		return nil, ErrNoCheckout
	}

	flow.mu.Lock()
	defer flow.mu.Unlock()
	return statusOf(flow), nil
}

// Close abandons a session's checkout. Only the pending debounce timer is
// cancelled; already-dispatched network calls run to completion and are
// handled by the stale-token guard.
func (s *Service) Close(sessionID string) {
	s.mu.Lock()
	flow, ok := s.flows[sessionID]
	if ok {
		delete(s.flows, sessionID)
	}
	s.mu.Unlock()

	if ok {
		flow.debouncer.Stop()
	}
}

func (s *Service) flow(sessionID string) *Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flows[sessionID]
}

// snapshotItems builds immutable order items from the cart, re-checking
// availability against the live catalog before payment capture.
func (s *Service) snapshotItems(ctx context.Context, bag *cart.Cart) ([]models.OrderItem, error) {
	logger := s.loggerFromContext(ctx)

	items := make([]models.OrderItem, 0, len(bag.Lines))
	for _, line := range bag.Lines {
		lineCents, err := s.pricer.ComputeLineCents(s.catalog, line.VariantID, line.Quantity)
		if err != nil {
			return nil, fmt.Errorf("cart line %s unavailable: %w", line.VariantID, err)
		}

		unitCents := minorUnits(line.UnitPrice)
		if int(unitCents)*line.Quantity != lineCents {
			logger.Warn("cart price drifted from catalog",
				"variant_id", line.VariantID,
				"cart_cents", int(unitCents)*line.Quantity,
				"catalog_cents", lineCents)
		}

		items = append(items, models.OrderItem{
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Title:          line.Title,
			UnitPriceCents: int(unitCents),
			Quantity:       line.Quantity,
			ImageURL:       line.ImageURL,
		})
	}

	return items, nil
}

func statusOf(flow *Flow) *Status {
	st := flow.status()
	return &st
}

func findQuote(quotes []shipping.Quote, methodID string) (shipping.Quote, bool) {
	for _, quote := range quotes {
		if quote.ID == methodID {
			return quote, true
		}
	}
	return shipping.Quote{}, false
}

// minorUnits converts a major-unit decimal amount to integer minor units at
// the remote boundary.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
