package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/embermillco/embermill/internal/cache"
	"github.com/embermillco/embermill/internal/db"
	"github.com/embermillco/embermill/internal/payments"
)

// stripeWebhookIdempotencyTTL is how long webhook event IDs are kept for deduplication
const stripeWebhookIdempotencyTTL = 24 * time.Hour

func (h *Handlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)

	event, err := payments.ReadWebhookEvent(r, h.config.StripeWebhookSecret)
	if err != nil {
		logger.Error("failed to read Stripe webhook payload", "error", err)
		http.Error(w, "Invalid webhook", http.StatusBadRequest)
		return
	}

	if event == nil || event.ID == "" {
		logger.Error("missing Stripe event ID")
		http.Error(w, "Missing event ID", http.StatusBadRequest)
		return
	}

	cacheKey := cache.WebhookKey("stripe", event.ID)
	if _, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		logger.Info("webhook already processed", "event_id", event.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	processErr := h.handleStripeEvent(ctx, event)
	if processErr == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, "processed", stripeWebhookIdempotencyTTL); err != nil {
			logger.Error("failed to mark webhook as processed in cache", "error", err)
		}
	}
	if processErr != nil {
		logger.Error("failed to process Stripe webhook", "error", processErr, "type", event.Type)
		http.Error(w, "Processing failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleStripeEvent reconciles asynchronous payment outcomes with the order
// table. Events for intents that never became orders are acknowledged and
// skipped: the synchronous confirm path owns order creation.
func (h *Handlers) handleStripeEvent(ctx context.Context, event *stripeapi.Event) error {
	logger := h.loggerFromContext(ctx)

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		logger.Debug("ignoring Stripe event", "type", event.Type)
		return nil
	}

	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return fmt.Errorf("failed to decode payment intent event: %w", err)
	}

	order, err := h.orderStore.GetByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Info("no order for payment intent, skipping", "payment_intent_id", intent.ID, "type", event.Type)
			return nil
		}
		return fmt.Errorf("failed to look up order for intent %s: %w", intent.ID, err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = h.orderStore.MarkPaid(ctx, order.ID, intent.ID)
	case "payment_intent.payment_failed":
		reason := "payment failed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		err = h.orderStore.MarkFailed(ctx, order.ID, reason)
	}
	if err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			// Late or out-of-order event; the order already moved on.
			logger.Info("ignoring stale payment event", "order_id", order.ID, "type", event.Type)
			return nil
		}
		return fmt.Errorf("failed to apply payment event to order %s: %w", order.ID, err)
	}

	logger.Info("applied payment event", "order_id", order.ID, "type", event.Type)
	return nil
}
