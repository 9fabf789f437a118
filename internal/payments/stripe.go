// Package payments wraps the Stripe PaymentIntents API used by checkout.
package payments

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// Client talks to Stripe for payment intent lifecycle operations.
type Client struct {
	client   *stripe.Client
	currency string
}

func NewClient(secretKey, currency string) *Client {
	return &Client{
		client:   stripe.NewClient(secretKey),
		currency: currency,
	}
}

// Intent is the subset of the remote payment intent state checkout cares
// about. Amounts are in minor currency units.
type Intent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Status       stripe.PaymentIntentStatus
}

// IntentParams carries the locally computed totals pushed to the remote
// intent. Amounts are in minor currency units.
type IntentParams struct {
	AmountCents   int64
	SubtotalCents int64
	ShippingCents int64
	ReceiptEmail  string
	SessionID     string
	CartID        string
}

// CreateIntent opens a payment authorization for a checkout session.
func (c *Client) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if params.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", params.AmountCents)
	}

	createParams := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(params.AmountCents),
		Currency: stripe.String(c.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: intentMetadata(params),
	}
	if params.ReceiptEmail != "" {
		createParams.ReceiptEmail = stripe.String(params.ReceiptEmail)
	}

	intent, err := c.client.V1PaymentIntents.Create(ctx, createParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return fromStripeIntent(intent), nil
}

// UpdateIntentAmount reconciles the remote authorization amount with the
// locally computed total. Idempotent no-op detection happens in the caller;
// this always issues the remote call.
func (c *Client) UpdateIntentAmount(ctx context.Context, intentID string, params IntentParams) (*Intent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if intentID == "" {
		return nil, fmt.Errorf("intent id is required")
	}

	updateParams := &stripe.PaymentIntentUpdateParams{
		Amount:   stripe.Int64(params.AmountCents),
		Metadata: intentMetadata(params),
	}
	if params.ReceiptEmail != "" {
		updateParams.ReceiptEmail = stripe.String(params.ReceiptEmail)
	}

	intent, err := c.client.V1PaymentIntents.Update(ctx, intentID, updateParams)
	if err != nil {
		return nil, fmt.Errorf("failed to update payment intent: %w", err)
	}

	return fromStripeIntent(intent), nil
}

// ConfirmIntent captures the payment with the shopper's chosen payment
// method. Callers must have reconciled the amount first.
func (c *Client) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if intentID == "" {
		return nil, fmt.Errorf("intent id is required")
	}
	if paymentMethodID == "" {
		return nil, fmt.Errorf("payment method id is required")
	}

	intent, err := c.client.V1PaymentIntents.Confirm(ctx, intentID, &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	return fromStripeIntent(intent), nil
}

// GetIntent fetches the current remote state of a payment intent.
func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	intent, err := c.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return fromStripeIntent(intent), nil
}

func intentMetadata(params IntentParams) map[string]string {
	return map[string]string{
		"checkout_session_id": params.SessionID,
		"cart_id":             params.CartID,
		"subtotal_cents":      fmt.Sprintf("%d", params.SubtotalCents),
		"shipping_cents":      fmt.Sprintf("%d", params.ShippingCents),
	}
}

func fromStripeIntent(intent *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  intent.Amount,
		Status:       intent.Status,
	}
}

// Succeeded reports whether the intent captured payment.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == stripe.PaymentIntentStatusSucceeded
}
