package email

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/embermillco/embermill/internal/models"
)

func testSender(t *testing.T) *Sender {
	t.Helper()

	sender, err := NewSender(nil, "Embermill", "https://embermill.co", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("sender failed: %v", err)
	}
	return sender
}

func sampleOrder() *models.Order {
	return &models.Order{
		ID:            uuid.MustParse("8b7c0a6e-1f7e-4a43-a2a0-1f0c9e2d3b4c"),
		CustomerEmail: "shopper@example.com",
		Items: []models.OrderItem{
			{Title: "Amber Noir Candle - 8 oz", UnitPriceCents: 2800, Quantity: 2},
		},
		SubtotalCents: 5600,
		ShippingCents: 499,
		TotalCents:    6099,
		Currency:      "usd",
		ShippingAddress: models.Address{
			Name:       "Jo Ember",
			Line1:      "1 Wick Lane",
			City:       "Portland",
			State:      "OR",
			PostalCode: "97201",
			Country:    "US",
		},
		ShippingMethod: "Ground Shipping",
		Status:         models.StatusPaid,
		CreatedAt:      time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestOrderInfo(t *testing.T) {
	t.Parallel()

	info := testSender(t).orderInfo(sampleOrder())

	if info.OrderDate != "August 20, 2026" {
		t.Fatalf("unexpected order date: %s", info.OrderDate)
	}
	if info.Subtotal != "$56.00" || info.Shipping != "$4.99" || info.Total != "$60.99" {
		t.Fatalf("unexpected money fields: %s %s %s", info.Subtotal, info.Shipping, info.Total)
	}
	if len(info.Items) != 1 || info.Items[0].TotalPrice != "$56.00" {
		t.Fatalf("unexpected items: %+v", info.Items)
	}
	if info.ShippingAddress != "Jo Ember\n1 Wick Lane\nPortland, OR 97201\nUS" {
		t.Fatalf("unexpected address: %q", info.ShippingAddress)
	}
}

func TestOrderInfo_UsesShippedDateWhenSet(t *testing.T) {
	t.Parallel()

	order := sampleOrder()
	order.ShippedAt = time.Date(2026, time.August, 22, 9, 0, 0, 0, time.UTC)

	info := testSender(t).orderInfo(order)
	if info.OrderDate != "August 22, 2026" {
		t.Fatalf("unexpected shipped date: %s", info.OrderDate)
	}
}

func TestSendAsync_SkipsWithoutProviderOrRecipient(t *testing.T) {
	t.Parallel()

	sender := testSender(t)

	// Provider is nil, so this must be a no-op rather than a panic.
	sender.SendOrderConfirmation(t.Context(), sampleOrder())

	order := sampleOrder()
	order.CustomerEmail = ""
	sender.SendOrderShipped(t.Context(), order)
}
