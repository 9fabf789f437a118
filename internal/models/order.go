package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusPaid           OrderStatus = "paid"
	StatusPaymentFailed  OrderStatus = "payment_failed"
	StatusShipped        OrderStatus = "shipped"
	StatusDelivered      OrderStatus = "delivered"
	StatusRefunded       OrderStatus = "refunded"
)

// Address is the shipping address snapshot stored with an order.
type Address struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// OrderItem is an immutable snapshot of a cart line at order creation time.
// It never references live catalog data, so the order stays historically
// accurate when products are renamed or repriced.
type OrderItem struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id"`
	Title          string `json:"title"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
	ImageURL       string `json:"image_url"`
}

type Order struct {
	ID              uuid.UUID   `json:"id"`
	UserID          string      `json:"user_id"` // empty for guest checkout
	CustomerEmail   string      `json:"customer_email"`
	Items           []OrderItem `json:"items"`
	SubtotalCents   int         `json:"subtotal_cents"`
	ShippingCents   int         `json:"shipping_cents"`
	TotalCents      int         `json:"total_cents"`
	Currency        string      `json:"currency"`
	PaymentIntentID string      `json:"payment_intent_id"`
	ShippingAddress Address     `json:"shipping_address"`
	ShippingMethod  string      `json:"shipping_method"`
	Carrier         string      `json:"carrier"`
	TrackingNumber  string      `json:"tracking_number"`
	TrackingURL     string      `json:"tracking_url"`
	FailureReason   string      `json:"failure_reason"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
	PaidAt          time.Time   `json:"paid_at"`
	ShippedAt       time.Time   `json:"shipped_at"`
	DeliveredAt     time.Time   `json:"delivered_at"`
}

// OrderSummary is the post-purchase confirmation view of an order.
type OrderSummary struct {
	ID         uuid.UUID   `json:"id"`
	Status     OrderStatus `json:"status"`
	TotalCents int         `json:"total_cents"`
	Currency   string      `json:"currency"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		ID:         o.ID,
		Status:     o.Status,
		TotalCents: o.TotalCents,
		Currency:   o.Currency,
		CreatedAt:  o.CreatedAt,
	}
}
