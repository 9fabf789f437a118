package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embermillco/embermill/internal/models"
)

var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidStatusTransition  = errors.New("invalid order status transition")
	ErrDuplicatePaymentIntentID = errors.New("order already exists for payment intent")
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, user_id, customer_email, subtotal_cents, shipping_cents, total_cents,
	currency, stripe_payment_intent_id, shipping_address, shipping_method,
	carrier, tracking_number, tracking_url, failure_reason, status,
	created_at, paid_at, shipped_at, delivered_at
`

// Create persists the order and its line items in one transaction. The
// unique index on the payment intent ID makes retried confirmations safe.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	query := `
		INSERT INTO orders (
			id, user_id, customer_email, subtotal_cents, shipping_cents,
			total_cents, currency, stripe_payment_intent_id, shipping_address,
			shipping_method, carrier, status, created_at, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, paid_at
	`
	var createdAt, paidAt pgtype.Timestamptz
	err = tx.QueryRow(ctx, query,
		order.ID,
		order.UserID,
		order.CustomerEmail,
		order.SubtotalCents,
		order.ShippingCents,
		order.TotalCents,
		order.Currency,
		nullText(order.PaymentIntentID),
		addressJSON,
		order.ShippingMethod,
		nullText(order.Carrier),
		string(order.Status),
	).Scan(&createdAt, &paidAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicatePaymentIntentID, order.PaymentIntentID)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, title, unit_price_cents, quantity, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, item.ProductID, item.VariantID, item.Title, item.UnitPriceCents, item.Quantity, item.ImageURL)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}

	order.CreatedAt = createdAt.Time
	order.PaidAt = paidAt.Time
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id = $1`, intentID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// List returns the most recent orders, optionally filtered by status.
func (s *OrderStore) List(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order rows: %w", err)
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

// MarkPaid records a webhook-confirmed payment. Safe to retry: paid is an
// allowed source status.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error {
	query := `
		UPDATE orders
		SET status = $1, stripe_payment_intent_id = $2, paid_at = NOW(), failure_reason = NULL
		WHERE id = $3 AND status IN ('pending_payment', 'payment_failed', 'paid')
	`
	return s.guardedUpdate(ctx, query, "pending_payment/payment_failed/paid", string(models.StatusPaid), paymentIntentID, orderID)
}

func (s *OrderStore) MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error {
	query := `
		UPDATE orders
		SET status = $1, failure_reason = $2
		WHERE id = $3 AND status IN ('pending_payment', 'payment_failed')
	`
	return s.guardedUpdate(ctx, query, "pending_payment/payment_failed", string(models.StatusPaymentFailed), reason, orderID)
}

func (s *OrderStore) MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier, trackingURL string) error {
	query := `
		UPDATE orders
		SET status = $1, tracking_number = $2, carrier = $3, tracking_url = $4, shipped_at = NOW()
		WHERE id = $5 AND status = 'paid'
	`
	return s.guardedUpdate(ctx, query, "paid", string(models.StatusShipped), nullText(trackingNumber), nullText(carrier), nullText(trackingURL), orderID)
}

func (s *OrderStore) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1, delivered_at = NOW()
		WHERE id = $2 AND status = 'shipped'
	`
	return s.guardedUpdate(ctx, query, "shipped", string(models.StatusDelivered), orderID)
}

func (s *OrderStore) MarkRefunded(ctx context.Context, orderID uuid.UUID) error {
	query := `
		UPDATE orders
		SET status = $1
		WHERE id = $2 AND status IN ('paid', 'shipped', 'delivered')
	`
	return s.guardedUpdate(ctx, query, "paid/shipped/delivered", string(models.StatusRefunded), orderID)
}

// guardedUpdate runs a status-guarded UPDATE and maps zero affected rows to
// ErrInvalidStatusTransition.
func (s *OrderStore) guardedUpdate(ctx context.Context, query, expected string, args ...any) error {
	cmdTag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected %s", ErrInvalidStatusTransition, expected)
	}
	return nil
}

func (s *OrderStore) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, variant_id, title, unit_price_cents, quantity, image_url
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.VariantID, &item.Title, &item.UnitPriceCents, &item.Quantity, &item.ImageURL); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order          models.Order
		status         string
		addressJSON    []byte
		paymentIntent  pgtype.Text
		carrier        pgtype.Text
		trackingNumber pgtype.Text
		trackingURL    pgtype.Text
		failureReason  pgtype.Text
		createdAt      pgtype.Timestamptz
		paidAt         pgtype.Timestamptz
		shippedAt      pgtype.Timestamptz
		deliveredAt    pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.CustomerEmail,
		&order.SubtotalCents,
		&order.ShippingCents,
		&order.TotalCents,
		&order.Currency,
		&paymentIntent,
		&addressJSON,
		&order.ShippingMethod,
		&carrier,
		&trackingNumber,
		&trackingURL,
		&failureReason,
		&status,
		&createdAt,
		&paidAt,
		&shippedAt,
		&deliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shipping address: %w", err)
	}

	order.Status = models.OrderStatus(status)
	order.PaymentIntentID = paymentIntent.String
	order.Carrier = carrier.String
	order.TrackingNumber = trackingNumber.String
	order.TrackingURL = trackingURL.String
	order.FailureReason = failureReason.String
	order.CreatedAt = createdAt.Time
	order.PaidAt = paidAt.Time
	order.ShippedAt = shippedAt.Time
	order.DeliveredAt = deliveredAt.Time

	return &order, nil
}

func nullText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
