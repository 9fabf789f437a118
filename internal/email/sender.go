package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/embermillco/embermill/internal/models"
)

const sendTimeout = 30 * time.Second

// Sender renders and delivers order emails without blocking the caller.
// Delivery failures are logged, never returned: email is a side effect of
// checkout, not part of it.
type Sender struct {
	provider  Provider
	renderer  *Renderer
	storeName string
	storeURL  string
	logger    *slog.Logger
}

func NewSender(provider Provider, storeName, storeURL string, logger *slog.Logger) (*Sender, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to create email renderer: %w", err)
	}

	return &Sender{
		provider:  provider,
		renderer:  renderer,
		storeName: storeName,
		storeURL:  storeURL,
		logger:    logger,
	}, nil
}

// SendOrderConfirmation delivers the confirmation email in the background.
func (s *Sender) SendOrderConfirmation(_ context.Context, order *models.Order) {
	s.sendAsync("order_confirmation", order)
}

// SendOrderShipped delivers the shipped notification in the background.
func (s *Sender) SendOrderShipped(_ context.Context, order *models.Order) {
	s.sendAsync("order_shipped", order)
}

func (s *Sender) sendAsync(templateName string, order *models.Order) {
	if s.provider == nil || order.CustomerEmail == "" {
		return
	}

	info := s.orderInfo(order)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		email, err := s.renderer.Render(templateName, info)
		if err != nil {
			s.logger.Error("failed to render order email", "error", err, "template", templateName, "order_id", order.ID)
			return
		}
		if err := s.provider.SendEmail(ctx, email); err != nil {
			s.logger.Error("failed to send order email", "error", err, "template", templateName, "order_id", order.ID)
			return
		}
		s.logger.Info("order email sent", "template", templateName, "order_id", order.ID)
	}()
}

func (s *Sender) orderInfo(order *models.Order) *OrderInfo {
	items := make([]ItemInfo, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemInfo{
			Title:      item.Title,
			Quantity:   item.Quantity,
			TotalPrice: FormatCents(item.UnitPriceCents*item.Quantity, order.Currency),
		})
	}

	date := order.CreatedAt
	if !order.ShippedAt.IsZero() {
		date = order.ShippedAt
	}

	return &OrderInfo{
		OrderID:         order.ID.String(),
		CustomerEmail:   order.CustomerEmail,
		StoreName:       s.storeName,
		StoreURL:        s.storeURL,
		OrderDate:       date.Format("January 2, 2006"),
		Items:           items,
		Subtotal:        FormatCents(order.SubtotalCents, order.Currency),
		Shipping:        FormatCents(order.ShippingCents, order.Currency),
		Total:           FormatCents(order.TotalCents, order.Currency),
		ShippingMethod:  order.ShippingMethod,
		ShippingAddress: formatAddress(order.ShippingAddress),
		TrackingNumber:  order.TrackingNumber,
		TrackingURL:     order.TrackingURL,
		Carrier:         order.Carrier,
	}
}

// FormatCents renders a minor-unit amount as a display string, e.g. 1250
// usd -> "$12.50".
func FormatCents(cents int, currency string) string {
	symbol := "$"
	switch strings.ToLower(currency) {
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, cents/100, cents%100)
}

func formatAddress(addr models.Address) string {
	parts := []string{addr.Name, addr.Line1}
	if addr.Line2 != "" {
		parts = append(parts, addr.Line2)
	}
	cityLine := addr.City
	if addr.State != "" {
		cityLine += ", " + addr.State
	}
	cityLine += " " + addr.PostalCode
	parts = append(parts, cityLine, addr.Country)
	return strings.Join(parts, "\n")
}
