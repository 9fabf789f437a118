package email

import (
	"bytes"
	"fmt"
	"text/template"
)

// OrderInfo is the rendering model for order emails. All money fields are
// pre-formatted strings.
type OrderInfo struct {
	OrderID         string
	CustomerEmail   string
	StoreName       string
	StoreURL        string
	OrderDate       string
	Items           []ItemInfo
	Subtotal        string
	Shipping        string
	Total           string
	ShippingMethod  string
	ShippingAddress string
	TrackingNumber  string
	TrackingURL     string
	Carrier         string
}

// ItemInfo is a single line on an order email.
type ItemInfo struct {
	Title      string
	Quantity   int
	TotalPrice string
}

// Renderer renders the built-in order email templates.
type Renderer struct {
	templates *template.Template
}

func NewRenderer() (*Renderer, error) {
	sources := map[string]string{
		"order_confirmation_html": orderConfirmationHTML,
		"order_confirmation_text": orderConfirmationText,
		"order_shipped_html":      orderShippedHTML,
		"order_shipped_text":      orderShippedText,
	}

	tmpl := template.New("email")
	for name, source := range sources {
		if _, err := tmpl.New(name).Parse(source); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

// Render produces a ready-to-send email for the named template.
func (r *Renderer) Render(templateName string, data *OrderInfo) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer

	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	var subject string
	switch templateName {
	case "order_confirmation":
		subject = fmt.Sprintf("Order Confirmed - %s - %s", data.OrderID, data.StoreName)
	case "order_shipped":
		subject = fmt.Sprintf("Your Order Has Shipped - %s - %s", data.OrderID, data.StoreName)
	default:
		return nil, fmt.Errorf("unknown email template: %s", templateName)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

const orderConfirmationText = `Thank you for your order!

Order: {{.OrderID}}
Order Date: {{.OrderDate}}

Items:
{{range .Items}}
- {{.Title}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}

Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}{{if .ShippingMethod}} ({{.ShippingMethod}}){{end}}
Total: {{.Total}}

We'll send you another email when your order ships.

Thank you for shopping with {{.StoreName}}!
{{.StoreURL}}
`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Order Confirmation</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #b45309; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #fffbeb; padding: 20px; border: 1px solid #fde68a; }
    .order-info { background: white; padding: 15px; border-radius: 6px; margin: 15px 0; }
    .items-table { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items-table th { text-align: left; padding: 10px; background: #fef3c7; border-bottom: 2px solid #fde68a; }
    .items-table td { padding: 10px; border-bottom: 1px solid #fde68a; }
    .total { font-size: 18px; font-weight: bold; text-align: right; padding: 15px 0; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Order Confirmed!</h1>
    <p>Thank you for your order</p>
  </div>
  <div class="content">
    <div class="order-info">
      <strong>Order:</strong> {{.OrderID}}<br>
      <strong>Order Date:</strong> {{.OrderDate}}
    </div>

    <h3>Order Summary</h3>
    <table class="items-table">
      <thead>
        <tr>
          <th>Item</th>
          <th>Qty</th>
          <th>Price</th>
        </tr>
      </thead>
      <tbody>
        {{range .Items}}
        <tr>
          <td>{{.Title}}</td>
          <td>{{.Quantity}}</td>
          <td>{{.TotalPrice}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="total">
      <p>Subtotal: {{.Subtotal}}</p>
      <p>Shipping: {{.Shipping}}{{if .ShippingMethod}} ({{.ShippingMethod}}){{end}}</p>
      <p>Total: {{.Total}}</p>
    </div>

    <p>We'll send you another email when your order ships.</p>
  </div>
  <div class="footer">
    <p>Thank you for shopping with <a href="{{.StoreURL}}">{{.StoreName}}</a></p>
  </div>
</body>
</html>
`

const orderShippedText = `Great news! Your order has shipped!

Order: {{.OrderID}}
Shipped Date: {{.OrderDate}}

{{if .TrackingNumber}}
Tracking Number: {{.TrackingNumber}}
Carrier: {{.Carrier}}
{{if .TrackingURL}}Track your package: {{.TrackingURL}}{{end}}
{{end}}

Shipping Address:
{{.ShippingAddress}}

Thank you for shopping with {{.StoreName}}!
{{.StoreURL}}
`

const orderShippedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Order Shipped</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #059669; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #f9fafb; padding: 20px; border: 1px solid #e5e7eb; }
    .tracking { background: white; padding: 20px; border-radius: 6px; margin: 15px 0; border-left: 4px solid #059669; }
    .tracking-number { font-size: 24px; font-weight: bold; color: #059669; }
    .button { display: inline-block; background: #059669; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; margin-top: 15px; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Your Order Has Shipped!</h1>
    <p>Your order is on its way.</p>
  </div>
  <div class="content">
    <p><strong>Order:</strong> {{.OrderID}}</p>
    <p><strong>Shipped Date:</strong> {{.OrderDate}}</p>

    {{if .TrackingNumber}}
    <div class="tracking">
      <p><strong>Carrier:</strong> {{.Carrier}}</p>
      <p class="tracking-number">{{.TrackingNumber}}</p>
      {{if .TrackingURL}}
      <a href="{{.TrackingURL}}" class="button">Track Your Package</a>
      {{end}}
    </div>
    {{end}}

    <h3>Shipping Address</h3>
    <p>{{.ShippingAddress}}</p>
  </div>
  <div class="footer">
    <p>Thank you for shopping with <a href="{{.StoreURL}}">{{.StoreName}}</a></p>
  </div>
</body>
</html>
`
