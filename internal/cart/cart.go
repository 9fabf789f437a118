// Package cart is the single source of truth for a shopper's bag and the
// derived subtotal and weight other components consume.
package cart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrLineNotFound = errors.New("cart line not found")

// Weight assumed for lines without an explicit weight, roughly a small
// candle tin.
const defaultLineWeightGrams = 250

// Line is one purchasable variant in the cart, unique per variant ID.
// UnitPrice is in major currency units.
type Line struct {
	ProductID   string          `json:"product_id"`
	VariantID   string          `json:"variant_id"`
	Title       string          `json:"title"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	WeightGrams int             `json:"weight_grams"`
	ImageURL    string          `json:"image_url"`
}

type Cart struct {
	Lines []Line `json:"lines"`
}

// AddItem merges the line into the cart: an existing line for the same
// variant gets its quantity incremented, otherwise the line is appended.
func (c *Cart) AddItem(line Line) error {
	if strings.TrimSpace(line.VariantID) == "" {
		return fmt.Errorf("variant id is required")
	}
	if line.Quantity < 1 {
		return fmt.Errorf("quantity must be positive, got %d", line.Quantity)
	}
	if line.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must be zero or positive")
	}

	for i := range c.Lines {
		if c.Lines[i].VariantID == line.VariantID {
			c.Lines[i].Quantity += line.Quantity
			return nil
		}
	}

	c.Lines = append(c.Lines, line)
	return nil
}

// UpdateQuantity replaces the quantity of the matching line. Availability is
// not checked here; stock is re-validated server-side at order creation.
func (c *Cart) UpdateQuantity(variantID string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	for i := range c.Lines {
		if c.Lines[i].VariantID == variantID {
			c.Lines[i].Quantity = quantity
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrLineNotFound, variantID)
}

// RemoveItem drops the matching line. Removal is always explicit; quantities
// are never silently zeroed away.
func (c *Cart) RemoveItem(variantID string) error {
	for i := range c.Lines {
		if c.Lines[i].VariantID == variantID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrLineNotFound, variantID)
}

// Clear empties the cart. Used after successful order creation.
func (c *Cart) Clear() {
	c.Lines = nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Subtotal is always derived from the lines, never stored.
func (c *Cart) Subtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range c.Lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal
}

// WeightGrams is the derived total weight; lines without a weight use the
// default.
func (c *Cart) WeightGrams() int {
	total := 0
	for _, line := range c.Lines {
		weight := line.WeightGrams
		if weight <= 0 {
			weight = defaultLineWeightGrams
		}
		total += weight * line.Quantity
	}
	return total
}
