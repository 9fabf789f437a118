package catalog

import (
	"fmt"
)

// Pricer re-checks cart line prices against the live catalog. Cart-local
// prices are advisory; the catalog is authoritative at order creation.
type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// ComputeLineCents prices a quantity of a variant in minor units.
func (p *Pricer) ComputeLineCents(c *Catalog, variantID string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	product, variant := c.FindVariant(variantID)
	if variant == nil {
		return 0, fmt.Errorf("variant %s not found", variantID)
	}

	if !product.Active {
		return 0, fmt.Errorf("product %s is not active", product.SKU)
	}

	return variant.UnitPriceCents * quantity, nil
}
