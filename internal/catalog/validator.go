package catalog

import (
	"fmt"
	"strings"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(c *Catalog) error {
	if err := v.validateStore(&c.Store); err != nil {
		return fmt.Errorf("store validation failed: %w", err)
	}

	if len(c.Products) == 0 {
		return fmt.Errorf("at least one product is required")
	}

	skus := make(map[string]bool)
	variantIDs := make(map[string]bool)
	for i, product := range c.Products {
		if err := v.validateProduct(&product); err != nil {
			return fmt.Errorf("product %d validation failed: %w", i, err)
		}

		if skus[product.SKU] {
			return fmt.Errorf("duplicate SKU: %s", product.SKU)
		}
		skus[product.SKU] = true

		for _, variant := range product.Variants {
			if variantIDs[variant.ID] {
				return fmt.Errorf("duplicate variant id: %s", variant.ID)
			}
			variantIDs[variant.ID] = true
		}
	}

	return nil
}

func (v *Validator) validateStore(store *StoreConfig) error {
	if strings.TrimSpace(store.Name) == "" {
		return fmt.Errorf("store name is required")
	}

	switch store.Currency {
	case "usd", "eur", "gbp":
	default:
		return fmt.Errorf("unsupported currency: %s", store.Currency)
	}

	return nil
}

func (v *Validator) validateProduct(product *Product) error {
	if strings.TrimSpace(product.SKU) == "" {
		return fmt.Errorf("product SKU is required")
	}

	if strings.TrimSpace(product.Name) == "" {
		return fmt.Errorf("product name is required")
	}

	if len(product.Variants) == 0 {
		return fmt.Errorf("product %s needs at least one variant", product.SKU)
	}

	for i, variant := range product.Variants {
		if err := v.validateVariant(&variant); err != nil {
			return fmt.Errorf("variant %d validation failed: %w", i, err)
		}
	}

	return nil
}

func (v *Validator) validateVariant(variant *Variant) error {
	if strings.TrimSpace(variant.ID) == "" {
		return fmt.Errorf("variant id is required")
	}

	if strings.TrimSpace(variant.Label) == "" {
		return fmt.Errorf("variant label is required")
	}

	if variant.UnitPriceCents <= 0 {
		return fmt.Errorf("variant unit price must be positive")
	}

	if variant.WeightGrams < 0 {
		return fmt.Errorf("variant weight must be zero or positive")
	}

	return nil
}
