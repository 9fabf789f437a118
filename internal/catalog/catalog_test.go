package catalog

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

const sampleCatalog = `
store:
  name: Embermill
  currency: usd
products:
  - sku: candle-amber-noir
    name: Amber Noir Candle
    active: true
    variants:
      - id: amber-8oz
        label: 8 oz
        unit_price_cents: 2800
        weight_grams: 310
      - id: amber-12oz
        label: 12 oz
        unit_price_cents: 3900
        weight_grams: 480
  - sku: candle-retired-hearth
    name: Hearthstone Candle
    active: false
    variants:
      - id: hearthstone-8oz
        label: 8 oz
        unit_price_cents: 2600
        weight_grams: 310
`

func mustParse(t *testing.T) *Catalog {
	t.Helper()

	c, err := NewParser().Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return c
}

func TestParse(t *testing.T) {
	t.Parallel()

	c := mustParse(t)
	if c.Store.Name != "Embermill" || c.Store.Currency != "usd" {
		t.Fatalf("unexpected store config: %+v", c.Store)
	}
	if len(c.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(c.Products))
	}
	if got := c.Products[0].Variants[1].UnitPriceCents; got != 3900 {
		t.Fatalf("unexpected variant price: got=%d want=3900", got)
	}
}

func TestParse_RejectsBadYAML(t *testing.T) {
	t.Parallel()

	if _, err := NewParser().Parse([]byte("store: [")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFindVariant(t *testing.T) {
	t.Parallel()

	c := mustParse(t)

	product, variant := c.FindVariant("amber-12oz")
	if product == nil || variant == nil {
		t.Fatalf("expected variant found")
	}
	if product.SKU != "candle-amber-noir" || variant.Label != "12 oz" {
		t.Fatalf("unexpected match: product=%s variant=%s", product.SKU, variant.Label)
	}

	if product, variant := c.FindVariant("missing"); product != nil || variant != nil {
		t.Fatalf("expected no match for unknown variant")
	}
}

func TestVariantUnitPrice(t *testing.T) {
	t.Parallel()

	v := Variant{UnitPriceCents: 2800}
	if want := decimal.RequireFromString("28.00"); !v.UnitPrice().Equal(want) {
		t.Fatalf("unexpected unit price: got=%s want=%s", v.UnitPrice(), want)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Catalog)
		wantErr string
	}{
		{
			name:   "valid catalog",
			mutate: func(*Catalog) {},
		},
		{
			name: "missing store name",
			mutate: func(c *Catalog) {
				c.Store.Name = "  "
			},
			wantErr: "store name is required",
		},
		{
			name: "unsupported currency",
			mutate: func(c *Catalog) {
				c.Store.Currency = "jpy"
			},
			wantErr: "unsupported currency",
		},
		{
			name: "no products",
			mutate: func(c *Catalog) {
				c.Products = nil
			},
			wantErr: "at least one product",
		},
		{
			name: "duplicate sku",
			mutate: func(c *Catalog) {
				c.Products[1].SKU = c.Products[0].SKU
			},
			wantErr: "duplicate SKU",
		},
		{
			name: "duplicate variant id across products",
			mutate: func(c *Catalog) {
				c.Products[1].Variants[0].ID = "amber-8oz"
			},
			wantErr: "duplicate variant id",
		},
		{
			name: "product without variants",
			mutate: func(c *Catalog) {
				c.Products[0].Variants = nil
			},
			wantErr: "at least one variant",
		},
		{
			name: "non-positive price",
			mutate: func(c *Catalog) {
				c.Products[0].Variants[0].UnitPriceCents = 0
			},
			wantErr: "unit price must be positive",
		},
		{
			name: "negative weight",
			mutate: func(c *Catalog) {
				c.Products[0].Variants[0].WeightGrams = -1
			},
			wantErr: "weight must be zero or positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := mustParse(t)
			tt.mutate(c)

			err := NewValidator().Validate(c)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPricer_ComputeLineCents(t *testing.T) {
	t.Parallel()

	c := mustParse(t)
	pricer := NewPricer()

	cents, err := pricer.ComputeLineCents(c, "amber-8oz", 3)
	if err != nil {
		t.Fatalf("pricing failed: %v", err)
	}
	if cents != 8400 {
		t.Fatalf("unexpected line total: got=%d want=8400", cents)
	}

	if _, err := pricer.ComputeLineCents(c, "hearthstone-8oz", 1); err == nil {
		t.Fatalf("expected error for inactive product")
	}
	if _, err := pricer.ComputeLineCents(c, "missing", 1); err == nil {
		t.Fatalf("expected error for unknown variant")
	}
	if _, err := pricer.ComputeLineCents(c, "amber-8oz", 0); err == nil {
		t.Fatalf("expected error for non-positive quantity")
	}
}
