// Package catalog loads and validates the product catalog from catalog.yaml.
package catalog

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Catalog struct {
	Store    StoreConfig `yaml:"store"`
	Products []Product   `yaml:"products"`
}

type StoreConfig struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

type Product struct {
	SKU         string    `yaml:"sku"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	ImageURL    string    `yaml:"image_url"`
	Active      bool      `yaml:"active"`
	Variants    []Variant `yaml:"variants"`
}

// Variant is a purchasable size/scent combination of a product.
type Variant struct {
	ID             string `yaml:"id"`
	Label          string `yaml:"label"`
	UnitPriceCents int    `yaml:"unit_price_cents"`
	WeightGrams    int    `yaml:"weight_grams"`
}

// UnitPrice is the variant price in major currency units.
func (v Variant) UnitPrice() decimal.Decimal {
	return decimal.NewFromInt(int64(v.UnitPriceCents)).Div(decimal.NewFromInt(100))
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(content, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	return &c, nil
}

func (p *Parser) ParseFile(path string) (*Catalog, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return p.Parse(content)
}

// FindVariant returns the product and variant for a variant ID.
func (c *Catalog) FindVariant(variantID string) (*Product, *Variant) {
	for i := range c.Products {
		product := &c.Products[i]
		for j := range product.Variants {
			if product.Variants[j].ID == variantID {
				return product, &product.Variants[j]
			}
		}
	}
	return nil, nil
}
