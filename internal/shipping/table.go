// Package shipping resolves priced shipping methods for a destination
// against the configured zone table.
package shipping

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Band is a weight range with an additive price adjustment. Bounds are
// inclusive and expressed in grams.
type Band struct {
	MinGrams  int
	MaxGrams  int
	Surcharge decimal.Decimal
}

// Method is a shipping method offered within a single zone. Prices are in
// major currency units.
type Method struct {
	ID                    string
	Name                  string
	Carrier               string
	Description           string
	BasePrice             decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	EstimatedDelivery     string
	WeightSurcharges      []Band
}

// Zone groups destination countries that share the same shipping methods.
// At most one zone is the default catch-all for unlisted countries.
type Zone struct {
	Name      string
	Countries []string
	Default   bool
	Methods   []Method
}

// Table is an immutable snapshot of the zone configuration with country
// lookup prebuilt.
type Table struct {
	zones       []Zone
	defaultZone *Zone
	byCountry   map[string]*Zone
}

func NewTable(zones []Zone) (*Table, error) {
	t := &Table{
		zones:     zones,
		byCountry: make(map[string]*Zone),
	}

	for i := range t.zones {
		zone := &t.zones[i]
		if strings.TrimSpace(zone.Name) == "" {
			return nil, fmt.Errorf("zone %d: name is required", i)
		}

		if zone.Default {
			if t.defaultZone != nil {
				return nil, fmt.Errorf("zone %q: only one default zone is allowed (already %q)", zone.Name, t.defaultZone.Name)
			}
			t.defaultZone = zone
		}

		for _, country := range zone.Countries {
			code := normalizeCountry(country)
			if len(code) != 2 {
				return nil, fmt.Errorf("zone %q: invalid country code %q", zone.Name, country)
			}
			if existing, ok := t.byCountry[code]; ok {
				return nil, fmt.Errorf("country %s appears in zones %q and %q", code, existing.Name, zone.Name)
			}
			t.byCountry[code] = zone
		}

		for j, method := range zone.Methods {
			if err := validateMethod(method); err != nil {
				return nil, fmt.Errorf("zone %q method %d: %w", zone.Name, j, err)
			}
		}
	}

	return t, nil
}

// ZoneFor returns the zone serving a destination country: an exact country
// match first, else the default zone.
func (t *Table) ZoneFor(country string) (*Zone, bool) {
	if zone, ok := t.byCountry[normalizeCountry(country)]; ok {
		return zone, true
	}
	if t.defaultZone != nil {
		return t.defaultZone, true
	}
	return nil, false
}

func (t *Table) Zones() []Zone {
	return t.zones
}

func validateMethod(m Method) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("method id is required")
	}
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("method name is required")
	}
	if m.BasePrice.IsNegative() {
		return fmt.Errorf("base price must be zero or positive")
	}
	if m.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("free shipping threshold must be zero or positive")
	}
	for i, band := range m.WeightSurcharges {
		if band.MinGrams < 0 || band.MaxGrams < band.MinGrams {
			return fmt.Errorf("surcharge band %d: invalid weight range [%d, %d]", i, band.MinGrams, band.MaxGrams)
		}
		if band.Surcharge.IsNegative() {
			return fmt.Errorf("surcharge band %d: surcharge must be zero or positive", i)
		}
	}
	return nil
}

func normalizeCountry(country string) string {
	return strings.ToUpper(strings.TrimSpace(country))
}

type fileConfig struct {
	Zones []zoneConfig `yaml:"zones"`
}

type zoneConfig struct {
	Name      string         `yaml:"name"`
	Default   bool           `yaml:"default"`
	Countries []string       `yaml:"countries"`
	Methods   []methodConfig `yaml:"methods"`
}

type methodConfig struct {
	ID                    string       `yaml:"id"`
	Name                  string       `yaml:"name"`
	Carrier               string       `yaml:"carrier"`
	Description           string       `yaml:"description"`
	BasePrice             string       `yaml:"base_price"`
	FreeShippingThreshold string       `yaml:"free_shipping_threshold"`
	EstimatedDelivery     string       `yaml:"estimated_delivery"`
	WeightSurcharges      []bandConfig `yaml:"weight_surcharges"`
}

type bandConfig struct {
	MinGrams  int    `yaml:"min_grams"`
	MaxGrams  int    `yaml:"max_grams"`
	Surcharge string `yaml:"surcharge"`
}

// Parse parses shipping.yaml content into a validated zone table.
func Parse(content []byte) (*Table, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse shipping config: %w", err)
	}

	zones := make([]Zone, 0, len(cfg.Zones))
	for _, zc := range cfg.Zones {
		zone := Zone{
			Name:      zc.Name,
			Countries: zc.Countries,
			Default:   zc.Default,
		}
		for _, mc := range zc.Methods {
			method, err := mc.toMethod()
			if err != nil {
				return nil, fmt.Errorf("zone %q: %w", zc.Name, err)
			}
			zone.Methods = append(zone.Methods, method)
		}
		zones = append(zones, zone)
	}

	return NewTable(zones)
}

// LoadFile reads and parses the zone table from a YAML file.
func LoadFile(path string) (*Table, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read shipping config: %w", err)
	}
	return Parse(content)
}

func (mc methodConfig) toMethod() (Method, error) {
	basePrice, err := parsePrice(mc.BasePrice, "base_price")
	if err != nil {
		return Method{}, fmt.Errorf("method %q: %w", mc.ID, err)
	}

	threshold := decimal.Zero
	if strings.TrimSpace(mc.FreeShippingThreshold) != "" {
		threshold, err = parsePrice(mc.FreeShippingThreshold, "free_shipping_threshold")
		if err != nil {
			return Method{}, fmt.Errorf("method %q: %w", mc.ID, err)
		}
	}

	method := Method{
		ID:                    mc.ID,
		Name:                  mc.Name,
		Carrier:               mc.Carrier,
		Description:           mc.Description,
		BasePrice:             basePrice,
		FreeShippingThreshold: threshold,
		EstimatedDelivery:     mc.EstimatedDelivery,
	}

	for _, bc := range mc.WeightSurcharges {
		surcharge, err := parsePrice(bc.Surcharge, "surcharge")
		if err != nil {
			return Method{}, fmt.Errorf("method %q: %w", mc.ID, err)
		}
		method.WeightSurcharges = append(method.WeightSurcharges, Band{
			MinGrams:  bc.MinGrams,
			MaxGrams:  bc.MaxGrams,
			Surcharge: surcharge,
		})
	}

	return method, nil
}

func parsePrice(value, field string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return parsed, nil
}
