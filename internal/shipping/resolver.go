package shipping

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Quote is a shipping method with its final computed price for a cart.
type Quote struct {
	Method
	Price decimal.Decimal
	Free  bool
}

// PriceCents converts the quote's final price to integer minor units for
// remote and persisted boundaries.
func (q Quote) PriceCents() int64 {
	return q.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Resolution is the outcome of resolving a destination. Fallback is set when
// the zone table produced no methods and the static defaults were served, so
// callers can disclose degraded mode.
type Resolution struct {
	Quotes   []Quote
	Fallback bool
}

// Resolver prices shipping methods for a destination. It is a pure function
// of its inputs against the zone table snapshot it was built with.
type Resolver struct {
	table    *Table
	fallback []Method
}

func NewResolver(table *Table) *Resolver {
	return &Resolver{
		table:    table,
		fallback: FallbackMethods(),
	}
}

// Table returns the zone table snapshot the resolver was built with.
func (r *Resolver) Table() *Table {
	return r.table
}

// FallbackMethods returns the static standard/express pair served when the
// zone table yields no methods, so checkout is never blocked.
func FallbackMethods() []Method {
	return []Method{
		{
			ID:                "fallback_standard",
			Name:              "Standard Shipping",
			Carrier:           "USPS",
			BasePrice:         decimal.RequireFromString("4.99"),
			EstimatedDelivery: "5-8 business days",
		},
		{
			ID:                "fallback_express",
			Name:              "Express Shipping",
			Carrier:           "UPS",
			BasePrice:         decimal.RequireFromString("9.99"),
			EstimatedDelivery: "1-2 business days",
		},
	}
}

// Resolve returns the priced methods available for a destination, sorted
// ascending by final price with ties keeping listed order. An unknown
// destination with no default zone, or a zone with no methods, yields the
// fallback pair flagged as such.
func (r *Resolver) Resolve(country string, subtotal decimal.Decimal, weightGrams int) Resolution {
	zone, ok := r.table.ZoneFor(country)
	if !ok || len(zone.Methods) == 0 {
		return Resolution{
			Quotes:   priceMethods(r.fallback, subtotal, weightGrams),
			Fallback: true,
		}
	}

	return Resolution{Quotes: priceMethods(zone.Methods, subtotal, weightGrams)}
}

func priceMethods(methods []Method, subtotal decimal.Decimal, weightGrams int) []Quote {
	quotes := make([]Quote, 0, len(methods))
	for _, method := range methods {
		price, free := method.PriceFor(subtotal, weightGrams)
		quotes = append(quotes, Quote{
			Method: method,
			Price:  price,
			Free:   free,
		})
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Price.LessThan(quotes[j].Price)
	})

	return quotes
}

// PriceFor computes the method's final price for a cart subtotal and weight:
// zero when the free-shipping threshold is met, else base price plus the
// surcharge of the first matching weight band (no match means no surcharge).
func (m Method) PriceFor(subtotal decimal.Decimal, weightGrams int) (decimal.Decimal, bool) {
	if m.FreeShippingThreshold.IsPositive() && subtotal.GreaterThanOrEqual(m.FreeShippingThreshold) {
		return decimal.Zero, true
	}

	price := m.BasePrice
	for _, band := range m.WeightSurcharges {
		if weightGrams >= band.MinGrams && weightGrams <= band.MaxGrams {
			price = price.Add(band.Surcharge)
			break
		}
	}

	return price, false
}
