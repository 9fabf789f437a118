package shipping

import (
	"testing"

	"github.com/shopspring/decimal"
)

func testTable(t *testing.T) *Table {
	t.Helper()

	table, err := NewTable([]Zone{
		{
			Name:      "domestic",
			Countries: []string{"US"},
			Methods: []Method{
				{
					ID:                    "ground",
					Name:                  "Ground Shipping",
					Carrier:               "usps",
					BasePrice:             decimal.RequireFromString("4.99"),
					FreeShippingThreshold: decimal.RequireFromString("50.00"),
					WeightSurcharges: []Band{
						{MinGrams: 1000, MaxGrams: 2000, Surcharge: decimal.RequireFromString("2.00")},
						{MinGrams: 2001, MaxGrams: 5000, Surcharge: decimal.RequireFromString("5.00")},
					},
				},
				{
					ID:        "expedited",
					Name:      "Expedited Shipping",
					Carrier:   "ups",
					BasePrice: decimal.RequireFromString("12.99"),
				},
			},
		},
		{
			Name:      "empty-zone",
			Countries: []string{"MX"},
		},
	})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	return table
}

func TestResolve_BandSurchargeBelowThreshold(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(testTable(t))

	// 45.00 misses the 50.00 threshold; 1200g lands in the [1000, 2000] band.
	resolution := resolver.Resolve("US", decimal.RequireFromString("45.00"), 1200)
	if resolution.Fallback {
		t.Fatalf("expected zone methods, got fallback")
	}
	if len(resolution.Quotes) != 2 {
		t.Fatalf("unexpected quote count: got=%d want=2", len(resolution.Quotes))
	}

	got := resolution.Quotes[0]
	if got.ID != "ground" {
		t.Fatalf("expected cheapest method first, got %s", got.ID)
	}
	if want := decimal.RequireFromString("6.99"); !got.Price.Equal(want) {
		t.Fatalf("unexpected price: got=%s want=%s", got.Price, want)
	}
	if got.Free {
		t.Fatalf("expected quote below threshold to not be free")
	}
}

func TestResolve_FreeShippingAtThreshold(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(testTable(t))

	resolution := resolver.Resolve("US", decimal.RequireFromString("50.00"), 1200)
	got := resolution.Quotes[0]
	if got.ID != "ground" {
		t.Fatalf("expected free method sorted first, got %s", got.ID)
	}
	if !got.Price.IsZero() || !got.Free {
		t.Fatalf("expected free quote at threshold, got price=%s free=%v", got.Price, got.Free)
	}
}

func TestResolve_NoBandMatchMeansNoSurcharge(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(testTable(t))

	resolution := resolver.Resolve("US", decimal.RequireFromString("10.00"), 500)
	got := resolution.Quotes[0]
	if want := decimal.RequireFromString("4.99"); !got.Price.Equal(want) {
		t.Fatalf("unexpected price: got=%s want=%s", got.Price, want)
	}
}

func TestResolve_FirstMatchingBandWins(t *testing.T) {
	t.Parallel()

	table, err := NewTable([]Zone{{
		Name:      "overlap",
		Countries: []string{"US"},
		Methods: []Method{{
			ID:        "overlapping",
			Name:      "Overlapping Bands",
			BasePrice: decimal.RequireFromString("5.00"),
			WeightSurcharges: []Band{
				{MinGrams: 0, MaxGrams: 2000, Surcharge: decimal.RequireFromString("1.00")},
				{MinGrams: 1000, MaxGrams: 3000, Surcharge: decimal.RequireFromString("9.00")},
			},
		}},
	}})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	resolution := NewResolver(table).Resolve("US", decimal.RequireFromString("10.00"), 1500)
	if want := decimal.RequireFromString("6.00"); !resolution.Quotes[0].Price.Equal(want) {
		t.Fatalf("expected first listed band to win: got=%s want=%s", resolution.Quotes[0].Price, want)
	}
}

func TestResolve_UnknownCountryServesFallback(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(testTable(t))

	resolution := resolver.Resolve("JP", decimal.RequireFromString("20.00"), 300)
	if !resolution.Fallback {
		t.Fatalf("expected fallback resolution for unknown country")
	}
	if len(resolution.Quotes) != 2 {
		t.Fatalf("unexpected fallback quote count: got=%d want=2", len(resolution.Quotes))
	}
	if resolution.Quotes[0].ID != "fallback_standard" || resolution.Quotes[1].ID != "fallback_express" {
		t.Fatalf("unexpected fallback methods: %s, %s", resolution.Quotes[0].ID, resolution.Quotes[1].ID)
	}
}

func TestResolve_EmptyZoneServesFallback(t *testing.T) {
	t.Parallel()

	resolver := NewResolver(testTable(t))

	resolution := resolver.Resolve("MX", decimal.RequireFromString("20.00"), 300)
	if !resolution.Fallback {
		t.Fatalf("expected fallback for zone with no methods")
	}
}

func TestResolve_SortAscendingTiesKeepListedOrder(t *testing.T) {
	t.Parallel()

	table, err := NewTable([]Zone{{
		Name:      "ties",
		Countries: []string{"US"},
		Methods: []Method{
			{ID: "b", Name: "B", BasePrice: decimal.RequireFromString("9.99")},
			{ID: "a1", Name: "A1", BasePrice: decimal.RequireFromString("4.99")},
			{ID: "a2", Name: "A2", BasePrice: decimal.RequireFromString("4.99")},
		},
	}})
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	resolution := NewResolver(table).Resolve("US", decimal.RequireFromString("10.00"), 100)
	gotOrder := []string{resolution.Quotes[0].ID, resolution.Quotes[1].ID, resolution.Quotes[2].ID}
	wantOrder := []string{"a1", "a2", "b"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("unexpected sort order: got=%v want=%v", gotOrder, wantOrder)
		}
	}
}

func TestQuotePriceCents(t *testing.T) {
	t.Parallel()

	quote := Quote{Price: decimal.RequireFromString("6.99")}
	if got := quote.PriceCents(); got != 699 {
		t.Fatalf("unexpected cents: got=%d want=699", got)
	}
}
