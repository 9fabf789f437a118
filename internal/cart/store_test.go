package cart

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	c := &Cart{}
	if err := c.AddItem(Line{
		ProductID: "candle-amber-noir",
		VariantID: "amber-8oz",
		Title:     "Amber Noir Candle",
		UnitPrice: decimal.RequireFromString("28.00"),
		Quantity:  2,
	}); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	if err := store.Save(ctx, "cart-1", c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded.Lines) != 1 || loaded.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected restored cart: %+v", loaded)
	}
	if !loaded.Subtotal().Equal(decimal.RequireFromString("56.00")) {
		t.Fatalf("unexpected restored subtotal: %s", loaded.Subtotal())
	}
}

func TestMemoryStore_MissingCartIsEmpty(t *testing.T) {
	t.Parallel()

	loaded, err := NewMemoryStore().Load(context.Background(), "nope")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.IsEmpty() {
		t.Fatalf("expected empty cart for unknown id")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	c := &Cart{}
	if err := c.AddItem(Line{VariantID: "amber-8oz", Quantity: 1}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := store.Save(ctx, "cart-1", c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := store.Delete(ctx, "cart-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	loaded, err := store.Load(ctx, "cart-1")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !loaded.IsEmpty() {
		t.Fatalf("expected empty cart after delete")
	}
}

func TestDecodeCart_DiscardsMismatchedSchema(t *testing.T) {
	t.Parallel()

	stale, err := json.Marshal(persistedCart{
		SchemaVersion: schemaVersion + 1,
		Lines:         []Line{{VariantID: "amber-8oz", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if got := decodeCart(stale); !got.IsEmpty() {
		t.Fatalf("expected mismatched schema to decode as empty cart, got %+v", got)
	}
	if got := decodeCart([]byte("not json")); !got.IsEmpty() {
		t.Fatalf("expected undecodable payload to decode as empty cart, got %+v", got)
	}
}
