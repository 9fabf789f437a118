package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/embermillco/embermill/internal/cache"
	"github.com/embermillco/embermill/internal/shipping"
)

var centsPerUnit = decimal.NewFromInt(100)

// Quotes are pure functions of the zone table and the cart, so a short TTL
// only bounds staleness across config reloads.
const shippingQuoteTTL = 5 * time.Minute

type shippingQuoteView struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Carrier           string `json:"carrier"`
	Description       string `json:"description,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
	Price             string `json:"price"`
	PriceCents        int64  `json:"price_cents"`
	Free              bool   `json:"free"`
}

type shippingMethodsResponse struct {
	Country  string              `json:"country"`
	Quotes   []shippingQuoteView `json:"quotes"`
	Fallback bool                `json:"fallback"`
}

// ShippingMethods quotes the available methods for the session cart and a
// destination country. Quotes come back sorted ascending by price.
func (h *Handlers) ShippingMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	country := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("country")))
	if len(country) != 2 {
		writeError(w, http.StatusBadRequest, "country must be a two-letter ISO code")
		return
	}

	cartID := cartIDFromRequest(r)
	bag, err := h.cartStore.Load(ctx, cartID)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to load cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}

	cacheKey := cache.ShippingQuoteKey(country, bag.Subtotal().Mul(centsPerUnit).IntPart(), bag.WeightGrams())
	if cached, err := h.cacheProvider.Get(ctx, cacheKey); err == nil {
		var resp shippingMethodsResponse
		if err := json.Unmarshal([]byte(cached), &resp); err == nil {
			writeJSON(w, http.StatusOK, resp)
			return
		}
	}

	resolution := h.resolver.Resolve(country, bag.Subtotal(), bag.WeightGrams())

	quotes := make([]shippingQuoteView, 0, len(resolution.Quotes))
	for _, quote := range resolution.Quotes {
		quotes = append(quotes, newShippingQuoteView(quote))
	}

	resp := shippingMethodsResponse{
		Country:  country,
		Quotes:   quotes,
		Fallback: resolution.Fallback,
	}

	if encoded, err := json.Marshal(resp); err == nil {
		if err := h.cacheProvider.Set(ctx, cacheKey, string(encoded), shippingQuoteTTL); err != nil {
			h.loggerFromContext(ctx).Warn("failed to cache shipping quotes", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func newShippingQuoteView(quote shipping.Quote) shippingQuoteView {
	return shippingQuoteView{
		ID:                quote.ID,
		Name:              quote.Name,
		Carrier:           quote.Carrier,
		Description:       quote.Description,
		EstimatedDelivery: quote.EstimatedDelivery,
		Price:             quote.Price.StringFixed(2),
		PriceCents:        quote.PriceCents(),
		Free:              quote.Free,
	}
}
