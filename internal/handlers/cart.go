package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/embermillco/embermill/internal/cart"
	"github.com/embermillco/embermill/internal/checkout"
	"github.com/embermillco/embermill/internal/session"
)

type cartView struct {
	Lines       []cart.Line `json:"lines"`
	Subtotal    string      `json:"subtotal"`
	WeightGrams int         `json:"weight_grams"`
}

func newCartView(c *cart.Cart) cartView {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return cartView{
		Lines:       lines,
		Subtotal:    c.Subtotal().StringFixed(2),
		WeightGrams: c.WeightGrams(),
	}
}

// cartIDFromRequest returns the session's cart binding. The session
// middleware guarantees one exists.
func cartIDFromRequest(r *http.Request) string {
	data := session.FromContext(r.Context())
	if data == nil {
		return ""
	}
	return data.CartID
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cartID := cartIDFromRequest(r)
	if cartID == "" {
		writeError(w, http.StatusInternalServerError, "no cart bound to session")
		return
	}

	bag, err := h.cartStore.Load(ctx, cartID)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to load cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}

	writeJSON(w, http.StatusOK, newCartView(bag))
}

type addCartItemRequest struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handlers) AddCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	product, variant := h.catalog.FindVariant(req.VariantID)
	if product == nil || !product.Active {
		writeError(w, http.StatusNotFound, "unknown or inactive product variant")
		return
	}

	cartID := cartIDFromRequest(r)
	bag, err := h.cartStore.Load(ctx, cartID)
	if err != nil {
		logger.Error("failed to load cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}

	line := cart.Line{
		ProductID:   product.SKU,
		VariantID:   variant.ID,
		Title:       product.Name + " - " + variant.Label,
		UnitPrice:   variant.UnitPrice(),
		Quantity:    req.Quantity,
		WeightGrams: variant.WeightGrams,
		ImageURL:    product.ImageURL,
	}
	if err := bag.AddItem(line); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.saveCartAndNotify(r, cartID, bag); err != nil {
		logger.Error("failed to save cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	writeJSON(w, http.StatusOK, newCartView(bag))
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	variantID := mux.Vars(r)["variantID"]

	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cartID := cartIDFromRequest(r)
	bag, err := h.cartStore.Load(ctx, cartID)
	if err != nil {
		logger.Error("failed to load cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}

	if err := bag.UpdateQuantity(variantID, req.Quantity); err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.saveCartAndNotify(r, cartID, bag); err != nil {
		logger.Error("failed to save cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	writeJSON(w, http.StatusOK, newCartView(bag))
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	variantID := mux.Vars(r)["variantID"]

	cartID := cartIDFromRequest(r)
	bag, err := h.cartStore.Load(ctx, cartID)
	if err != nil {
		logger.Error("failed to load cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to load cart")
		return
	}

	if err := bag.RemoveItem(variantID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if err := h.saveCartAndNotify(r, cartID, bag); err != nil {
		logger.Error("failed to save cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to save cart")
		return
	}

	writeJSON(w, http.StatusOK, newCartView(bag))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	cartID := cartIDFromRequest(r)
	if err := h.cartStore.Delete(ctx, cartID); err != nil {
		logger.Error("failed to clear cart", "error", err, "cart_id", cartID)
		writeError(w, http.StatusInternalServerError, "failed to clear cart")
		return
	}

	writeJSON(w, http.StatusOK, newCartView(&cart.Cart{}))
}

// saveCartAndNotify persists the cart and, when a checkout is open, records
// the subtotal change so the payment amount gets reconciled.
func (h *Handlers) saveCartAndNotify(r *http.Request, cartID string, bag *cart.Cart) error {
	ctx := r.Context()
	if err := h.cartStore.Save(ctx, cartID, bag); err != nil {
		return err
	}

	sessionID := session.IDFromContext(ctx)
	if sessionID != "" {
		// No open checkout is the common case; anything else is advisory here.
		if _, err := h.checkoutService.RecordChange(ctx, sessionID, checkout.ChangeInput{}); err != nil && !errors.Is(err, checkout.ErrNoCheckout) {
			h.loggerFromContext(ctx).Warn("failed to record cart change on checkout", "error", err)
		}
	}

	return nil
}
