package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/embermillco/embermill/internal/checkout"
	"github.com/embermillco/embermill/internal/models"
	"github.com/embermillco/embermill/internal/session"
)

var payloadValidator = validator.New()

// StartCheckout opens a payment authorization for the session cart and
// returns the client-side handle.
func (h *Handlers) StartCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	sessionID := session.IDFromContext(ctx)
	cartID := cartIDFromRequest(r)
	if sessionID == "" || cartID == "" {
		writeError(w, http.StatusInternalServerError, "no session")
		return
	}

	result, err := h.checkoutService.Start(ctx, sessionID, cartID)
	if err != nil {
		if errors.Is(err, checkout.ErrEmptyCart) {
			writeError(w, http.StatusBadRequest, "cart is empty")
			return
		}
		logger.Error("failed to start checkout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start checkout")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type syncCheckoutRequest struct {
	Country          string `json:"country"`
	ShippingMethodID string `json:"shipping_method_id"`
	Email            string `json:"email" validate:"omitempty,email"`
}

// SyncCheckout records shipping/destination/email changes on the open
// checkout. The remote amount update is debounced; the response reflects the
// locally computed totals immediately.
func (h *Handlers) SyncCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req syncCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := payloadValidator.Struct(req); err != nil {
		writeFieldErrors(w, "invalid checkout update", fieldErrors(err))
		return
	}

	sessionID := session.IDFromContext(ctx)
	status, err := h.checkoutService.RecordChange(ctx, sessionID, checkout.ChangeInput{
		Country:          strings.ToUpper(strings.TrimSpace(req.Country)),
		ShippingMethodID: strings.TrimSpace(req.ShippingMethodID),
		Email:            req.Email,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNoCheckout):
			writeError(w, http.StatusNotFound, "no active checkout")
		case errors.Is(err, checkout.ErrMethodNotFound):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error("failed to record checkout change", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update checkout")
		}
		return
	}

	h.rememberCustomerEmail(r, req.Email)

	writeJSON(w, http.StatusOK, status)
}

type confirmCheckoutRequest struct {
	Email           string         `json:"email" validate:"omitempty,email"`
	PaymentMethodID string         `json:"payment_method_id" validate:"required"`
	Address         models.Address `json:"address" validate:"required"`
}

// ConfirmCheckout runs the forced sync, captures payment, and creates the
// order. Failures are blocking and leave the cart intact.
func (h *Handlers) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var req confirmCheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := payloadValidator.Struct(req); err != nil {
		writeFieldErrors(w, "invalid checkout confirmation", fieldErrors(err))
		return
	}

	sessionID := session.IDFromContext(ctx)
	order, err := h.checkoutService.Confirm(ctx, sessionID, checkout.ConfirmInput{
		Email:           req.Email,
		PaymentMethodID: req.PaymentMethodID,
		Address:         req.Address,
	})
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrNoCheckout):
			writeError(w, http.StatusNotFound, "no active checkout")
		case errors.Is(err, checkout.ErrEmailRequired),
			errors.Is(err, checkout.ErrShippingMethodRequired),
			errors.Is(err, checkout.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, checkout.ErrSyncFailed):
			writeError(w, http.StatusBadGateway, "failed to finalize payment amount, please retry")
		case errors.Is(err, checkout.ErrPaymentFailed):
			writeError(w, http.StatusPaymentRequired, "payment was not completed")
		default:
			logger.Error("failed to confirm checkout", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to complete order")
		}
		return
	}

	h.rememberCustomerEmail(r, order.CustomerEmail)

	writeJSON(w, http.StatusOK, order.Summary())
}

// rememberCustomerEmail persists the shopper's email on the session so a
// returning visit can prefill it.
func (h *Handlers) rememberCustomerEmail(r *http.Request, emailAddr string) {
	emailAddr = strings.TrimSpace(emailAddr)
	if emailAddr == "" {
		return
	}

	ctx := r.Context()
	sessionID := session.IDFromContext(ctx)
	data := session.FromContext(ctx)
	if sessionID == "" || data == nil || data.CustomerEmail == emailAddr {
		return
	}

	data.CustomerEmail = emailAddr
	if err := h.sessionManager.UpdateSession(ctx, sessionID, data); err != nil {
		h.loggerFromContext(ctx).Warn("failed to update session email", "error", err)
	}
}

func fieldErrors(err error) map[string]string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	fields := make(map[string]string, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return fields
}
