package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/embermillco/embermill/internal/db"
	"github.com/embermillco/embermill/internal/models"
	"github.com/embermillco/embermill/internal/shipping"
)

// StaffListOrders lists recent orders for the fulfillment dashboard,
// optionally filtered by status.
func (h *Handlers) StaffListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := models.OrderStatus(r.URL.Query().Get("status"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	orders, err := h.orderStore.List(ctx, status, limit)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

type shipOrderRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// StaffShipOrder marks a paid order shipped, normalizing the carrier name
// and deriving the tracking URL, then sends the shipped notification.
func (h *Handlers) StaffShipOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	var req shipOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	carrier := shipping.CanonicalCarrierName(req.Carrier)
	trackingURL := ""
	if req.TrackingNumber != "" {
		trackingURL = shipping.TrackingURL(req.Carrier, req.TrackingNumber)
	}

	if err := h.orderStore.MarkShipped(ctx, orderID, req.TrackingNumber, carrier, trackingURL); err != nil {
		h.writeTransitionError(w, r, err, orderID)
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to reload shipped order", "error", err, "order_id", orderID)
		writeError(w, http.StatusInternalServerError, "order updated but reload failed")
		return
	}

	if h.emailSender != nil {
		h.emailSender.SendOrderShipped(ctx, order)
	}
	logger.Info("order shipped", "order_id", orderID, "carrier", carrier)

	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) StaffDeliverOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.orderStore.MarkDelivered(ctx, orderID); err != nil {
		h.writeTransitionError(w, r, err, orderID)
		return
	}

	h.loggerFromContext(ctx).Info("order delivered", "order_id", orderID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusDelivered)})
}

func (h *Handlers) StaffRefundOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.orderStore.MarkRefunded(ctx, orderID); err != nil {
		h.writeTransitionError(w, r, err, orderID)
		return
	}

	h.loggerFromContext(ctx).Info("order refunded", "order_id", orderID)
	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.StatusRefunded)})
}

type staffShippingBandView struct {
	MinGrams  int    `json:"min_grams"`
	MaxGrams  int    `json:"max_grams"`
	Surcharge string `json:"surcharge"`
}

type staffShippingMethodView struct {
	ID                    string                  `json:"id"`
	Name                  string                  `json:"name"`
	Carrier               string                  `json:"carrier"`
	BasePrice             string                  `json:"base_price"`
	FreeShippingThreshold string                  `json:"free_shipping_threshold"`
	EstimatedDelivery     string                  `json:"estimated_delivery,omitempty"`
	WeightSurcharges      []staffShippingBandView `json:"weight_surcharges,omitempty"`
}

type staffShippingZoneView struct {
	Name      string                    `json:"name"`
	Default   bool                      `json:"default"`
	Countries []string                  `json:"countries,omitempty"`
	Methods   []staffShippingMethodView `json:"methods"`
}

// StaffShippingZones dumps the active zone table so staff can verify which
// shipping configuration a deployment is actually serving.
func (h *Handlers) StaffShippingZones(w http.ResponseWriter, r *http.Request) {
	zones := h.resolver.Table().Zones()

	views := make([]staffShippingZoneView, 0, len(zones))
	for _, zone := range zones {
		view := staffShippingZoneView{
			Name:      zone.Name,
			Default:   zone.Default,
			Countries: zone.Countries,
		}
		for _, method := range zone.Methods {
			methodView := staffShippingMethodView{
				ID:                    method.ID,
				Name:                  method.Name,
				Carrier:               shipping.CanonicalCarrierName(method.Carrier),
				BasePrice:             method.BasePrice.StringFixed(2),
				FreeShippingThreshold: method.FreeShippingThreshold.StringFixed(2),
				EstimatedDelivery:     method.EstimatedDelivery,
			}
			for _, band := range method.WeightSurcharges {
				methodView.WeightSurcharges = append(methodView.WeightSurcharges, staffShippingBandView{
					MinGrams:  band.MinGrams,
					MaxGrams:  band.MaxGrams,
					Surcharge: band.Surcharge.StringFixed(2),
				})
			}
			view.Methods = append(view.Methods, methodView)
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{"zones": views})
}

func (h *Handlers) writeTransitionError(w http.ResponseWriter, r *http.Request, err error, orderID uuid.UUID) {
	if errors.Is(err, db.ErrInvalidStatusTransition) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.loggerFromContext(r.Context()).Error("failed to update order status", "error", err, "order_id", orderID)
	writeError(w, http.StatusInternalServerError, "failed to update order")
}
