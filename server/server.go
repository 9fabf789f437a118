package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/embermillco/embermill/internal/config"
	"github.com/embermillco/embermill/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// Storefront API: cookie session, same-origin enforcement on mutations.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.SessionMiddleware)
	api.Use(h.RequireSameOrigin)
	api.HandleFunc("/shipping/methods", h.ShippingMethods).Methods("GET").Name("api.shipping.methods")
	api.HandleFunc("/cart", h.GetCart).Methods("GET").Name("api.cart.get")
	api.HandleFunc("/cart", h.ClearCart).Methods("DELETE").Name("api.cart.clear")
	api.HandleFunc("/cart/items", h.AddCartItem).Methods("POST").Name("api.cart.items.add")
	api.HandleFunc("/cart/items/{variantID}", h.UpdateCartItem).Methods("PATCH").Name("api.cart.items.update")
	api.HandleFunc("/cart/items/{variantID}", h.RemoveCartItem).Methods("DELETE").Name("api.cart.items.remove")
	api.HandleFunc("/checkout/start", h.StartCheckout).Methods("POST").Name("api.checkout.start")
	api.HandleFunc("/checkout/sync", h.SyncCheckout).Methods("POST").Name("api.checkout.sync")
	api.HandleFunc("/checkout/confirm", h.ConfirmCheckout).Methods("POST").Name("api.checkout.confirm")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.orders.get")

	// Fulfillment endpoints: bearer-token staff auth, no shopper session.
	staff := r.PathPrefix("/staff").Subrouter()
	staff.Use(h.RequireStaff)
	staff.HandleFunc("/shipping/zones", h.StaffShippingZones).Methods("GET").Name("staff.shipping.zones")
	staff.HandleFunc("/orders", h.StaffListOrders).Methods("GET").Name("staff.orders.list")
	staff.HandleFunc("/orders/{id}/ship", h.StaffShipOrder).Methods("POST").Name("staff.orders.ship")
	staff.HandleFunc("/orders/{id}/deliver", h.StaffDeliverOrder).Methods("POST").Name("staff.orders.deliver")
	staff.HandleFunc("/orders/{id}/refund", h.StaffRefundOrder).Methods("POST").Name("staff.orders.refund")

	return r
}
