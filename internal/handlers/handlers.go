// Package handlers provides the HTTP surface of the storefront API.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/embermillco/embermill/internal/auth"
	"github.com/embermillco/embermill/internal/cache"
	"github.com/embermillco/embermill/internal/cart"
	"github.com/embermillco/embermill/internal/catalog"
	"github.com/embermillco/embermill/internal/checkout"
	"github.com/embermillco/embermill/internal/config"
	"github.com/embermillco/embermill/internal/email"
	"github.com/embermillco/embermill/internal/logging"
	"github.com/embermillco/embermill/internal/models"
	"github.com/embermillco/embermill/internal/session"
	"github.com/embermillco/embermill/internal/shipping"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

const maxJSONBodyBytes = 64 << 10

// OrderStore is the order persistence surface the HTTP layer depends on.
// *db.OrderStore satisfies it in production.
type OrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*models.Order, error)
	List(ctx context.Context, status models.OrderStatus, limit int) ([]*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason string) error
	MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber, carrier, trackingURL string) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID) error
	MarkRefunded(ctx context.Context, orderID uuid.UUID) error
}

// Handlers provides HTTP request handlers for the storefront API.
type Handlers struct {
	config          *config.Config
	db              *pgxpool.Pool
	orderStore      OrderStore
	cartStore       cart.Store
	catalog         *catalog.Catalog
	resolver        *shipping.Resolver
	checkoutService *checkout.Service
	cacheProvider   cache.Provider
	sessionManager  *session.Manager
	staffAuth       *auth.StaffAuth
	emailSender     *email.Sender
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              *pgxpool.Pool
	OrderStore      OrderStore
	CartStore       cart.Store
	Catalog         *catalog.Catalog
	Resolver        *shipping.Resolver
	CheckoutService *checkout.Service
	CacheProvider   cache.Provider
	SessionManager  *session.Manager
	StaffAuth       *auth.StaffAuth
	EmailSender     *email.Sender
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.CartStore == nil {
		return nil, fmt.Errorf("handlers dependencies: cartStore is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("handlers dependencies: catalog is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("handlers dependencies: resolver is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}
	if deps.StaffAuth == nil {
		return nil, fmt.Errorf("handlers dependencies: staffAuth is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		orderStore:      deps.OrderStore,
		cartStore:       deps.CartStore,
		catalog:         deps.Catalog,
		resolver:        deps.Resolver,
		checkoutService: deps.CheckoutService,
		cacheProvider:   deps.CacheProvider,
		sessionManager:  deps.SessionManager,
		staffAuth:       deps.StaffAuth,
		emailSender:     deps.EmailSender,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SessionMiddleware attaches the shopper session, creating one with a fresh
// cart binding for first-time visitors.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(uuid.NewString)(next)
}

// RequireStaff guards the fulfillment endpoints with bearer-token auth.
func (h *Handlers) RequireStaff(next http.Handler) http.Handler {
	return h.staffAuth.Middleware(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeFieldErrors(w http.ResponseWriter, message string, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: message, Fields: fields})
}

// decodeJSON reads a bounded JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
