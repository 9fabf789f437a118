package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/embermillco/embermill/internal/auth"
	"github.com/embermillco/embermill/internal/cache"
	"github.com/embermillco/embermill/internal/cart"
	"github.com/embermillco/embermill/internal/catalog"
	"github.com/embermillco/embermill/internal/checkout"
	"github.com/embermillco/embermill/internal/config"
	"github.com/embermillco/embermill/internal/db"
	"github.com/embermillco/embermill/internal/email"
	"github.com/embermillco/embermill/internal/handlers"
	"github.com/embermillco/embermill/internal/payments"
	"github.com/embermillco/embermill/internal/session"
	"github.com/embermillco/embermill/internal/shipping"
)

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	DB              *pgxpool.Pool
	CacheProvider   cache.Provider
	SessionManager  *session.Manager
	CartStore       cart.Store
	CheckoutService *checkout.Service
	Handlers        *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	shippingTable, err := shipping.LoadFile(cfg.ShippingConfigPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load shipping config: %w", err)
	}
	resolver := shipping.NewResolver(shippingTable)

	catalogParser := catalog.NewParser()
	cat, err := catalogParser.ParseFile(cfg.CatalogPath)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	if err := catalog.NewValidator().Validate(cat); err != nil {
		database.Close()
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	cartStore, err := cart.NewStore(startupCtx, cart.StoreConfig{
		Provider:              cfg.CartStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize cart store: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	paymentClient := payments.NewClient(cfg.StripeSecretKey, cfg.Currency)
	staffAuth := auth.NewStaffAuth(cfg.StaffTokenSecret)

	emailProvider := email.NewProvider(email.Config{
		APIKey: cfg.ResendAPIKey,
		From:   cfg.EmailFrom,
	})
	if err := validateEmailProvider(startupCtx, emailProvider); err != nil {
		closeCartStore(logger, cartStore)
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, err
	}
	emailSender, err := email.NewSender(emailProvider, cat.Store.Name, cfg.BaseURL, logger.With("component", "email"))
	if err != nil {
		closeCartStore(logger, cartStore)
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email sender: %w", err)
	}

	checkoutService := checkout.NewService(
		paymentClient,
		orderStore,
		cartStore,
		resolver,
		cat,
		catalog.NewPricer(),
		emailSender,
		cfg.Currency,
		checkout.DefaultQuiescenceWindow,
		logger.With("component", "checkout_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		DB:              database,
		OrderStore:      orderStore,
		CartStore:       cartStore,
		Catalog:         cat,
		Resolver:        resolver,
		CheckoutService: checkoutService,
		CacheProvider:   cacheProvider,
		SessionManager:  sessionManager,
		StaffAuth:       staffAuth,
		EmailSender:     emailSender,
		Logger:          logger,
	})
	if err != nil {
		closeCartStore(logger, cartStore)
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		DB:              database,
		CacheProvider:   cacheProvider,
		SessionManager:  sessionManager,
		CartStore:       cartStore,
		CheckoutService: checkoutService,
		Handlers:        h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CartStore != nil {
		closeCartStore(a.Logger, a.CartStore)
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: cfg.LogLevel,
	}))
}

// validateEmailProvider fails startup on a bad delivery credential instead of
// surfacing it on the first order confirmation. A nil provider means email is
// disabled and there is nothing to check.
func validateEmailProvider(ctx context.Context, provider email.Provider) error {
	if provider == nil {
		return nil
	}
	if err := provider.ValidateAPIKey(ctx); err != nil {
		return fmt.Errorf("email provider validation failed: %w", err)
	}
	return nil
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}

func closeCartStore(logger *slog.Logger, store cart.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cart store", "error", err)
	}
}
