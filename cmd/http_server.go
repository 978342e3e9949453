package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/auth"
	"github.com/frahmantamala/content-payments/internal/catalog"
	catalogPostgres "github.com/frahmantamala/content-payments/internal/catalog/postgres"
	"github.com/frahmantamala/content-payments/internal/core/database"
	"github.com/frahmantamala/content-payments/internal/core/events"
	"github.com/frahmantamala/content-payments/internal/entitlement"
	entitlementPostgres "github.com/frahmantamala/content-payments/internal/entitlement/postgres"
	"github.com/frahmantamala/content-payments/internal/metrics"
	"github.com/frahmantamala/content-payments/internal/payment"
	paymentPostgres "github.com/frahmantamala/content-payments/internal/payment/postgres"
	"github.com/frahmantamala/content-payments/internal/paymentgateway"
	"github.com/frahmantamala/content-payments/internal/transport"
	"github.com/frahmantamala/content-payments/internal/transport/rest"
	"github.com/frahmantamala/content-payments/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and processor webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Handlers rest.Handlers
	Events   *events.EventBus
	Logger   *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.Handlers, deps.Config, deps.Logger)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
		if err := deps.Events.Close(ctx); err != nil {
			deps.Logger.Error("Event bus shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("Server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Configure(config.Observability.Logging.Level, config.Observability.Logging.Format)
	lg := logger.LoggerWrapper()

	db, gormDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if config.Observability.Metrics.Enabled {
		metrics.MustRegister()
	}

	eventBus := events.NewEventBus(lg, events.DefaultWorkers)
	payment.NewEventHandler(lg).RegisterEventHandlers(eventBus)

	handlers, err := buildHandlers(config, db, gormDB, eventBus, lg)
	if err != nil {
		_ = eventBus.Close(context.Background())
		_ = db.Close()
		return nil, err
	}

	return &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gormDB,
		Router:   chi.NewRouter(),
		Handlers: handlers,
		Events:   eventBus,
		Logger:   lg,
	}, nil
}

func buildHandlers(config *internal.Config, db *sqlx.DB, gormDB *gorm.DB, eventBus *events.EventBus, lg *slog.Logger) (rest.Handlers, error) {
	monthly, err := config.Payment.MonthlyPrice()
	if err != nil {
		return rest.Handlers{}, fmt.Errorf("monthly price: %w", err)
	}
	yearly, err := config.Payment.YearlyPrice()
	if err != nil {
		return rest.Handlers{}, fmt.Errorf("yearly price: %w", err)
	}

	gateway := paymentgateway.NewClient(paymentgateway.Config{
		SecretKey:        config.Payment.StripeSecretKey,
		WebhookSecret:    config.Payment.WebhookSecret,
		WebhookTolerance: config.Payment.WebhookTolerance,
		RequestTimeout:   config.Payment.RequestTimeout,
	}, lg)

	catalogService := catalog.NewService(catalogPostgres.NewItemRepository(gormDB), lg)

	libraryRepo := entitlementPostgres.NewLibraryRepository(gormDB)
	subscriptionRepo := entitlementPostgres.NewSubscriptionRepository(gormDB)
	entitlementService := entitlement.NewService(libraryRepo, subscriptionRepo, lg)

	tx := database.NewTransactor(gormDB, lg)
	paymentRepo := paymentPostgres.NewPaymentRepository(gormDB)

	factory := payment.NewIntentFactory(gateway, paymentRepo, catalogService, tx, payment.FactoryConfig{
		Currency:          config.Payment.Currency,
		MonthlyPrice:      monthly,
		YearlyPrice:       yearly,
		MaxBundleDiscount: config.Payment.MaxBundleDiscount,
	}, lg)

	reconciler, err := payment.NewWebhookReconciler(paymentRepo, gateway, gateway, tx, libraryRepo, subscriptionRepo, eventBus, lg)
	if err != nil {
		return rest.Handlers{}, fmt.Errorf("failed to build webhook reconciler: %w", err)
	}

	manager := payment.NewRefundRetryManager(paymentRepo, gateway, factory, tx, eventBus, config.Payment.MaxRetries, lg)
	service := payment.NewService(paymentRepo, paymentPostgres.NewHistoryRepository(db), lg)

	tokens := auth.NewJWTTokenGenerator(config.Security.JWTSecret, config.Security.AccessTokenDuration)

	return rest.Handlers{
		Auth:        auth.NewHandler(tokens, subscriptionRepo, lg),
		Payment:     payment.NewHandler(factory, reconciler, manager, service, lg),
		Webhook:     payment.NewWebhookHandler(transport.NewBaseHandler(lg), reconciler),
		Entitlement: entitlement.NewHandler(entitlementService),
	}, nil
}

// initDB opens one pgx pool shared by sqlx (history reads) and gorm (writes).
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: dbConn.DB}), &gorm.Config{})
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return dbConn, gormDB, nil
}
