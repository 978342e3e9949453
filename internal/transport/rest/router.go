package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/frahmantamala/content-payments/internal"
	"github.com/frahmantamala/content-payments/internal/auth"
	"github.com/frahmantamala/content-payments/internal/entitlement"
	"github.com/frahmantamala/content-payments/internal/payment"
	"github.com/frahmantamala/content-payments/internal/transport/middleware"
	"github.com/frahmantamala/content-payments/internal/transport/swagger"
)

type Handlers struct {
	Auth        *auth.Handler
	Payment     *payment.Handler
	Webhook     *payment.WebhookHandler
	Entitlement *entitlement.Handler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, handlers Handlers, cfg *internal.Config, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))
	if cfg.Observability.Metrics.Enabled {
		router.Use(middleware.Metrics)
		router.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
	}

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// the processor authenticates with the signature header, not a bearer token
		if handlers.Webhook != nil {
			r.Post("/payments/webhook", handlers.Webhook.HandleWebhook)
		}

		if handlers.Auth == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(handlers.Auth.AuthMiddleware)

			if handlers.Payment != nil {
				pr.Route("/payments", func(pm chi.Router) {
					pm.Post("/single", handlers.Payment.CreateSingle)
					pm.Post("/bundle", handlers.Payment.CreateBundle)
					pm.Post("/subscription", handlers.Payment.CreateSubscription)
					pm.Get("/", handlers.Payment.ListPayments)
					pm.Get("/{id}", handlers.Payment.GetPayment)
					pm.Post("/{id}/confirm", handlers.Payment.Confirm)
					pm.Post("/{id}/refund", handlers.Payment.Refund)
					pm.Post("/{id}/retry", handlers.Payment.Retry)
				})
			}

			if handlers.Entitlement != nil {
				pr.Get("/library", handlers.Entitlement.GetLibrary)
				pr.Get("/subscription", handlers.Entitlement.GetSubscription)
			}
		})
	})
}
