package rest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"

	"github.com/frahmantamala/billpay-relay/api"
	"github.com/frahmantamala/billpay-relay/internal/auth"
	"github.com/frahmantamala/billpay-relay/internal/order"
	"github.com/frahmantamala/billpay-relay/internal/transport/middleware"
	"github.com/frahmantamala/billpay-relay/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, healthHandler *HealthHandler, authHandler *auth.Handler, orderHandler *order.Handler, webhookHandler *order.WebhookHandler, doc *openapi3.T, logger *slog.Logger) error {
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(api.Spec)
	})
	router.Handle("/swagger/*", swagger.Handler("/openapi.yml"))

	// Gateway facing routes
	router.Get("/", webhookHandler.Banner)
	router.Get("/toyyib/return", webhookHandler.HandleReturn)
	router.Post("/toyyib/return", webhookHandler.HandleReturn)
	router.Group(func(cr chi.Router) {
		cr.Use(authHandler.CallbackMiddleware)
		cr.Post("/toyyib/callback", webhookHandler.HandleCallback)
		cr.Post(fmt.Sprintf("/toyyib/callback/{%s}", auth.CallbackTokenParam), webhookHandler.HandleCallback)
	})

	var validate func(http.Handler) http.Handler
	if doc != nil {
		v, err := middleware.OpenAPIValidator(doc, logger)
		if err != nil {
			return fmt.Errorf("build openapi validator: %w", err)
		}
		validate = v
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(authHandler.AuthMiddleware)
			if validate != nil {
				pr.Use(validate)
			}

			pr.Post("/orders", orderHandler.PreRegister)
			pr.Get("/orders/{order_id}", orderHandler.GetStatus)
		})
	})

	return nil
}
