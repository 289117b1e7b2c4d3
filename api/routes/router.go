package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/putrabttart/dropstore-backend/api/controllers"
	webhookcontrollers "github.com/putrabttart/dropstore-backend/api/controllers/webhooks"
	"github.com/putrabttart/dropstore-backend/api/middleware"
	checkoutsvc "github.com/putrabttart/dropstore-backend/internal/checkout"
	"github.com/putrabttart/dropstore-backend/internal/orders"
	"github.com/putrabttart/dropstore-backend/pkg/config"
	"github.com/putrabttart/dropstore-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type purchaseService interface {
	Execute(ctx context.Context, input checkoutsvc.PurchaseInput) (*checkoutsvc.PurchaseResult, error)
}

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             pinger
	Redis          pinger
	Checkout       purchaseService
	Registry       orders.Registry
	WebhookService webhookcontrollers.PaygateWebhookService
	Metrics        prometheus.Gatherer
}

// NewRouter wires the API routes.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(params.Logger),
		middleware.RequestID(params.Logger),
		middleware.Logging(params.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(params.Config))
		r.Get("/ready", controllers.HealthReady(params.Config, params.Logger, params.DB, params.Redis))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payment", webhookcontrollers.PaygateWebhook(params.WebhookService, params.Logger))
	})

	r.Route("/api/v1/purchases", func(r chi.Router) {
		r.Use(middleware.BotToken(params.Logger, params.Config.API.BotToken))
		r.Post("/", controllers.CreatePurchase(params.Checkout, params.Logger))
		r.Get("/{orderID}", controllers.PurchaseStatus(params.Registry, params.Logger))
	})

	return r
}
