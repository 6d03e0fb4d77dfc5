package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/localcart/api/controllers"
	"github.com/angelmondragon/localcart/api/middleware"
	"github.com/angelmondragon/localcart/internal/checkout"
	"github.com/angelmondragon/localcart/internal/orders"
	"github.com/angelmondragon/localcart/pkg/config"
	"github.com/angelmondragon/localcart/pkg/logger"
)

// Params carries everything the router mounts. Redis and Metrics are
// optional.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    controllers.Pinger
	Metrics  prometheus.Gatherer
	Cart     controllers.CartService
	Checkout checkout.Service
	Orders   *orders.OrderCache
	Payments *orders.PaymentHistory
	Insights controllers.InsightsService
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.Metrics != nil && cfg.FeatureFlags.ServeMetrics {
		r.Handle("/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(p.Cart, logg))
			r.Get("/stream", controllers.CartStream(p.Cart, cfg.Cart.StreamHeartbeat, logg))
			r.Post("/items", controllers.CartAddItem(p.Cart, logg))
			r.Patch("/items/{itemId}", controllers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(p.Cart, logg))
			r.Post("/refresh", controllers.CartRefresh(p.Cart, logg))
			r.Post("/login", controllers.CartLogin(p.Cart, logg))
			r.Delete("/error", controllers.CartClearError(p.Cart, logg))
		})

		r.Post("/checkout", controllers.CheckoutRun(p.Checkout, logg))
		r.Get("/orders", controllers.OrdersList(p.Orders, logg))
		r.Get("/payments", controllers.PaymentsList(p.Payments, logg))

		r.Route("/insights", func(r chi.Router) {
			r.Get("/sellers/{sellerId}/demand", controllers.InsightsSellerDemand(p.Insights, logg))
			r.Get("/products/{productId}/price-coach", controllers.InsightsPriceCoach(p.Insights, logg))
			r.Get("/products/{productId}/recommendations", controllers.InsightsRecommendations(p.Insights, logg))
			r.Delete("/cache", controllers.InsightsInvalidate(p.Insights, logg))
		})
	})

	return r
}
