package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ecobazaar/storefront/internal/catalog"
	"github.com/ecobazaar/storefront/internal/fulfillment"
	"github.com/ecobazaar/storefront/internal/store"
	"github.com/ecobazaar/storefront/pkg/health"
	"github.com/ecobazaar/storefront/pkg/middleware"
)

// requestTimeout applies to every API route except the event stream.
const requestTimeout = 30 * time.Second

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	registry *store.Registry,
	products *catalog.Service,
	board *fulfillment.Board,
	recommender Recommender,
	healthHandler *health.Handler,
	cors middleware.CORSConfig,
	rateLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing())
	r.Use(middleware.CORS(cors))
	r.Use(chimw.Compress(5))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(registry, logger)
	orderHandler := NewOrderHandler(registry, logger)
	recommendHandler := NewRecommendHandler(recommender, logger)
	productHandler := NewProductHandler(products, registry, logger)
	sellerOrderHandler := NewSellerOrderHandler(board, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimit, logger))
		r.Use(Session)
		r.Use(middleware.RequestLogger(logger))

		r.Get("/cart/stream", cartHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(requestTimeout))
			r.Use(ContentTypeJSON)

			r.Get("/cart", cartHandler.GetCart)
			r.Post("/cart/items", cartHandler.AddItem)
			r.Put("/cart/items/{position}", cartHandler.UpdateQuantity)
			r.Delete("/cart/items/{position}", cartHandler.RemoveItem)

			r.Post("/orders", orderHandler.PlaceOrder)
			r.Get("/orders", orderHandler.ListOrders)

			r.Get("/recommendations", recommendHandler.Featured)
			r.Post("/recommendations/similar", recommendHandler.Similar)
			r.Post("/chatbot", recommendHandler.Chat)

			r.Get("/products", productHandler.ListProducts)
			r.Get("/products/{idOrSlug}", productHandler.GetProduct)
			r.Post("/products/{idOrSlug}/like", productHandler.LikeProduct)
			r.Post("/products/{idOrSlug}/cart", productHandler.AddToCart)

			r.Route("/seller", func(r chi.Router) {
				r.Use(Seller)

				r.Get("/products", productHandler.ListSellerProducts)
				r.Post("/products", productHandler.CreateProduct)
				r.Put("/products/{id}", productHandler.UpdateProduct)
				r.Delete("/products/{id}", productHandler.DeleteProduct)

				r.Get("/orders", sellerOrderHandler.ListOrders)
				r.Get("/orders/{id}", sellerOrderHandler.GetOrder)
				r.Put("/orders/{id}/status/{status}", sellerOrderHandler.UpdateStatus)
			})
		})
	})

	return r
}
