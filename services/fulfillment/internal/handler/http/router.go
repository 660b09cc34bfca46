package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/commerce-fulfillment/pkg/health"
	"github.com/utafrali/commerce-fulfillment/pkg/middleware"
	"github.com/utafrali/commerce-fulfillment/services/fulfillment/internal/service"
)

// promotionMaxAge is the Cache-Control max-age, in seconds, of promotion reads.
const promotionMaxAge = 60

// Services groups the application services exposed over HTTP.
type Services struct {
	Inventory   *service.InventoryService
	Projections *service.ProjectionService
	Orders      *service.OrderService
	Promotions  *service.PromotionService
}

// RouterOptions carries the deployment-specific router settings.
type RouterOptions struct {
	// PprofCIDRs may reach /debug/pprof.
	PprofCIDRs []string
	// CORSOrigins are the browser origins allowed to call the API.
	CORSOrigins []string
	// RateLimit applies per client address to everything under /api/v1.
	RateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all fulfillment service routes registered.
func NewRouter(
	svcs Services,
	healthHandler *health.Handler,
	logger *slog.Logger,
	opts RouterOptions,
) http.Handler {
	r := chi.NewRouter()

	cors := middleware.DefaultCORSConfig()
	if len(opts.CORSOrigins) > 0 {
		cors.AllowedOrigins = opts.CORSOrigins
	}

	// Global middleware
	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cors))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.PrometheusMetrics("fulfillment"))
	r.Use(middleware.Tracing("fulfillment"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, opts.PprofCIDRs, logger)

	stockHandler := NewStockHandler(svcs.Inventory, svcs.Projections, logger)
	orderHandler := NewOrderHandler(svcs.Orders, logger)
	promotionHandler := NewPromotionHandler(svcs.Promotions, logger)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RateLimit(opts.RateLimit, logger))

		api.Route("/stock-items", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/", stockHandler.CreateStockItem)
			r.Get("/{id}", stockHandler.GetStockItem)
			r.Delete("/{id}", stockHandler.DeleteStockItem)
			r.Post("/{id}/restore", stockHandler.RestoreStockItem)
			r.Post("/{id}/adjust", stockHandler.AdjustStock)
			r.Post("/{id}/audit", stockHandler.AuditStock)
			r.Post("/{id}/reserve", stockHandler.ReserveStock)
			r.Post("/{id}/release", stockHandler.ReleaseStock)
			r.Post("/{id}/fulfill", stockHandler.FulfillStock)
			r.Put("/{id}/backorder-policy", stockHandler.SetBackorderPolicy)
			r.Get("/{id}/movements", stockHandler.ListMovements)
		})

		api.Route("/variants/{variantID}/summary", func(r chi.Router) {
			r.Get("/", stockHandler.GetVariantSummary)
			r.Post("/rebuild", stockHandler.RebuildVariantSummary)
		})

		api.Route("/orders", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/", orderHandler.CreateOrder)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/number/{number}", orderHandler.GetOrderByNumber)
			r.Get("/{id}", orderHandler.GetOrder)

			// Cart
			r.Post("/{id}/line-items", orderHandler.AddLineItem)
			r.Delete("/{id}/line-items/{lineItemID}", orderHandler.RemoveLineItem)
			r.Post("/{id}/promotions", orderHandler.ApplyPromotion)
			r.Delete("/{id}/promotions", orderHandler.RemovePromotion)

			// Checkout
			r.Put("/{id}/addresses", orderHandler.SetAddresses)
			r.Put("/{id}/shipping-method", orderHandler.SetShippingMethod)
			r.Post("/{id}/next", orderHandler.Next)
			r.Post("/{id}/complete", orderHandler.Complete)
			r.Post("/{id}/cancel", orderHandler.Cancel)
			r.Post("/{id}/allocate", orderHandler.Allocate)

			// Payments and shipments
			r.Post("/{id}/payments", orderHandler.AddPayment)
			r.Post("/{id}/payments/{paymentID}/{action}", orderHandler.PaymentAction)
			r.Post("/{id}/shipments", orderHandler.AddShipment)
			r.Post("/{id}/shipments/{shipmentID}/ship", orderHandler.ShipShipment)
			r.Post("/{id}/shipments/{shipmentID}/{action}", orderHandler.ShipmentAction)
		})

		api.Route("/promotions", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Post("/", promotionHandler.CreatePromotion)

			// Promotion reads may be served from shared caches for promotionMaxAge seconds.
			r.Group(func(r chi.Router) {
				r.Use(middleware.CacheControl(promotionMaxAge))
				r.Get("/", promotionHandler.ListPromotions)
				r.Get("/code/{code}", promotionHandler.GetPromotionByCode)
				r.Get("/{id}", promotionHandler.GetPromotion)
			})
		})
	})

	return r
}
