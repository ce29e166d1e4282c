package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// NewRouter creates a chi router with the storefront page, the checkout API,
// health checks and metrics. Only loopback clients are served.
func NewRouter(
	checkoutHandler *CheckoutHandler,
	healthHandler *health.Handler,
	serviceName string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.IPAllowlist(middleware.LoopbackCIDRs, logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", checkoutHandler.Storefront)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.Post("/", checkoutHandler.OpenCheckout)
		r.Get("/", checkoutHandler.GetCheckout)
		r.Delete("/", checkoutHandler.CloseCheckout)
		r.Get("/status", checkoutHandler.GetStatus)
		r.Put("/payment-method", checkoutHandler.SetPaymentMethod)
		r.Put("/wallet", checkoutHandler.ConnectWallet)
		r.Put("/receipt-email", checkoutHandler.SetReceiptEmail)
		r.Post("/pay", checkoutHandler.Pay)
		r.Post("/retry", checkoutHandler.RetryCreate)
		r.Post("/poll", checkoutHandler.RetryPoll)
	})

	return r
}
