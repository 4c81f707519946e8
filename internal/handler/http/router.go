package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopcraft/selection/internal/service"
	"github.com/shopcraft/selection/pkg/health"
	"github.com/shopcraft/selection/pkg/middleware"
)

// NewRouter creates a chi router with all selection service routes registered.
func NewRouter(
	selectionService *service.SelectionService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsCfg middleware.CORSConfig,
	pprofCIDRs []string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("selection"))
	r.Use(middleware.Tracing("selection"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, pprofCIDRs, logger)

	sessionHandler := NewSessionHandler(selectionService, logger)
	productHandler := NewProductHandler(selectionService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.StartSession)
			r.Get("/{sessionId}", sessionHandler.GetSession)
			r.Delete("/{sessionId}", sessionHandler.EndSession)
			r.Put("/{sessionId}/color", sessionHandler.SelectColor)
			r.Put("/{sessionId}/size", sessionHandler.SelectSize)
			r.Put("/{sessionId}/quantity", sessionHandler.SetQuantity)
		})

		r.With(middleware.CacheControl(60)).
			Get("/products/{productId}", productHandler.GetProduct)
	})

	return r
}
