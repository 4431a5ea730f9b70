package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopforge/promotion-service/internal/service"
	"github.com/shopforge/promotion-service/pkg/health"
	"github.com/shopforge/promotion-service/pkg/middleware"
)

// RouterConfig bundles the dependencies of the HTTP router.
type RouterConfig struct {
	Campaigns   *service.CampaignService
	Engine      *service.PromotionEngine
	Catalog     *service.CatalogService
	Health      *health.Handler
	Logger      *slog.Logger
	CORS        CORSConfig
	CacheMaxAge int
}

// NewRouter creates a chi router with all promotion service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("promotion"))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	campaignHandler := NewCampaignHandler(cfg.Campaigns, cfg.Engine, cfg.Logger)
	promotionHandler := NewPromotionHandler(cfg.Engine, cfg.Logger)
	catalogHandler := NewCatalogHandler(cfg.Catalog, cfg.Logger)

	r.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", campaignHandler.CreateCampaign)
		r.Get("/", campaignHandler.ListCampaigns)
		r.Get("/{id}", campaignHandler.GetCampaign)
		r.Put("/{id}", campaignHandler.UpdateCampaign)
		r.Delete("/{id}", campaignHandler.DeleteCampaign)
		r.Post("/{id}/activate", campaignHandler.ActivateCampaign)
		r.Post("/{id}/expire", campaignHandler.ExpireCampaign)
	})

	r.Route("/api/v1/promotions", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/reconcile", promotionHandler.Reconcile)
		r.Post("/sweep", promotionHandler.Sweep)
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Use(middleware.CacheControl(cfg.CacheMaxAge))

		r.Get("/available", catalogHandler.ListAvailableProducts)
	})

	return r
}
