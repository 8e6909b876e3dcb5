// Package api wires the HTTP surface: router, middleware, and handlers.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/vitrin-app/vitrin-backend/internal/api/handler"
	"github.com/vitrin-app/vitrin-backend/internal/cache"
	"github.com/vitrin-app/vitrin-backend/internal/config"
	"github.com/vitrin-app/vitrin-backend/internal/scan"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *pgxpool.Pool, appCache *cache.Cache, cfg *config.Config, scans *scan.Deps, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "Link", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, appCache, cfg, scans, logger)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// Admin triggers — the same code paths the scheduler and listener run.
	r.Route("/admin", func(r chi.Router) {
		r.Post("/scans/run", h.RunScans)
		r.Post("/promotions/{promotionID}/announce", h.AnnouncePromotion)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Notification feed
		r.Get("/users/{userID}/notifications", h.GetNotifications)
		r.Get("/users/{userID}/notifications/unread_count", h.GetUnreadCount)
		r.Post("/notifications/{notificationID}/read", h.MarkNotificationRead)
	})

	return r
}
