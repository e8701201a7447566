package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/carebeat/internal/api/handler"
	"github.com/albapepper/carebeat/internal/care"
	"github.com/albapepper/carebeat/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", handler.HeaderUserID, handler.HeaderUserRole},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id", "Retry-After"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/schedulers", h.HealthCheckSchedulers)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	elderOrFamily := handler.RequireRole(care.RoleElderly, care.RoleFamily)
	elderOnly := handler.RequireRole(care.RoleElderly)
	opsOnly := handler.RequireRole(care.RoleOps)

	r.Route("/api/v1", func(r chi.Router) {
		// Push
		r.Get("/push/vapid-public-key", h.GetVAPIDPublicKey)
		r.With(elderOrFamily).Post("/push/subscribe", h.Subscribe)

		// Elder activity
		r.With(elderOnly).Post("/activity/heartbeat", h.Heartbeat)
		r.With(elderOnly).Post("/wellbeing/check", h.RecordWellbeing)
		r.With(elderOnly).Post("/medicines/{id}/taken", h.MarkMedicineTaken)
		r.With(elderOnly).Post("/sos", h.SendSOS)

		// Scheduler operations
		r.Group(func(r chi.Router) {
			r.Use(opsOnly)
			r.Get("/schedulers", h.ListSchedulers)
			r.Post("/schedulers/{name}/tick", h.TickScheduler)
		})
	})

	return r
}
