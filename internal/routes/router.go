package routes

import (
	"net/http"
	"time"

	"sector-registry/sectorhub/internal/api"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterOptions struct {
	Deps     *api.Dependencies
	Metrics  *metrics.MetricsRegistry
	Gatherer prometheus.Gatherer
	DB       *sqlx.DB
	Redis    *redis.Client

	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Location       *time.Location
	AllowedOrigins []string
	UpSince        time.Time
}

func RegisterRoutes(opts RouterOptions) http.Handler {

	// initialize Chi router
	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(opts.Metrics))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.ActorHeader},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	logging.Info("Router initialized with metrics and logging middleware")
	// health check
	r.Get("/healthCheck", api.HealthCheckHandler(opts.DB, opts.Redis, opts.UpSince))

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	var limiter *middleware.RateLimiter
	if opts.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)
	}

	RegisterAPIRoutes(r, opts.Deps, opts.Metrics, limiter, opts.JWTSecret, opts.Location)

	return r
}
