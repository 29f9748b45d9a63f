package routes

import (
	"time"

	"sector-registry/sectorhub/internal/api"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/middleware"

	"github.com/go-chi/chi/v5"
)

// RegisterAPIRoutes registers the sector mapping API under /api/v1
func RegisterAPIRoutes(r chi.Router, deps *api.Dependencies, metricsReg *metrics.MetricsRegistry, limiter *middleware.RateLimiter, jwtSecret string, loc *time.Location) {
	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Use(middleware.InFlightMiddleware(metricsReg, "/api/v1"))
		v1.Use(middleware.ActorMiddleware(jwtSecret))

		v1.Route("/sector-mappings", func(m chi.Router) {
			// Reads
			m.Get("/", api.ListMappingsHandler(deps))
			m.Get("/template", api.TemplateHandler(deps))
			m.Get("/active-mappings", api.ActiveMappingsHandler(deps))
			m.Get("/sector-groups", api.SectorGroupsHandler(deps))
			m.Get("/economic-sectors", api.EconomicSectorsHandler(deps))
			m.Get("/stats", api.StatsHandler(deps))
			m.Get("/transitions/upcoming", api.UpcomingTransitionsHandler(deps))
			m.Get("/transitions/status", api.TransitionStatusHandler(deps))

			// Writes are rate limited per client
			m.Group(func(w chi.Router) {
				if limiter != nil {
					w.Use(limiter.Middleware)
				}
				w.Post("/", api.CreateMappingHandler(deps))
				w.Put("/{id}", api.UpdateMappingHandler(deps))
				w.Post("/approve", api.ApproveMappingsHandler(deps))
				w.Delete("/", api.DeleteMappingsHandler(deps))
				w.Post("/batch-upload", api.BatchUploadHandler(deps))
				w.Post("/upload", api.UploadWorkbookHandler(deps, loc))
				w.Post("/transitions/run", api.RunTransitionsHandler(deps))
				w.Post("/transitions/trigger", api.TriggerTransitionHandler(deps))
			})
		})
	})
}
