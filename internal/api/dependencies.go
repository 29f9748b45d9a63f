package api

import (
	"context"
	"time"

	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/db/repositories"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/models/dtos"
	"sector-registry/sectorhub/internal/services"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// TransitionJob is the scheduled job as seen by the handlers, e.g. jobs.SectorTransitionJob
type TransitionJob interface {
	RunNow(ctx context.Context, asOf time.Time, triggeredBy string) (*dtos.TransitionReport, error)
	Status(ctx context.Context) (*dtos.JobStatus, error)
}

type Repositories struct {
	Mappings repositories.Store
	Runs     services.TransitionRunStore
	Audit    services.AuditWriter
	Reports  services.MappingReports
}

type Services struct {
	Cache       common.CacheInterface
	Mappings    *services.SectorMappingService
	Transitions *services.SectorTransitionService
}

type Dependencies struct {
	Repo     *Repositories
	Services *Services
	// Job is nil until the scheduler is started
	Job TransitionJob
}

type DependencyOptions struct {
	ORM      *gorm.DB
	SQL      *sqlx.DB
	Cache    common.CacheInterface
	Metrics  *metrics.MetricsRegistry
	Location *time.Location
}

// InitDependencies wires repositories and services on top of the open connections
func InitDependencies(opts DependencyOptions) (*Dependencies, error) {
	repos := &Repositories{
		Mappings: repositories.NewMappingRepositoryGORM(opts.ORM),
		Runs:     repositories.NewTransitionRunRepo(opts.ORM),
		Audit:    repositories.NewAuditRepo(opts.ORM),
	}
	if opts.SQL != nil {
		repos.Reports = repositories.NewMappingReportRepo(opts.SQL)
	}
	return NewDependencies(repos, opts.Cache, opts.Metrics, opts.Location, nil), nil
}

// NewDependencies builds the services over already constructed repositories.
// now may be nil.
func NewDependencies(repos *Repositories, cache common.CacheInterface, metricsReg *metrics.MetricsRegistry, loc *time.Location, now func() time.Time) *Dependencies {
	if cache == nil {
		cache = common.NewCacheService(10*time.Minute, 15*time.Minute)
	}

	var audit services.AuditSink
	if repos.Audit != nil {
		audit = services.NewAuditSink(repos.Audit)
	}

	svcs := &Services{
		Cache: cache,
		Mappings: services.NewSectorMappingService(repos.Mappings, services.SectorMappingServiceConfig{
			Reports:  repos.Reports,
			Cache:    cache,
			Audit:    audit,
			Metrics:  metricsReg,
			Location: loc,
			Now:      now,
		}),
		Transitions: services.NewSectorTransitionService(repos.Mappings, services.SectorTransitionServiceConfig{
			Runs:     repos.Runs,
			Cache:    cache,
			Audit:    audit,
			Metrics:  metricsReg,
			Location: loc,
			Now:      now,
		}),
	}

	return &Dependencies{Repo: repos, Services: svcs}
}

// Close releases the service worker pools
func (d *Dependencies) Close() {
	d.Services.Mappings.Close()
}
