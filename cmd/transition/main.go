// Command transition runs the sector mapping transition engine once, outside
// the scheduler. It is meant for backfills and operator overrides.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"sector-registry/sectorhub/internal/config"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/db"
	"sector-registry/sectorhub/internal/db/repositories"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/services"
)

func main() {
	var (
		date     = flag.String("date", "", "day to run, YYYY-MM-DD in the configured timezone (default today)")
		sector   = flag.String("sector", "", "run an override transition for this sector code only")
		actor    = flag.String("actor", "cli", "actor recorded on the run")
		upcoming = flag.Int("upcoming", -1, "list transitions due in the next N days instead of running")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Init(cfg.App.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Close()

	loc, err := cfg.Location()
	if err != nil {
		logging.Fatal("Invalid transition timezone", "error", err.Error())
	}
	ctx := context.Background()

	orm, err := db.InitPostgresORM(ctx, cfg.PostgresDSN())
	if err != nil {
		logging.Fatal("Failed to connect to Postgres (GORM)", "error", err.Error())
	}

	svc := services.NewSectorTransitionService(repositories.NewMappingRepositoryGORM(orm), services.SectorTransitionServiceConfig{
		Runs:     repositories.NewTransitionRunRepo(orm),
		Audit:    services.NewAuditSink(repositories.NewAuditRepo(orm)),
		Location: loc,
	})

	asOf := svc.Today()
	if *date != "" {
		asOf, err = time.ParseInLocation("2006-01-02", *date, loc)
		if err != nil {
			logging.Fatal("Invalid -date", "date", *date, "error", err.Error())
		}
	}

	var out any
	switch {
	case *upcoming >= 0:
		out, err = svc.GetUpcomingTransitions(ctx, *upcoming)
	case *sector != "":
		out, err = svc.TriggerTransition(ctx, *sector, asOf, *actor)
	default:
		out, err = svc.RunTransitions(ctx, asOf, constants.TransitionTriggerManual, *actor)
	}
	if err != nil {
		logging.Fatal("Transition command failed", "error", err.Error())
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logging.Fatal("Failed to write output", "error", err.Error())
	}
}
