package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sector-registry/sectorhub/internal/common"
	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/db/repositories"
	"sector-registry/sectorhub/internal/logging"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/models"
	"sector-registry/sectorhub/internal/models/dtos"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"github.com/google/uuid"
)

const maxUpcomingDays = 366

// TransitionRunStore keeps the run history, e.g. repositories.TransitionRunRepo
type TransitionRunStore interface {
	RecordRun(ctx context.Context, run *gormModels.TransitionRun) error
	LastRun(ctx context.Context, trigger string) (*gormModels.TransitionRun, error)
	LastSuccessfulRunFor(ctx context.Context, dayStart time.Time) (*gormModels.TransitionRun, error)
}

type SectorTransitionServiceConfig struct {
	Runs     TransitionRunStore
	Cache    common.CacheInterface
	Audit    AuditSink
	Metrics  *metrics.MetricsRegistry
	Location *time.Location
	Now      func() time.Time
}

// SectorTransitionService flips mapping records whose effective dates reach a given day
type SectorTransitionService struct {
	store   repositories.Store
	runs    TransitionRunStore
	cache   common.CacheInterface
	audit   AuditSink
	metrics *metrics.MetricsRegistry
	loc     *time.Location
	now     func() time.Time
}

func NewSectorTransitionService(store repositories.Store, cfg SectorTransitionServiceConfig) *SectorTransitionService {
	s := &SectorTransitionService{
		store:   store,
		runs:    cfg.Runs,
		cache:   cfg.Cache,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		loc:     cfg.Location,
		now:     cfg.Now,
	}
	if s.audit == nil {
		s.audit = noopAuditSink{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Location is the timezone transition days are computed in
func (s *SectorTransitionService) Location() *time.Location {
	return s.loc
}

// Today returns midnight of the current day
func (s *SectorTransitionService) Today() time.Time {
	return models.StartOfDay(s.now(), s.loc)
}

func (s *SectorTransitionService) window(asOf time.Time) (time.Time, time.Time) {
	start := models.StartOfDay(asOf, s.loc)
	return start, start.AddDate(0, 0, 1)
}

// RunTransitions deactivates active records whose end falls on asOf and
// activates approved records whose start falls on asOf, in one transaction.
// Running it again for the same day finds nothing left to flip.
func (s *SectorTransitionService) RunTransitions(ctx context.Context, asOf time.Time, trigger, triggeredBy string) (*dtos.TransitionReport, error) {
	if trigger == "" {
		trigger = constants.TransitionTriggerManual
	}
	dayStart, dayEnd := s.window(asOf)

	return s.execute(ctx, trigger, triggeredBy, dayStart, nil, func(tx repositories.Store, report *dtos.TransitionReport) error {
		deactivated, err := s.flip(ctx, tx, repositories.MappingQuery{
			IsActive:  boolPtr(true),
			EndFrom:   &dayStart,
			EndBefore: &dayEnd,
			OrderBy:   repositories.OrderIDAsc,
		}, repositories.MappingPatch{
			IsActive:  boolPtr(false),
			UpdatedBy: strPtr(constants.SystemTransitionActor),
		}, constants.TransitionDeactivated, nil)
		if err != nil {
			return fmt.Errorf("deactivation failed: %w", err)
		}

		activated, err := s.flip(ctx, tx, repositories.MappingQuery{
			IsActive:     boolPtr(false),
			Approved:     boolPtr(true),
			StartFrom:    &dayStart,
			StartBefore:  &dayEnd,
			EndNotBefore: &dayEnd,
			OrderBy:      repositories.OrderIDAsc,
		}, repositories.MappingPatch{
			IsActive:  boolPtr(true),
			UpdatedBy: strPtr(constants.SystemTransitionActor),
		}, constants.TransitionActivated, nil)
		if err != nil {
			return fmt.Errorf("activation failed: %w", err)
		}

		report.Transitions = append(deactivated, activated...)
		report.DeactivatedCount = len(deactivated)
		report.ActivatedCount = len(activated)
		return nil
	})
}

// TriggerTransition is an operator override for one sector: every active
// record of the sector is ended on effectiveDate, then its approved records
// starting that day are activated. Records already active from that day on
// are left alone, so triggering twice changes nothing the second time.
func (s *SectorTransitionService) TriggerTransition(ctx context.Context, sectorCode string, effectiveDate time.Time, actor string) (*dtos.TransitionReport, error) {
	code := strings.TrimSpace(sectorCode)
	if code == "" {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "sectorCode is required")
	}
	sector, err := s.store.FindSectorByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if sector == nil {
		return nil, constants.NewReferenceError("economic sector %q not found", code)
	}

	dayStart, dayEnd := s.window(effectiveDate)

	return s.execute(ctx, constants.TransitionTriggerSector, actor, dayStart, &code, func(tx repositories.Store, report *dtos.TransitionReport) error {
		// records starting on the trigger day are the successors, not the ones being replaced
		starting, _, err := tx.FindMany(ctx, repositories.MappingQuery{
			SectorCode:  code,
			IsActive:    boolPtr(true),
			StartFrom:   &dayStart,
			StartBefore: &dayEnd,
		}, repositories.Pagination{})
		if err != nil {
			return fmt.Errorf("deactivation failed: %w", err)
		}
		keep := make(map[uint]struct{}, len(starting))
		for _, rec := range starting {
			keep[rec.ID] = struct{}{}
		}

		deactivated, err := s.flip(ctx, tx, repositories.MappingQuery{
			SectorCode: code,
			IsActive:   boolPtr(true),
			OrderBy:    repositories.OrderIDAsc,
		}, repositories.MappingPatch{
			IsActive:     boolPtr(false),
			EffectiveEnd: timePtr(dayStart),
			UpdatedBy:    strPtr(actor),
		}, constants.TransitionDeactivated, keep)
		if err != nil {
			return fmt.Errorf("deactivation failed: %w", err)
		}

		skip := make(map[uint]struct{}, len(deactivated))
		for _, entry := range deactivated {
			skip[entry.Mapping.ID] = struct{}{}
		}

		activated, err := s.flip(ctx, tx, repositories.MappingQuery{
			SectorCode:   code,
			IsActive:     boolPtr(false),
			Approved:     boolPtr(true),
			StartFrom:    &dayStart,
			StartBefore:  &dayEnd,
			EndNotBefore: &dayEnd,
			OrderBy:      repositories.OrderIDAsc,
		}, repositories.MappingPatch{
			IsActive:  boolPtr(true),
			UpdatedBy: strPtr(actor),
		}, constants.TransitionActivated, skip)
		if err != nil {
			return fmt.Errorf("activation failed: %w", err)
		}

		report.Transitions = append(deactivated, activated...)
		report.DeactivatedCount = len(deactivated)
		report.ActivatedCount = len(activated)
		return nil
	})
}

// flip selects records, applies patch to exactly those ids and returns one entry per record
func (s *SectorTransitionService) flip(ctx context.Context, tx repositories.Store, q repositories.MappingQuery, patch repositories.MappingPatch, action string, skip map[uint]struct{}) ([]dtos.TransitionEntry, error) {
	records, _, err := tx.FindMany(ctx, q, repositories.Pagination{})
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(records))
	entries := make([]dtos.TransitionEntry, 0, len(records))
	for _, rec := range records {
		if _, ok := skip[rec.ID]; ok {
			continue
		}
		ids = append(ids, rec.ID)
		entries = append(entries, dtos.TransitionEntry{
			SectorCode: rec.EconomicSectorCode,
			Action:     action,
			Mapping:    toSnapshot(rec),
		})
	}
	if len(ids) == 0 {
		return entries, nil
	}

	affected, err := tx.UpdateMany(ctx, repositories.ByIDs(ids...), patch)
	if err != nil {
		return nil, err
	}
	if affected != int64(len(ids)) {
		return nil, fmt.Errorf("%s %d of %d selected records", action, affected, len(ids))
	}
	return entries, nil
}

// execute runs body in a transaction and records the outcome. A failing body
// leaves every record untouched and surfaces as a TransitionFailure.
func (s *SectorTransitionService) execute(ctx context.Context, trigger, triggeredBy string, dayStart time.Time, sectorCode *string, body func(tx repositories.Store, report *dtos.TransitionReport) error) (*dtos.TransitionReport, error) {
	started := s.now()
	report := &dtos.TransitionReport{
		RunID:       uuid.NewString(),
		AsOf:        dayStart,
		Transitions: []dtos.TransitionEntry{},
	}

	err := s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		report.Transitions = []dtos.TransitionEntry{}
		report.DeactivatedCount, report.ActivatedCount = 0, 0
		return body(tx, report)
	})
	finished := s.now()
	day := dayStart.Format("2006-01-02")

	run := &gormModels.TransitionRun{
		ID:          report.RunID,
		Trigger:     trigger,
		AsOf:        dayStart.UTC(),
		SectorCode:  sectorCode,
		TriggeredBy: triggeredBy,
		StartedAt:   started.UTC(),
		FinishedAt:  timePtr(finished.UTC()),
	}

	if err != nil {
		failure := constants.NewTransitionFailure(err, "transition run for %s aborted", day)
		msg := err.Error()
		run.Status = constants.TransitionRunFailed
		run.Error = &msg
		s.recordRun(ctx, run)
		s.metrics.ObserveTransitionRun(trigger, constants.TransitionRunFailed, finished.Sub(started), 0, 0, finished)
		logging.Error("[SectorTransition] Run failed, no records changed", "day", day, "trigger", trigger, "error", msg)
		return nil, failure
	}

	run.Status = constants.TransitionRunSucceeded
	run.Deactivated = report.DeactivatedCount
	run.Activated = report.ActivatedCount
	s.recordRun(ctx, run)
	s.metrics.ObserveTransitionRun(trigger, constants.TransitionRunSucceeded, finished.Sub(started), report.DeactivatedCount, report.ActivatedCount, finished)

	if len(report.Transitions) > 0 {
		actor := triggeredBy
		if actor == "" {
			actor = constants.SystemTransitionActor
		}
		entries := make([]gormModels.AuditLog, 0, len(report.Transitions))
		for _, t := range report.Transitions {
			action := constants.AuditActionActivate
			if t.Action == constants.TransitionDeactivated {
				action = constants.AuditActionDeactivate
			}
			entries = append(entries, auditEntry(actor, action, fmt.Sprint(t.Mapping.ID), map[string]any{
				"runId":      report.RunID,
				"sectorCode": t.SectorCode,
				"logicalId":  t.Mapping.LogicalID,
			}))
			logging.Debug("[SectorTransition] Transition", "action", t.Action, "sector", t.SectorCode, "record", t.Mapping.ID)
		}
		s.audit.Record(ctx, entries...)
		if s.cache != nil {
			s.cache.Delete(string(constants.CachePrefixMappingStats))
		}
	}

	logging.Info("[SectorTransition] Run completed",
		"day", day,
		"trigger", trigger,
		"deactivated", report.DeactivatedCount,
		"activated", report.ActivatedCount,
		"took", finished.Sub(started).String(),
	)
	return report, nil
}

func (s *SectorTransitionService) recordRun(ctx context.Context, run *gormModels.TransitionRun) {
	if s.runs == nil {
		return
	}
	if err := s.runs.RecordRun(ctx, run); err != nil {
		logging.Warn("[SectorTransition] Failed to record run history", "run", run.ID, "error", err.Error())
	}
}

// GetUpcomingTransitions lists records that will end or start between today
// and today+days, both inclusive.
func (s *SectorTransitionService) GetUpcomingTransitions(ctx context.Context, days int) (*dtos.UpcomingTransitions, error) {
	if days < 0 || days > maxUpcomingDays {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidFilter, "days must be between 0 and %d", maxUpcomingDays)
	}
	from := s.Today()
	until := from.AddDate(0, 0, days+1)

	ending, _, err := s.store.FindMany(ctx, repositories.MappingQuery{
		IsActive:  boolPtr(true),
		EndFrom:   &from,
		EndBefore: &until,
		OrderBy:   repositories.OrderEffectiveEndAsc,
	}, repositories.Pagination{})
	if err != nil {
		return nil, err
	}

	starting, _, err := s.store.FindMany(ctx, repositories.MappingQuery{
		IsActive:    boolPtr(false),
		StartFrom:   &from,
		StartBefore: &until,
		OrderBy:     repositories.OrderEffectiveStartAsc,
	}, repositories.Pagination{})
	if err != nil {
		return nil, err
	}

	out := &dtos.UpcomingTransitions{
		UpcomingDeactivations: make([]dtos.MappingRecordView, 0, len(ending)),
		UpcomingActivations:   make([]dtos.MappingRecordView, 0, len(starting)),
	}
	for _, rec := range ending {
		out.UpcomingDeactivations = append(out.UpcomingDeactivations, toRecordView(rec))
	}
	for _, rec := range starting {
		out.UpcomingActivations = append(out.UpcomingActivations, toRecordView(rec))
	}
	return out, nil
}

// LastRun returns the most recent run for trigger, or any trigger when empty
func (s *SectorTransitionService) LastRun(ctx context.Context, trigger string) (*dtos.TransitionRunView, error) {
	if s.runs == nil {
		return nil, nil
	}
	run, err := s.runs.LastRun(ctx, trigger)
	if err != nil || run == nil {
		return nil, err
	}
	return toRunView(run), nil
}

// SucceededOn reports whether a full run already succeeded for day
func (s *SectorTransitionService) SucceededOn(ctx context.Context, day time.Time) (bool, error) {
	if s.runs == nil {
		return false, nil
	}
	dayStart, _ := s.window(day)
	run, err := s.runs.LastSuccessfulRunFor(ctx, dayStart)
	if err != nil {
		return false, err
	}
	return run != nil, nil
}

func toRunView(run *gormModels.TransitionRun) *dtos.TransitionRunView {
	return &dtos.TransitionRunView{
		ID:          run.ID,
		Trigger:     run.Trigger,
		AsOf:        run.AsOf,
		SectorCode:  run.SectorCode,
		Deactivated: run.Deactivated,
		Activated:   run.Activated,
		Status:      run.Status,
		Error:       run.Error,
		TriggeredBy: run.TriggeredBy,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
}
