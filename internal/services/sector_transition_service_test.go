package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/db/memstore"
	"sector-registry/sectorhub/internal/db/repositories"
	"sector-registry/sectorhub/internal/metrics"
	"sector-registry/sectorhub/internal/models"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunStore keeps runs in memory
type fakeRunStore struct {
	mu   sync.Mutex
	runs []gormModels.TransitionRun
}

func (f *fakeRunStore) RecordRun(_ context.Context, run *gormModels.TransitionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRunStore) LastRun(_ context.Context, trigger string) (*gormModels.TransitionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.runs) - 1; i >= 0; i-- {
		if trigger == "" || f.runs[i].Trigger == trigger {
			run := f.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

func (f *fakeRunStore) LastSuccessfulRunFor(_ context.Context, dayStart time.Time) (*gormModels.TransitionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.runs) - 1; i >= 0; i-- {
		r := f.runs[i]
		if r.AsOf.Equal(dayStart) && r.Status == constants.TransitionRunSucceeded && r.SectorCode == nil {
			return &r, nil
		}
	}
	return nil, nil
}

// failAfterStore fails the failAt-th FindMany, including calls made inside a transaction
type failAfterStore struct {
	repositories.Store
	failAt int
	calls  *int
	err    error
}

func (s *failAfterStore) FindMany(ctx context.Context, q repositories.MappingQuery, page repositories.Pagination) ([]gormModels.SectorGroupMapping, int64, error) {
	*s.calls++
	if *s.calls == s.failAt {
		return nil, 0, s.err
	}
	return s.Store.FindMany(ctx, q, page)
}

func (s *failAfterStore) WithinTransaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	return s.Store.WithinTransaction(ctx, func(tx repositories.Store) error {
		return fn(&failAfterStore{Store: tx, failAt: s.failAt, calls: s.calls, err: s.err})
	})
}

type transitionFixture struct {
	store   *memstore.Store
	runs    *fakeRunStore
	audit   *recordingAuditSink
	metrics *metrics.MetricsRegistry
	svc     *SectorTransitionService
	green   gormModels.SectorGroup
	mining  gormModels.SectorGroup
}

func newTransitionFixture(t *testing.T, now time.Time) *transitionFixture {
	t.Helper()
	store := memstore.New()
	store.SetClock(func() time.Time { return now })
	store.AddSector("A01", "Agriculture")
	store.AddSector("B02", "Mining and Quarrying")

	f := &transitionFixture{
		store:   store,
		runs:    &fakeRunStore{},
		audit:   &recordingAuditSink{},
		metrics: metrics.NewMetricsRegistry(prometheus.NewRegistry()),
		green:   store.AddGroup("Green"),
		mining:  store.AddGroup("Mining Focus"),
	}
	f.svc = NewSectorTransitionService(store, SectorTransitionServiceConfig{
		Runs:     f.runs,
		Audit:    f.audit,
		Metrics:  f.metrics,
		Location: time.UTC,
		Now:      func() time.Time { return now },
	})
	return f
}

func (f *transitionFixture) seed(t *testing.T, rec gormModels.SectorGroupMapping) gormModels.SectorGroupMapping {
	t.Helper()
	rec.CreatedBy = "seed@example.com"
	if rec.GroupID == 0 {
		rec.GroupID, rec.GroupName, rec.GroupType = f.green.ID, "Green", models.GroupTypeGreen
	}
	require.NoError(t, f.store.Create(context.Background(), &rec))
	return rec
}

func TestSectorTransitionService_RunTransitions_Deactivates(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf.Add(30*time.Minute))

	end := asOf
	rec := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), EffectiveEnd: &end, IsActive: true, ApprovedBy: strPtr("alice")})

	report, err := f.svc.RunTransitions(context.Background(), asOf, constants.TransitionTriggerScheduled, "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeactivatedCount)
	assert.Equal(t, 0, report.ActivatedCount)
	require.Len(t, report.Transitions, 1)
	assert.Equal(t, "A01", report.Transitions[0].SectorCode)
	assert.Equal(t, constants.TransitionDeactivated, report.Transitions[0].Action)
	assert.Equal(t, rec.ID, report.Transitions[0].Mapping.ID)

	stored := f.store.Records()[0]
	assert.False(t, stored.IsActive)
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, constants.SystemTransitionActor, *stored.UpdatedBy)
}

func TestSectorTransitionService_RunTransitions_ActivatesApprovedOnly(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)

	approved := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(asOf), ApprovedBy: strPtr("alice")})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(asOf)})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(asOf.AddDate(0, 0, 1)), ApprovedBy: strPtr("alice")})

	report, err := f.svc.RunTransitions(context.Background(), asOf.Add(15*time.Hour), constants.TransitionTriggerManual, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, report.DeactivatedCount)
	assert.Equal(t, 1, report.ActivatedCount)
	require.Len(t, report.Transitions, 1)
	assert.Equal(t, constants.TransitionActivated, report.Transitions[0].Action)
	assert.Equal(t, approved.ID, report.Transitions[0].Mapping.ID)
	assert.True(t, report.AsOf.Equal(asOf))

	records := f.store.Records()
	assert.True(t, records[0].IsActive)
	assert.Equal(t, models.StatusActive, records[0].Status())
	assert.False(t, records[1].IsActive)
	assert.False(t, records[2].IsActive)
}

func TestSectorTransitionService_RunTransitions_Idempotent(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)
	ctx := context.Background()

	end := asOf
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), EffectiveEnd: &end, IsActive: true, ApprovedBy: strPtr("alice")})
	f.seed(t, gormModels.SectorGroupMapping{GroupID: f.mining.ID, GroupName: "Mining Focus", GroupType: models.GroupTypeSpecificSector, EconomicSectorCode: "A01", EffectiveStart: timePtr(asOf), ApprovedBy: strPtr("alice")})

	first, err := f.svc.RunTransitions(ctx, asOf, constants.TransitionTriggerScheduled, "")
	require.NoError(t, err)
	assert.Equal(t, 1, first.DeactivatedCount)
	assert.Equal(t, 1, first.ActivatedCount)

	second, err := f.svc.RunTransitions(ctx, asOf, constants.TransitionTriggerScheduled, "")
	require.NoError(t, err)
	assert.Equal(t, 0, second.DeactivatedCount)
	assert.Equal(t, 0, second.ActivatedCount)
	assert.Empty(t, second.Transitions)

	active := 0
	for _, r := range f.store.Records() {
		if r.IsActive {
			active++
			assert.Equal(t, "Mining Focus", r.GroupName)
		}
	}
	assert.Equal(t, 1, active)

	require.Len(t, f.runs.runs, 2)
	ok, err := f.svc.SucceededOn(ctx, asOf.Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, f.audit.entries, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(f.metrics.TransitionRunsTotal.WithLabelValues(constants.TransitionTriggerScheduled, constants.TransitionRunSucceeded)))
}

func TestSectorTransitionService_RunTransitions_SkipsEmptyWindow(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)
	ctx := context.Background()

	// starts and ends on the same day, so it never has an effective day
	end := asOf
	rec := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(asOf), EffectiveEnd: &end, ApprovedBy: strPtr("alice")})

	for run := 0; run < 2; run++ {
		report, err := f.svc.RunTransitions(ctx, asOf, constants.TransitionTriggerScheduled, "")
		require.NoError(t, err)
		assert.Equal(t, 0, report.DeactivatedCount, "run %d", run)
		assert.Equal(t, 0, report.ActivatedCount, "run %d", run)
	}

	records := f.store.Records()
	require.Len(t, records, 1)
	assert.Equal(t, rec.ID, records[0].ID)
	assert.False(t, records[0].IsActive)
	assert.Empty(t, f.audit.entries)
}

func TestSectorTransitionService_RunTransitions_FailureRollsBack(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)
	ctx := context.Background()

	end := asOf
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), EffectiveEnd: &end, IsActive: true, ApprovedBy: strPtr("alice")})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(asOf), ApprovedBy: strPtr("alice")})

	// deactivation succeeds, then activation's lookup fails
	calls := 0
	boom := errors.New("deadlock detected")
	wrapped := &failAfterStore{Store: f.store, failAt: 2, calls: &calls, err: boom}
	svc := NewSectorTransitionService(wrapped, SectorTransitionServiceConfig{Runs: f.runs, Location: time.UTC, Now: func() time.Time { return asOf }})

	_, err := svc.RunTransitions(ctx, asOf, constants.TransitionTriggerScheduled, "")
	require.ErrorIs(t, err, constants.ErrTransitionFailure)
	require.ErrorIs(t, err, boom)

	records := f.store.Records()
	assert.True(t, records[0].IsActive)
	assert.False(t, records[1].IsActive)

	last, err := svc.LastRun(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, constants.TransitionRunFailed, last.Status)
	require.NotNil(t, last.Error)
	assert.Contains(t, *last.Error, "deadlock detected")

	ok, err := svc.SucceededOn(ctx, asOf)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSectorTransitionService_TriggerTransition(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)
	ctx := context.Background()

	old := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), IsActive: true, ApprovedBy: strPtr("alice")})
	next := f.seed(t, gormModels.SectorGroupMapping{GroupID: f.mining.ID, GroupName: "Mining Focus", GroupType: models.GroupTypeSpecificSector, EconomicSectorCode: "A01", EffectiveStart: timePtr(asOf), ApprovedBy: strPtr("alice")})
	other := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(day(2023, 1, 1)), IsActive: true, ApprovedBy: strPtr("alice")})

	report, err := f.svc.TriggerTransition(ctx, "A01", asOf.Add(10*time.Hour), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, report.DeactivatedCount)
	assert.Equal(t, 1, report.ActivatedCount)

	byID := map[uint]gormModels.SectorGroupMapping{}
	for _, r := range f.store.Records() {
		byID[r.ID] = r
	}
	assert.False(t, byID[old.ID].IsActive)
	require.NotNil(t, byID[old.ID].EffectiveEnd)
	assert.True(t, byID[old.ID].EffectiveEnd.Equal(asOf))
	assert.Equal(t, "ops@example.com", *byID[old.ID].UpdatedBy)
	assert.True(t, byID[next.ID].IsActive)
	assert.True(t, byID[other.ID].IsActive)

	last, err := f.svc.LastRun(ctx, constants.TransitionTriggerSector)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.NotNil(t, last.SectorCode)
	assert.Equal(t, "A01", *last.SectorCode)

	_, err = f.svc.TriggerTransition(ctx, "Z99", asOf, "ops@example.com")
	assert.ErrorIs(t, err, constants.ErrReference)
	_, err = f.svc.TriggerTransition(ctx, " ", asOf, "ops@example.com")
	assert.ErrorIs(t, err, constants.ErrValidation)
}

func TestSectorTransitionService_TriggerTransition_Twice(t *testing.T) {
	asOf := day(2024, 3, 1)
	f := newTransitionFixture(t, asOf)
	ctx := context.Background()

	old := f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), IsActive: true, ApprovedBy: strPtr("alice")})
	next := f.seed(t, gormModels.SectorGroupMapping{GroupID: f.mining.ID, GroupName: "Mining Focus", GroupType: models.GroupTypeSpecificSector, EconomicSectorCode: "A01", EffectiveStart: timePtr(asOf), ApprovedBy: strPtr("alice")})

	first, err := f.svc.TriggerTransition(ctx, "A01", asOf, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, first.DeactivatedCount)
	assert.Equal(t, 1, first.ActivatedCount)

	second, err := f.svc.TriggerTransition(ctx, "A01", asOf.Add(2*time.Hour), "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, second.DeactivatedCount)
	assert.Equal(t, 0, second.ActivatedCount)
	assert.Empty(t, second.Transitions)

	var active []uint
	for _, r := range f.store.Records() {
		if r.IsActive {
			active = append(active, r.ID)
		}
		if r.ID == next.ID {
			assert.Nil(t, r.EffectiveEnd)
		}
	}
	assert.Equal(t, []uint{next.ID}, active)
	assert.NotContains(t, active, old.ID)
}

func TestSectorTransitionService_GetUpcomingTransitions(t *testing.T) {
	today := day(2024, 3, 1)
	f := newTransitionFixture(t, today.Add(8*time.Hour))
	ctx := context.Background()

	endSoon := today.AddDate(0, 0, 3)
	endLater := today.AddDate(0, 0, 30)
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(day(2023, 1, 1)), EffectiveEnd: &endSoon, IsActive: true, ApprovedBy: strPtr("alice")})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(day(2023, 1, 1)), EffectiveEnd: &endLater, IsActive: true, ApprovedBy: strPtr("alice")})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "A01", EffectiveStart: timePtr(today.AddDate(0, 0, 7))})
	f.seed(t, gormModels.SectorGroupMapping{EconomicSectorCode: "B02", EffectiveStart: timePtr(today.AddDate(0, 0, 8)), ApprovedBy: strPtr("alice")})

	up, err := f.svc.GetUpcomingTransitions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, up.UpcomingDeactivations, 1)
	assert.Equal(t, "A01", up.UpcomingDeactivations[0].SectorCode)
	assert.Equal(t, "Agriculture", up.UpcomingDeactivations[0].SectorDescription)
	require.Len(t, up.UpcomingActivations, 1)
	assert.Equal(t, models.StatusDraft, up.UpcomingActivations[0].Status)

	up, err = f.svc.GetUpcomingTransitions(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, up.UpcomingDeactivations)
	assert.Empty(t, up.UpcomingActivations)

	_, err = f.svc.GetUpcomingTransitions(ctx, -1)
	assert.ErrorIs(t, err, constants.ErrValidation)
}
