package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Setup test database
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&gormModels.EconomicSector{},
		&gormModels.SectorGroup{},
		&gormModels.SectorGroupMapping{},
		&gormModels.TransitionRun{},
		&gormModels.AuditLog{},
	); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	require.NoError(t, db.Create(&[]gormModels.EconomicSector{
		{Code: "A01", Description: "Agriculture"},
		{Code: "B02", Description: "Mining and Quarrying"},
		{Code: "C10", Description: "Food Manufacturing"},
	}).Error)
	return db
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func newRecord(group *gormModels.SectorGroup, sector string, start *time.Time, active bool) *gormModels.SectorGroupMapping {
	return &gormModels.SectorGroupMapping{
		GroupID:            group.ID,
		EconomicSectorCode: sector,
		GroupType:          models.GroupTypeGreen,
		GroupName:          group.Name,
		EffectiveStart:     start,
		IsActive:           active,
		CreatedBy:          "alice@example.com",
	}
}

func TestMappingRepositoryGORM_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))

	group, err := repo.CreateGroup(ctx, "Green", "green economy", "seed")
	require.NoError(t, err)

	jakarta := time.FixedZone("WIB", 7*3600)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, jakarta)
	require.NoError(t, repo.CreateBatch(ctx, []*gormModels.SectorGroupMapping{
		newRecord(group, "A01", &start, false),
		newRecord(group, "B02", &start, false),
	}))

	key := models.LogicalKey{GroupID: group.ID, GroupName: "Green", EffectiveStart: &start}
	records, total, err := repo.FindMany(ctx, ByKey(key), Pagination{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, records, 2)
	require.NotNil(t, records[0].SectorGroup)
	assert.Equal(t, "Green", records[0].SectorGroup.Name)
	require.NotNil(t, records[0].EconomicSector)
	require.NotNil(t, records[0].EffectiveStart)
	assert.True(t, records[0].EffectiveStart.Equal(start))
	assert.Equal(t, models.StatusDraft, records[0].Status())
}

func TestMappingRepositoryGORM_NullStartKey(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, newRecord(group, "A01", nil, false)))
	require.NoError(t, repo.Create(ctx, newRecord(group, "B02", day(2025, 1, 1), false)))

	n, err := repo.Count(ctx, ByKey(models.LogicalKey{GroupID: group.ID, GroupName: "Green"}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMappingRepositoryGORM_RangeFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)

	active := newRecord(group, "A01", day(2025, 1, 1), true)
	active.EffectiveEnd = day(2025, 6, 1)
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, newRecord(group, "B02", day(2025, 6, 1), false)))

	yes := true
	n, err := repo.Count(ctx, MappingQuery{IsActive: &yes, EndFrom: day(2025, 6, 1), EndBefore: day(2025, 6, 2)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	no := false
	n, err = repo.Count(ctx, MappingQuery{IsActive: &no, StartFrom: day(2025, 6, 1), StartBefore: day(2025, 6, 2)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Count(ctx, MappingQuery{HasEnd: &yes})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// open-ended records always pass, ended ones only if still open at the bound
	n, err = repo.Count(ctx, MappingQuery{EndNotBefore: day(2025, 6, 2)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Count(ctx, MappingQuery{EndNotBefore: day(2025, 6, 1)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMappingRepositoryGORM_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	green, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)
	nonKLM, err := repo.CreateGroup(ctx, "Non KLM", "", "seed")
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, newRecord(green, "A01", day(2025, 1, 1), false)))
	require.NoError(t, repo.Create(ctx, newRecord(nonKLM, "B02", day(2025, 1, 1), false)))

	n, err := repo.Count(ctx, MappingQuery{Search: "mining"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Count(ctx, MappingQuery{Search: "GRE"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Count(ctx, MappingQuery{CreatedBy: "ALICE"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestMappingRepositoryGORM_Pagination(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)
	for _, code := range []string{"A01", "B02", "C10"} {
		require.NoError(t, repo.Create(ctx, newRecord(group, code, day(2025, 1, 1), false)))
	}

	records, total, err := repo.FindMany(ctx, MappingQuery{OrderBy: OrderIDAsc}, Pagination{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, records, 1)
	assert.Equal(t, "C10", records[0].EconomicSectorCode)
}

func TestMappingRepositoryGORM_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)

	rec := newRecord(group, "A01", day(2025, 1, 1), true)
	rec.EffectiveEnd = day(2025, 2, 1)
	require.NoError(t, repo.Create(ctx, rec))
	require.NoError(t, repo.Create(ctx, newRecord(group, "B02", day(2025, 1, 1), false)))

	_, err = repo.UpdateMany(ctx, MappingQuery{}, MappingPatch{ClearEffectiveEnd: true})
	assert.ErrorIs(t, err, ErrUnscopedMutation)

	actor := "bob@example.com"
	n, err := repo.UpdateMany(ctx, ByIDs(rec.ID), MappingPatch{ClearEffectiveEnd: true, UpdatedBy: &actor})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	records, _, err := repo.FindMany(ctx, ByIDs(rec.ID), Pagination{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].EffectiveEnd)
	assert.Equal(t, models.StatusActive, records[0].Status())
	require.NotNil(t, records[0].UpdatedBy)
	assert.Equal(t, actor, *records[0].UpdatedBy)

	n, err = repo.DeleteMany(ctx, MappingQuery{SectorCode: "B02"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = repo.Count(ctx, MappingQuery{OrderBy: OrderIDAsc})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestMappingRepositoryGORM_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithinTransaction(ctx, func(tx Store) error {
		if err := tx.Create(ctx, newRecord(group, "A01", day(2025, 1, 1), false)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx, MappingQuery{SectorCode: "A01"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestMappingRepositoryGORM_Lookups(t *testing.T) {
	ctx := context.Background()
	repo := NewMappingRepositoryGORM(setupTestDB(t))

	sector, err := repo.FindSectorByCode(ctx, "Z99")
	require.NoError(t, err)
	assert.Nil(t, sector)

	found, err := repo.FindSectorsByCodes(ctx, []string{"A01", "Z99"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "A01")

	group, err := repo.FindGroupByName(ctx, "Green")
	require.NoError(t, err)
	assert.Nil(t, group)

	_, err = repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)
	groups, err := repo.ListActiveGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)

	sectors, err := repo.ListSectors(ctx)
	require.NoError(t, err)
	require.Len(t, sectors, 3)
	assert.Equal(t, "A01", sectors[0].Code)
}

func TestMappingReportRepo(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := NewMappingRepositoryGORM(gdb)
	group, err := repo.CreateGroup(ctx, "Green", "", "seed")
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, newRecord(group, "A01", day(2025, 1, 1), true)))
	newer := newRecord(group, "A01", day(2025, 3, 1), true)
	newer.GroupType = models.GroupTypeSpecificSector
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.Create(ctx, newRecord(group, "B02", day(2025, 2, 1), false)))
	// a dated record outranks one without a start
	require.NoError(t, repo.Create(ctx, newRecord(group, "C10", nil, true)))
	dated := newRecord(group, "C10", day(2024, 6, 1), true)
	dated.GroupType = models.GroupTypeSpecificSector
	require.NoError(t, repo.Create(ctx, dated))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	report := NewMappingReportRepo(sqlx.NewDb(sqlDB, "sqlite3"))

	rows, err := report.LatestActiveMappings(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A01", rows[0].SectorCode)
	assert.Equal(t, models.GroupTypeSpecificSector, rows[0].GroupType)
	require.NotNil(t, rows[0].EffectiveStart)
	assert.True(t, rows[0].EffectiveStart.Equal(*day(2025, 3, 1)))
	assert.Equal(t, "C10", rows[1].SectorCode)
	assert.Equal(t, models.GroupTypeSpecificSector, rows[1].GroupType)
	assert.True(t, rows[1].IsActive)

	counts, err := report.CountByGroupType(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"GREEN": 3, "SPECIFIC_SECTOR": 2}, counts)

	counts, err = report.CountByGroupType(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"GREEN": 2, "SPECIFIC_SECTOR": 2}, counts)
}

func TestTransitionRunRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewTransitionRunRepo(setupTestDB(t))

	last, err := repo.LastRun(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, last)

	asOf := *day(2025, 6, 1)
	first := time.Date(2025, 6, 1, 0, 0, 1, 0, time.UTC)
	second := first.Add(time.Minute)
	require.NoError(t, repo.RecordRun(ctx, &gormModels.TransitionRun{
		Trigger: constants.TransitionTriggerScheduled, AsOf: asOf, Status: constants.TransitionRunSucceeded,
		Deactivated: 2, Activated: 1, TriggeredBy: constants.SystemTransitionActor, StartedAt: first, FinishedAt: &first,
	}))
	require.NoError(t, repo.RecordRun(ctx, &gormModels.TransitionRun{
		Trigger: constants.TransitionTriggerManual, AsOf: asOf, Status: constants.TransitionRunFailed,
		TriggeredBy: "ops@example.com", StartedAt: second, FinishedAt: &second,
	}))

	last, err = repo.LastRun(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, constants.TransitionTriggerManual, last.Trigger)
	assert.Len(t, last.ID, 36)

	last, err = repo.LastRun(ctx, constants.TransitionTriggerScheduled)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Deactivated)

	ok, err := repo.LastSuccessfulRunFor(ctx, asOf)
	require.NoError(t, err)
	require.NotNil(t, ok)
	assert.Equal(t, constants.TransitionRunSucceeded, ok.Status)

	none, err := repo.LastSuccessfulRunFor(ctx, *day(2025, 6, 2))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestAuditRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepo(setupTestDB(t))

	require.NoError(t, repo.Log(ctx,
		gormModels.AuditLog{Actor: "alice", Action: constants.AuditActionCreate, ResourceType: constants.AuditResourceSectorMapping, ResourceID: "1_Green_null"},
		gormModels.AuditLog{Actor: "bob", Action: constants.AuditActionApprove, ResourceType: constants.AuditResourceSectorMapping, ResourceID: "1_Green_null"},
	))
	require.NoError(t, repo.Log(ctx))

	entries, err := repo.ListByResource(ctx, constants.AuditResourceSectorMapping, "1_Green_null")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
