package repositories

import (
	"context"
	"time"

	"sector-registry/sectorhub/internal/models"
	gormModels "sector-registry/sectorhub/internal/models/gorm"
)

// MappingOrder selects the ordering of FindMany results
type MappingOrder string

const (
	OrderCreatedDesc       MappingOrder = "created_desc"
	OrderEffectiveStartAsc MappingOrder = "effective_start_asc"
	OrderEffectiveEndAsc   MappingOrder = "effective_end_asc"
	OrderIDAsc             MappingOrder = "id_asc"
)

// MappingQuery selects stored mapping records. Unset fields are ignored and
// set fields combine with AND. Range bounds are [From, Before).
type MappingQuery struct {
	Key         *models.LogicalKey
	IDs         []uint
	SectorCode  string
	IsActive    *bool
	Approved    *bool
	HasEnd      *bool
	StartFrom   *time.Time
	StartBefore *time.Time
	EndFrom     *time.Time
	EndBefore   *time.Time
	CreatedFrom *time.Time
	// Open-ended records or records ending at or after this instant
	EndNotBefore *time.Time

	// Case-insensitive substring match against the group name or the sector description
	Search string
	// Case-insensitive substring match against created_by
	CreatedBy string

	OrderBy MappingOrder
}

// Scoped reports whether the query narrows the record set at all.
// UpdateMany and DeleteMany refuse unscoped queries.
func (q MappingQuery) Scoped() bool {
	return q.Key != nil || len(q.IDs) > 0 || q.SectorCode != "" || q.IsActive != nil ||
		q.Approved != nil || q.HasEnd != nil || q.StartFrom != nil || q.StartBefore != nil ||
		q.EndFrom != nil || q.EndBefore != nil || q.CreatedFrom != nil || q.EndNotBefore != nil || q.Search != "" || q.CreatedBy != ""
}

// ByKey selects every record of one logical mapping.
func ByKey(key models.LogicalKey) MappingQuery {
	return MappingQuery{Key: &key}
}

// ByIDs selects records by primary key.
func ByIDs(ids ...uint) MappingQuery {
	return MappingQuery{IDs: ids}
}

// Pagination limits FindMany. A zero Limit returns every match.
type Pagination struct {
	Offset int
	Limit  int
}

// MappingPatch lists the columns UpdateMany writes. Nil fields are untouched.
type MappingPatch struct {
	IsActive          *bool
	ApprovedBy        *string
	UpdatedBy         *string
	GroupType         *models.GroupType
	GroupName         *string
	Priority          *int
	EffectiveStart    *time.Time
	EffectiveEnd      *time.Time
	ClearEffectiveEnd bool
}

// Empty reports whether the patch writes nothing.
func (p MappingPatch) Empty() bool {
	return p.IsActive == nil && p.ApprovedBy == nil && p.UpdatedBy == nil && p.GroupType == nil &&
		p.GroupName == nil && p.Priority == nil && p.EffectiveStart == nil && p.EffectiveEnd == nil && !p.ClearEffectiveEnd
}

// MappingStore persists mapping records. It holds no business rules.
type MappingStore interface {
	Create(ctx context.Context, record *gormModels.SectorGroupMapping) error
	CreateBatch(ctx context.Context, records []*gormModels.SectorGroupMapping) error
	FindMany(ctx context.Context, q MappingQuery, page Pagination) ([]gormModels.SectorGroupMapping, int64, error)
	UpdateMany(ctx context.Context, q MappingQuery, patch MappingPatch) (int64, error)
	DeleteMany(ctx context.Context, q MappingQuery) (int64, error)
	Count(ctx context.Context, q MappingQuery) (int64, error)
}

// EconomicSectorLookup resolves economic sectors. Absent sectors return nil, nil.
type EconomicSectorLookup interface {
	FindSectorByCode(ctx context.Context, code string) (*gormModels.EconomicSector, error)
	FindSectorsByCodes(ctx context.Context, codes []string) (map[string]gormModels.EconomicSector, error)
	ListSectors(ctx context.Context) ([]gormModels.EconomicSector, error)
}

// SectorGroupLookup resolves and creates sector groups. Absent groups return nil, nil.
type SectorGroupLookup interface {
	FindGroupByName(ctx context.Context, name string) (*gormModels.SectorGroup, error)
	CreateGroup(ctx context.Context, name, description, actor string) (*gormModels.SectorGroup, error)
	ListActiveGroups(ctx context.Context) ([]gormModels.SectorGroup, error)
}

// Store is everything the mapping core reads and writes. WithinTransaction
// runs fn against a Store bound to one transaction; an error from fn rolls
// every write back.
type Store interface {
	MappingStore
	EconomicSectorLookup
	SectorGroupLookup
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
}
