package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"gorm.io/gorm"
)

// ErrUnscopedMutation is returned when UpdateMany or DeleteMany get a query that selects everything.
var ErrUnscopedMutation = errors.New("refusing to mutate sector mappings without a selector")

// MappingRepositoryGORM is the postgres-backed Store
type MappingRepositoryGORM struct {
	db *gorm.DB
}

var _ Store = (*MappingRepositoryGORM)(nil)

// NewMappingRepositoryGORM creates a new GORM-based mapping store
func NewMappingRepositoryGORM(db *gorm.DB) *MappingRepositoryGORM {
	return &MappingRepositoryGORM{db: db}
}

// WithinTransaction runs fn inside one database transaction
func (r *MappingRepositoryGORM) WithinTransaction(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&MappingRepositoryGORM{db: tx})
	})
}

func (r *MappingRepositoryGORM) Create(ctx context.Context, record *gormModels.SectorGroupMapping) error {
	normalizeRecordTimes(record)
	if err := r.db.WithContext(ctx).Omit("SectorGroup", "EconomicSector").Create(record).Error; err != nil {
		return fmt.Errorf("failed to create sector mapping: %w", err)
	}
	return nil
}

// CreateBatch inserts all records in a single statement
func (r *MappingRepositoryGORM) CreateBatch(ctx context.Context, records []*gormModels.SectorGroupMapping) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		normalizeRecordTimes(rec)
	}
	if err := r.db.WithContext(ctx).Omit("SectorGroup", "EconomicSector").Create(&records).Error; err != nil {
		return fmt.Errorf("failed to create sector mappings: %w", err)
	}
	return nil
}

func (r *MappingRepositoryGORM) FindMany(ctx context.Context, q MappingQuery, page Pagination) ([]gormModels.SectorGroupMapping, int64, error) {
	var total int64
	if err := r.applyQuery(r.db.WithContext(ctx).Model(&gormModels.SectorGroupMapping{}), q).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sector mappings: %w", err)
	}

	var records []gormModels.SectorGroupMapping
	tx := r.applyQuery(r.db.WithContext(ctx), q).
		Preload("SectorGroup").
		Preload("EconomicSector").
		Order(orderClause(q.OrderBy))
	if page.Limit > 0 {
		tx = tx.Limit(page.Limit).Offset(page.Offset)
	}
	if err := tx.Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch sector mappings: %w", err)
	}

	return records, total, nil
}

// UpdateMany writes patch to every record matching q and returns the affected row count
func (r *MappingRepositoryGORM) UpdateMany(ctx context.Context, q MappingQuery, patch MappingPatch) (int64, error) {
	if !q.Scoped() {
		return 0, ErrUnscopedMutation
	}
	if patch.Empty() {
		return 0, nil
	}

	res := r.applyQuery(r.db.WithContext(ctx).Model(&gormModels.SectorGroupMapping{}), q).
		Updates(patchColumns(patch))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update sector mappings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *MappingRepositoryGORM) DeleteMany(ctx context.Context, q MappingQuery) (int64, error) {
	if !q.Scoped() {
		return 0, ErrUnscopedMutation
	}

	res := r.applyQuery(r.db.WithContext(ctx), q).Delete(&gormModels.SectorGroupMapping{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete sector mappings: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *MappingRepositoryGORM) Count(ctx context.Context, q MappingQuery) (int64, error) {
	var total int64
	if err := r.applyQuery(r.db.WithContext(ctx).Model(&gormModels.SectorGroupMapping{}), q).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count sector mappings: %w", err)
	}
	return total, nil
}

func (r *MappingRepositoryGORM) FindSectorByCode(ctx context.Context, code string) (*gormModels.EconomicSector, error) {
	var sector gormModels.EconomicSector

	err := r.db.WithContext(ctx).Where("code = ?", code).First(&sector).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch economic sector %s: %w", code, err)
	}
	return &sector, nil
}

// FindSectorsByCodes returns the sectors that exist, keyed by code
func (r *MappingRepositoryGORM) FindSectorsByCodes(ctx context.Context, codes []string) (map[string]gormModels.EconomicSector, error) {
	result := make(map[string]gormModels.EconomicSector, len(codes))
	if len(codes) == 0 {
		return result, nil
	}

	var sectors []gormModels.EconomicSector
	if err := r.db.WithContext(ctx).Where("code IN ?", codes).Find(&sectors).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch economic sectors: %w", err)
	}
	for _, s := range sectors {
		result[s.Code] = s
	}
	return result, nil
}

func (r *MappingRepositoryGORM) ListSectors(ctx context.Context) ([]gormModels.EconomicSector, error) {
	var sectors []gormModels.EconomicSector
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&sectors).Error; err != nil {
		return nil, fmt.Errorf("failed to list economic sectors: %w", err)
	}
	return sectors, nil
}

func (r *MappingRepositoryGORM) FindGroupByName(ctx context.Context, name string) (*gormModels.SectorGroup, error) {
	var group gormModels.SectorGroup

	err := r.db.WithContext(ctx).Where("name = ?", name).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch sector group %q: %w", name, err)
	}
	return &group, nil
}

func (r *MappingRepositoryGORM) CreateGroup(ctx context.Context, name, description, actor string) (*gormModels.SectorGroup, error) {
	group := &gormModels.SectorGroup{
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedBy:   actor,
	}
	if err := r.db.WithContext(ctx).Create(group).Error; err != nil {
		return nil, fmt.Errorf("failed to create sector group %q: %w", name, err)
	}
	return group, nil
}

func (r *MappingRepositoryGORM) ListActiveGroups(ctx context.Context) ([]gormModels.SectorGroup, error) {
	var groups []gormModels.SectorGroup
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("name ASC").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("failed to list sector groups: %w", err)
	}
	return groups, nil
}

// applyQuery translates q into WHERE clauses. Times are compared in UTC so
// that text-backed engines order them correctly.
func (r *MappingRepositoryGORM) applyQuery(tx *gorm.DB, q MappingQuery) *gorm.DB {
	if q.Key != nil {
		tx = tx.Where("group_id = ? AND group_name = ?", q.Key.GroupID, q.Key.GroupName)
		if q.Key.EffectiveStart == nil {
			tx = tx.Where("effective_start IS NULL")
		} else {
			tx = tx.Where("effective_start = ?", q.Key.EffectiveStart.UTC())
		}
	}
	if len(q.IDs) > 0 {
		tx = tx.Where("id IN ?", q.IDs)
	}
	if q.SectorCode != "" {
		tx = tx.Where("economic_sector_code = ?", q.SectorCode)
	}
	if q.IsActive != nil {
		tx = tx.Where("is_active = ?", *q.IsActive)
	}
	if q.Approved != nil {
		if *q.Approved {
			tx = tx.Where("approved_by IS NOT NULL")
		} else {
			tx = tx.Where("approved_by IS NULL")
		}
	}
	if q.HasEnd != nil {
		if *q.HasEnd {
			tx = tx.Where("effective_end IS NOT NULL")
		} else {
			tx = tx.Where("effective_end IS NULL")
		}
	}
	if q.StartFrom != nil {
		tx = tx.Where("effective_start >= ?", q.StartFrom.UTC())
	}
	if q.StartBefore != nil {
		tx = tx.Where("effective_start < ?", q.StartBefore.UTC())
	}
	if q.EndFrom != nil {
		tx = tx.Where("effective_end >= ?", q.EndFrom.UTC())
	}
	if q.EndBefore != nil {
		tx = tx.Where("effective_end < ?", q.EndBefore.UTC())
	}
	if q.CreatedFrom != nil {
		tx = tx.Where("created_at >= ?", q.CreatedFrom.UTC())
	}
	if q.EndNotBefore != nil {
		tx = tx.Where("(effective_end IS NULL OR effective_end >= ?)", q.EndNotBefore.UTC())
	}
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		groups := r.db.Model(&gormModels.SectorGroup{}).Select("id").Where("LOWER(name) LIKE ?", like)
		sectors := r.db.Model(&gormModels.EconomicSector{}).Select("code").Where("LOWER(description) LIKE ?", like)
		tx = tx.Where("group_id IN (?) OR economic_sector_code IN (?)", groups, sectors)
	}
	if q.CreatedBy != "" {
		tx = tx.Where("LOWER(created_by) LIKE ?", "%"+strings.ToLower(q.CreatedBy)+"%")
	}
	return tx
}

func orderClause(order MappingOrder) string {
	switch order {
	case OrderEffectiveStartAsc:
		return "effective_start ASC, id ASC"
	case OrderEffectiveEndAsc:
		return "effective_end ASC, id ASC"
	case OrderIDAsc:
		return "id ASC"
	default:
		return "created_at DESC, id DESC"
	}
}

func patchColumns(p MappingPatch) map[string]interface{} {
	cols := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if p.IsActive != nil {
		cols["is_active"] = *p.IsActive
	}
	if p.ApprovedBy != nil {
		cols["approved_by"] = *p.ApprovedBy
	}
	if p.UpdatedBy != nil {
		cols["updated_by"] = *p.UpdatedBy
	}
	if p.GroupType != nil {
		cols["group_type"] = string(*p.GroupType)
	}
	if p.GroupName != nil {
		cols["group_name"] = *p.GroupName
	}
	if p.Priority != nil {
		cols["priority"] = *p.Priority
	}
	if p.EffectiveStart != nil {
		cols["effective_start"] = p.EffectiveStart.UTC()
	}
	if p.ClearEffectiveEnd {
		cols["effective_end"] = nil
	} else if p.EffectiveEnd != nil {
		cols["effective_end"] = p.EffectiveEnd.UTC()
	}
	return cols
}

func normalizeRecordTimes(rec *gormModels.SectorGroupMapping) {
	if rec.EffectiveStart != nil {
		start := rec.EffectiveStart.UTC()
		rec.EffectiveStart = &start
	}
	if rec.EffectiveEnd != nil {
		end := rec.EffectiveEnd.UTC()
		rec.EffectiveEnd = &end
	}
}
