package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
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
	"sector-registry/sectorhub/internal/spreadsheet"

	"github.com/alitto/pond/v2"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const (
	lookupCacheTTL = 10 * time.Minute
	statsCacheTTL  = 30 * time.Second
	fanOutWorkers  = 4
)

// MappingReports serves the reporting queries, e.g. repositories.MappingReportRepo
type MappingReports interface {
	LatestActiveMappings(ctx context.Context) ([]dtos.ActiveMappingRow, error)
	CountByGroupType(ctx context.Context, activeOnly bool) (map[string]int64, error)
}

// SectorMappingServiceConfig carries the optional collaborators. Nil fields fall back to no-ops.
type SectorMappingServiceConfig struct {
	Reports  MappingReports
	Cache    common.CacheInterface
	Audit    AuditSink
	Metrics  *metrics.MetricsRegistry
	Location *time.Location
	Now      func() time.Time
}

type SectorMappingService struct {
	store   repositories.Store
	reports MappingReports
	cache   common.CacheInterface
	audit   AuditSink
	metrics *metrics.MetricsRegistry
	loc     *time.Location
	now     func() time.Time
	pool    pond.Pool
}

func NewSectorMappingService(store repositories.Store, cfg SectorMappingServiceConfig) *SectorMappingService {
	s := &SectorMappingService{
		store:   store,
		reports: cfg.Reports,
		cache:   cfg.Cache,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		loc:     cfg.Location,
		now:     cfg.Now,
		pool:    pond.NewPool(fanOutWorkers),
	}
	if s.cache == nil {
		s.cache = common.NewCacheService(lookupCacheTTL, 2*lookupCacheTTL)
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

// Close waits for in-flight approve/delete fan-outs
func (s *SectorMappingService) Close() {
	s.pool.StopAndWait()
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return constants.NewValidationError(constants.ErrCodeInvalidRequest, "invalid request: %v", err)
	}
	return nil
}

func boolPtr(b bool) *bool           { return &b }
func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

// statusQuery narrows a query to one derived status
func statusQuery(q *repositories.MappingQuery, status models.MappingStatus) error {
	switch status {
	case models.StatusAll, "":
	case models.StatusDraft:
		q.IsActive, q.Approved = boolPtr(false), boolPtr(false)
	case models.StatusPendingApproval:
		q.IsActive, q.Approved = boolPtr(false), boolPtr(true)
	case models.StatusActive:
		q.IsActive, q.HasEnd = boolPtr(true), boolPtr(false)
	case models.StatusApproved:
		q.IsActive, q.HasEnd = boolPtr(true), boolPtr(true)
	default:
		return constants.NewValidationError(constants.ErrCodeInvalidFilter, "invalid status filter %q", status)
	}
	return nil
}

// List returns one page of stored records, grouped into logical mappings
func (s *SectorMappingService) List(ctx context.Context, filter dtos.ListFilter) (*dtos.ListResult, error) {
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = constants.DefaultPage
	}
	if limit < 1 {
		limit = constants.DefaultLimit
	}
	if limit > constants.MaxLimit {
		limit = constants.MaxLimit
	}

	q := repositories.MappingQuery{
		Search:    strings.TrimSpace(filter.SectorCode),
		CreatedBy: strings.TrimSpace(filter.CreatedBy),
		OrderBy:   repositories.OrderCreatedDesc,
	}
	if err := statusQuery(&q, filter.Status); err != nil {
		return nil, err
	}
	dateRange, err := models.ParseDateRange(string(filter.DateRange))
	if err != nil {
		return nil, err
	}
	q.CreatedFrom = dateRange.Since(s.now(), s.loc)

	records, total, err := s.store.FindMany(ctx, q, repositories.Pagination{Offset: (page - 1) * limit, Limit: limit})
	if err != nil {
		return nil, err
	}

	return &dtos.ListResult{
		Items:      GroupToLogical(records),
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

// Create stores one draft record per sector code, all sharing one logical key
func (s *SectorMappingService) Create(ctx context.Context, req dtos.CreateMappingRequest, actor string) (*dtos.LogicalMapping, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	groupName, err := ResolveGroupName(req.GroupType, req.GroupName)
	if err != nil {
		return nil, err
	}

	start := models.StartOfDay(req.EffectiveStartDate, s.loc)
	var end *time.Time
	if req.EndDate != nil {
		end = timePtr(models.StartOfDay(*req.EndDate, s.loc))
		if !end.After(start) {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "endDate must be after effectiveStartDate")
		}
	}

	codes := common.UniqueSorted(req.SectorCodes)
	sectors, err := s.store.FindSectorsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if _, ok := sectors[code]; !ok {
			return nil, constants.NewReferenceError("economic sector %q not found", code)
		}
	}

	records := make([]*gormModels.SectorGroupMapping, 0, len(codes))
	for _, code := range codes {
		records = append(records, &gormModels.SectorGroupMapping{
			GroupID:            req.GroupID,
			EconomicSectorCode: code,
			GroupType:          req.GroupType,
			GroupName:          groupName,
			Priority:           req.Priority,
			EffectiveStart:     timePtr(start),
			EffectiveEnd:       end,
			IsActive:           false,
			CreatedBy:          actor,
		})
	}
	if err := s.store.CreateBatch(ctx, records); err != nil {
		return nil, err
	}

	key := models.LogicalKey{GroupID: req.GroupID, GroupName: groupName, EffectiveStart: &start}
	created, err := s.findLogical(ctx, key)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, constants.AuditActionCreate, int64(len(records)),
		auditEntry(actor, constants.AuditActionCreate, key.String(), map[string]any{"sectorCodes": codes}))
	logging.Info("Sector mapping created", "id", key.String(), "sectors", len(codes), "actor", actor)
	return created, nil
}

// Update patches every record of one logical mapping
func (s *SectorMappingService) Update(ctx context.Context, id string, req dtos.UpdateMappingRequest, actor string) (*dtos.LogicalMapping, error) {
	key, err := models.ParseLogicalKey(id)
	if err != nil {
		return nil, err
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	existing, total, err := s.store.FindMany(ctx, repositories.ByKey(key), repositories.Pagination{Limit: 1})
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, constants.NewNotFoundError("sector mapping %s not found", id)
	}
	current := existing[0]

	patch := repositories.MappingPatch{UpdatedBy: strPtr(actor)}
	newKey := key

	if req.GroupType != nil {
		supplied := req.GroupName
		if supplied == nil {
			supplied = strPtr(current.GroupName)
		}
		name, err := ResolveGroupName(*req.GroupType, supplied)
		if err != nil {
			return nil, err
		}
		patch.GroupType = req.GroupType
		patch.GroupName = &name
		newKey.GroupName = name
	} else if req.GroupName != nil {
		name, err := ResolveGroupName(current.GroupType, req.GroupName)
		if err != nil {
			return nil, err
		}
		patch.GroupName = &name
		newKey.GroupName = name
	}

	if req.Priority != nil {
		patch.Priority = req.Priority
	}

	start := current.EffectiveStart
	if req.EffectiveStartDate != nil {
		start = timePtr(models.StartOfDay(*req.EffectiveStartDate, s.loc))
		patch.EffectiveStart = start
		newKey.EffectiveStart = start
	}

	if req.EndDate.Set {
		if req.EndDate.Value == nil {
			patch.ClearEffectiveEnd = true
		} else {
			end := models.StartOfDay(*req.EndDate.Value, s.loc)
			if start != nil && !end.After(*start) {
				return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "endDate must be after effectiveStartDate")
			}
			patch.EffectiveEnd = &end
		}
	} else if req.EffectiveStartDate != nil && current.EffectiveEnd != nil && !current.EffectiveEnd.After(*start) {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "effectiveStartDate must be before endDate")
	}

	affected, err := s.store.UpdateMany(ctx, repositories.ByKey(key), patch)
	if err != nil {
		return nil, err
	}

	updated, err := s.findLogical(ctx, newKey)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, constants.AuditActionUpdate, affected,
		auditEntry(actor, constants.AuditActionUpdate, id, map[string]any{"newId": newKey.String(), "records": affected}))
	return updated, nil
}

func (s *SectorMappingService) findLogical(ctx context.Context, key models.LogicalKey) (*dtos.LogicalMapping, error) {
	records, _, err := s.store.FindMany(ctx, repositories.ByKey(key), repositories.Pagination{})
	if err != nil {
		return nil, err
	}
	grouped := GroupToLogical(records)
	if len(grouped) == 0 {
		return nil, constants.NewNotFoundError("sector mapping %s not found", key.String())
	}
	return &grouped[0], nil
}

func parseKeys(ids []string) ([]models.LogicalKey, error) {
	if len(ids) == 0 {
		return nil, constants.NewValidationError(constants.ErrCodeInvalidRequest, "ids must not be empty")
	}
	keys := make([]models.LogicalKey, 0, len(ids))
	for _, id := range ids {
		key, err := models.ParseLogicalKey(id)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// forEachKey runs fn for every key on the worker pool. Keys are independent:
// a failing key does not stop or undo the others. It returns the summed
// counts and every per-key error.
func (s *SectorMappingService) forEachKey(ctx context.Context, keys []models.LogicalKey, fn func(ctx context.Context, key models.LogicalKey) (int64, error)) (int64, error) {
	counts := make([]int64, len(keys))
	errs := make([]error, len(keys))

	group := s.pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for i, key := range keys {
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				errs[i] = err
				return
			}
			counts[i], errs[i] = fn(groupCtx, key)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		return 0, err
	}

	var total int64
	var failed []error
	for i := range keys {
		total += counts[i]
		if errs[i] != nil {
			failed = append(failed, fmt.Errorf("mapping %s: %w", keys[i].String(), errs[i]))
		}
	}
	return total, errors.Join(failed...)
}

// Approve activates every record of each logical mapping. Unknown ids count zero.
func (s *SectorMappingService) Approve(ctx context.Context, ids []string, actor string) (*dtos.ApproveResult, error) {
	keys, err := parseKeys(ids)
	if err != nil {
		return nil, err
	}

	approved, err := s.forEachKey(ctx, keys, func(ctx context.Context, key models.LogicalKey) (int64, error) {
		return s.store.UpdateMany(ctx, repositories.ByKey(key), repositories.MappingPatch{
			IsActive:   boolPtr(true),
			ApprovedBy: strPtr(actor),
			UpdatedBy:  strPtr(actor),
		})
	})
	entries := make([]gormModels.AuditLog, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, auditEntry(actor, constants.AuditActionApprove, key.String(), nil))
	}
	s.afterMutation(ctx, constants.AuditActionApprove, approved, entries...)

	return &dtos.ApproveResult{ApprovedCount: approved}, err
}

// Delete removes every record of each logical mapping. Unknown ids count zero.
func (s *SectorMappingService) Delete(ctx context.Context, ids []string, actor string) (*dtos.DeleteResult, error) {
	keys, err := parseKeys(ids)
	if err != nil {
		return nil, err
	}

	deleted, err := s.forEachKey(ctx, keys, func(ctx context.Context, key models.LogicalKey) (int64, error) {
		return s.store.DeleteMany(ctx, repositories.ByKey(key))
	})

	entries := make([]gormModels.AuditLog, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, auditEntry(actor, constants.AuditActionDelete, key.String(), nil))
	}
	s.afterMutation(ctx, constants.AuditActionDelete, deleted, entries...)

	return &dtos.DeleteResult{DeletedCount: deleted}, err
}

type resolvedRow struct {
	row       dtos.ImportRow
	groupType models.GroupType
	groupName string
	start     time.Time
}

// BatchImport creates one draft per row in a single transaction, superseding
// the active record of each sector. Any failing row aborts the whole batch.
func (s *SectorMappingService) BatchImport(ctx context.Context, rows []dtos.ImportRow, actor string) (*dtos.ImportResult, error) {
	if err := validateRequest(dtos.BatchImportRequest{Mappings: rows}); err != nil {
		return nil, err
	}

	resolved := make([]resolvedRow, 0, len(rows))
	codes := make([]string, 0, len(rows))
	for i, row := range rows {
		groupType, err := models.ParseGroupType(row.GroupType)
		if err != nil {
			return nil, constants.NewValidationError(constants.ErrCodeInvalidGroupType, "row %d: invalid group type %q", i+1, row.GroupType)
		}
		var supplied *string
		if strings.TrimSpace(row.GroupName) != "" {
			supplied = strPtr(row.GroupName)
		}
		groupName, err := ResolveGroupName(groupType, supplied)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		resolved = append(resolved, resolvedRow{
			row:       row,
			groupType: groupType,
			groupName: groupName,
			start:     models.StartOfDay(row.EffectiveStartDate, s.loc),
		})
		codes = append(codes, strings.TrimSpace(row.SectorCode))
	}

	var (
		created       []*gormModels.SectorGroupMapping
		superseded    int64
		groupsCreated bool
	)

	err := s.store.WithinTransaction(ctx, func(tx repositories.Store) error {
		created, superseded, groupsCreated = nil, 0, false

		sectors, err := tx.FindSectorsByCodes(ctx, common.UniqueSorted(codes))
		if err != nil {
			return err
		}
		for i, code := range codes {
			if _, ok := sectors[code]; !ok {
				return constants.NewReferenceError("row %d: economic sector %q not found", i+1, code)
			}
		}

		groups := make(map[string]*gormModels.SectorGroup)
		for i, r := range resolved {
			code := codes[i]

			group, ok := groups[r.groupName]
			if !ok {
				group, err = tx.FindGroupByName(ctx, r.groupName)
				if err != nil {
					return err
				}
				if group == nil {
					group, err = tx.CreateGroup(ctx, r.groupName, "Auto-created for "+r.groupType.Label(), actor)
					if err != nil {
						return err
					}
					groupsCreated = true
				}
				groups[r.groupName] = group
			}

			n, err := tx.UpdateMany(ctx, repositories.MappingQuery{SectorCode: code, IsActive: boolPtr(true)}, repositories.MappingPatch{
				IsActive:     boolPtr(false),
				EffectiveEnd: timePtr(r.start),
				UpdatedBy:    strPtr(actor),
			})
			if err != nil {
				return err
			}
			superseded += n

			sector := sectors[code]
			created = append(created, &gormModels.SectorGroupMapping{
				GroupID:            group.ID,
				EconomicSectorCode: code,
				GroupType:          r.groupType,
				GroupName:          r.groupName,
				EffectiveStart:     timePtr(r.start),
				IsActive:           false,
				CreatedBy:          actor,
				SectorGroup:        group,
				EconomicSector:     &sector,
			})
		}

		return tx.CreateBatch(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	if groupsCreated {
		s.cache.Delete(string(constants.CachePrefixSectorGroups))
	}

	records := make([]gormModels.SectorGroupMapping, 0, len(created))
	for _, rec := range created {
		records = append(records, *rec)
	}
	mappings := GroupToLogical(records)

	entries := make([]gormModels.AuditLog, 0, len(mappings))
	for _, m := range mappings {
		entries = append(entries, auditEntry(actor, constants.AuditActionImport, m.ID, map[string]any{"sectorCodes": m.SectorCodes}))
	}
	s.afterMutation(ctx, constants.AuditActionImport, int64(len(created)), entries...)
	s.metrics.ObserveMutation("supersede", superseded)

	logging.Info("Batch import committed", "rows", len(created), "superseded", superseded, "actor", actor)
	return &dtos.ImportResult{UploadedCount: len(created), Mappings: mappings}, nil
}

// ImportWorkbook parses an xlsx upload and imports it as one batch
func (s *SectorMappingService) ImportWorkbook(ctx context.Context, r io.Reader, defaultStart *time.Time, actor string) (*dtos.ImportResult, error) {
	rows, err := spreadsheet.ParseImportWorkbook(r, defaultStart, s.loc)
	if err != nil {
		return nil, err
	}
	return s.BatchImport(ctx, rows, actor)
}

func (s *SectorMappingService) ListSectorGroups(ctx context.Context) ([]dtos.SectorGroupView, error) {
	return common.CachedAs(s.cache, string(constants.CachePrefixSectorGroups), lookupCacheTTL, func() ([]dtos.SectorGroupView, error) {
		groups, err := s.store.ListActiveGroups(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]dtos.SectorGroupView, 0, len(groups))
		for _, g := range groups {
			out = append(out, dtos.SectorGroupView{ID: g.ID, Name: g.Name, Description: g.Description})
		}
		return out, nil
	})
}

func (s *SectorMappingService) ListEconomicSectors(ctx context.Context) ([]dtos.EconomicSectorView, error) {
	return common.CachedAs(s.cache, string(constants.CachePrefixEconomicSectors), lookupCacheTTL, func() ([]dtos.EconomicSectorView, error) {
		sectors, err := s.store.ListSectors(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]dtos.EconomicSectorView, 0, len(sectors))
		for _, sec := range sectors {
			out = append(out, dtos.EconomicSectorView{Code: sec.Code, Description: sec.Description})
		}
		return out, nil
	})
}

// Stats counts records per status
func (s *SectorMappingService) Stats(ctx context.Context) (*dtos.MappingStats, error) {
	return common.CachedAs(s.cache, string(constants.CachePrefixMappingStats), statsCacheTTL, func() (*dtos.MappingStats, error) {
		count := func(q repositories.MappingQuery) (int64, error) {
			return s.store.Count(ctx, q)
		}

		stats := &dtos.MappingStats{}
		var err error
		if stats.Total, err = count(repositories.MappingQuery{}); err != nil {
			return nil, err
		}
		if stats.Active, err = count(repositories.MappingQuery{IsActive: boolPtr(true), HasEnd: boolPtr(false)}); err != nil {
			return nil, err
		}
		if stats.Pending, err = count(repositories.MappingQuery{IsActive: boolPtr(false), Approved: boolPtr(true)}); err != nil {
			return nil, err
		}
		if stats.Draft, err = count(repositories.MappingQuery{IsActive: boolPtr(false), Approved: boolPtr(false)}); err != nil {
			return nil, err
		}
		now := s.now()
		if stats.UpcomingEffective, err = count(repositories.MappingQuery{IsActive: boolPtr(false), Approved: boolPtr(true), StartFrom: &now}); err != nil {
			return nil, err
		}
		if s.reports != nil {
			if stats.ByGroupType, err = s.reports.CountByGroupType(ctx, false); err != nil {
				return nil, err
			}
		}
		return stats, nil
	})
}

// ActiveMappingsForTemplate returns the newest active record of every sector
func (s *SectorMappingService) ActiveMappingsForTemplate(ctx context.Context) ([]dtos.ActiveMappingRow, error) {
	if s.reports != nil {
		return s.reports.LatestActiveMappings(ctx)
	}

	records, _, err := s.store.FindMany(ctx, repositories.MappingQuery{IsActive: boolPtr(true), OrderBy: repositories.OrderIDAsc}, repositories.Pagination{})
	if err != nil {
		return nil, err
	}
	latest := make(map[string]gormModels.SectorGroupMapping)
	for _, rec := range records {
		cur, ok := latest[rec.EconomicSectorCode]
		if !ok || newerThan(rec, cur) {
			latest[rec.EconomicSectorCode] = rec
		}
	}

	rows := make([]dtos.ActiveMappingRow, 0, len(latest))
	for _, rec := range latest {
		rows = append(rows, dtos.ActiveMappingRow{
			SectorCode:     rec.EconomicSectorCode,
			GroupType:      rec.GroupType,
			GroupName:      rec.GroupName,
			GroupID:        rec.GroupID,
			EffectiveStart: rec.EffectiveStart,
			EffectiveEnd:   rec.EffectiveEnd,
			IsActive:       rec.IsActive,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SectorCode < rows[j].SectorCode })
	return rows, nil
}

// newerThan orders by effective start then creation time, nulls last
func newerThan(a, b gormModels.SectorGroupMapping) bool {
	switch {
	case a.EffectiveStart == nil && b.EffectiveStart != nil:
		return false
	case a.EffectiveStart != nil && b.EffectiveStart == nil:
		return true
	case a.EffectiveStart != nil && !a.EffectiveStart.Equal(*b.EffectiveStart):
		return a.EffectiveStart.After(*b.EffectiveStart)
	default:
		return a.CreatedAt.After(b.CreatedAt)
	}
}

// TemplateWorkbook renders ActiveMappingsForTemplate as xlsx
func (s *SectorMappingService) TemplateWorkbook(ctx context.Context) ([]byte, error) {
	rows, err := s.ActiveMappingsForTemplate(ctx)
	if err != nil {
		return nil, err
	}
	return spreadsheet.BuildTemplateWorkbook(rows, s.loc)
}

func (s *SectorMappingService) afterMutation(ctx context.Context, action string, records int64, entries ...gormModels.AuditLog) {
	s.cache.Delete(string(constants.CachePrefixMappingStats))
	s.metrics.ObserveMutation(action, records)
	s.audit.Record(ctx, entries...)
}
