// Package memstore is an in-memory repositories.Store. Transactions work on a
// copy of the state that replaces the committed state only when fn succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"sector-registry/sectorhub/internal/db/repositories"
	gormModels "sector-registry/sectorhub/internal/models/gorm"
)

type memoryState struct {
	mappings    map[uint]gormModels.SectorGroupMapping
	groups      map[uint]gormModels.SectorGroup
	sectors     map[string]gormModels.EconomicSector
	nextMapping uint
	nextGroup   uint
}

func newMemoryState() *memoryState {
	return &memoryState{
		mappings:    map[uint]gormModels.SectorGroupMapping{},
		groups:      map[uint]gormModels.SectorGroup{},
		sectors:     map[string]gormModels.EconomicSector{},
		nextMapping: 1,
		nextGroup:   1,
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		mappings:    make(map[uint]gormModels.SectorGroupMapping, len(s.mappings)),
		groups:      make(map[uint]gormModels.SectorGroup, len(s.groups)),
		sectors:     make(map[string]gormModels.EconomicSector, len(s.sectors)),
		nextMapping: s.nextMapping,
		nextGroup:   s.nextGroup,
	}
	for k, v := range s.mappings {
		c.mappings[k] = cloneMapping(v)
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.sectors {
		c.sectors[k] = v
	}
	return c
}

// hooks are shared between a store and its transactions
type hooks struct {
	mu       sync.Mutex
	failures map[string]error
}

func (h *hooks) check(op string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.failures[op]; ok {
		return err
	}
	return nil
}

// Store implements repositories.Store in memory
type Store struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
	hooks *hooks
	now   func() time.Time
}

var _ repositories.Store = (*Store)(nil)

// New returns an empty store
func New() *Store {
	return &Store{
		mu:    &sync.Mutex{},
		state: newMemoryState(),
		hooks: &hooks{failures: map[string]error{}},
		now:   time.Now,
	}
}

// SetClock overrides the time used for created_at and updated_at
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// FailOn makes every later call of op ("Create", "UpdateMany", ...) return err.
// A nil err clears the failure.
func (s *Store) FailOn(op string, err error) {
	s.hooks.mu.Lock()
	defer s.hooks.mu.Unlock()
	if err == nil {
		delete(s.hooks.failures, op)
		return
	}
	s.hooks.failures[op] = err
}

// AddSector seeds an economic sector
func (s *Store) AddSector(code, description string) {
	s.lock()
	defer s.unlock()
	s.state.sectors[code] = gormModels.EconomicSector{Code: code, Description: description}
}

// AddGroup seeds an active sector group and returns it
func (s *Store) AddGroup(name string) gormModels.SectorGroup {
	s.lock()
	defer s.unlock()
	return s.insertGroup(name, "", "seed")
}

// Records returns every stored mapping ordered by id
func (s *Store) Records() []gormModels.SectorGroupMapping {
	s.lock()
	defer s.unlock()
	out := make([]gormModels.SectorGroupMapping, 0, len(s.state.mappings))
	for _, m := range s.state.mappings {
		out = append(out, s.hydrate(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) lock() {
	if !s.inTx {
		s.mu.Lock()
	}
}

func (s *Store) unlock() {
	if !s.inTx {
		s.mu.Unlock()
	}
}

// WithinTransaction holds the store lock for the whole of fn
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	if err := s.hooks.check("WithinTransaction"); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()

	tx := &Store{
		mu:    s.mu,
		state: s.state.clone(),
		inTx:  true,
		hooks: s.hooks,
		now:   s.now,
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *Store) Create(ctx context.Context, record *gormModels.SectorGroupMapping) error {
	if err := s.hooks.check("Create"); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	s.insertMapping(record)
	return nil
}

func (s *Store) CreateBatch(ctx context.Context, records []*gormModels.SectorGroupMapping) error {
	if err := s.hooks.check("CreateBatch"); err != nil {
		return err
	}
	s.lock()
	defer s.unlock()
	for _, rec := range records {
		s.insertMapping(rec)
	}
	return nil
}

func (s *Store) FindMany(ctx context.Context, q repositories.MappingQuery, page repositories.Pagination) ([]gormModels.SectorGroupMapping, int64, error) {
	if err := s.hooks.check("FindMany"); err != nil {
		return nil, 0, err
	}
	s.lock()
	defer s.unlock()

	matched := s.match(q)
	sortMappings(matched, q.OrderBy)
	total := int64(len(matched))

	if page.Limit > 0 {
		if page.Offset >= len(matched) {
			matched = nil
		} else {
			end := page.Offset + page.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[page.Offset:end]
		}
	}

	out := make([]gormModels.SectorGroupMapping, 0, len(matched))
	for _, m := range matched {
		out = append(out, s.hydrate(m))
	}
	return out, total, nil
}

func (s *Store) UpdateMany(ctx context.Context, q repositories.MappingQuery, patch repositories.MappingPatch) (int64, error) {
	if err := s.hooks.check("UpdateMany"); err != nil {
		return 0, err
	}
	if !q.Scoped() {
		return 0, repositories.ErrUnscopedMutation
	}
	if patch.Empty() {
		return 0, nil
	}
	s.lock()
	defer s.unlock()

	now := s.now().UTC()
	matched := s.match(q)
	for _, m := range matched {
		applyPatch(&m, patch)
		m.UpdatedAt = now
		s.state.mappings[m.ID] = m
	}
	return int64(len(matched)), nil
}

func (s *Store) DeleteMany(ctx context.Context, q repositories.MappingQuery) (int64, error) {
	if err := s.hooks.check("DeleteMany"); err != nil {
		return 0, err
	}
	if !q.Scoped() {
		return 0, repositories.ErrUnscopedMutation
	}
	s.lock()
	defer s.unlock()

	matched := s.match(q)
	for _, m := range matched {
		delete(s.state.mappings, m.ID)
	}
	return int64(len(matched)), nil
}

func (s *Store) Count(ctx context.Context, q repositories.MappingQuery) (int64, error) {
	if err := s.hooks.check("Count"); err != nil {
		return 0, err
	}
	s.lock()
	defer s.unlock()
	return int64(len(s.match(q))), nil
}

func (s *Store) FindSectorByCode(ctx context.Context, code string) (*gormModels.EconomicSector, error) {
	if err := s.hooks.check("FindSectorByCode"); err != nil {
		return nil, err
	}
	s.lock()
	defer s.unlock()
	sector, ok := s.state.sectors[code]
	if !ok {
		return nil, nil
	}
	return &sector, nil
}

func (s *Store) FindSectorsByCodes(ctx context.Context, codes []string) (map[string]gormModels.EconomicSector, error) {
	if err := s.hooks.check("FindSectorsByCodes"); err != nil {
		return nil, err
	}
	s.lock()
	defer s.unlock()
	out := make(map[string]gormModels.EconomicSector, len(codes))
	for _, code := range codes {
		if sector, ok := s.state.sectors[code]; ok {
			out[code] = sector
		}
	}
	return out, nil
}

func (s *Store) ListSectors(ctx context.Context) ([]gormModels.EconomicSector, error) {
	s.lock()
	defer s.unlock()
	out := make([]gormModels.EconomicSector, 0, len(s.state.sectors))
	for _, sector := range s.state.sectors {
		out = append(out, sector)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) FindGroupByName(ctx context.Context, name string) (*gormModels.SectorGroup, error) {
	if err := s.hooks.check("FindGroupByName"); err != nil {
		return nil, err
	}
	s.lock()
	defer s.unlock()
	for _, g := range s.state.groups {
		if g.Name == name {
			group := g
			return &group, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateGroup(ctx context.Context, name, description, actor string) (*gormModels.SectorGroup, error) {
	if err := s.hooks.check("CreateGroup"); err != nil {
		return nil, err
	}
	s.lock()
	defer s.unlock()
	for _, g := range s.state.groups {
		if g.Name == name {
			return nil, fmt.Errorf("failed to create sector group %q: name already exists", name)
		}
	}
	group := s.insertGroup(name, description, actor)
	return &group, nil
}

func (s *Store) ListActiveGroups(ctx context.Context) ([]gormModels.SectorGroup, error) {
	s.lock()
	defer s.unlock()
	out := make([]gormModels.SectorGroup, 0, len(s.state.groups))
	for _, g := range s.state.groups {
		if g.IsActive {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) insertGroup(name, description, actor string) gormModels.SectorGroup {
	now := s.now().UTC()
	group := gormModels.SectorGroup{
		ID:          s.state.nextGroup,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.state.nextGroup++
	s.state.groups[group.ID] = group
	return group
}

func (s *Store) insertMapping(record *gormModels.SectorGroupMapping) {
	now := s.now().UTC()
	record.ID = s.state.nextMapping
	s.state.nextMapping++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.EffectiveStart != nil {
		start := record.EffectiveStart.UTC()
		record.EffectiveStart = &start
	}
	if record.EffectiveEnd != nil {
		end := record.EffectiveEnd.UTC()
		record.EffectiveEnd = &end
	}

	stored := cloneMapping(*record)
	stored.SectorGroup = nil
	stored.EconomicSector = nil
	s.state.mappings[stored.ID] = stored
}

// hydrate fills the associations the gorm store preloads
func (s *Store) hydrate(m gormModels.SectorGroupMapping) gormModels.SectorGroupMapping {
	out := cloneMapping(m)
	if g, ok := s.state.groups[m.GroupID]; ok {
		out.SectorGroup = &g
	}
	if sector, ok := s.state.sectors[m.EconomicSectorCode]; ok {
		out.EconomicSector = &sector
	}
	return out
}

func (s *Store) match(q repositories.MappingQuery) []gormModels.SectorGroupMapping {
	var ids map[uint]struct{}
	if len(q.IDs) > 0 {
		ids = make(map[uint]struct{}, len(q.IDs))
		for _, id := range q.IDs {
			ids[id] = struct{}{}
		}
	}
	search := strings.ToLower(q.Search)
	createdBy := strings.ToLower(q.CreatedBy)

	var out []gormModels.SectorGroupMapping
	for _, m := range s.state.mappings {
		if q.Key != nil {
			if m.GroupID != q.Key.GroupID || m.GroupName != q.Key.GroupName || !sameTime(m.EffectiveStart, q.Key.EffectiveStart) {
				continue
			}
		}
		if ids != nil {
			if _, ok := ids[m.ID]; !ok {
				continue
			}
		}
		if q.SectorCode != "" && m.EconomicSectorCode != q.SectorCode {
			continue
		}
		if q.IsActive != nil && m.IsActive != *q.IsActive {
			continue
		}
		if q.Approved != nil && (m.ApprovedBy != nil) != *q.Approved {
			continue
		}
		if q.HasEnd != nil && (m.EffectiveEnd != nil) != *q.HasEnd {
			continue
		}
		if !inRange(m.EffectiveStart, q.StartFrom, q.StartBefore) || !inRange(m.EffectiveEnd, q.EndFrom, q.EndBefore) {
			continue
		}
		if q.CreatedFrom != nil && m.CreatedAt.Before(*q.CreatedFrom) {
			continue
		}
		if q.EndNotBefore != nil && m.EffectiveEnd != nil && m.EffectiveEnd.Before(*q.EndNotBefore) {
			continue
		}
		if search != "" && !s.matchesSearch(m, search) {
			continue
		}
		if createdBy != "" && !strings.Contains(strings.ToLower(m.CreatedBy), createdBy) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (s *Store) matchesSearch(m gormModels.SectorGroupMapping, search string) bool {
	if g, ok := s.state.groups[m.GroupID]; ok && strings.Contains(strings.ToLower(g.Name), search) {
		return true
	}
	if sector, ok := s.state.sectors[m.EconomicSectorCode]; ok && strings.Contains(strings.ToLower(sector.Description), search) {
		return true
	}
	return false
}

// inRange mirrors SQL semantics: a NULL column never satisfies a bound
func inRange(t, from, before *time.Time) bool {
	if from == nil && before == nil {
		return true
	}
	if t == nil {
		return false
	}
	if from != nil && t.Before(*from) {
		return false
	}
	if before != nil && !t.Before(*before) {
		return false
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sortMappings(ms []gormModels.SectorGroupMapping, order repositories.MappingOrder) {
	byTime := func(a, b *time.Time, i, j int) bool {
		switch {
		case a == nil && b == nil:
			return ms[i].ID < ms[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		default:
			return ms[i].ID < ms[j].ID
		}
	}

	sort.Slice(ms, func(i, j int) bool {
		switch order {
		case repositories.OrderEffectiveStartAsc:
			return byTime(ms[i].EffectiveStart, ms[j].EffectiveStart, i, j)
		case repositories.OrderEffectiveEndAsc:
			return byTime(ms[i].EffectiveEnd, ms[j].EffectiveEnd, i, j)
		case repositories.OrderIDAsc:
			return ms[i].ID < ms[j].ID
		default:
			if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
				return ms[i].CreatedAt.After(ms[j].CreatedAt)
			}
			return ms[i].ID > ms[j].ID
		}
	})
}

func applyPatch(m *gormModels.SectorGroupMapping, p repositories.MappingPatch) {
	if p.IsActive != nil {
		m.IsActive = *p.IsActive
	}
	if p.ApprovedBy != nil {
		m.ApprovedBy = strPtr(*p.ApprovedBy)
	}
	if p.UpdatedBy != nil {
		m.UpdatedBy = strPtr(*p.UpdatedBy)
	}
	if p.GroupType != nil {
		m.GroupType = *p.GroupType
	}
	if p.GroupName != nil {
		m.GroupName = *p.GroupName
	}
	if p.Priority != nil {
		m.Priority = *p.Priority
	}
	if p.EffectiveStart != nil {
		start := p.EffectiveStart.UTC()
		m.EffectiveStart = &start
	}
	if p.ClearEffectiveEnd {
		m.EffectiveEnd = nil
	} else if p.EffectiveEnd != nil {
		end := p.EffectiveEnd.UTC()
		m.EffectiveEnd = &end
	}
}

func cloneMapping(m gormModels.SectorGroupMapping) gormModels.SectorGroupMapping {
	out := m
	if m.EffectiveStart != nil {
		t := *m.EffectiveStart
		out.EffectiveStart = &t
	}
	if m.EffectiveEnd != nil {
		t := *m.EffectiveEnd
		out.EffectiveEnd = &t
	}
	if m.UpdatedBy != nil {
		out.UpdatedBy = strPtr(*m.UpdatedBy)
	}
	if m.ApprovedBy != nil {
		out.ApprovedBy = strPtr(*m.ApprovedBy)
	}
	if m.SectorGroup != nil {
		g := *m.SectorGroup
		out.SectorGroup = &g
	}
	if m.EconomicSector != nil {
		sector := *m.EconomicSector
		out.EconomicSector = &sector
	}
	return out
}

func strPtr(s string) *string {
	return &s
}
