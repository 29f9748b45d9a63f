package services

import (
	"sort"

	"sector-registry/sectorhub/internal/models/dtos"
	gormModels "sector-registry/sectorhub/internal/models/gorm"
)

// GroupToLogical partitions records by logical key. Partitions keep the order
// in which their first member appears; the first member supplies status, dates
// and audit fields.
func GroupToLogical(records []gormModels.SectorGroupMapping) []dtos.LogicalMapping {
	out := make([]dtos.LogicalMapping, 0)
	index := make(map[string]int)
	sectorSeen := make(map[string]map[string]struct{})
	groupSeen := make(map[string]map[string]struct{})

	for i := range records {
		rec := &records[i]
		id := rec.LogicalKey().String()

		pos, ok := index[id]
		if !ok {
			pos = len(out)
			index[id] = pos
			sectorSeen[id] = map[string]struct{}{}
			groupSeen[id] = map[string]struct{}{}
			out = append(out, dtos.LogicalMapping{
				ID:                 id,
				GroupID:            rec.GroupID,
				GroupType:          rec.GroupType,
				GroupName:          rec.GroupName,
				SectorGroups:       []string{},
				SectorCodes:        []string{},
				Priority:           rec.Priority,
				EffectiveStartDate: rec.EffectiveStart,
				EndDate:            rec.EffectiveEnd,
				Status:             rec.Status(),
				CreatedBy:          rec.CreatedBy,
				UpdatedBy:          rec.UpdatedBy,
				ApprovedBy:         rec.ApprovedBy,
				CreatedAt:          rec.CreatedAt,
				UpdatedAt:          rec.UpdatedAt,
			})
		}

		m := &out[pos]
		if _, dup := sectorSeen[id][rec.EconomicSectorCode]; !dup {
			sectorSeen[id][rec.EconomicSectorCode] = struct{}{}
			m.SectorCodes = append(m.SectorCodes, rec.EconomicSectorCode)
		}
		if rec.SectorGroup != nil {
			if _, dup := groupSeen[id][rec.SectorGroup.Name]; !dup {
				groupSeen[id][rec.SectorGroup.Name] = struct{}{}
				m.SectorGroups = append(m.SectorGroups, rec.SectorGroup.Name)
			}
		}
	}

	for i := range out {
		sort.Strings(out[i].SectorCodes)
	}
	return out
}

func toRecordView(rec gormModels.SectorGroupMapping) dtos.MappingRecordView {
	view := dtos.MappingRecordView{
		ID:             rec.ID,
		LogicalID:      rec.LogicalKey().String(),
		SectorCode:     rec.EconomicSectorCode,
		GroupID:        rec.GroupID,
		GroupType:      rec.GroupType,
		GroupName:      rec.GroupName,
		EffectiveStart: rec.EffectiveStart,
		EffectiveEnd:   rec.EffectiveEnd,
		IsActive:       rec.IsActive,
		Status:         rec.Status(),
		ApprovedBy:     rec.ApprovedBy,
	}
	if rec.EconomicSector != nil {
		view.SectorDescription = rec.EconomicSector.Description
	}
	return view
}

func toSnapshot(rec gormModels.SectorGroupMapping) dtos.TransitionSnapshot {
	return dtos.TransitionSnapshot{
		ID:             rec.ID,
		LogicalID:      rec.LogicalKey().String(),
		GroupID:        rec.GroupID,
		GroupType:      rec.GroupType,
		GroupName:      rec.GroupName,
		EffectiveStart: rec.EffectiveStart,
		EffectiveEnd:   rec.EffectiveEnd,
	}
}
