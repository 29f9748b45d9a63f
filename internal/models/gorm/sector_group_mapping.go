package gorm

import (
	"time"

	"sector-registry/sectorhub/internal/models"
)

// SectorGroupMapping is one stored row linking an economic sector to a sector group for a date range
type SectorGroupMapping struct {
	ID                 uint             `gorm:"column:id;primaryKey;autoIncrement"`
	GroupID            uint             `gorm:"column:group_id;not null;index:idx_sgm_logical,priority:1"`
	EconomicSectorCode string           `gorm:"column:economic_sector_code;type:varchar(32);not null;index:idx_sgm_sector_active,priority:1"`
	GroupType          models.GroupType `gorm:"column:group_type;type:varchar(32);not null"`
	GroupName          string           `gorm:"column:group_name;type:varchar(255);not null;index:idx_sgm_logical,priority:2"`
	Priority           int              `gorm:"column:priority;not null;default:0"`
	EffectiveStart     *time.Time       `gorm:"column:effective_start;index:idx_sgm_logical,priority:3"`
	EffectiveEnd       *time.Time       `gorm:"column:effective_end;index"`
	IsActive           bool             `gorm:"column:is_active;not null;default:false;index:idx_sgm_sector_active,priority:2"`
	CreatedBy          string           `gorm:"column:created_by;type:varchar(255);not null"`
	UpdatedBy          *string          `gorm:"column:updated_by;type:varchar(255)"`
	ApprovedBy         *string          `gorm:"column:approved_by;type:varchar(255)"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	// Relationships
	SectorGroup    *SectorGroup    `gorm:"foreignKey:GroupID"`
	EconomicSector *EconomicSector `gorm:"foreignKey:EconomicSectorCode;references:Code"`
}

// TableName specifies the table name for GORM
func (SectorGroupMapping) TableName() string {
	return "sector_group_mappings"
}

// LogicalKey returns the grouping identity of the record.
func (m *SectorGroupMapping) LogicalKey() models.LogicalKey {
	return models.LogicalKey{
		GroupID:        m.GroupID,
		GroupName:      m.GroupName,
		EffectiveStart: m.EffectiveStart,
	}
}

// Status derives the lifecycle status of the record.
func (m *SectorGroupMapping) Status() models.MappingStatus {
	return models.DeriveStatus(m.IsActive, m.ApprovedBy, m.EffectiveEnd)
}
