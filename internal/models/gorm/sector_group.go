package gorm

import "time"

// SectorGroup is a named classification bucket such as "Green" or "Non KLM"
type SectorGroup struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Name        string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex"`
	Description string    `gorm:"column:description;type:text"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	CreatedBy   string    `gorm:"column:created_by;type:varchar(255)"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (SectorGroup) TableName() string {
	return "sector_groups"
}
