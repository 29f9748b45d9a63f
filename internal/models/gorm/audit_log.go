package gorm

import (
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"
)

// AuditLog records a mutation of sector mappings
type AuditLog struct {
	ID           string    `gorm:"column:id;primaryKey;type:varchar(36)"`
	Actor        string    `gorm:"column:actor;type:varchar(255);not null;index"`
	Action       string    `gorm:"column:action;type:varchar(64);not null;index"`
	ResourceType string    `gorm:"column:resource_type;type:varchar(64);not null"`
	ResourceID   string    `gorm:"column:resource_id;type:varchar(512);not null"`
	Metadata     string    `gorm:"column:metadata;type:text"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}

func (a *AuditLog) BeforeCreate(_ *gormlib.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
