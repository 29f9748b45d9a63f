package gorm

import (
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"
)

// TransitionRun tracks each execution of the transition engine
type TransitionRun struct {
	ID          string     `gorm:"column:id;primaryKey;type:varchar(36)"`
	Trigger     string     `gorm:"column:trigger_source;type:varchar(32);not null;index"`
	AsOf        time.Time  `gorm:"column:as_of;not null"`
	SectorCode  *string    `gorm:"column:sector_code;type:varchar(32)"`
	Deactivated int        `gorm:"column:deactivated;not null;default:0"`
	Activated   int        `gorm:"column:activated;not null;default:0"`
	Status      string     `gorm:"column:status;type:varchar(16);not null"`
	Error       *string    `gorm:"column:error;type:text"`
	TriggeredBy string     `gorm:"column:triggered_by;type:varchar(255)"`
	StartedAt   time.Time  `gorm:"column:started_at;not null"`
	FinishedAt  *time.Time `gorm:"column:finished_at;index"`
}

// TableName specifies the table name for GORM
func (TransitionRun) TableName() string {
	return "transition_runs"
}

func (r *TransitionRun) BeforeCreate(_ *gormlib.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
