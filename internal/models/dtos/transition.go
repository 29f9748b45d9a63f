package dtos

import (
	"time"

	"sector-registry/sectorhub/internal/models"
)

// TransitionSnapshot captures the identity fields of a record at transition time.
type TransitionSnapshot struct {
	ID             uint             `json:"id"`
	LogicalID      string           `json:"logicalId"`
	GroupID        uint             `json:"groupId"`
	GroupType      models.GroupType `json:"groupType"`
	GroupName      string           `json:"groupName"`
	EffectiveStart *time.Time       `json:"effectiveStart,omitempty"`
	EffectiveEnd   *time.Time       `json:"effectiveEnd,omitempty"`
}

type TransitionEntry struct {
	SectorCode string             `json:"sectorCode"`
	Action     string             `json:"action"`
	Mapping    TransitionSnapshot `json:"mapping"`
}

type TransitionReport struct {
	RunID            string            `json:"runId,omitempty"`
	AsOf             time.Time         `json:"asOf"`
	DeactivatedCount int               `json:"deactivatedCount"`
	ActivatedCount   int               `json:"activatedCount"`
	Transitions      []TransitionEntry `json:"transitions"`
}

type RunTransitionsRequest struct {
	Date *time.Time `json:"date,omitempty"`
}

type TriggerTransitionRequest struct {
	SectorCode    string    `json:"sectorCode" validate:"required"`
	EffectiveDate time.Time `json:"effectiveDate" validate:"required"`
}

type TransitionRunView struct {
	ID          string     `json:"id"`
	Trigger     string     `json:"trigger"`
	AsOf        time.Time  `json:"asOf"`
	SectorCode  *string    `json:"sectorCode,omitempty"`
	Deactivated int        `json:"deactivated"`
	Activated   int        `json:"activated"`
	Status      string     `json:"status"`
	Error       *string    `json:"error,omitempty"`
	TriggeredBy string     `json:"triggeredBy,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
}

type JobStatus struct {
	Name     string             `json:"name"`
	State    string             `json:"state"`
	CronSpec string             `json:"cronSpec"`
	Timezone string             `json:"timezone"`
	LastRun  *TransitionRunView `json:"lastRun,omitempty"`
	NextRun  *time.Time         `json:"nextRun,omitempty"`
}
