package dtos

import (
	"bytes"
	"encoding/json"
	"time"

	"sector-registry/sectorhub/internal/models"
)

// LogicalMapping is the caller-visible grouping of mapping records sharing
// group id, group name and effective start.
type LogicalMapping struct {
	ID                 string               `json:"id"`
	GroupID            uint                 `json:"groupId"`
	GroupType          models.GroupType     `json:"groupType"`
	GroupName          string               `json:"groupName"`
	SectorGroups       []string             `json:"sectorGroups"`
	SectorCodes        []string             `json:"sectorCodes"`
	Priority           int                  `json:"priority"`
	EffectiveStartDate *time.Time           `json:"effectiveStartDate,omitempty"`
	EndDate            *time.Time           `json:"endDate,omitempty"`
	Status             models.MappingStatus `json:"status"`
	CreatedBy          string               `json:"createdBy"`
	UpdatedBy          *string              `json:"updatedBy,omitempty"`
	ApprovedBy         *string              `json:"approvedBy,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

type CreateMappingRequest struct {
	SectorCodes        []string         `json:"sectorCodes" validate:"required,min=1,dive,required"`
	GroupID            uint             `json:"groupId" validate:"required"`
	GroupType          models.GroupType `json:"groupType" validate:"required,oneof=NON_KLM SPECIFIC_SECTOR GREEN"`
	GroupName          *string          `json:"groupName,omitempty"`
	Priority           int              `json:"priority" validate:"gte=0"`
	EffectiveStartDate time.Time        `json:"effectiveStartDate" validate:"required"`
	EndDate            *time.Time       `json:"endDate,omitempty"`
}

// UpdateMappingRequest is a partial update. Nil fields are left unchanged.
type UpdateMappingRequest struct {
	GroupType          *models.GroupType `json:"groupType,omitempty" validate:"omitempty,oneof=NON_KLM SPECIFIC_SECTOR GREEN"`
	GroupName          *string           `json:"groupName,omitempty"`
	Priority           *int              `json:"priority,omitempty" validate:"omitempty,gte=0"`
	EffectiveStartDate *time.Time        `json:"effectiveStartDate,omitempty"`
	EndDate            NullableTime      `json:"endDate"`
}

// NullableTime distinguishes an absent JSON field from an explicit null.
type NullableTime struct {
	Set   bool
	Value *time.Time
}

func (n *NullableTime) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	n.Value = &t
	return nil
}

func (n NullableTime) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

type IDsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

type ApproveResult struct {
	ApprovedCount int64 `json:"approvedCount"`
}

type DeleteResult struct {
	DeletedCount int64 `json:"deletedCount"`
}

// ImportRow is one row of a batch import. GroupType accepts enum names or display labels.
type ImportRow struct {
	SectorCode         string    `json:"sectorCode" validate:"required"`
	GroupType          string    `json:"groupType" validate:"required"`
	GroupName          string    `json:"groupName"`
	EffectiveStartDate time.Time `json:"effectiveStartDate" validate:"required"`
}

type BatchImportRequest struct {
	Mappings []ImportRow `json:"mappings" validate:"required,min=1,dive"`
}

type ImportResult struct {
	UploadedCount int              `json:"uploadedCount"`
	Mappings      []LogicalMapping `json:"mappings"`
}

type ListFilter struct {
	Status     models.MappingStatus
	DateRange  models.DateRange
	SectorCode string
	CreatedBy  string
	Page       int
	Limit      int
}

type ListResult struct {
	Items      []LogicalMapping `json:"items"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	Total      int64            `json:"total"`
	TotalPages int              `json:"totalPages"`
}

type MappingStats struct {
	Total             int64            `json:"total"`
	Active            int64            `json:"active"`
	Pending           int64            `json:"pending"`
	Draft             int64            `json:"draft"`
	UpcomingEffective int64            `json:"upcomingEffective"`
	ByGroupType       map[string]int64 `json:"byGroupType,omitempty"`
}

// MappingRecordView is a single stored record, used where per-sector detail matters.
type MappingRecordView struct {
	ID                uint                 `json:"id"`
	LogicalID         string               `json:"logicalId"`
	SectorCode        string               `json:"sectorCode"`
	SectorDescription string               `json:"sectorDescription,omitempty"`
	GroupID           uint                 `json:"groupId"`
	GroupType         models.GroupType     `json:"groupType"`
	GroupName         string               `json:"groupName"`
	EffectiveStart    *time.Time           `json:"effectiveStart,omitempty"`
	EffectiveEnd      *time.Time           `json:"effectiveEnd,omitempty"`
	IsActive          bool                 `json:"isActive"`
	Status            models.MappingStatus `json:"status"`
	ApprovedBy        *string              `json:"approvedBy,omitempty"`
}

type UpcomingTransitions struct {
	UpcomingDeactivations []MappingRecordView `json:"upcomingDeactivations"`
	UpcomingActivations   []MappingRecordView `json:"upcomingActivations"`
}

// ActiveMappingRow is the latest active mapping of one economic sector.
type ActiveMappingRow struct {
	SectorCode     string           `db:"economic_sector_code" json:"sectorCode"`
	GroupType      models.GroupType `db:"group_type" json:"groupType"`
	GroupName      string           `db:"group_name" json:"groupName"`
	GroupID        uint             `db:"group_id" json:"groupId"`
	EffectiveStart *time.Time       `db:"effective_start" json:"effectiveStart,omitempty"`
	EffectiveEnd   *time.Time       `db:"effective_end" json:"effectiveEnd,omitempty"`
	IsActive       bool             `db:"is_active" json:"isActive"`
}

type SectorGroupView struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type EconomicSectorView struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
