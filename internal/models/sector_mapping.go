package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sector-registry/sectorhub/internal/constants"
)

// GroupType classifies a sector group mapping
type GroupType string

const (
	GroupTypeNonKLM         GroupType = "NON_KLM"
	GroupTypeSpecificSector GroupType = "SPECIFIC_SECTOR"
	GroupTypeGreen          GroupType = "GREEN"
)

// Display labels used in spreadsheets and by older clients
var groupTypeLabels = map[string]GroupType{
	"non klm":         GroupTypeNonKLM,
	"specific sector": GroupTypeSpecificSector,
	"sektor tertentu": GroupTypeSpecificSector,
	"green":           GroupTypeGreen,
	"hijau":           GroupTypeGreen,
}

// ParseGroupType accepts the enum name or its display label, case-insensitively.
func ParseGroupType(raw string) (GroupType, error) {
	s := strings.TrimSpace(raw)
	switch GroupType(strings.ToUpper(s)) {
	case GroupTypeNonKLM, GroupTypeSpecificSector, GroupTypeGreen:
		return GroupType(strings.ToUpper(s)), nil
	}
	if gt, ok := groupTypeLabels[strings.ToLower(s)]; ok {
		return gt, nil
	}
	return "", constants.NewValidationError(constants.ErrCodeInvalidGroupType, "invalid group type %q", raw)
}

// Label returns the human readable name of the group type.
func (gt GroupType) Label() string {
	switch gt {
	case GroupTypeNonKLM:
		return "Non KLM"
	case GroupTypeSpecificSector:
		return "Specific Sector"
	case GroupTypeGreen:
		return "Green"
	default:
		return string(gt)
	}
}

// Scan implements the sql.Scanner interface for GroupType
func (gt *GroupType) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*gt = ""
	case string:
		*gt = GroupType(v)
	case []byte:
		*gt = GroupType(v)
	default:
		return fmt.Errorf("cannot scan %T into GroupType", value)
	}
	return nil
}

// Value implements the driver.Valuer interface for GroupType
func (gt GroupType) Value() (driver.Value, error) {
	return string(gt), nil
}

// MappingStatus is derived from is_active, approved_by and effective_end. It is never stored.
type MappingStatus string

const (
	StatusAll             MappingStatus = "all"
	StatusDraft           MappingStatus = "draft"
	StatusPendingApproval MappingStatus = "pending_approval"
	StatusActive          MappingStatus = "active"
	StatusApproved        MappingStatus = "approved"
)

// DeriveStatus maps the stored lifecycle fields onto a status.
func DeriveStatus(isActive bool, approvedBy *string, effectiveEnd *time.Time) MappingStatus {
	if !isActive {
		if approvedBy != nil {
			return StatusPendingApproval
		}
		return StatusDraft
	}
	if effectiveEnd != nil {
		return StatusApproved
	}
	return StatusActive
}

// ParseMappingStatus parses a list filter status. Empty means all.
func ParseMappingStatus(raw string) (MappingStatus, error) {
	switch s := MappingStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StatusAll, nil
	case StatusAll, StatusDraft, StatusPendingApproval, StatusActive, StatusApproved:
		return s, nil
	default:
		return "", constants.NewValidationError(constants.ErrCodeInvalidFilter, "invalid status filter %q", raw)
	}
}

// DateRange selects mappings by creation time relative to now
type DateRange string

const (
	DateRangeAll     DateRange = "all"
	DateRangeToday   DateRange = "today"
	DateRangeWeek    DateRange = "week"
	DateRangeMonth   DateRange = "month"
	DateRangeQuarter DateRange = "quarter"
)

func ParseDateRange(raw string) (DateRange, error) {
	switch r := DateRange(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return DateRangeAll, nil
	case DateRangeAll, DateRangeToday, DateRangeWeek, DateRangeMonth, DateRangeQuarter:
		return r, nil
	default:
		return "", constants.NewValidationError(constants.ErrCodeInvalidFilter, "invalid date range %q", raw)
	}
}

// Since returns the lower created_at bound for the range, or nil for all.
func (r DateRange) Since(now time.Time, loc *time.Location) *time.Time {
	var since time.Time
	switch r {
	case DateRangeToday:
		since = StartOfDay(now, loc)
	case DateRangeWeek:
		since = now.Add(-7 * 24 * time.Hour)
	case DateRangeMonth:
		since = now.Add(-30 * 24 * time.Hour)
	case DateRangeQuarter:
		since = now.Add(-90 * 24 * time.Hour)
	default:
		return nil
	}
	return &since
}

// StartOfDay truncates t to midnight in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

const nullStart = "null"

// LogicalKey is the identity of a logical mapping: every record sharing
// group id, group name and effective start belongs to the same mapping.
type LogicalKey struct {
	GroupID        uint
	GroupName      string
	EffectiveStart *time.Time
}

// String formats the key as "<groupId>_<groupName>_<epochMillis|null>".
func (k LogicalKey) String() string {
	start := nullStart
	if k.EffectiveStart != nil {
		start = strconv.FormatInt(k.EffectiveStart.UnixMilli(), 10)
	}
	return fmt.Sprintf("%d_%s_%s", k.GroupID, k.GroupName, start)
}

// ParseLogicalKey reverses String. The group name may itself contain
// underscores, so the id is split on the first and last separator.
func ParseLogicalKey(id string) (LogicalKey, error) {
	first := strings.Index(id, "_")
	last := strings.LastIndex(id, "_")
	if first <= 0 || last <= first+1 || last == len(id)-1 {
		return LogicalKey{}, constants.NewValidationError(constants.ErrCodeMalformedID, "malformed mapping id %q", id)
	}

	groupID, err := strconv.ParseUint(id[:first], 10, 64)
	if err != nil {
		return LogicalKey{}, constants.NewValidationError(constants.ErrCodeMalformedID, "malformed group id in mapping id %q", id)
	}

	key := LogicalKey{GroupID: uint(groupID), GroupName: id[first+1 : last]}

	rawStart := id[last+1:]
	if rawStart == nullStart {
		return key, nil
	}
	millis, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil {
		return LogicalKey{}, constants.NewValidationError(constants.ErrCodeMalformedID, "malformed effective start in mapping id %q", id)
	}
	start := time.UnixMilli(millis).UTC()
	key.EffectiveStart = &start
	return key, nil
}
