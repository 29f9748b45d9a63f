package services

import (
	"strings"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models"
)

// ResolveGroupName returns the stored group name for a group type. NON_KLM and
// GREEN have fixed names and ignore supplied. SPECIFIC_SECTOR needs a supplied
// name that is not one of the reserved ones.
func ResolveGroupName(groupType models.GroupType, supplied *string) (string, error) {
	switch groupType {
	case models.GroupTypeNonKLM:
		return constants.GroupNameNonKLM, nil
	case models.GroupTypeGreen:
		return constants.GroupNameGreen, nil
	case models.GroupTypeSpecificSector:
		if supplied == nil || strings.TrimSpace(*supplied) == "" {
			return "", constants.NewValidationError(constants.ErrCodeGroupNameRule, "groupName is required for %s mappings", groupType)
		}
		name := strings.TrimSpace(*supplied)
		if strings.EqualFold(name, constants.GroupNameNonKLM) || strings.EqualFold(name, constants.GroupNameGreen) {
			return "", constants.NewValidationError(constants.ErrCodeGroupNameRule, "groupName %q is reserved and cannot be used for %s mappings", name, groupType)
		}
		return name, nil
	default:
		return "", constants.NewValidationError(constants.ErrCodeInvalidGroupType, "invalid group type %q", groupType)
	}
}
