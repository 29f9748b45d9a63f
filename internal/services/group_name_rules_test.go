package services

import (
	"testing"
	"time"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveGroupName_FixedNames(t *testing.T) {
	for _, supplied := range []*string{nil, strPtr(""), strPtr("Anything"), strPtr("Green")} {
		name, err := ResolveGroupName(models.GroupTypeNonKLM, supplied)
		require.NoError(t, err)
		assert.Equal(t, "Non KLM", name)

		name, err = ResolveGroupName(models.GroupTypeGreen, supplied)
		require.NoError(t, err)
		assert.Equal(t, "Green", name)
	}
}

func TestResolveGroupName_SpecificSector(t *testing.T) {
	name, err := ResolveGroupName(models.GroupTypeSpecificSector, strPtr("  Mining Focus "))
	require.NoError(t, err)
	assert.Equal(t, "Mining Focus", name)

	rejected := map[string]*string{
		"absent":         nil,
		"blank":          strPtr("   "),
		"reserved":       strPtr("Non KLM"),
		"reserved green": strPtr("Green"),
		"reserved case":  strPtr("green"),
	}
	for label, supplied := range rejected {
		t.Run(label, func(t *testing.T) {
			_, err := ResolveGroupName(models.GroupTypeSpecificSector, supplied)
			require.ErrorIs(t, err, constants.ErrValidation)

			var mErr *constants.MappingError
			require.ErrorAs(t, err, &mErr)
			assert.Equal(t, constants.ErrCodeGroupNameRule, mErr.Code)
		})
	}
}

func TestResolveGroupName_UnknownType(t *testing.T) {
	_, err := ResolveGroupName(models.GroupType("PURPLE"), strPtr("x"))
	assert.ErrorIs(t, err, constants.ErrValidation)
}

func TestDeriveStatus_Table(t *testing.T) {
	end := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		active   bool
		approved *string
		end      *time.Time
		want     models.MappingStatus
	}{
		{false, nil, nil, models.StatusDraft},
		{false, strPtr("alice"), nil, models.StatusPendingApproval},
		{true, strPtr("alice"), nil, models.StatusActive},
		{true, strPtr("alice"), &end, models.StatusApproved},
	}
	for _, c := range cases {
		rec := gormModels.SectorGroupMapping{IsActive: c.active, ApprovedBy: c.approved, EffectiveEnd: c.end}
		assert.Equal(t, c.want, rec.Status())
	}
}

func TestGroupToLogical_Partition(t *testing.T) {
	d1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	green := &gormModels.SectorGroup{ID: 1, Name: "Green"}

	records := []gormModels.SectorGroupMapping{
		{ID: 1, GroupID: 1, GroupName: "Green", EffectiveStart: &d1, EconomicSectorCode: "B02", SectorGroup: green},
		{ID: 2, GroupID: 2, GroupName: "Mining", EffectiveStart: &d1, EconomicSectorCode: "B02"},
		{ID: 3, GroupID: 1, GroupName: "Green", EffectiveStart: &d1, EconomicSectorCode: "A01", SectorGroup: green},
		{ID: 4, GroupID: 1, GroupName: "Green", EffectiveStart: &d2, EconomicSectorCode: "A01"},
		{ID: 5, GroupID: 1, GroupName: "Green", EconomicSectorCode: "C10"},
		{ID: 6, GroupID: 1, GroupName: "Green", EconomicSectorCode: "A01"},
	}

	out := GroupToLogical(records)
	require.Len(t, out, 4)

	assert.Equal(t, "1_Green_1735689600000", out[0].ID)
	assert.Equal(t, []string{"A01", "B02"}, out[0].SectorCodes)
	assert.Equal(t, []string{"Green"}, out[0].SectorGroups)

	assert.Equal(t, "2_Mining_1735689600000", out[1].ID)
	assert.Equal(t, []string{"B02"}, out[1].SectorCodes)
	assert.Empty(t, out[1].SectorGroups)

	assert.Equal(t, []string{"A01"}, out[2].SectorCodes)

	assert.Equal(t, "1_Green_null", out[3].ID)
	assert.Equal(t, []string{"A01", "C10"}, out[3].SectorCodes)

	seen := 0
	for _, m := range out {
		seen += len(m.SectorCodes)
	}
	assert.Equal(t, len(records), seen)
}

func TestGroupToLogical_Empty(t *testing.T) {
	out := GroupToLogical(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}
