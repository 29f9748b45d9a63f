package repositories

import (
	"context"
	"fmt"

	"sector-registry/sectorhub/internal/constants"
	"sector-registry/sectorhub/internal/models/dtos"

	"github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// MappingReportRepo runs read-only reporting queries over sector_group_mappings with sqlx
type MappingReportRepo struct {
	db      *sqlx.DB
	builder squirrel.StatementBuilderType
}

func NewMappingReportRepo(db *sqlx.DB) *MappingReportRepo {
	var placeholder squirrel.PlaceholderFormat = squirrel.Question
	if db.DriverName() == "postgres" || db.DriverName() == "pgx" {
		placeholder = squirrel.Dollar
	}
	return &MappingReportRepo{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// LatestActiveMappings returns the newest active mapping of every economic sector
func (r *MappingReportRepo) LatestActiveMappings(ctx context.Context) ([]dtos.ActiveMappingRow, error) {
	rows := []dtos.ActiveMappingRow{}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(constants.GetLatestActiveMappings), true); err != nil {
		return nil, fmt.Errorf("failed to fetch latest active mappings: %w", err)
	}
	return rows, nil
}

type groupTypeCount struct {
	GroupType string `db:"group_type"`
	Total     int64  `db:"total"`
}

// CountByGroupType counts mapping records per group type, optionally only active ones
func (r *MappingReportRepo) CountByGroupType(ctx context.Context, activeOnly bool) (map[string]int64, error) {
	q := r.builder.
		Select("group_type", "COUNT(*) AS total").
		From("sector_group_mappings").
		GroupBy("group_type").
		OrderBy("group_type")
	if activeOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build group type query: %w", err)
	}

	var counts []groupTypeCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count mappings by group type: %w", err)
	}

	result := make(map[string]int64, len(counts))
	for _, c := range counts {
		result[c.GroupType] = c.Total
	}
	return result, nil
}
