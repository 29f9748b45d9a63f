package constants

const (
	// GetLatestActiveMappings picks the newest active record of every economic sector.
	// Bind parameter: is_active.
	GetLatestActiveMappings = `
	SELECT economic_sector_code, group_type, group_name, group_id, effective_start, effective_end, is_active
	FROM (
		SELECT economic_sector_code, group_type, group_name, group_id, effective_start, effective_end, is_active,
			ROW_NUMBER() OVER (
				PARTITION BY economic_sector_code
				ORDER BY effective_start DESC NULLS LAST, created_at DESC, id DESC
			) AS rn
		FROM sector_group_mappings
		WHERE is_active = ?
	) ranked
	WHERE rn = 1
	ORDER BY economic_sector_code
	`
)
