package constants

type (
	APIStatus   string
	CachePrefix string
)

const (
	APIStatusOk    APIStatus = "ok"
	APIStatusError APIStatus = "error"

	CachePrefixSectorGroups    CachePrefix = "SECTOR_GROUPS"
	CachePrefixEconomicSectors CachePrefix = "ECONOMIC_SECTORS"
	CachePrefixMappingStats    CachePrefix = "MAPPING_STATS"

	// Redis key prefix for the per-day transition run lock
	TransitionLockPrefix = "sectorhub:transition:"
)
