package gorm

// EconomicSector is the classified entity assigned to sector groups
type EconomicSector struct {
	Code        string `gorm:"column:code;primaryKey;type:varchar(32)"`
	Description string `gorm:"column:description;type:text"`
}

// TableName specifies the table name for GORM
func (EconomicSector) TableName() string {
	return "economic_sectors"
}
