package domain

import "time"

type KitchenStationConfig struct {
	ID                string
	BranchID          string
	Name              string
	DefaultPrepTime   int
	WarningThreshold  int
	CriticalThreshold int
	DisplayOrder      int
	AutoPrint         bool
	PrinterID         *string
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
