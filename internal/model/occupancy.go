package model

import (
	"time"
)

// OccupancySnapshot is a timestamped observation of free and total spot counts.
type OccupancySnapshot struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Timestamp time.Time `gorm:"not null;index" json:"timestamp"`
	Free      int       `gorm:"not null" json:"free"`
	Total     int       `gorm:"not null" json:"total"`
}

// SpotStatusHistory is an archived, completed non-free period of a spot (cold table).
type SpotStatusHistory struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SpotID      int64      `gorm:"not null;index" json:"spotId"`
	Status      SpotStatus `gorm:"size:16;not null" json:"status"`
	ReservedBy  string     `gorm:"size:128" json:"reservedBy,omitempty"`
	PeriodStart time.Time  `gorm:"not null" json:"periodStart"`
	PeriodEnd   time.Time  `gorm:"not null;index" json:"periodEnd"` // Time the status change was observed
}
