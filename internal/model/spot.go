package model

import (
	"time"

	"github.com/paulmach/orb"
)

// SpotStatus is the occupancy state of a parking spot.
type SpotStatus string

const (
	SpotFree     SpotStatus = "free"
	SpotOccupied SpotStatus = "occupied"
	SpotReserved SpotStatus = "reserved"
)

// Valid reports whether s is one of the known statuses.
func (s SpotStatus) Valid() bool {
	switch s {
	case SpotFree, SpotOccupied, SpotReserved:
		return true
	}
	return false
}

// Unavailable reports whether the spot counts towards occupancy.
func (s SpotStatus) Unavailable() bool {
	return s == SpotOccupied || s == SpotReserved
}

// ParkingSpot is a single bookable parking space.
// Price is derived from BasePrice and the current occupancy and is rewritten on every reprice.
type ParkingSpot struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	Label       string     `gorm:"size:64;not null" json:"label"`
	Zone        string     `gorm:"size:128" json:"zone,omitempty"`
	Status      SpotStatus `gorm:"size:16;not null;index" json:"status"`
	IsEV        bool       `gorm:"not null" json:"isEV"`
	BasePrice   float64    `gorm:"not null" json:"basePrice"`
	Price       float64    `gorm:"not null" json:"price"`
	ReservedBy  string     `gorm:"size:128" json:"reservedBy,omitempty"`
	Lng         float64    `json:"-"`
	Lat         float64    `json:"-"`
	LastUpdated time.Time  `gorm:"not null" json:"lastUpdated"`
}

// Location returns the spot coordinates as a [lng, lat] point.
func (s ParkingSpot) Location() orb.Point {
	return orb.Point{s.Lng, s.Lat}
}

// ParkingStats aggregates the current spot list.
type ParkingStats struct {
	Total         int     `json:"total"`
	Free          int     `json:"free"`
	Occupied      int     `json:"occupied"`
	Reserved      int     `json:"reserved"`
	OccupancyRate float64 `json:"occupancyRate"`
	AveragePrice  float64 `json:"averagePrice"`
}
