package model

import "time"

// DefaultBasePrice is the hourly base price used when nothing is configured.
const DefaultBasePrice = 30.0

type seedSpot struct {
	label      string
	zone       string
	status     SpotStatus
	ev         bool
	reservedBy string
	lng, lat   float64
}

var seedSpots = []seedSpot{
	{"Panaji-A1", "Panaji - Block A", SpotFree, false, "", 73.8278, 15.4909},
	{"Panaji-A2", "Panaji - Block A", SpotOccupied, false, "", 73.8285, 15.4912},
	{"Panaji-B1", "Panaji - Block B", SpotFree, true, "", 73.8290, 15.4906},
	{"Panaji-B2", "Panaji - Block B", SpotReserved, false, "Priya Sharma", 73.8282, 15.4915},
	{"Panaji-C1", "Panaji - Block C", SpotFree, false, "", 73.8287, 15.4903},
	{"Panaji-C2", "Panaji - Block C", SpotOccupied, false, "", 73.8293, 15.4910},
	{"Panaji-D1", "Panaji - Block D", SpotFree, true, "", 73.8280, 15.4917},
	{"Panaji-D2", "Panaji - Block D", SpotFree, false, "", 73.8295, 15.4908},
	{"Panaji-E1", "Panaji - Block E", SpotReserved, false, "Amit Desai", 73.8283, 15.4901},
	{"Panaji-E2", "Panaji - Block E", SpotOccupied, false, "", 73.8291, 15.4914},
	{"Panaji-F1", "Panaji - Block F", SpotFree, false, "", 73.8281, 15.4905},
	{"Panaji-F2", "Panaji - Block F", SpotReserved, true, "Neha Patel", 73.8288, 15.4911},
}

// DefaultSpots returns the seed lot used when the store holds no spots.
func DefaultSpots(now time.Time, basePrice float64) []ParkingSpot {
	if basePrice <= 0 {
		basePrice = DefaultBasePrice
	}
	spots := make([]ParkingSpot, len(seedSpots))
	for i, s := range seedSpots {
		spots[i] = ParkingSpot{
			ID:          int64(i + 1),
			Label:       s.label,
			Zone:        s.zone,
			Status:      s.status,
			IsEV:        s.ev,
			BasePrice:   basePrice,
			Price:       basePrice,
			ReservedBy:  s.reservedBy,
			Lng:         s.lng,
			Lat:         s.lat,
			LastUpdated: now,
		}
	}
	return spots
}

// DefaultPricingConfig returns the pricing settings used before a manager edits them.
func DefaultPricingConfig(basePrice float64) PricingConfig {
	if basePrice <= 0 {
		basePrice = DefaultBasePrice
	}
	return PricingConfig{ID: 1, Rule: RuleBalanced, EVDiscount: 0.2, BasePriceDefault: basePrice}
}
