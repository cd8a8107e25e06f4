package pricing

import (
	"errors"
	"math"

	"parkit-backend/internal/model"
)

// ErrNoSpots is returned when an occupancy rate is requested for an empty lot.
var ErrNoSpots = errors.New("pricing: empty spot set")

// Occupancy thresholds above which the surge multipliers apply.
const (
	HighDemandThreshold     = 0.75
	ModerateDemandThreshold = 0.5
)

// Multipliers is a surge table: High applies above 75% occupancy, Moderate above 50%.
type Multipliers struct {
	High     float64 `json:"high"`
	Moderate float64 `json:"moderate"`
}

var ruleTables = map[model.PricingRule]Multipliers{
	model.RuleConservative: {High: 1.2, Moderate: 1.1},
	model.RuleBalanced:     {High: 1.5, Moderate: 1.25},
	model.RuleAggressive:   {High: 2.0, Moderate: 1.5},
}

// RuleMultipliers returns the surge table for a pricing rule.
func RuleMultipliers(rule model.PricingRule) (Multipliers, bool) {
	m, ok := ruleTables[rule]
	return m, ok
}

// Balanced is the table the live price formula uses unless rule wiring is enabled.
func Balanced() Multipliers {
	return ruleTables[model.RuleBalanced]
}

// SurgeMultiplier selects the multiplier for an occupancy rate.
func SurgeMultiplier(occupancyRate float64, m Multipliers) float64 {
	switch {
	case occupancyRate > HighDemandThreshold:
		return m.High
	case occupancyRate > ModerateDemandThreshold:
		return m.Moderate
	default:
		return 1.0
	}
}

// SpotPrice computes the displayed hourly price of a spot with the balanced surge table.
// Regular subscribers always pay the base price. An empty subscription is treated as guest.
func SpotPrice(spot model.ParkingSpot, occupancyRate, evDiscount float64, sub model.Subscription) float64 {
	return SpotPriceWithMultipliers(spot, occupancyRate, evDiscount, sub, Balanced())
}

// SpotPriceWithMultipliers is SpotPrice with an explicit surge table.
func SpotPriceWithMultipliers(spot model.ParkingSpot, occupancyRate, evDiscount float64, sub model.Subscription, m Multipliers) float64 {
	if sub == model.SubscriptionRegular {
		return round2(spot.BasePrice)
	}
	price := spot.BasePrice * SurgeMultiplier(occupancyRate, m)
	if spot.IsEV {
		price *= 1 - evDiscount
	}
	return round2(price)
}

// OccupancyRate is the share of spots that are occupied or reserved.
func OccupancyRate(spots []model.ParkingSpot) (float64, error) {
	if len(spots) == 0 {
		return 0, ErrNoSpots
	}
	unavailable := 0
	for _, s := range spots {
		if s.Status.Unavailable() {
			unavailable++
		}
	}
	return float64(unavailable) / float64(len(spots)), nil
}

// UpdateAllPrices returns a copy of spots with every price recomputed for guests
// at the lot's current occupancy. The input slice is not modified.
func UpdateAllPrices(spots []model.ParkingSpot, evDiscount float64) ([]model.ParkingSpot, error) {
	return UpdateAllPricesWithMultipliers(spots, evDiscount, Balanced())
}

// UpdateAllPricesWithMultipliers is UpdateAllPrices with an explicit surge table.
func UpdateAllPricesWithMultipliers(spots []model.ParkingSpot, evDiscount float64, m Multipliers) ([]model.ParkingSpot, error) {
	rate, err := OccupancyRate(spots)
	if err != nil {
		return nil, err
	}
	out := make([]model.ParkingSpot, len(spots))
	for i, s := range spots {
		s.Price = SpotPriceWithMultipliers(s, rate, evDiscount, model.SubscriptionGuest, m)
		out[i] = s
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
