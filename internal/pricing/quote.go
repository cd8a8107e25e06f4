package pricing

import (
	"errors"

	"parkit-backend/internal/model"
)

// Booking duration bounds, in hours.
const (
	MinHours = 1
	MaxHours = 24
)

// DefaultFuelEVDiscount is the discount on the booking total for electric vehicles.
const DefaultFuelEVDiscount = 0.2

var ErrInvalidHours = errors.New("pricing: hours out of range")

// Quote is the cost breakdown of a booking.
type Quote struct {
	PricePerHour   float64 `json:"pricePerHour"`
	Hours          int     `json:"hours"`
	SizeMultiplier float64 `json:"sizeMultiplier"`
	FuelMultiplier float64 `json:"fuelMultiplier"`
	Total          float64 `json:"total"`
}

// SizeMultiplier scales the hourly price by the space a vehicle takes.
func SizeMultiplier(v model.VehicleInfo) float64 {
	if v.Type == model.TwoWheeler {
		return 0.5
	}
	switch v.Size {
	case model.VehicleSmall:
		return 0.8
	case model.VehicleLarge:
		return 1.3
	default:
		return 1
	}
}

// FuelMultiplier applies the EV fuel discount.
func FuelMultiplier(fuel model.FuelType, discount float64) float64 {
	if fuel == model.FuelEV {
		return 1 - discount
	}
	return 1
}

// QuoteBooking prices a booking of spot for the given subscriber and vehicle.
// The hourly rate is computed per booking, so regular subscribers bypass the surge
// even though the spot's displayed price includes it.
func QuoteBooking(spot model.ParkingSpot, occupancyRate, evDiscount float64, sub model.Subscription, m Multipliers,
	v model.VehicleInfo, hours int, fuelDiscount float64) (Quote, error) {
	if hours < MinHours || hours > MaxHours {
		return Quote{}, ErrInvalidHours
	}
	q := Quote{
		PricePerHour:   SpotPriceWithMultipliers(spot, occupancyRate, evDiscount, sub, m),
		Hours:          hours,
		SizeMultiplier: SizeMultiplier(v),
		FuelMultiplier: FuelMultiplier(v.FuelType, fuelDiscount),
	}
	q.Total = round2(q.PricePerHour * float64(hours) * q.SizeMultiplier * q.FuelMultiplier)
	return q, nil
}
