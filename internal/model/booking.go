package model

import "time"

// VehicleType is the class of vehicle occupying a spot.
type VehicleType string

const (
	TwoWheeler  VehicleType = "2-wheeler"
	FourWheeler VehicleType = "4-wheeler"
)

// VehicleSize only matters for four-wheelers.
type VehicleSize string

const (
	VehicleSmall  VehicleSize = "small"
	VehicleMedium VehicleSize = "medium"
	VehicleLarge  VehicleSize = "large"
)

// FuelType distinguishes electric vehicles.
type FuelType string

const (
	FuelEV    FuelType = "ev"
	FuelNonEV FuelType = "non-ev"
)

// VehicleInfo describes the vehicle attached to a booking.
type VehicleInfo struct {
	Type     VehicleType `gorm:"column:vehicle_type;size:16" json:"type"`
	Size     VehicleSize `gorm:"column:vehicle_size;size:16" json:"size"`
	FuelType FuelType    `gorm:"column:fuel_type;size:16" json:"fuelType"`
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
)

// Booking records a reservation and the price it was quoted at.
type Booking struct {
	ID                 string        `gorm:"primaryKey;size:36" json:"id"`
	SpotID             int64         `gorm:"not null;index" json:"spotId"`
	UserName           string        `gorm:"size:128;not null" json:"userName"`
	Subscription       Subscription  `gorm:"size:16;not null" json:"subscription"`
	Vehicle            VehicleInfo   `gorm:"embedded" json:"vehicle"`
	RegistrationNumber string        `gorm:"size:32;not null" json:"registrationNumber"`
	Hours              int           `gorm:"not null" json:"hours"`
	PricePerHour       float64       `gorm:"not null" json:"pricePerHour"`
	SizeMultiplier     float64       `gorm:"not null" json:"sizeMultiplier"`
	FuelMultiplier     float64       `gorm:"not null" json:"fuelMultiplier"`
	TotalCost          float64       `gorm:"not null" json:"totalCost"`
	Status             BookingStatus `gorm:"size:16;not null;default:active;index" json:"status"`
	CreatedAt          time.Time     `gorm:"not null;index" json:"createdAt"`
	// EndedAt is set when the booking completes.
	EndedAt *time.Time `json:"endedAt,omitempty"`
}
