package tracker

import "errors"

var (
	// ErrSpotNotFound is returned for an unknown spot ID.
	ErrSpotNotFound = errors.New("spot not found")
	// ErrSpotUnavailable is returned when booking a spot that is not free.
	ErrSpotUnavailable = errors.New("spot is not available")
	// ErrBookingNotFound is returned for an unknown booking ID.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrBookingNotActive is returned when ending a booking that already ended.
	ErrBookingNotActive = errors.New("booking is not active")
	// ErrInvalidInput wraps every request validation failure.
	ErrInvalidInput = errors.New("invalid input")
)
