package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parkit-backend/internal/model"
	"parkit-backend/internal/pricing"
	"parkit-backend/internal/store"
)

// BookingRequest is a user's request to reserve a spot.
type BookingRequest struct {
	UserName           string             `json:"userName"`
	Subscription       model.Subscription `json:"subscription"`
	Vehicle            model.VehicleInfo  `json:"vehicle"`
	RegistrationNumber string             `json:"registrationNumber"`
	Hours              int                `json:"hours"`
}

// normalize fills defaults and validates the request in place.
func (r *BookingRequest) normalize() error {
	r.UserName = strings.TrimSpace(r.UserName)
	if r.UserName == "" {
		return fmt.Errorf("%w: userName is required", ErrInvalidInput)
	}
	switch r.Subscription {
	case "":
		r.Subscription = model.SubscriptionGuest
	case model.SubscriptionGuest, model.SubscriptionRegular:
	default:
		return fmt.Errorf("%w: unknown subscription %q", ErrInvalidInput, r.Subscription)
	}

	switch r.Vehicle.Type {
	case "":
		r.Vehicle.Type = model.FourWheeler
	case model.TwoWheeler, model.FourWheeler:
	default:
		return fmt.Errorf("%w: unknown vehicle type %q", ErrInvalidInput, r.Vehicle.Type)
	}
	switch r.Vehicle.Size {
	case "":
		if r.Vehicle.Type == model.FourWheeler {
			r.Vehicle.Size = model.VehicleMedium
		}
	case model.VehicleSmall, model.VehicleMedium, model.VehicleLarge:
	default:
		return fmt.Errorf("%w: unknown vehicle size %q", ErrInvalidInput, r.Vehicle.Size)
	}
	switch r.Vehicle.FuelType {
	case "":
		r.Vehicle.FuelType = model.FuelNonEV
	case model.FuelEV, model.FuelNonEV:
	default:
		return fmt.Errorf("%w: unknown fuel type %q", ErrInvalidInput, r.Vehicle.FuelType)
	}

	r.RegistrationNumber = strings.ToUpper(strings.TrimSpace(r.RegistrationNumber))
	if r.RegistrationNumber == "" {
		return fmt.Errorf("%w: registrationNumber is required", ErrInvalidInput)
	}
	if r.Hours < pricing.MinHours || r.Hours > pricing.MaxHours {
		return fmt.Errorf("%w: hours must be within [%d, %d]", ErrInvalidInput, pricing.MinHours, pricing.MaxHours)
	}
	return nil
}

// Quote prices a booking of spot id without reserving it.
func (s *Service) Quote(id int64, req BookingRequest) (pricing.Quote, error) {
	if err := req.normalize(); err != nil {
		return pricing.Quote{}, err
	}
	return s.quote(s.Spots(), id, req)
}

func (s *Service) quote(spots []model.ParkingSpot, id int64, req BookingRequest) (pricing.Quote, error) {
	i := indexOf(spots, id)
	if i < 0 {
		return pricing.Quote{}, fmt.Errorf("spot %d: %w", id, ErrSpotNotFound)
	}
	rate, err := pricing.OccupancyRate(spots)
	if err != nil {
		return pricing.Quote{}, err
	}
	cfg := s.PricingConfig()
	q, err := pricing.QuoteBooking(spots[i], rate, cfg.EVDiscount, req.Subscription, s.multipliersFor(cfg),
		req.Vehicle, req.Hours, s.settings.FuelEVDiscount)
	if errors.Is(err, pricing.ErrInvalidHours) {
		return pricing.Quote{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return q, err
}

// BookSpot reserves a free spot for the requester and records the booking.
func (s *Service) BookSpot(ctx context.Context, id int64, req BookingRequest) (model.Booking, error) {
	if err := req.normalize(); err != nil {
		return model.Booking{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.Spots()
	i := indexOf(next, id)
	if i < 0 {
		return model.Booking{}, fmt.Errorf("spot %d: %w", id, ErrSpotNotFound)
	}
	if next[i].Status != model.SpotFree {
		return model.Booking{}, fmt.Errorf("spot %s is %s: %w", next[i].Label, next[i].Status, ErrSpotUnavailable)
	}

	q, err := s.quote(next, id, req)
	if err != nil {
		return model.Booking{}, err
	}

	now := s.now().UTC()
	booking := model.Booking{
		ID:                 uuid.NewString(),
		SpotID:             id,
		UserName:           req.UserName,
		Subscription:       req.Subscription,
		Vehicle:            req.Vehicle,
		RegistrationNumber: req.RegistrationNumber,
		Hours:              q.Hours,
		PricePerHour:       q.PricePerHour,
		SizeMultiplier:     q.SizeMultiplier,
		FuelMultiplier:     q.FuelMultiplier,
		TotalCost:          q.Total,
		Status:             model.BookingActive,
		CreatedAt:          now,
	}

	next[i].Status = model.SpotReserved
	next[i].ReservedBy = req.UserName
	next[i].LastUpdated = now
	if err := s.commit(ctx, now, next, s.PricingConfig(), store.Commit{Booking: &booking}); err != nil {
		return model.Booking{}, err
	}

	s.metrics.RecordBooking(req.Subscription)
	s.log.Infof("spot %s reserved for %s (%d h, total %.2f)", next[i].Label, req.UserName, q.Hours, q.Total)
	return booking, nil
}

// Bookings lists active bookings newest first, all users when userName is empty.
func (s *Service) Bookings(ctx context.Context, userName string) ([]model.Booking, error) {
	return s.store.ActiveBookings(ctx, strings.TrimSpace(userName))
}

// EndBooking completes an active booking and frees its spot.
func (s *Service) EndBooking(ctx context.Context, id string) (model.Booking, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	b, err := s.store.FindBooking(ctx, id)
	if errors.Is(err, store.ErrBookingNotFound) {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return model.Booking{}, err
	}
	if b.Status != model.BookingActive {
		return model.Booking{}, fmt.Errorf("booking %s is %s: %w", id, b.Status, ErrBookingNotActive)
	}

	now := s.now().UTC()
	next := s.Spots()
	if i := indexOf(next, b.SpotID); i >= 0 && next[i].Status != model.SpotFree {
		next[i].Status = model.SpotFree
		next[i].ReservedBy = ""
		next[i].LastUpdated = now
	}
	c := store.Commit{CompleteSpots: []int64{b.SpotID}}
	if err := s.commit(ctx, now, next, s.PricingConfig(), c); err != nil {
		return model.Booking{}, err
	}

	b.Status = model.BookingCompleted
	b.EndedAt = &now
	s.log.Infof("booking %s for %s ended, spot %d freed", b.ID, b.UserName, b.SpotID)
	return b, nil
}
