package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parkit-backend/internal/model"
)

// ErrBookingNotFound is returned when no booking has the requested id.
var ErrBookingNotFound = errors.New("booking not found")

// Store defines the interface for all database operations.
type Store interface {
	LoadSpots(ctx context.Context) ([]model.ParkingSpot, error)
	SpotHistory(ctx context.Context, spotID int64, limit int) ([]model.SpotStatusHistory, error)

	// Commit writes c in a single transaction and returns the IDs of spots
	// that became free. Nothing is written when it fails.
	Commit(ctx context.Context, now time.Time, c Commit) ([]int64, error)

	LoadSnapshots(ctx context.Context) ([]model.OccupancySnapshot, error)
	SaveSnapshots(ctx context.Context, snapshots []model.OccupancySnapshot) error

	LoadPricingConfig(ctx context.Context) (model.PricingConfig, bool, error)

	// ActiveBookings lists active bookings newest first. An empty userName
	// matches every user.
	ActiveBookings(ctx context.Context, userName string) ([]model.Booking, error)
	FindBooking(ctx context.Context, id string) (model.Booking, error)
}

// Commit is one atomic change to the lot.
//
// Spots is the full spot list. It is upserted and every non-free period that
// ended at now is archived. Active bookings on spots that became free are
// completed, as are those on CompleteSpots.
type Commit struct {
	Spots         []model.ParkingSpot
	Pricing       *model.PricingConfig
	Booking       *model.Booking
	CompleteSpots []int64
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) LoadSpots(ctx context.Context) ([]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Order("id").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("failed to load spots: %w", err)
	}
	return spots, nil
}

func (s *gormStore) Commit(ctx context.Context, now time.Time, c Commit) ([]int64, error) {
	current, err := s.fetchAllSpots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch current spots: %w", err)
	}

	var freed []int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := saveSpots(tx, current, now, c.Spots)
		if err != nil {
			return err
		}
		freed = ids
		if c.Pricing != nil {
			cfg := *c.Pricing
			cfg.ID = 1
			if err := tx.Save(&cfg).Error; err != nil {
				return fmt.Errorf("failed to save pricing config: %w", err)
			}
		}
		if c.Booking != nil {
			if err := tx.Create(c.Booking).Error; err != nil {
				return fmt.Errorf("failed to create booking %s: %w", c.Booking.ID, err)
			}
		}
		return completeBookings(tx, append(slices.Clone(freed), c.CompleteSpots...), now)
	})
	if err != nil {
		return nil, err
	}
	return freed, nil
}

func saveSpots(tx *gorm.DB, current map[int64]model.ParkingSpot, now time.Time, spots []model.ParkingSpot) ([]int64, error) {
	var freed []int64
	for _, spot := range spots {
		old, exists := current[spot.ID]
		if !exists || old.Status == spot.Status {
			continue
		}
		if old.Status.Unavailable() {
			if err := archivePeriod(tx, old, now); err != nil {
				return nil, err
			}
		}
		if spot.Status == model.SpotFree {
			freed = append(freed, spot.ID)
		}
	}

	if len(spots) == 0 {
		return freed, nil
	}
	rows := make([]model.ParkingSpot, len(spots))
	copy(rows, spots)
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "zone", "status", "is_ev", "base_price", "price", "reserved_by", "lng", "lat", "last_updated"}),
	}).Create(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to save spots: %w", err)
	}
	return freed, nil
}

// completeBookings ends the active bookings held on spotIDs.
func completeBookings(tx *gorm.DB, spotIDs []int64, now time.Time) error {
	if len(spotIDs) == 0 {
		return nil
	}
	err := tx.Model(&model.Booking{}).
		Where("spot_id IN ? AND status = ?", spotIDs, model.BookingActive).
		Updates(map[string]any{"status": model.BookingCompleted, "ended_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to complete bookings for spots %v: %w", spotIDs, err)
	}
	return nil
}

// archivePeriod records the status period that ended when the change was observed.
func archivePeriod(tx *gorm.DB, old model.ParkingSpot, observedAt time.Time) error {
	record := model.SpotStatusHistory{
		SpotID:      old.ID,
		Status:      old.Status,
		ReservedBy:  old.ReservedBy,
		PeriodStart: old.LastUpdated,
		PeriodEnd:   observedAt,
	}
	if err := tx.Create(&record).Error; err != nil {
		return fmt.Errorf("failed to archive status period for spot %d: %w", old.ID, err)
	}
	return nil
}

func (s *gormStore) fetchAllSpots(ctx context.Context) (map[int64]model.ParkingSpot, error) {
	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Find(&spots).Error; err != nil {
		return nil, err
	}
	spotMap := make(map[int64]model.ParkingSpot, len(spots))
	for _, sp := range spots {
		spotMap[sp.ID] = sp
	}
	return spotMap, nil
}

func (s *gormStore) SpotHistory(ctx context.Context, spotID int64, limit int) ([]model.SpotStatusHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.SpotStatusHistory
	err := s.db.WithContext(ctx).
		Where("spot_id = ?", spotID).
		Order("period_end DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for spot %d: %w", spotID, err)
	}
	return rows, nil
}

func (s *gormStore) LoadSnapshots(ctx context.Context) ([]model.OccupancySnapshot, error) {
	var snaps []model.OccupancySnapshot
	if err := s.db.WithContext(ctx).Order("timestamp ASC").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}
	return snaps, nil
}

// SaveSnapshots replaces the persisted history with snapshots.
func (s *gormStore) SaveSnapshots(ctx context.Context, snapshots []model.OccupancySnapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.OccupancySnapshot{}).Error; err != nil {
			return fmt.Errorf("failed to clear snapshots: %w", err)
		}
		if len(snapshots) == 0 {
			return nil
		}
		rows := make([]model.OccupancySnapshot, len(snapshots))
		for i, snap := range snapshots {
			rows[i] = model.OccupancySnapshot{Timestamp: snap.Timestamp, Free: snap.Free, Total: snap.Total}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save snapshots: %w", err)
		}
		return nil
	})
}

func (s *gormStore) LoadPricingConfig(ctx context.Context) (model.PricingConfig, bool, error) {
	var cfg model.PricingConfig
	err := s.db.WithContext(ctx).First(&cfg, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PricingConfig{}, false, nil
	}
	if err != nil {
		return model.PricingConfig{}, false, fmt.Errorf("failed to load pricing config: %w", err)
	}
	return cfg, true, nil
}

func (s *gormStore) ActiveBookings(ctx context.Context, userName string) ([]model.Booking, error) {
	q := s.db.WithContext(ctx).Where("status = ?", model.BookingActive)
	if userName != "" {
		q = q.Where("user_name = ?", userName)
	}
	var rows []model.Booking
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	return rows, nil
}

func (s *gormStore) FindBooking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, ErrBookingNotFound)
	}
	if err != nil {
		return model.Booking{}, fmt.Errorf("failed to load booking %s: %w", id, err)
	}
	return b, nil
}
