package tracker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"parkit-backend/internal/model"
	"parkit-backend/internal/store"
)

var errStoreDown = errors.New("store down")

// memStore is a map-backed store.Store.
type memStore struct {
	mu        sync.Mutex
	spots     map[int64]model.ParkingSpot
	history   []model.SpotStatusHistory
	snapshots []model.OccupancySnapshot
	cfg       *model.PricingConfig
	bookings  []model.Booking
	failSave  bool
}

func newMemStore() *memStore {
	return &memStore{spots: map[int64]model.ParkingSpot{}}
}

func (m *memStore) LoadSpots(context.Context) ([]model.ParkingSpot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ParkingSpot, 0, len(m.spots))
	for id := int64(1); len(out) < len(m.spots); id++ {
		if sp, ok := m.spots[id]; ok {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (m *memStore) Commit(_ context.Context, now time.Time, c store.Commit) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return nil, errStoreDown
	}
	var freed []int64
	for _, sp := range c.Spots {
		if old, ok := m.spots[sp.ID]; ok && old.Status != sp.Status {
			if old.Status.Unavailable() {
				m.history = append(m.history, model.SpotStatusHistory{SpotID: sp.ID, Status: old.Status, ReservedBy: old.ReservedBy, PeriodStart: old.LastUpdated, PeriodEnd: now})
			}
			if sp.Status == model.SpotFree {
				freed = append(freed, sp.ID)
			}
		}
		m.spots[sp.ID] = sp
	}
	if c.Pricing != nil {
		cfg := *c.Pricing
		m.cfg = &cfg
	}
	if c.Booking != nil {
		m.bookings = append(m.bookings, *c.Booking)
	}
	ended := append(slices.Clone(freed), c.CompleteSpots...)
	for i := range m.bookings {
		if m.bookings[i].Status == model.BookingActive && slices.Contains(ended, m.bookings[i].SpotID) {
			m.bookings[i].Status = model.BookingCompleted
			endedAt := now
			m.bookings[i].EndedAt = &endedAt
		}
	}
	return freed, nil
}

func (m *memStore) SpotHistory(_ context.Context, spotID int64, _ int) ([]model.SpotStatusHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SpotStatusHistory
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].SpotID == spotID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

func (m *memStore) LoadSnapshots(context.Context) ([]model.OccupancySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.OccupancySnapshot(nil), m.snapshots...), nil
}

func (m *memStore) SaveSnapshots(_ context.Context, snaps []model.OccupancySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errStoreDown
	}
	m.snapshots = append([]model.OccupancySnapshot(nil), snaps...)
	return nil
}

func (m *memStore) LoadPricingConfig(context.Context) (model.PricingConfig, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return model.PricingConfig{}, false, nil
	}
	return *m.cfg, true, nil
}

func (m *memStore) ActiveBookings(_ context.Context, userName string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for i := len(m.bookings) - 1; i >= 0; i-- {
		b := m.bookings[i]
		if b.Status == model.BookingActive && (userName == "" || b.UserName == userName) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memStore) FindBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, store.ErrBookingNotFound
}

func (m *memStore) storedConfig() *model.PricingConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

func (m *memStore) setFail(fail bool) {
	m.mu.Lock()
	m.failSave = fail
	m.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) Dispatch(id int64) {
	n.mu.Lock()
	n.ids = append(n.ids, id)
	n.mu.Unlock()
}

func (n *recordingNotifier) IDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.ids...)
}
