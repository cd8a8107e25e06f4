package tracker

import (
	"context"
	"slices"
	"time"

	"parkit-backend/internal/model"
)

// SensorReservedBy marks spots a sensor reported as reserved.
const SensorReservedBy = "Sensor"

// SyncResult summarizes one application of sensor readings.
type SyncResult struct {
	Changed int     `json:"changed"`
	Unknown []int64 `json:"unknown,omitempty"`
}

// SyncStatuses applies sensor-reported statuses to the lot. A booked spot
// stays reserved when its sensor reports it free. IDs the lot does not know
// are returned in Unknown in ascending order.
func (s *Service) SyncStatuses(ctx context.Context, readings map[int64]model.SpotStatus) (SyncResult, error) {
	var unknown []int64
	changed, err := s.mutateAll(ctx, func(now time.Time, spots []model.ParkingSpot) int {
		seen := make(map[int64]bool, len(readings))
		n := 0
		for i := range spots {
			status, ok := readings[spots[i].ID]
			if !ok {
				continue
			}
			seen[spots[i].ID] = true
			if applyReading(&spots[i], status) {
				spots[i].LastUpdated = now
				n++
			}
		}
		for id := range readings {
			if !seen[id] {
				unknown = append(unknown, id)
			}
		}
		slices.Sort(unknown)
		return n
	})
	if err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Changed: changed, Unknown: unknown}, nil
}

func applyReading(sp *model.ParkingSpot, status model.SpotStatus) bool {
	if sp.Status == status || !status.Valid() {
		return false
	}
	switch status {
	case model.SpotFree:
		if sp.Status == model.SpotReserved {
			return false
		}
		sp.ReservedBy = ""
	case model.SpotOccupied:
		sp.ReservedBy = ""
	case model.SpotReserved:
		sp.ReservedBy = SensorReservedBy
	}
	sp.Status = status
	return true
}
