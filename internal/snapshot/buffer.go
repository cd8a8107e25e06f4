// Package snapshot maintains the bounded occupancy history fed to the prediction engine.
package snapshot

import (
	"errors"
	"fmt"
	"time"

	"parkit-backend/internal/model"
)

// DefaultCapacity is the number of snapshots kept when no capacity is given.
const DefaultCapacity = 30

var (
	ErrOutOfOrder    = errors.New("snapshot: timestamp before last snapshot")
	ErrInvalidCounts = errors.New("snapshot: free must be within [0, total]")
)

// Append returns a new history with (free, total) observed at now appended.
// The oldest entries are dropped once the history exceeds capacity; capacity <= 0 means DefaultCapacity.
// An observation at the same instant as the last entry replaces it. The input is never modified.
func Append(buf []model.OccupancySnapshot, free, total, capacity int, now time.Time) ([]model.OccupancySnapshot, error) {
	if total < 0 || free < 0 || free > total {
		return nil, fmt.Errorf("%w: free=%d total=%d", ErrInvalidCounts, free, total)
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	keep := buf
	if n := len(buf); n > 0 {
		last := buf[n-1].Timestamp
		if now.Before(last) {
			return nil, fmt.Errorf("%w: %s < %s", ErrOutOfOrder, now.Format(time.RFC3339Nano), last.Format(time.RFC3339Nano))
		}
		if now.Equal(last) {
			keep = buf[:n-1]
		}
	}

	start := 0
	if len(keep)+1 > capacity {
		start = len(keep) + 1 - capacity
	}
	out := make([]model.OccupancySnapshot, 0, len(keep)-start+1)
	out = append(out, keep[start:]...)
	out = append(out, model.OccupancySnapshot{Timestamp: now, Free: free, Total: total})
	return out, nil
}

// Latest returns the most recent snapshot, if any.
func Latest(buf []model.OccupancySnapshot) (model.OccupancySnapshot, bool) {
	if len(buf) == 0 {
		return model.OccupancySnapshot{}, false
	}
	return buf[len(buf)-1], true
}
