package metrics

import "parkit-backend/internal/model"

// Recorder receives lot level measurements from the tracker.
type Recorder interface {
	RecordLot(stats model.ParkingStats)
	RecordSpotPrice(label string, price float64)
	RecordForecast(predictedFree int, score float64)
	RecordBooking(subscription model.Subscription)
	RecordSnapshot()
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

func (NopRecorder) RecordLot(model.ParkingStats)     {}
func (NopRecorder) RecordSpotPrice(string, float64)  {}
func (NopRecorder) RecordForecast(int, float64)      {}
func (NopRecorder) RecordBooking(model.Subscription) {}
func (NopRecorder) RecordSnapshot()                  {}
