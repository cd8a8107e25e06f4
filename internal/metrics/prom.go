package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"parkit-backend/internal/model"
)

// PromRecorder exposes tracker measurements as Prometheus collectors.
type PromRecorder struct {
	occupancy  prometheus.Gauge
	freeSpots  prometheus.Gauge
	avgPrice   prometheus.Gauge
	spotPrice  *prometheus.GaugeVec
	predicted  prometheus.Gauge
	confidence prometheus.Gauge
	bookings   *prometheus.CounterVec
	snapshots  prometheus.Counter
}

// NewPromRecorder registers the collectors on reg, or on the default
// registerer when reg is nil. Collectors that are already registered are reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PromRecorder{
		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_occupancy_rate",
			Help: "Share of spots that are occupied or reserved",
		}),
		freeSpots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_free_spots",
			Help: "Number of free spots",
		}),
		avgPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_average_price",
			Help: "Mean current hourly price across all spots",
		}),
		spotPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "parkit_spot_price",
			Help: "Current hourly price per spot",
		}, []string{"label"}),
		predicted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_predicted_free_spots",
			Help: "Most recent availability forecast",
		}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parkit_prediction_confidence_score",
			Help: "Confidence score of the most recent forecast",
		}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parkit_bookings_total",
			Help: "Total number of bookings",
		}, []string{"subscription"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parkit_snapshots_total",
			Help: "Total number of occupancy snapshots taken",
		}),
	}

	var err error
	if r.occupancy, err = register(reg, r.occupancy); err != nil {
		return nil, err
	}
	if r.freeSpots, err = register(reg, r.freeSpots); err != nil {
		return nil, err
	}
	if r.avgPrice, err = register(reg, r.avgPrice); err != nil {
		return nil, err
	}
	if r.spotPrice, err = register(reg, r.spotPrice); err != nil {
		return nil, err
	}
	if r.predicted, err = register(reg, r.predicted); err != nil {
		return nil, err
	}
	if r.confidence, err = register(reg, r.confidence); err != nil {
		return nil, err
	}
	if r.bookings, err = register(reg, r.bookings); err != nil {
		return nil, err
	}
	if r.snapshots, err = register(reg, r.snapshots); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *PromRecorder) RecordLot(stats model.ParkingStats) {
	r.occupancy.Set(stats.OccupancyRate)
	r.freeSpots.Set(float64(stats.Free))
	r.avgPrice.Set(stats.AveragePrice)
}

func (r *PromRecorder) RecordSpotPrice(label string, price float64) {
	r.spotPrice.WithLabelValues(label).Set(price)
}

func (r *PromRecorder) RecordForecast(predictedFree int, score float64) {
	r.predicted.Set(float64(predictedFree))
	r.confidence.Set(score)
}

func (r *PromRecorder) RecordBooking(subscription model.Subscription) {
	r.bookings.WithLabelValues(string(subscription)).Inc()
}

func (r *PromRecorder) RecordSnapshot() {
	r.snapshots.Inc()
}
