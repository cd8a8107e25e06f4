package prediction

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"parkit-backend/internal/model"
)

// Confidence is the qualitative reliability of a forecast.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Trend is the direction of the weighted average change.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

const (
	// DefaultMinutesAhead is the forecast horizon used when none is given.
	DefaultMinutesAhead = 30
	// DefaultPeakMultiplier scales the trend during peak hours.
	DefaultPeakMultiplier = 1.3

	minSnapshots     = 3
	saturationCount  = 30
	insufficientNote = "Insufficient historical data for accurate prediction"
)

// HourWindow is an inclusive range of wall-clock hours, e.g. {8, 10} covers 08:00-10:59.
type HourWindow struct {
	From int `yaml:"from" json:"from"`
	To   int `yaml:"to" json:"to"`
}

// Contains reports whether hour falls inside the window.
func (w HourWindow) Contains(hour int) bool {
	return hour >= w.From && hour <= w.To
}

// Stats carries optional live lot statistics used for the congestion note.
type Stats struct {
	OccupancyRate float64
}

// Analysis exposes the intermediate values behind a forecast.
type Analysis struct {
	Samples           int     `json:"samples"`
	WeightedAvgChange float64 `json:"weightedAvgChange"`
	Acceleration      float64 `json:"acceleration"`
	Variance          float64 `json:"variance"`
	Score             float64 `json:"score"`
	Trend             Trend   `json:"trend"`
	PeakHour          bool    `json:"peakHour"`
	Congestion        string  `json:"congestion,omitempty"`
}

// Result is a forecast of free spots minutesAhead from the last snapshot.
type Result struct {
	PredictedFree int        `json:"predictedFree"`
	Confidence    Confidence `json:"confidence"`
	Reasoning     string     `json:"reasoning"`
	Analysis      *Analysis  `json:"analysis,omitempty"`
}

// Model holds the tunable parts of the forecast. The zero value has no peak windows.
type Model struct {
	PeakWindows    []HourWindow
	PeakMultiplier float64
	// Location is the time zone peak hours are evaluated in; nil keeps now's own zone.
	Location *time.Location
}

// DefaultModel returns the model with morning (8-10) and evening (17-19) commute windows.
func DefaultModel() Model {
	return Model{
		PeakWindows:    []HourWindow{{From: 8, To: 10}, {From: 17, To: 19}},
		PeakMultiplier: DefaultPeakMultiplier,
	}
}

// Predict forecasts with DefaultModel.
func Predict(snapshots []model.OccupancySnapshot, minutesAhead int, stats *Stats, now time.Time) Result {
	return DefaultModel().Predict(snapshots, minutesAhead, stats, now)
}

// IsPeak reports whether now falls in one of the model's peak windows.
func (m Model) IsPeak(now time.Time) bool {
	if m.Location != nil {
		now = now.In(m.Location)
	}
	h := now.Hour()
	for _, w := range m.PeakWindows {
		if w.Contains(h) {
			return true
		}
	}
	return false
}

// Predict forecasts the free-spot count minutesAhead after the last snapshot.
// Histories shorter than three snapshots yield the last free count at low confidence.
// Consecutive snapshots without a positive time gap carry no rate and are skipped.
func (m Model) Predict(snapshots []model.OccupancySnapshot, minutesAhead int, stats *Stats, now time.Time) Result {
	n := len(snapshots)
	if n < minSnapshots {
		free := 0
		if n > 0 {
			free = snapshots[n-1].Free
		}
		return Result{PredictedFree: free, Confidence: ConfidenceLow, Reasoning: insufficientNote}
	}
	if minutesAhead <= 0 {
		minutesAhead = DefaultMinutesAhead
	}
	last := snapshots[n-1]

	changes := make([]float64, 0, n-1)
	weights := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		dt := snapshots[i].Timestamp.Sub(snapshots[i-1].Timestamp).Minutes()
		if dt <= 0 {
			continue
		}
		changes = append(changes, float64(snapshots[i].Free-snapshots[i-1].Free)/dt*10)
		// Later samples weigh exponentially more.
		weights = append(weights, math.Exp(float64(i)/float64(n)))
	}
	if len(changes) == 0 {
		return Result{PredictedFree: last.Free, Confidence: ConfidenceLow, Reasoning: insufficientNote}
	}

	avg := stat.Mean(changes, weights)

	accel := 0.0
	if k := len(changes); k >= 3 {
		accel = (changes[k-1] - changes[k-3]) / 2
	}

	peak := m.IsPeak(now)
	timeMultiplier := 1.0
	if peak && m.PeakMultiplier > 0 {
		timeMultiplier = m.PeakMultiplier
	}

	variance := 0.0
	for _, c := range changes {
		variance += (c - avg) * (c - avg)
	}
	variance /= float64(len(changes))

	score := math.Min(1, float64(n)/saturationCount)*0.4 + (1/(1+variance))*0.4
	if math.Abs(accel) < 1 {
		score += 0.2
	}

	intervals := float64(minutesAhead) / 10
	trendPrediction := avg * intervals * timeMultiplier
	accelerationEffect := 0.5 * accel * intervals * intervals
	raw := float64(last.Free) + trendPrediction + accelerationEffect
	predicted := clamp(int(math.Floor(raw+0.5)), 0, last.Total)

	a := &Analysis{
		Samples:           n,
		WeightedAvgChange: avg,
		Acceleration:      accel,
		Variance:          variance,
		Score:             score,
		Trend:             trendOf(avg),
		PeakHour:          peak,
	}
	if stats != nil {
		a.Congestion = congestionOf(stats.OccupancyRate)
	}

	return Result{
		PredictedFree: predicted,
		Confidence:    confidenceOf(score),
		Reasoning:     reasoning(a, stats),
		Analysis:      a,
	}
}

func confidenceOf(score float64) Confidence {
	switch {
	case score > 0.7:
		return ConfidenceHigh
	case score > 0.4:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func trendOf(avg float64) Trend {
	switch {
	case avg > 0.5:
		return TrendIncreasing
	case avg < -0.5:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func congestionOf(rate float64) string {
	switch {
	case rate > 0.8:
		return "High"
	case rate > 0.5:
		return "Medium"
	default:
		return "Low"
	}
}

func reasoning(a *Analysis, stats *Stats) string {
	accelNote := ""
	if math.Abs(a.Acceleration) > 0.5 {
		if a.Acceleration > 0 {
			accelNote = ", accelerating"
		} else {
			accelNote = ", decelerating"
		}
	}
	peakNote := ""
	if a.PeakHour {
		peakNote = " (peak hours)"
	}
	congestionNote := ""
	if stats != nil {
		congestionNote = fmt.Sprintf(" | %s congestion detected (%.0f%% occupied)", a.Congestion, stats.OccupancyRate*100)
	}
	return fmt.Sprintf("Analyzing %d data points: availability %s at %.2f spots/10min%s%s%s. Confidence: %.0f%%",
		a.Samples, a.Trend, math.Abs(a.WeightedAvgChange), accelNote, peakNote, congestionNote, a.Score*100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
