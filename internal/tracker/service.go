package tracker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"parkit-backend/config"
	"parkit-backend/internal/logger"
	"parkit-backend/internal/metrics"
	"parkit-backend/internal/model"
	"parkit-backend/internal/parse"
	"parkit-backend/internal/prediction"
	"parkit-backend/internal/pricing"
	"parkit-backend/internal/snapshot"
	"parkit-backend/internal/store"
)

// Notifier is told about spots that just became free.
type Notifier interface {
	Dispatch(spotID int64)
}

// Settings are the tracker's static tunables.
type Settings struct {
	ApplyRuleMultipliers bool
	FuelEVDiscount       float64
	BasePriceDefault     float64
	SnapshotCapacity     int
	SnapshotInterval     time.Duration
	MinutesAhead         int
	SkipSeed             bool
}

// SettingsFromConfig extracts tracker settings from the application config.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		ApplyRuleMultipliers: cfg.Pricing.ApplyRuleMultipliers,
		FuelEVDiscount:       cfg.Pricing.FuelEVDiscount,
		BasePriceDefault:     cfg.Pricing.BasePriceDefault,
		SnapshotCapacity:     cfg.Snapshot.Capacity,
		SnapshotInterval:     cfg.Snapshot.Interval,
		MinutesAhead:         cfg.Prediction.MinutesAhead,
		SkipSeed:             cfg.Pricing.SkipSeed,
	}
}

func (s *Settings) normalize() {
	if s.FuelEVDiscount <= 0 {
		s.FuelEVDiscount = pricing.DefaultFuelEVDiscount
	}
	if s.BasePriceDefault <= 0 {
		s.BasePriceDefault = model.DefaultBasePrice
	}
	if s.SnapshotCapacity <= 0 {
		s.SnapshotCapacity = snapshot.DefaultCapacity
	}
	if s.SnapshotInterval <= 0 {
		s.SnapshotInterval = 2 * time.Minute
	}
	if s.MinutesAhead <= 0 {
		s.MinutesAhead = prediction.DefaultMinutesAhead
	}
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithMetrics(r metrics.Recorder) Option { return func(s *Service) { s.metrics = r } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithModel(m prediction.Model) Option { return func(s *Service) { s.model = m } }

// Service owns the live spot list, snapshot history and pricing config.
// Readers get copies; writers are serialized, persist a new slice and only
// then swap it in, so a failed write leaves the visible state untouched.
type Service struct {
	store    store.Store
	settings Settings
	log      logger.Logger
	metrics  metrics.Recorder
	notifier Notifier
	now      func() time.Time
	model    prediction.Model

	writeMu sync.Mutex

	mu        sync.RWMutex
	spots     []model.ParkingSpot
	snapshots []model.OccupancySnapshot
	cfg       model.PricingConfig
}

// New creates a tracker over st. Call Load before serving.
func New(st store.Store, settings Settings, opts ...Option) *Service {
	settings.normalize()
	s := &Service{
		store:    st,
		settings: settings,
		log:      logger.NopLogger{},
		metrics:  metrics.NopRecorder{},
		now:      time.Now,
		model:    prediction.DefaultModel(),
		cfg:      model.DefaultPricingConfig(settings.BasePriceDefault),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores state from the store, seeding defaults on first start.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()

	cfg, found, err := s.store.LoadPricingConfig(ctx)
	if err != nil {
		return err
	}
	var seedCfg *model.PricingConfig
	if !found {
		cfg = model.DefaultPricingConfig(s.settings.BasePriceDefault)
		cfg.UpdatedAt = now
		seedCfg = &cfg
	}

	spots, err := s.store.LoadSpots(ctx)
	if err != nil {
		return err
	}
	if len(spots) == 0 && !s.settings.SkipSeed {
		spots = model.DefaultSpots(now, cfg.BasePriceDefault)
		s.log.Infof("no spots stored, seeding %d default spots", len(spots))
	}

	snaps, err := s.store.LoadSnapshots(ctx)
	if err != nil {
		return err
	}
	if over := len(snaps) - s.settings.SnapshotCapacity; over > 0 {
		snaps = snaps[over:]
	}

	s.mu.Lock()
	s.snapshots = snaps
	s.mu.Unlock()

	if err := s.commit(ctx, now, spots, cfg, store.Commit{Pricing: seedCfg}); err != nil {
		return err
	}
	s.log.Infof("loaded %d spots, %d snapshots, rule=%s", len(spots), len(snaps), cfg.Rule)

	if len(snaps) == 0 && len(spots) > 0 {
		if _, err := s.takeSnapshot(ctx, now); err != nil {
			return err
		}
	}
	return nil
}

// Spots returns a copy of the current spot list.
func (s *Service) Spots() []model.ParkingSpot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ParkingSpot, len(s.spots))
	copy(out, s.spots)
	return out
}

// Spot returns a single spot.
func (s *Service) Spot(id int64) (model.ParkingSpot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.spots, id); i >= 0 {
		return s.spots[i], nil
	}
	return model.ParkingSpot{}, fmt.Errorf("spot %d: %w", id, ErrSpotNotFound)
}

// Snapshots returns a copy of the snapshot history, oldest first.
func (s *Service) Snapshots() []model.OccupancySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.OccupancySnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// PricingConfig returns the current pricing settings.
func (s *Service) PricingConfig() model.PricingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Multipliers returns the occupancy table the live formula uses.
func (s *Service) Multipliers() pricing.Multipliers {
	return s.multipliersFor(s.PricingConfig())
}

func (s *Service) multipliersFor(cfg model.PricingConfig) pricing.Multipliers {
	if s.settings.ApplyRuleMultipliers {
		if m, ok := pricing.RuleMultipliers(cfg.Rule); ok {
			return m
		}
	}
	return pricing.Balanced()
}

// SpotHistory returns archived status periods of a spot, newest first.
func (s *Service) SpotHistory(ctx context.Context, id int64, limit int) ([]model.SpotStatusHistory, error) {
	if _, err := s.Spot(id); err != nil {
		return nil, err
	}
	return s.store.SpotHistory(ctx, id, limit)
}

// NewSpot is a manager request to add a spot.
type NewSpot struct {
	Label     string  `json:"label"`
	IsEV      bool    `json:"isEV"`
	BasePrice float64 `json:"basePrice"`
	Lng       float64 `json:"lng"`
	Lat       float64 `json:"lat"`
}

// AddSpot creates a free spot. The zone is derived from the label and the base
// price defaults to the configured basePriceDefault.
func (s *Service) AddSpot(ctx context.Context, req NewSpot) (model.ParkingSpot, error) {
	parsed, err := parse.ParseLabel(req.Label)
	if err != nil {
		return model.ParkingSpot{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.BasePrice < 0 || math.IsNaN(req.BasePrice) || math.IsInf(req.BasePrice, 0) {
		return model.ParkingSpot{}, fmt.Errorf("%w: base price must be positive", ErrInvalidInput)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	cur := s.Spots()
	label := parsed.Label()
	var nextID int64 = 1
	for _, sp := range cur {
		if sp.Label == label {
			return model.ParkingSpot{}, fmt.Errorf("%w: label %q already exists", ErrInvalidInput, label)
		}
		if sp.ID >= nextID {
			nextID = sp.ID + 1
		}
	}

	base := req.BasePrice
	if base == 0 {
		base = s.PricingConfig().BasePriceDefault
	}
	now := s.now().UTC()
	spot := model.ParkingSpot{
		ID:          nextID,
		Label:       label,
		Zone:        parsed.Zone(),
		Status:      model.SpotFree,
		IsEV:        req.IsEV,
		BasePrice:   base,
		Price:       base,
		Lng:         req.Lng,
		Lat:         req.Lat,
		LastUpdated: now,
	}
	if err := s.commitSpots(ctx, now, append(cur, spot)); err != nil {
		return model.ParkingSpot{}, err
	}
	s.log.Infof("added spot %d (%s)", spot.ID, spot.Label)
	return s.Spot(spot.ID)
}

// ReleaseSpot frees a spot regardless of its current status.
func (s *Service) ReleaseSpot(ctx context.Context, id int64) (model.ParkingSpot, error) {
	return s.mutateSpot(ctx, id, func(sp *model.ParkingSpot) error {
		sp.Status = model.SpotFree
		sp.ReservedBy = ""
		return nil
	})
}

// ToggleSpotStatus cycles free -> occupied -> reserved -> free.
func (s *Service) ToggleSpotStatus(ctx context.Context, id int64) (model.ParkingSpot, error) {
	return s.mutateSpot(ctx, id, func(sp *model.ParkingSpot) error {
		switch sp.Status {
		case model.SpotFree:
			sp.Status = model.SpotOccupied
			sp.ReservedBy = ""
		case model.SpotOccupied:
			sp.Status = model.SpotReserved
			sp.ReservedBy = "System"
		default:
			sp.Status = model.SpotFree
			sp.ReservedBy = ""
		}
		return nil
	})
}

// ToggleEV flips the EV charging flag of a spot.
func (s *Service) ToggleEV(ctx context.Context, id int64) (model.ParkingSpot, error) {
	return s.mutateSpot(ctx, id, func(sp *model.ParkingSpot) error {
		sp.IsEV = !sp.IsEV
		return nil
	})
}

// UpdateBasePrice sets the base hourly price of a spot.
func (s *Service) UpdateBasePrice(ctx context.Context, id int64, price float64) (model.ParkingSpot, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.ParkingSpot{}, fmt.Errorf("%w: base price must be positive", ErrInvalidInput)
	}
	return s.mutateSpot(ctx, id, func(sp *model.ParkingSpot) error {
		sp.BasePrice = price
		return nil
	})
}

// PricingPatch is a partial pricing config update; nil fields are kept.
type PricingPatch struct {
	Rule             *model.PricingRule `json:"rule"`
	EVDiscount       *float64           `json:"evDiscount"`
	BasePriceDefault *float64           `json:"basePriceDefault"`
}

// UpdatePricingConfig merges patch into the current config and reprices the lot.
func (s *Service) UpdatePricingConfig(ctx context.Context, patch PricingPatch) (model.PricingConfig, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.PricingConfig()
	if patch.Rule != nil {
		if _, ok := pricing.RuleMultipliers(*patch.Rule); !ok {
			return model.PricingConfig{}, fmt.Errorf("%w: unknown pricing rule %q", ErrInvalidInput, *patch.Rule)
		}
		next.Rule = *patch.Rule
	}
	if patch.EVDiscount != nil {
		d := *patch.EVDiscount
		if d < 0 || d > 0.5 || math.IsNaN(d) {
			return model.PricingConfig{}, fmt.Errorf("%w: evDiscount must be within [0, 0.5]", ErrInvalidInput)
		}
		next.EVDiscount = d
	}
	if patch.BasePriceDefault != nil {
		b := *patch.BasePriceDefault
		if b <= 0 || math.IsNaN(b) || math.IsInf(b, 0) {
			return model.PricingConfig{}, fmt.Errorf("%w: basePriceDefault must be positive", ErrInvalidInput)
		}
		next.BasePriceDefault = b
	}

	now := s.now().UTC()
	next.UpdatedAt = now
	if err := s.commit(ctx, now, s.Spots(), next, store.Commit{Pricing: &next}); err != nil {
		return model.PricingConfig{}, err
	}
	s.log.Infof("pricing updated: rule=%s evDiscount=%.2f basePriceDefault=%.2f", next.Rule, next.EVDiscount, next.BasePriceDefault)
	return next, nil
}

// SimulateFill marks up to n free spots occupied, in list order, and returns how many were filled.
func (s *Service) SimulateFill(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("%w: count must be positive", ErrInvalidInput)
	}
	return s.mutateAll(ctx, func(now time.Time, spots []model.ParkingSpot) int {
		filled := 0
		for i := range spots {
			if filled >= n {
				break
			}
			if spots[i].Status != model.SpotFree {
				continue
			}
			spots[i].Status = model.SpotOccupied
			spots[i].LastUpdated = now
			filled++
		}
		return filled
	})
}

// ClearReservations frees every reserved spot and returns how many changed.
func (s *Service) ClearReservations(ctx context.Context) (int, error) {
	return s.mutateAll(ctx, func(now time.Time, spots []model.ParkingSpot) int {
		cleared := 0
		for i := range spots {
			if spots[i].Status != model.SpotReserved {
				continue
			}
			spots[i].Status = model.SpotFree
			spots[i].ReservedBy = ""
			spots[i].LastUpdated = now
			cleared++
		}
		return cleared
	})
}

// TakeSnapshot appends the current free/total counts to the history.
func (s *Service) TakeSnapshot(ctx context.Context) (model.OccupancySnapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.takeSnapshot(ctx, s.now().UTC())
}

func (s *Service) takeSnapshot(ctx context.Context, now time.Time) (model.OccupancySnapshot, error) {
	stats := s.Stats()
	next, err := snapshot.Append(s.Snapshots(), stats.Free, stats.Total, s.settings.SnapshotCapacity, now)
	if err != nil {
		return model.OccupancySnapshot{}, err
	}
	if err := s.store.SaveSnapshots(ctx, next); err != nil {
		return model.OccupancySnapshot{}, err
	}
	s.mu.Lock()
	s.snapshots = next
	s.mu.Unlock()

	s.metrics.RecordSnapshot()
	last, _ := snapshot.Latest(next)
	s.log.Debugw("snapshot taken", map[string]any{"free": last.Free, "total": last.Total, "history": len(next)})
	return last, nil
}

// Forecast predicts free spots minutesAhead from now; 0 uses the configured horizon.
func (s *Service) Forecast(minutesAhead int) prediction.Result {
	if minutesAhead <= 0 {
		minutesAhead = s.settings.MinutesAhead
	}
	stats := s.Stats()
	res := s.model.Predict(s.Snapshots(), minutesAhead, &prediction.Stats{OccupancyRate: stats.OccupancyRate}, s.now())
	if res.Analysis != nil {
		s.metrics.RecordForecast(res.PredictedFree, res.Analysis.Score)
	}
	return res
}

// Run takes a snapshot every SnapshotInterval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.log.Infof("starting snapshot loop (interval %s)", s.settings.SnapshotInterval)

	timer := time.NewTimer(s.settings.SnapshotInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("snapshot loop shutting down")
			return
		case <-timer.C:
			if _, err := s.TakeSnapshot(ctx); err != nil {
				s.log.Errorf("snapshot failed: %v", err)
			}
			timer.Reset(s.settings.SnapshotInterval)
		}
	}
}

// mutateSpot applies fn to a copy of spot id and commits the result.
func (s *Service) mutateSpot(ctx context.Context, id int64, fn func(*model.ParkingSpot) error) (model.ParkingSpot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.Spots()
	i := indexOf(next, id)
	if i < 0 {
		return model.ParkingSpot{}, fmt.Errorf("spot %d: %w", id, ErrSpotNotFound)
	}
	if err := fn(&next[i]); err != nil {
		return model.ParkingSpot{}, err
	}
	now := s.now().UTC()
	next[i].LastUpdated = now
	if err := s.commitSpots(ctx, now, next); err != nil {
		return model.ParkingSpot{}, err
	}
	return s.Spot(id)
}

func (s *Service) mutateAll(ctx context.Context, fn func(time.Time, []model.ParkingSpot) int) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	next := s.Spots()
	changed := fn(now, next)
	if changed == 0 {
		return 0, nil
	}
	if err := s.commitSpots(ctx, now, next); err != nil {
		return 0, err
	}
	return changed, nil
}

// commitSpots commits next under the current pricing config. Callers hold writeMu.
func (s *Service) commitSpots(ctx context.Context, now time.Time, next []model.ParkingSpot) error {
	return s.commit(ctx, now, next, s.PricingConfig(), store.Commit{})
}

// commit reprices next under cfg and persists it together with c. Spots and
// config are swapped in only once the store has accepted both.
func (s *Service) commit(ctx context.Context, now time.Time, next []model.ParkingSpot, cfg model.PricingConfig, c store.Commit) error {
	priced := next
	if len(next) > 0 {
		var err error
		priced, err = pricing.UpdateAllPricesWithMultipliers(next, cfg.EVDiscount, s.multipliersFor(cfg))
		if err != nil {
			return err
		}
	}

	c.Spots = priced
	freed, err := s.store.Commit(ctx, now, c)
	if err != nil {
		return fmt.Errorf("persist spots: %w", err)
	}

	s.mu.Lock()
	s.spots = priced
	s.cfg = cfg
	s.mu.Unlock()

	s.metrics.RecordLot(s.Stats().ParkingStats)
	for _, sp := range priced {
		s.metrics.RecordSpotPrice(sp.Label, sp.Price)
	}
	if s.notifier != nil {
		for _, id := range freed {
			s.notifier.Dispatch(id)
		}
	}
	return nil
}

func indexOf(spots []model.ParkingSpot, id int64) int {
	for i := range spots {
		if spots[i].ID == id {
			return i
		}
	}
	return -1
}
