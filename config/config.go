package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"

	"parkit-backend/internal/prediction"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Prediction PredictionConfig `yaml:"prediction"`
	Feed       FeedConfig       `yaml:"feed"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int      `yaml:"port" env:"PARKIT_PORT"`
	RequestIPHeader string   `yaml:"request_ip_header" env:"PARKIT_REQUEST_IP_HEADER"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec" env:"PARKIT_RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int      `yaml:"rate_limit_burst" env:"PARKIT_RATE_LIMIT_BURST"`
	CacheTTLSeconds int      `yaml:"cache_ttl_seconds" env:"PARKIT_CACHE_TTL_SECONDS"`
	AllowedOrigins  []string `yaml:"allowed_origins" env:"PARKIT_ALLOWED_ORIGINS" envSeparator:","`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver                 string `yaml:"driver" env:"PARKIT_DB_DRIVER"`
	DSN                    string `yaml:"dsn" env:"PARKIT_DB_DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"PARKIT_DB_MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"PARKIT_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"PARKIT_DB_CONN_MAX_LIFETIME_MINUTES"`
	LogSQL                 bool   `yaml:"log_sql" env:"PARKIT_DB_LOG_SQL"`
}

// PricingConfig holds surge pricing settings.
type PricingConfig struct {
	// ApplyRuleMultipliers makes quotes and repricing follow the configured
	// rule instead of the fixed balanced multipliers.
	ApplyRuleMultipliers bool    `yaml:"apply_rule_multipliers" env:"PARKIT_APPLY_RULE_MULTIPLIERS"`
	FuelEVDiscount       float64 `yaml:"fuel_ev_discount" env:"PARKIT_FUEL_EV_DISCOUNT"`
	BasePriceDefault     float64 `yaml:"base_price_default" env:"PARKIT_BASE_PRICE_DEFAULT"`
	// SkipSeed leaves an empty lot empty instead of seeding the default spots.
	SkipSeed             bool    `yaml:"skip_seed" env:"PARKIT_SKIP_SEED"`
}

// SnapshotConfig controls the periodic occupancy snapshot.
type SnapshotConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds" env:"PARKIT_SNAPSHOT_INTERVAL_SECONDS"`
	Interval        time.Duration `yaml:"-"`
	Capacity        int           `yaml:"capacity" env:"PARKIT_SNAPSHOT_CAPACITY"`
}

// PredictionConfig tunes the availability forecast.
type PredictionConfig struct {
	Timezone       string                  `yaml:"timezone" env:"PARKIT_TIMEZONE"`
	PeakWindows    []prediction.HourWindow `yaml:"peak_windows"`
	PeakMultiplier float64                 `yaml:"peak_multiplier" env:"PARKIT_PEAK_MULTIPLIER"`
	MinutesAhead   int                     `yaml:"minutes_ahead" env:"PARKIT_MINUTES_AHEAD"`
}

// FeedConfig points at an optional occupancy sensor API polled for spot statuses.
type FeedConfig struct {
	Enabled             bool          `yaml:"enabled" env:"PARKIT_FEED_ENABLED"`
	IntervalSeconds     int           `yaml:"interval_seconds" env:"PARKIT_FEED_INTERVAL_SECONDS"`
	Interval            time.Duration `yaml:"-"`
	TimeoutSeconds      int           `yaml:"timeout_seconds" env:"PARKIT_FEED_TIMEOUT_SECONDS"`
	HTTPProxy           string        `yaml:"http_proxy" env:"PARKIT_FEED_HTTP_PROXY"`
	Request             FeedRequest   `yaml:"request"`
	StateFreeValues     []int         `yaml:"state_free_values"`
	StateOccupiedValues []int         `yaml:"state_occupied_values"`
	StateReservedValues []int         `yaml:"state_reserved_values"`
}

// FeedRequest defines the paged HTTP request sent to the sensor API.
type FeedRequest struct {
	URL      string            `yaml:"url" env:"PARKIT_FEED_URL"`
	Headers  map[string]string `yaml:"headers"`
	PageSize int               `yaml:"page_size"`
	Payload  map[string]any    `yaml:"payload"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"PARKIT_VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"PARKIT_VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"PARKIT_VAPID_SUBJECT"`
	TTL        int    `yaml:"ttl" env:"PARKIT_PUSH_TTL"`
}

// Enabled reports whether both VAPID keys are set.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size" env:"PARKIT_WORKER_POOL_SIZE"`
	QueueSize int `yaml:"queue_size" env:"PARKIT_WORKER_QUEUE_SIZE"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"PARKIT_METRICS_ENABLED"`
	Path    string `yaml:"path" env:"PARKIT_METRICS_PATH"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"PARKIT_LOG_LEVEL"`
	Format string `yaml:"format" env:"PARKIT_LOG_FORMAT"`
}

// Load reads the configuration from the given path, applies PARKIT_*
// environment overrides and fills defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 10
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = int(c.Server.RateLimitPerSec * 2)
	}
	if c.Server.CacheTTLSeconds < 0 {
		c.Server.CacheTTLSeconds = 0
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "parkit.db"
	}

	if c.Pricing.FuelEVDiscount == 0 {
		c.Pricing.FuelEVDiscount = 0.2
	}
	if c.Pricing.BasePriceDefault <= 0 {
		c.Pricing.BasePriceDefault = 30
	}

	if c.Snapshot.IntervalSeconds <= 0 {
		c.Snapshot.IntervalSeconds = 120
	}
	c.Snapshot.Interval = time.Duration(c.Snapshot.IntervalSeconds) * time.Second
	if c.Snapshot.Capacity <= 0 {
		c.Snapshot.Capacity = 30
	}

	if c.Prediction.Timezone == "" {
		c.Prediction.Timezone = "Asia/Kolkata"
	}
	if len(c.Prediction.PeakWindows) == 0 {
		c.Prediction.PeakWindows = prediction.DefaultModel().PeakWindows
	}
	if c.Prediction.PeakMultiplier <= 0 {
		c.Prediction.PeakMultiplier = prediction.DefaultPeakMultiplier
	}
	if c.Prediction.MinutesAhead <= 0 {
		c.Prediction.MinutesAhead = prediction.DefaultMinutesAhead
	}

	if c.Feed.IntervalSeconds <= 0 {
		c.Feed.IntervalSeconds = 30
	}
	c.Feed.Interval = time.Duration(c.Feed.IntervalSeconds) * time.Second
	if c.Feed.TimeoutSeconds <= 0 {
		c.Feed.TimeoutSeconds = 10
	}
	if c.Feed.Request.PageSize <= 0 {
		c.Feed.Request.PageSize = 50
	}
	if len(c.Feed.StateFreeValues) == 0 && len(c.Feed.StateOccupiedValues) == 0 {
		c.Feed.StateFreeValues = []int{0}
		c.Feed.StateOccupiedValues = []int{1}
	}

	if c.Push.TTL <= 0 {
		c.Push.TTL = 3600
	}
	if c.WorkerPool.Size <= 0 {
		c.WorkerPool.Size = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 100
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Pricing.FuelEVDiscount < 0 || c.Pricing.FuelEVDiscount >= 1 {
		return fmt.Errorf("pricing.fuel_ev_discount %v: want [0, 1)", c.Pricing.FuelEVDiscount)
	}
	for _, w := range c.Prediction.PeakWindows {
		if w.From < 0 || w.To > 23 || w.From > w.To {
			return fmt.Errorf("prediction.peak_windows: invalid window %d-%d", w.From, w.To)
		}
	}
	if _, err := time.LoadLocation(c.Prediction.Timezone); err != nil {
		return fmt.Errorf("prediction.timezone: %w", err)
	}
	if c.Feed.Enabled && c.Feed.Request.URL == "" {
		return errors.New("feed.request.url is required when the feed is enabled")
	}
	if c.Push.PublicKey != "" && c.Push.Subject == "" {
		return errors.New("push.subject is required when VAPID keys are set")
	}
	return nil
}
