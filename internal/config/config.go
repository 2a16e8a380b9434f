package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// InvalidItemPolicy decides what an availability check does with malformed line items.
type InvalidItemPolicy string

const (
	InvalidItemsSkip   InvalidItemPolicy = "skip"
	InvalidItemsReject InvalidItemPolicy = "reject"
)

type Config struct {
	Server struct {
		Addr                string `yaml:"addr"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address               string `yaml:"address"`
		Password              string `yaml:"password"`
		DB                    int    `yaml:"db"`
		BookedDatesTTLSeconds int    `yaml:"booked_dates_ttl_seconds"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Booking BookingConfig `yaml:"booking"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Identity IdentityConfig `yaml:"identity"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		ExportDir     string `yaml:"export_dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Backup BackupConfig `yaml:"backup"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logging"`

	CatalogPath string `yaml:"catalog_path"`
}

// BookingConfig holds the availability and checkout rules.
type BookingConfig struct {
	InvalidItems    InvalidItemPolicy `yaml:"invalid_items"`
	ExclusiveWrites *bool             `yaml:"exclusive_writes"`
	MaxRangeDays    int               `yaml:"max_range_days"`
}

// Exclusive reports whether check and insert run in one write transaction. Defaults to true.
func (b BookingConfig) Exclusive() bool {
	return b.ExclusiveWrites == nil || *b.ExclusiveWrites
}

// BackupConfig controls periodic SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// IdentityConfig points at the OTP identity verification provider.
// An empty APIKey runs the client in mock mode.
type IdentityConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3001"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 30
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/gearrental.db"
	}
	if c.Booking.InvalidItems == "" {
		c.Booking.InvalidItems = InvalidItemsSkip
	}
	if c.Booking.MaxRangeDays <= 0 {
		c.Booking.MaxRangeDays = 90
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if c.Identity.BaseURL == "" {
		c.Identity.BaseURL = "https://sandbox.surepass.io/api/v1/aadhaar-v2"
	}
	if c.Audit.ExportDir == "" {
		c.Audit.ExportDir = "exports"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 365
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.CatalogPath == "" {
		c.CatalogPath = "configs/gears.yaml"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Booking.InvalidItems {
	case InvalidItemsSkip, InvalidItemsReject:
	default:
		return fmt.Errorf("booking.invalid_items must be %q or %q, got %q",
			InvalidItemsSkip, InvalidItemsReject, c.Booking.InvalidItems)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	return nil
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) BookedDatesTTL() time.Duration {
	if c.Redis.BookedDatesTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.BookedDatesTTLSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}
