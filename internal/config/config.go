// Package config loads the changesync binary configuration from YAML, .env and CHANGESYNC_* variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/velmie/changesync"
)

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHANGESYNC_"

// Config is the runtime configuration of the changesync binary.
type Config struct {
	Env         string            `yaml:"env"`
	LogLevel    string            `yaml:"log_level"`
	Store       StoreConfig       `yaml:"store"`
	Remote      RemoteConfig      `yaml:"remote"`
	Sync        SyncConfig        `yaml:"sync"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// StoreConfig selects and configures the change log backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// DSN is the MySQL data source name, parseTime=true is required.
	DSN         string        `yaml:"dsn"`
	Table       string        `yaml:"table"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RemoteConfig describes the remote REST API.
type RemoteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	// HealthPath is probed with HEAD relative to BaseURL.
	HealthPath    string        `yaml:"health_path"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
	// Resources maps entity types to resource paths. Entries merge with the defaults,
	// an empty path disables the entity.
	Resources map[string]string `yaml:"resources"`
}

// SyncConfig tunes the engine loop.
type SyncConfig struct {
	BatchSize       int            `yaml:"batch_size"`
	PollInterval    time.Duration  `yaml:"poll_interval"`
	FollowUpDelay   time.Duration  `yaml:"follow_up_delay"`
	HandlerTimeout  time.Duration  `yaml:"handler_timeout"`
	MetricsInterval time.Duration  `yaml:"metrics_interval"`
	Retry           RetryConfig    `yaml:"retry"`
	Priorities      map[string]int `yaml:"priorities"`
	// OfflineBoostAfter raises customer, order and payment changes after a long outage.
	OfflineBoostAfter time.Duration `yaml:"offline_boost_after"`
}

// RetryConfig mirrors changesync.Backoff.
type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	Factor     float64       `yaml:"factor"`
	Jitter     float64       `yaml:"jitter"`
	MaxRetries int           `yaml:"max_retries"`
}

// MaintenanceConfig controls history cleanup.
type MaintenanceConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Retention       time.Duration `yaml:"retention"`
	FailedWarnAfter time.Duration `yaml:"failed_warn_after"`
	Interval        time.Duration `yaml:"interval"`
	Limit           int           `yaml:"limit"`
	Vacuum          bool          `yaml:"vacuum"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	backoff := changesync.DefaultBackoff()

	return Config{
		Env:      "production",
		LogLevel: "info",
		Store: StoreConfig{
			Driver:      DriverSQLite,
			Path:        "changesync.db",
			Table:       "changes",
			BusyTimeout: 5 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout:       30 * time.Second,
			HealthPath:    "/health",
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  3 * time.Second,
			Resources: map[string]string{
				changesync.EntityCustomer:  "customers",
				changesync.EntityProduct:   "products",
				changesync.EntityInventory: "inventory",
				changesync.EntityOrder:     "orders",
				changesync.EntityPayment:   "payments",
				changesync.EntityInvoice:   "invoices",
			},
		},
		Sync: SyncConfig{
			BatchSize:       50,
			PollInterval:    30 * time.Second,
			FollowUpDelay:   100 * time.Millisecond,
			HandlerTimeout:  30 * time.Second,
			MetricsInterval: time.Minute,
			Retry: RetryConfig{
				BaseDelay:  backoff.BaseDelay,
				MaxDelay:   backoff.MaxDelay,
				Factor:     backoff.Factor,
				Jitter:     backoff.Jitter,
				MaxRetries: backoff.MaxRetries,
			},
			OfflineBoostAfter: time.Hour,
		},
		Maintenance: MaintenanceConfig{
			Enabled:         true,
			Retention:       30 * 24 * time.Hour,
			FailedWarnAfter: 365 * 24 * time.Hour,
			Interval:        24 * time.Hour,
			Limit:           1000,
			Vacuum:          true,
		},
	}
}

// Load reads path (optional), a .env file in the working directory (optional) and CHANGESYNC_*
// overrides on top of Default, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// Validate checks driver, endpoints and numeric ranges.
func (c Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			add("store.path is required for sqlite")
		}
	case DriverMySQL:
		if c.Store.DSN == "" {
			add("store.dsn is required for mysql")
		}
	default:
		add("store.driver must be %q or %q", DriverSQLite, DriverMySQL)
	}
	if c.Store.Table == "" {
		add("store.table is required")
	}

	if c.Remote.BaseURL == "" {
		add("remote.base_url is required")
	} else if u, err := url.Parse(c.Remote.BaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		add("remote.base_url must be an absolute url")
	}
	if c.Remote.Timeout < 0 || c.Remote.ProbeTimeout < 0 || c.Remote.ProbeInterval < 0 {
		add("remote timeouts must not be negative")
	}
	if len(c.EnabledResources()) == 0 {
		add("remote.resources must enable at least one entity")
	}

	if c.Sync.BatchSize <= 0 {
		add("sync.batch_size must be positive")
	}
	if c.Sync.PollInterval <= 0 {
		add("sync.poll_interval must be positive")
	}
	if c.Sync.HandlerTimeout < 0 || c.Sync.FollowUpDelay < 0 || c.Sync.MetricsInterval < 0 {
		add("sync durations must not be negative")
	}
	r := c.Sync.Retry
	if r.BaseDelay <= 0 || r.MaxDelay < r.BaseDelay {
		add("sync.retry delays must satisfy 0 < base_delay <= max_delay")
	}
	if r.Factor < 1 {
		add("sync.retry.factor must be at least 1")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		add("sync.retry.jitter must be within [0, 1]")
	}
	if r.MaxRetries < 0 {
		add("sync.retry.max_retries must not be negative")
	}
	for entity, rank := range c.Sync.Priorities {
		if rank <= 0 {
			add("sync.priorities.%s must be positive", entity)
		}
	}

	if c.Maintenance.Enabled {
		if c.Maintenance.Retention <= 0 {
			add("maintenance.retention must be positive")
		}
		if c.Maintenance.Limit < 0 {
			add("maintenance.limit must not be negative")
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
}

// Backoff converts the retry section into engine settings.
func (r RetryConfig) Backoff() changesync.Backoff {
	return changesync.Backoff{
		BaseDelay:  r.BaseDelay,
		MaxDelay:   r.MaxDelay,
		Factor:     r.Factor,
		Jitter:     r.Jitter,
		MaxRetries: r.MaxRetries,
	}
}

// EnabledResources returns entity types with a non-empty resource path.
func (c Config) EnabledResources() map[string]string {
	out := make(map[string]string, len(c.Remote.Resources))
	for entity, resource := range c.Remote.Resources {
		if resource = strings.Trim(resource, "/ "); resource != "" {
			out[entity] = resource
		}
	}

	return out
}

// HealthURL joins the base URL and the health path.
func (r RemoteConfig) HealthURL() string {
	path := r.HealthPath
	if path == "" {
		return r.BaseURL
	}

	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
