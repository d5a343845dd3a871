package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type envLoader struct {
	errs []string
}

func applyEnv(cfg *Config) error {
	l := &envLoader{}

	l.setString("ENV", &cfg.Env)
	l.setString("LOG_LEVEL", &cfg.LogLevel)

	l.setString("STORE_DRIVER", &cfg.Store.Driver)
	l.setString("STORE_PATH", &cfg.Store.Path)
	l.setString("STORE_DSN", &cfg.Store.DSN)
	l.setString("STORE_TABLE", &cfg.Store.Table)
	l.setDuration("STORE_BUSY_TIMEOUT", &cfg.Store.BusyTimeout)

	l.setString("REMOTE_BASE_URL", &cfg.Remote.BaseURL)
	l.setString("REMOTE_TOKEN", &cfg.Remote.Token)
	l.setDuration("REMOTE_TIMEOUT", &cfg.Remote.Timeout)
	l.setString("REMOTE_HEALTH_PATH", &cfg.Remote.HealthPath)
	l.setDuration("REMOTE_PROBE_INTERVAL", &cfg.Remote.ProbeInterval)

	l.setInt("SYNC_BATCH_SIZE", &cfg.Sync.BatchSize)
	l.setDuration("SYNC_POLL_INTERVAL", &cfg.Sync.PollInterval)
	l.setDuration("SYNC_HANDLER_TIMEOUT", &cfg.Sync.HandlerTimeout)
	l.setInt("SYNC_MAX_RETRIES", &cfg.Sync.Retry.MaxRetries)

	l.setBool("MAINTENANCE_ENABLED", &cfg.Maintenance.Enabled)
	l.setDuration("MAINTENANCE_RETENTION", &cfg.Maintenance.Retention)

	return l.validate()
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}

	return fmt.Errorf("config env overrides invalid: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	val = strings.TrimSpace(val)

	return val, val != ""
}

func (l *envLoader) setString(key string, dst *string) {
	if val, ok := l.lookup(key); ok {
		*dst = val
	}
}

func (l *envLoader) setInt(key string, dst *int) {
	val, ok := l.lookup(key)
	if !ok {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s%s must be a valid integer", EnvPrefix, key))

		return
	}
	*dst = i
}

func (l *envLoader) setBool(key string, dst *bool) {
	val, ok := l.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s%s must be a valid boolean", EnvPrefix, key))

		return
	}
	*dst = b
}

func (l *envLoader) setDuration(key string, dst *time.Duration) {
	val, ok := l.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s%s must be a valid duration", EnvPrefix, key))

		return
	}
	*dst = d
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
