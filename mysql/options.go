package mysql

import "github.com/velmie/changesync"

const (
	defaultTable      = "changes"
	defaultLockPrefix = "changesync:engine:"
)

// Config defines MySQL store behavior.
type Config struct {
	Table string
	// LockName is the advisory lock name. Defaults to changesync:engine:<table>.
	LockName string
	Clock    changesync.Clock
	// TransactionIDs names the own transaction of a change inserted without one.
	TransactionIDs changesync.TransactionIDGenerator
	// Priorities ranks changes inserted with a zero priority.
	Priorities *changesync.PriorityManager
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.LockName == "" {
		c.LockName = defaultLockPrefix + c.Table
	}
	if c.Clock == nil {
		c.Clock = changesync.SystemClock{}
	}
	if c.TransactionIDs == nil {
		c.TransactionIDs = changesync.UUIDv7Generator{}
	}
	if c.Priorities == nil {
		c.Priorities = changesync.NewPriorityManager(nil)
	}

	return c
}

// Option configures the MySQL store.
type Option func(*Config)

// WithTable sets the change table name. Use schema.table for a non-default schema.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithLockName sets the advisory lock name used by LockEngine.
func WithLockName(name string) Option {
	return func(c *Config) {
		c.LockName = name
	}
}

// WithClock sets the time source used by the store.
func WithClock(clock changesync.Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithTransactionIDs sets the generator for changes inserted without a transaction id.
func WithTransactionIDs(gen changesync.TransactionIDGenerator) Option {
	return func(c *Config) {
		c.TransactionIDs = gen
	}
}

// WithPriorities sets the manager that ranks changes inserted with a zero priority.
func WithPriorities(p *changesync.PriorityManager) Option {
	return func(c *Config) {
		c.Priorities = p
	}
}
