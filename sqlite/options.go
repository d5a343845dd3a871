package sqlite

import (
	"time"

	"github.com/velmie/changesync"
)

const (
	defaultTable       = "changes"
	defaultBusyTimeout = 5 * time.Second
)

// Config defines SQLite store behavior.
type Config struct {
	Table string
	// BusyTimeout is how long a statement waits for a lock held by another process.
	BusyTimeout time.Duration
	// Clock stamps created_at on insert.
	Clock changesync.Clock
	// TransactionIDs names the own transaction of a change inserted without one.
	TransactionIDs changesync.TransactionIDGenerator
	// Priorities ranks changes inserted with a zero priority.
	Priorities *changesync.PriorityManager
}

func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = defaultTable
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
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

// Option configures the SQLite store.
type Option func(*Config)

// WithTable sets the change table name.
func WithTable(name string) Option {
	return func(c *Config) {
		c.Table = name
	}
}

// WithBusyTimeout sets the SQLite busy timeout applied by Open.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.BusyTimeout = timeout
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
