package changesync

import "time"

const (
	defaultBatchSize       = 50
	defaultPollInterval    = 5 * time.Second
	defaultMetricsInterval = 5 * time.Second
	defaultFollowUpDelay   = 100 * time.Millisecond
)

// Config defines how the Service schedules and runs processing passes.
type Config struct {
	BatchSize int
	// PollInterval wakes the loop so waiting changes are picked up once their retry time passes.
	PollInterval time.Duration
	// MetricsInterval refreshes the pending and delayed gauges.
	MetricsInterval time.Duration
	// FollowUpDelay is the pause before a follow-up pass, letting rapid writes batch together.
	FollowUpDelay time.Duration
	// HandlerTimeout bounds each handler call, zero leaves deadlines to the handler.
	HandlerTimeout time.Duration
	Clock          Clock
	Logger         Logger
	Metrics        Metrics
	Retry          *RetryStrategy
	Priorities     *PriorityManager
	Connectivity   Connectivity
	Notifier       *Broadcaster
	TransactionIDs TransactionIDGenerator
	Listeners      []Listener
}

func (c Config) withDefaults(store PriorityStore) Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = defaultMetricsInterval
	}
	if c.FollowUpDelay <= 0 {
		c.FollowUpDelay = defaultFollowUpDelay
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Retry == nil {
		c.Retry = NewRetryStrategy(DefaultBackoff())
	}
	if c.Priorities == nil {
		c.Priorities = NewPriorityManager(store, WithPriorityLogger(c.Logger))
	}
	if c.Connectivity == nil {
		c.Connectivity = NewConnectivityState(true)
	}
	if c.Notifier == nil {
		c.Notifier = NewBroadcaster()
	}
	if c.TransactionIDs == nil {
		c.TransactionIDs = UUIDv7Generator{}
	}

	return c
}

// Option configures a Service.
type Option func(*Config)

// WithBatchSize sets the number of changes selected per pass.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithPollInterval sets how often the loop wakes up to look for due retries.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithMetricsInterval sets how often gauges are refreshed.
func WithMetricsInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.MetricsInterval = interval
	}
}

// WithFollowUpDelay sets the delay before a follow-up pass.
func WithFollowUpDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.FollowUpDelay = delay
	}
}

// WithHandlerTimeout sets a per-change handler timeout.
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = timeout
	}
}

// WithClock sets the service clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithRetryStrategy sets the retry strategy.
func WithRetryStrategy(strategy *RetryStrategy) Option {
	return func(c *Config) {
		c.Retry = strategy
	}
}

// WithPriorityManager sets the priority manager.
func WithPriorityManager(manager *PriorityManager) Option {
	return func(c *Config) {
		c.Priorities = manager
	}
}

// WithConnectivity sets the connectivity signal driving pause and resume.
func WithConnectivity(conn Connectivity) Option {
	return func(c *Config) {
		c.Connectivity = conn
	}
}

// WithNotifier sets the broadcaster fired when changes are recorded.
func WithNotifier(notifier *Broadcaster) Option {
	return func(c *Config) {
		c.Notifier = notifier
	}
}

// WithTransactionIDGenerator sets the transaction id generator.
func WithTransactionIDGenerator(gen TransactionIDGenerator) Option {
	return func(c *Config) {
		c.TransactionIDs = gen
	}
}

// WithListener registers a lifecycle event listener.
func WithListener(listener Listener) Option {
	return func(c *Config) {
		c.Listeners = append(c.Listeners, listener)
	}
}
