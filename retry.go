package changesync

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	defaultBaseDelay     = time.Second
	defaultMaxDelay      = 60 * time.Second
	defaultBackoffFactor = 2.0
	defaultJitterFactor  = 0.2
	defaultMaxRetries    = 5
)

// Backoff configures the retry delay curve.
type Backoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Factor     float64
	Jitter     float64
	MaxRetries int
}

// DefaultBackoff returns 1s base, 60s cap, factor 2, jitter 0.2 and 5 retries.
func DefaultBackoff() Backoff {
	return Backoff{
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
		Factor:     defaultBackoffFactor,
		Jitter:     defaultJitterFactor,
		MaxRetries: defaultMaxRetries,
	}
}

func (b Backoff) withDefaults() Backoff {
	if b.BaseDelay <= 0 {
		b.BaseDelay = defaultBaseDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = defaultMaxDelay
	}
	if b.MaxDelay < b.BaseDelay {
		b.MaxDelay = b.BaseDelay
	}
	if b.Factor < 1 {
		b.Factor = defaultBackoffFactor
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.MaxRetries <= 0 {
		b.MaxRetries = defaultMaxRetries
	}

	return b
}

// UnjitteredDelay returns min(base*factor^retryCount, max).
func UnjitteredDelay(retryCount int, b Backoff) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(b.BaseDelay) * math.Pow(b.Factor, float64(retryCount))
	if math.IsInf(delay, 0) || math.IsNaN(delay) || delay >= float64(b.MaxDelay) {
		return b.MaxDelay
	}

	return time.Duration(delay)
}

// NextRetryDelay returns the jittered delay before attempt retryCount may run.
// The jitter is uniform in [-delay*jitter/2, +delay*jitter/2] and the result is never negative.
func NextRetryDelay(retryCount int, b Backoff) time.Duration {
	return nextRetryDelay(retryCount, b, rand.Float64())
}

// nextRetryDelay applies a jitter sample r in [0,1).
func nextRetryDelay(retryCount int, b Backoff, r float64) time.Duration {
	delay := UnjitteredDelay(retryCount, b)
	spread := float64(delay) * b.Jitter / 2
	jittered := float64(delay) + (r*2-1)*spread
	if jittered < 0 {
		return 0
	}

	return time.Duration(jittered)
}

// RetryStrategy decides backoff delays, retryability and exhaustion.
type RetryStrategy struct {
	backoff  Backoff
	classify func(error) Classification
	random   func() float64
}

// RetryOption configures a RetryStrategy.
type RetryOption func(*RetryStrategy)

// WithClassifier replaces the default error classifier.
func WithClassifier(classify func(error) Classification) RetryOption {
	return func(s *RetryStrategy) {
		s.classify = classify
	}
}

// WithRandom sets the jitter source, it must return values in [0,1).
func WithRandom(random func() float64) RetryOption {
	return func(s *RetryStrategy) {
		s.random = random
	}
}

// NewRetryStrategy constructs a strategy, zero Backoff fields take defaults.
func NewRetryStrategy(b Backoff, opts ...RetryOption) *RetryStrategy {
	s := &RetryStrategy{
		backoff:  b.withDefaults(),
		classify: Classify,
		random:   rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Backoff returns the effective configuration.
func (s *RetryStrategy) Backoff() Backoff {
	return s.backoff
}

// NextRetryDelay returns the jittered delay for retryCount.
func (s *RetryStrategy) NextRetryDelay(retryCount int) time.Duration {
	return nextRetryDelay(retryCount, s.backoff, s.random())
}

// UnjitteredDelay returns the delay for retryCount before jitter.
func (s *RetryStrategy) UnjitteredDelay(retryCount int) time.Duration {
	return UnjitteredDelay(retryCount, s.backoff)
}

// IsMaxRetriesExceeded reports whether retryCount reached the retry limit.
func (s *RetryStrategy) IsMaxRetriesExceeded(retryCount int) bool {
	return retryCount >= s.backoff.MaxRetries
}

// Classify returns the classification of err.
func (s *RetryStrategy) Classify(err error) Classification {
	return s.classify(err)
}

// IsRetryable reports whether err is worth retrying. Unrecognized errors are not.
func (s *RetryStrategy) IsRetryable(err error) bool {
	return s.classify(err).Retryable()
}

// SuggestedDelay returns the delay the server asked for, if any.
func (s *RetryStrategy) SuggestedDelay(err error) (time.Duration, bool) {
	return SuggestedDelay(err)
}
