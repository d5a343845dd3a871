package httpapi

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 1 << 20
	defaultUserAgent    = "changesync/1"
)

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the bearer token for each request. An empty token sends no header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource with a fixed value.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (fn TokenFunc) Token(ctx context.Context) (string, error) {
	return fn(ctx)
}

type clientConfig struct {
	httpClient   HTTPClient
	tokens       TokenSource
	timeout      time.Duration
	maxBodyBytes int64
	userAgent    string
	now          func() time.Time
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		httpClient:   http.DefaultClient,
		timeout:      defaultTimeout,
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    defaultUserAgent,
		now:          time.Now,
	}
}

// Option customises a Client.
type Option func(*clientConfig)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *clientConfig) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTokenSource sets the bearer token source.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *clientConfig) {
		c.tokens = tokens
	}
}

// WithTimeout bounds every request. Zero disables the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithBodyLimit caps how many response bytes are read.
func WithBodyLimit(limit int64) Option {
	return func(c *clientConfig) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithNow overrides the clock used to resolve HTTP-date Retry-After values.
func WithNow(now func() time.Time) Option {
	return func(c *clientConfig) {
		if now != nil {
			c.now = now
		}
	}
}
