package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/velmie/changesync"
)

// Client is the REST client of one remote resource, e.g. {base}/customers.
type Client struct {
	endpoint string
	cfg      clientConfig
}

var _ changesync.RemoteClient = (*Client)(nil)

// NewClient creates a client for resource under baseURL.
func NewClient(baseURL, resource string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, ErrBaseURLRequired
	}
	resource = strings.Trim(strings.TrimSpace(resource), "/")
	if resource == "" {
		return nil, ErrResourceRequired
	}

	cfg := defaultClientConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return &Client{
		endpoint: strings.TrimRight(base.String(), "/") + "/" + resource,
		cfg:      cfg,
	}, nil
}

// Endpoint returns the resource URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Create posts payload to the resource collection.
func (c *Client) Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.endpoint, payload)
}

// Update puts payload to the entity URL.
func (c *Client) Update(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrEntityIDRequired
	}

	return c.do(ctx, http.MethodPut, c.entityURL(id), payload)
}

// Delete removes the entity.
func (c *Client) Delete(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrEntityIDRequired
	}

	return c.do(ctx, http.MethodDelete, c.entityURL(id), nil)
}

func (c *Client) entityURL(id string) string {
	return c.endpoint + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, target string, payload json.RawMessage) (json.RawMessage, error) {
	if c.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.timeout)
		defer cancel()
	}

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("changesync httpapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.tokens != nil {
		token, err := c.cfg.tokens.Token(ctx)
		if err != nil {
			return nil, changesync.NewTransportError(fmt.Errorf("token: %w", err))
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.cfg.httpClient.Do(req)
	if err != nil {
		return nil, changesync.NewTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.maxBodyBytes))
	if err != nil {
		return nil, changesync.NewTransportError(fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, changesync.NewRemoteError(
			resp.StatusCode,
			errorMessage(resp.StatusCode, raw),
			parseRetryAfter(resp.Header.Get("Retry-After"), c.cfg.now()),
		)
	}
	// The change was accepted either way, a body that is not JSON is dropped.
	if len(bytes.TrimSpace(raw)) == 0 || !gojson.Valid(raw) {
		return nil, nil
	}

	return json.RawMessage(raw), nil
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func errorMessage(status int, raw []byte) string {
	var body errorBody
	if err := gojson.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" && !strings.HasPrefix(text, "{") && len(text) <= 200 {
		return text
	}

	return http.StatusText(status)
}

// maxRetryAfter caps server-suggested delays.
const maxRetryAfter = 24 * time.Hour

// parseRetryAfter accepts delay-seconds or an HTTP date, capped at maxRetryAfter.
// Unparseable or past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		if secs >= int(maxRetryAfter/time.Second) {
			return maxRetryAfter
		}

		return time.Duration(secs) * time.Second
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0
	}
	if d := at.Sub(now); d > 0 {
		return min(d, maxRetryAfter)
	}

	return 0
}

// IsRemoteStatus reports whether err carries the given HTTP status.
func IsRemoteStatus(err error, status int) bool {
	var remote *changesync.RemoteError
	return errors.As(err, &remote) && remote.StatusCode == status
}
