package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velmie/changesync"
)

const (
	defaultProbeTimeout  = 3 * time.Second
	defaultProbeInterval = 30 * time.Second
)

// ProberConfig controls health probing.
type ProberConfig struct {
	// URL is probed with HEAD, a 2xx answer means online.
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	Client   HTTPClient
	Logger   changesync.Logger
}

// Prober feeds a ConnectivityState from periodic health checks.
type Prober struct {
	cfg   ProberConfig
	state *changesync.ConnectivityState
}

// NewProber creates a prober with defaults applied.
func NewProber(state *changesync.ConnectivityState, cfg ProberConfig) (*Prober, error) {
	if state == nil {
		return nil, ErrStateRequired
	}
	if cfg.URL == "" {
		return nil, ErrBaseURLRequired
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultProbeInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = changesync.NopLogger{}
	}

	return &Prober{cfg: cfg, state: state}, nil
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	p.Check(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

// Check probes once, updates the state and returns the observed connectivity.
func (p *Prober) Check(ctx context.Context) bool {
	err := p.probe(ctx)
	if ctx.Err() != nil {
		return p.state.IsOnline()
	}

	online := err == nil
	if online != p.state.IsOnline() {
		if online {
			p.cfg.Logger.Info("changesync remote api reachable", "url", p.cfg.URL)
		} else {
			p.cfg.Logger.Warn("changesync remote api unreachable", "url", p.cfg.URL, "err", err)
		}
	}
	p.state.Set(online)

	return online
}

func (p *Prober) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("build probe: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}

	return nil
}
