// Package app wires configuration into a running sync engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/velmie/changesync"
	"github.com/velmie/changesync/httpapi"
	"github.com/velmie/changesync/internal/config"
	"github.com/velmie/changesync/internal/logging"
	"github.com/velmie/changesync/mysql"
	"github.com/velmie/changesync/sqlite"
)

const (
	mysqlDriver     = "mysql"
	maxDrainPasses  = 1000
	shutdownTimeout = 10 * time.Second
)

// Backend is the change log plus the capabilities the binary uses.
type Backend interface {
	changesync.Store
	changesync.Cleaner
}

// App holds the wired components of one engine.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Store        Backend
	Service      *changesync.Service
	Metrics      *changesync.MemoryMetrics
	Connectivity *changesync.ConnectivityState
	Prober       *httpapi.Prober
	Maintainer   *changesync.Maintainer

	lock    func(ctx context.Context) (func(context.Context) error, error)
	closers []func() error
}

// Build opens the configured store and wires the engine. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      changesync.NewMemoryMetrics(),
		Connectivity: changesync.NewConnectivityState(false),
	}
	engineLogger := logging.NewAdapter(logger)

	priorityOpts := []changesync.PriorityOption{changesync.WithPriorityLogger(engineLogger)}
	for entity, rank := range cfg.Sync.Priorities {
		priorityOpts = append(priorityOpts, changesync.WithEntityPriority(entity, rank))
	}
	if cfg.Sync.OfflineBoostAfter > 0 {
		priorityOpts = append(priorityOpts, changesync.WithOfflineBoost(cfg.Sync.OfflineBoostAfter,
			changesync.EntityCustomer, changesync.EntityOrder, changesync.EntityPayment))
	}

	if err := a.openStore(ctx, changesync.NewPriorityManager(nil, priorityOpts...)); err != nil {
		return nil, errors.Join(err, a.Close())
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	a.Service = changesync.NewService(a.Store, registry,
		changesync.WithLogger(engineLogger),
		changesync.WithMetrics(a.Metrics),
		changesync.WithConnectivity(a.Connectivity),
		changesync.WithRetryStrategy(changesync.NewRetryStrategy(cfg.Sync.Retry.Backoff())),
		changesync.WithPriorityManager(changesync.NewPriorityManager(a.Store, priorityOpts...)),
		changesync.WithBatchSize(cfg.Sync.BatchSize),
		changesync.WithPollInterval(cfg.Sync.PollInterval),
		changesync.WithFollowUpDelay(cfg.Sync.FollowUpDelay),
		changesync.WithHandlerTimeout(cfg.Sync.HandlerTimeout),
		changesync.WithMetricsInterval(cfg.Sync.MetricsInterval),
		changesync.WithListener(a.logEvent),
	)

	a.Prober, err = httpapi.NewProber(a.Connectivity, httpapi.ProberConfig{
		URL:      cfg.Remote.HealthURL(),
		Interval: cfg.Remote.ProbeInterval,
		Timeout:  cfg.Remote.ProbeTimeout,
		Logger:   engineLogger,
	})
	if err != nil {
		return nil, errors.Join(err, a.Close())
	}

	if cfg.Maintenance.Enabled {
		a.Maintainer, err = changesync.NewMaintainer(a.Store, changesync.MaintainerConfig{
			Retention:       cfg.Maintenance.Retention,
			FailedWarnAfter: cfg.Maintenance.FailedWarnAfter,
			CheckEvery:      cfg.Maintenance.Interval,
			Limit:           cfg.Maintenance.Limit,
			DisableVacuum:   !cfg.Maintenance.Vacuum,
			Logger:          engineLogger,
		})
		if err != nil {
			return nil, errors.Join(err, a.Close())
		}
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, priorities *changesync.PriorityManager) error {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path,
			sqlite.WithTable(cfg.Table),
			sqlite.WithBusyTimeout(cfg.BusyTimeout),
			sqlite.WithPriorities(priorities),
		)
		if err != nil {
			return err
		}
		a.Store = store
		a.closers = append(a.closers, store.Close)
	case config.DriverMySQL:
		db, err := sql.Open(mysqlDriver, cfg.DSN)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping mysql: %w", err)
		}
		store, err := mysql.NewStore(db, mysql.WithTable(cfg.Table), mysql.WithPriorities(priorities))
		if err != nil {
			return err
		}
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Store = store
		a.lock = func(ctx context.Context) (func(context.Context) error, error) {
			lock, err := store.LockEngine(ctx)
			if err != nil {
				return nil, err
			}

			return lock.Release, nil
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	return nil
}

func newRegistry(cfg *config.Config) (*changesync.Registry, error) {
	resources := cfg.EnabledResources()
	entities := make([]string, 0, len(resources))
	for entity := range resources {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	var tokens httpapi.TokenSource
	if cfg.Remote.Token != "" {
		tokens = httpapi.StaticToken(cfg.Remote.Token)
	}

	registry := changesync.NewRegistry()
	for _, entity := range entities {
		client, err := httpapi.NewClient(cfg.Remote.BaseURL, resources[entity],
			httpapi.WithTokenSource(tokens),
			httpapi.WithTimeout(cfg.Remote.Timeout),
		)
		if err != nil {
			return nil, fmt.Errorf("remote client for %s: %w", entity, err)
		}
		if err := registry.Register(changesync.NewGenericHandler(entity, client)); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Lock takes the single-engine lock when the backend has one. The returned func releases it.
func (a *App) Lock(ctx context.Context) (func(context.Context) error, error) {
	if a.lock == nil {
		return func(context.Context) error { return nil }, nil
	}

	return a.lock(ctx)
}

// Run starts the engine and its companions and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	release, err := a.Lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := release(relCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("changesync engine lock release failed")
		}
	}()

	// The first probe decides whether the service starts running or paused.
	a.Prober.Check(ctx)
	if err := a.Service.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Prober.Run(gctx)
	})
	if a.Maintainer != nil {
		g.Go(func() error {
			if err := a.Maintainer.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		})
	}
	g.Go(func() error {
		return a.reportMetrics(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()

		return a.Service.Stop()
	})

	return g.Wait()
}

func (a *App) reportMetrics(ctx context.Context) error {
	interval := a.Config.Sync.MetricsInterval
	if interval <= 0 {
		<-ctx.Done()

		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap := a.Metrics.Snapshot()
			a.Logger.Info().
				Int64("processed", snap.Processed).
				Int64("failed", snap.Failed).
				Int64("retried", snap.Retried).
				Int("pending", snap.Pending).
				Int("delayed", snap.Delayed).
				Dur("pass_avg", snap.Pass.Mean()).
				Msg("changesync metrics")
		}
	}
}

func (a *App) logEvent(e changesync.Event) {
	event := a.Logger.Debug()
	switch e.Kind {
	case changesync.EventPassFailed:
		event = a.Logger.Warn().Err(e.Err)
	case changesync.EventPaused, changesync.EventResumed, changesync.EventStarted, changesync.EventStopped:
		event = a.Logger.Info()
	}
	if e.Kind == changesync.EventPassCompleted || e.Kind == changesync.EventPassFailed {
		event = event.
			Int("selected", e.Pass.Selected).
			Int("succeeded", e.Pass.Succeeded).
			Int("failed", e.Pass.Failed).
			Int("retried", e.Pass.Retried).
			Dur("duration", e.Pass.Duration)
	}
	event.Str("event", e.Kind.String()).Msg("changesync event")
}

// Drain recovers interrupted changes and runs passes until nothing more can be sent now.
// It is the one-shot counterpart of Run and takes the same engine lock.
func (a *App) Drain(ctx context.Context) (changesync.PassResult, error) {
	var total changesync.PassResult

	release, err := a.Lock(ctx)
	if err != nil {
		return total, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			a.Logger.Warn().Err(err).Msg("changesync engine lock release failed")
		}
	}()

	if _, err := a.Service.Guard().Recover(ctx); err != nil {
		return total, err
	}

	for range maxDrainPasses {
		result, err := a.Service.ProcessOnce(ctx)
		total.Selected += result.Selected
		total.Groups += result.Groups
		total.Succeeded += result.Succeeded
		total.Failed += result.Failed
		total.Retried += result.Retried
		total.Duration += result.Duration
		total.Watermark = max(total.Watermark, result.Watermark)
		if err != nil {
			return total, err
		}
		if result.Selected == 0 || result.Retried == result.Selected {
			break
		}
	}

	return total, nil
}

// Status returns counts and the persisted watermark without starting the engine.
func (a *App) Status(ctx context.Context) (changesync.Snapshot, error) {
	snap, err := a.Service.Status(ctx)
	if err != nil {
		return snap, err
	}
	if snap.Watermark == 0 {
		wm, err := changesync.Watermark(ctx, a.Store, a.Store)
		if err != nil {
			return snap, err
		}
		snap.Watermark = wm
	}

	return snap, nil
}

// Close releases the store.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil

	return errors.Join(errs...)
}
