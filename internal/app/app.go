// Package app wires the finboard components into one client.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/cli"
	"finboard/internal/config"
	"finboard/internal/credential"
	"finboard/internal/dashboard"
	"finboard/internal/derived"
	"finboard/internal/finance"
	"finboard/internal/gateway"
	"finboard/internal/history"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/router"
	"finboard/internal/session"
)

type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Gateway   *gateway.Client
	Session   *session.Manager
	Navigator *router.Navigator
	Finance   *finance.State
	Derived   *derived.Coordinator
	History   *history.Store
	Dashboard *dashboard.Dashboard

	caches  *cache.Manager
	closers []func() error

	closeOnce sync.Once
}

// Option adjusts an App before its components are built.
type Option func(*options)

type options struct {
	store credential.Store
}

// WithCredentialStore replaces the file store named by the config.
func WithCredentialStore(s credential.Store) Option {
	return func(o *options) { o.store = s }
}

// New builds every component and connects them. Nothing talks to the
// backend until Start.
func New(ctx context.Context, cfg *config.Config, logger *log.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = credential.NewFileStore(cfg.CredentialsFile)
	}
	if logger == nil {
		logger = log.Default(log.ComponentApp)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	a.Metrics = metrics.New(a.Registry)

	gw, err := gateway.New(cfg.APIBaseURL,
		gateway.WithTimeout(cfg.HTTPTimeout),
		gateway.WithLogger(logger),
		gateway.WithMetrics(a.Metrics))
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}
	a.Gateway = gw

	a.Session = session.NewManager(o.store, gw,
		session.WithLogger(logger),
		session.WithMetrics(a.Metrics))
	a.Navigator = router.NewNavigator(a.Session, logger)
	gw.Bind(a.Session, a.Navigator)
	a.Session.Subscribe(a.Navigator.SessionChanged)

	a.Finance = finance.New()
	a.Derived = derived.New(a.Finance,
		derived.WithDebounce(cfg.RecurringDebounce),
		derived.WithLogger(logger))

	hlog, closeHistory, err := cli.OpenHistory(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeHistory)

	storeOpts := []history.Option{
		history.WithBackend(cfg.HistoryBackend),
		history.WithLogger(logger),
		history.WithMetrics(a.Metrics),
	}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// Events are best effort; history still works without a broker.
			logger.WarnContext(ctx, "AMQP unavailable, analysis events disabled",
				log.NewFields().
					WithOperation(log.OpStartup).
					WithErrorType(log.ErrorTypeNetwork).
					WithError(err).
					ToSlice()...)
		} else {
			storeOpts = append(storeOpts, history.WithPublisher(client))
			a.closers = append(a.closers, client.Close)
		}
	}
	a.History = history.NewStore(hlog, storeOpts...)

	trends := cache.NewLRUCache[dashboard.Trends](16, cfg.TrendsCacheTTL)
	a.caches = cache.NewManager(logger)
	a.caches.Register(trends)

	a.Dashboard = dashboard.New(gw, a.Finance, a.Derived, a.History,
		dashboard.WithLogger(logger),
		dashboard.WithTrendsCache(trends),
		dashboard.WithTrendsMonths(cfg.TrendsMonths))
	a.Session.Subscribe(a.Dashboard.SessionChanged)

	return a, nil
}

// Start resolves the stored session, lands on the dashboard route and
// starts the derived views.
func (a *App) Start(ctx context.Context) session.Session {
	a.Dashboard.Start(ctx)
	a.Derived.Start()
	a.caches.StartCleanup(time.Minute)

	s := a.Session.Init(ctx)
	a.Navigator.Navigate(ctx, router.PathDashboard)

	a.Logger.InfoContext(ctx, "Client started",
		log.FieldOperation, log.OpStartup,
		log.FieldSessionState, string(s.State),
		"history_backend", a.Config.HistoryBackend)
	return s
}

// Close stops background work and releases storage and broker
// connections.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.Dashboard.Close()
		a.Derived.Close()
		a.caches.Stop()
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
