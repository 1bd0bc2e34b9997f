// Package app wires the server's components into a single
// github.com/grafana/dskit/services.Service. New binds the listener;
// running drives the engine until its context is canceled and then stops
// it, which closes the listener and every live connection; starting and
// stopping only log.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mariamtelly/kvserver/internal/config"
	"github.com/mariamtelly/kvserver/internal/dict"
	"github.com/mariamtelly/kvserver/internal/metrics"
	"github.com/mariamtelly/kvserver/internal/netio"
	"github.com/mariamtelly/kvserver/internal/store"
	"github.com/mariamtelly/kvserver/internal/wire"
)

// App is the top-level server: the key-value engine plus the metrics HTTP
// server, both started and stopped together.
type App struct {
	services.Service

	cfg    config.Config
	logger log.Logger

	store      *store.Store
	engine     *netio.Engine
	metricsSrv *http.Server
}

// New validates cfg and constructs the engine, applying the configured
// dictionary and codec tunables process-wide.
func New(cfg config.Config, logger log.Logger, reg *prometheus.Registry) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dict.RehashLoadFactor = cfg.RehashLoadFactor
	dict.MigrateQuantum = cfg.MigrateQuantum
	wire.MaxMessage = cfg.MaxMessageBytes
	wire.MaxArgs = cfg.MaxArgs

	s := store.New()

	m := metrics.New(reg, func() float64 { return float64(s.Len()) }, func() float64 { return float64(s.IndexLen()) })
	s.OnMigrate(func(moved int) { m.RehashMigrations.Add(float64(moved)) })

	engine, err := netio.NewEngine(cfg.ListenAddress, cfg.ReadChunkBytes, s, m, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		store:  s,
		engine: engine,
		metricsSrv: &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		},
	}
	a.Service = services.NewBasicService(a.starting, a.running, a.stopping)
	return a, nil
}

func (a *App) starting(_ context.Context) error {
	level.Info(a.logger).Log("msg", "starting kvserver", "listen", a.cfg.ListenAddress, "metrics", a.cfg.MetricsAddr)
	return nil
}

// running drives the engine and the metrics server side by side under one
// errgroup: the event loop's own goroutine, a goroutine that calls Stop when
// the service context is canceled, and the metrics HTTP server plus its own
// shutdown watcher. Whichever exits first (including ctx cancellation)
// cancels gctx and unwinds the rest.
func (a *App) running(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(a.engine.Run)
	g.Go(func() error {
		<-gctx.Done()
		a.engine.Stop()
		return nil
	})
	g.Go(func() error {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.metricsSrv.Close()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *App) stopping(_ error) error {
	level.Info(a.logger).Log("msg", "stopping kvserver")
	return nil
}
