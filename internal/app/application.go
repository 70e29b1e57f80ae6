// Package app wires every component into one running process and tears
// them down again in the exact reverse order. The wiring order itself is
// the single most important invariant here: config, then logger, then
// metrics registry, then persistence, then store, then hub, then
// aggregator, then connection handler, then HTTP router, then HTTP
// server — each step depends only on steps already constructed.
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"audiencehub/internal/aggregator"
	"audiencehub/internal/api"
	"audiencehub/internal/config"
	"audiencehub/internal/connection"
	"audiencehub/internal/database"
	"audiencehub/internal/hub"
	"audiencehub/internal/logging"
	"audiencehub/internal/metricsx"
	"audiencehub/internal/ratelimit"
	"audiencehub/internal/store"
	pkgdatabase "audiencehub/pkg/database"
)

// Application owns every long-lived component and the two HTTP listeners
// (the main boundary and, when configured, the metrics endpoint).
type Application struct {
	config config.Config
	logger zerolog.Logger

	persistence *database.Manager
	store       *store.Store
	hub         *hub.Hub
	aggregator  *aggregator.Aggregator

	httpServer    *http.Server
	metricsServer *http.Server
}

// NewApplication builds every component in the order §10.7 fixes.
func NewApplication(cfg config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	registry := prometheus.NewRegistry()
	metrics := metricsx.New(registry)

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.DatabaseURL,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	persistence, err := database.NewManager(dbConfig, logging.For(logger, "persistence"), metrics)
	if err != nil {
		return nil, fmt.Errorf("initializing persistence: %w", err)
	}

	sampleStore := store.New(logging.For(logger, "store"))

	viewerHub := hub.New(logging.For(logger, "hub"), metrics)

	agg := aggregator.New(sampleStore, viewerHub, persistence, logging.For(logger, "aggregator"), metrics)

	limiter := ratelimit.New(cfg.InboundRateLimitPerSec, int(math.Ceil(cfg.InboundRateLimitPerSec)))
	connHandler := connection.NewHandler(viewerHub, sampleStore, persistence, limiter, cfg.FrontendURL, logging.For(logger, "connection"), metrics)

	apiServer := api.New(viewerHub, sampleStore, persistence, connHandler, cfg.DatabaseURL, cfg.FrontendURL, logging.For(logger, "api"))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
	}

	return &Application{
		config:        cfg,
		logger:        logger,
		persistence:   persistence,
		store:         sampleStore,
		hub:           viewerHub,
		aggregator:    agg,
		httpServer:    httpServer,
		metricsServer: metricsServer,
	}, nil
}

// Start launches the aggregator's tick loop and both HTTP listeners. It
// returns once the boundary listener is confirmed up or has failed,
// mirroring the teacher's race between a startup error and a short grace
// timer rather than blocking on ListenAndServe forever.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info().Str("addr", app.httpServer.Addr).Msg("starting application")

	if err := app.aggregator.Start(ctx); err != nil {
		return fmt.Errorf("starting aggregator: %w", err)
	}

	if app.metricsServer != nil {
		go func() {
			if err := app.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.aggregator.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info().Msg("application started")
		return nil
	case <-ctx.Done():
		app.aggregator.Stop()
		return ctx.Err()
	}
}

// Stop tears components down in the exact reverse of construction order:
// HTTP listeners, then the aggregator's tick loop, then persistence.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info().Msg("shutting down application")

	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Error().Err(err).Msg("http server shutdown error")
		errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
	}

	if app.metricsServer != nil {
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			app.logger.Error().Err(err).Msg("metrics server shutdown error")
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	app.aggregator.Stop()

	if err := app.persistence.Close(); err != nil {
		app.logger.Error().Err(err).Msg("persistence shutdown error")
		errs = append(errs, fmt.Errorf("persistence shutdown: %w", err))
	}

	app.logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the boundary listener's configured address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
