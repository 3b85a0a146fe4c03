package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/fairway-conditions/internal/adapter/filestore"
	"github.com/couchcryptid/fairway-conditions/internal/adapter/geoip"
	httpadapter "github.com/couchcryptid/fairway-conditions/internal/adapter/http"
	"github.com/couchcryptid/fairway-conditions/internal/adapter/openmeteo"
	"github.com/couchcryptid/fairway-conditions/internal/adapter/overpass"
	"github.com/couchcryptid/fairway-conditions/internal/config"
	"github.com/couchcryptid/fairway-conditions/internal/domain"
	"github.com/couchcryptid/fairway-conditions/internal/observability"
	"github.com/couchcryptid/fairway-conditions/internal/pipeline"
	"github.com/couchcryptid/fairway-conditions/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store := filestore.New(cfg.StatePath, logger)

	// Position source: a fixed operator-supplied coordinate when
	// configured, IP geolocation otherwise.
	var source domain.PositionSource
	if cfg.FixedPosition != nil {
		source = geoip.Fixed{Coords: *cfg.FixedPosition}
		logger.Info("using fixed position", "lat", cfg.FixedPosition.Lat, "lon", cfg.FixedPosition.Lon)
	} else {
		source = geoip.NewClient(cfg.GeoIPURL, cfg.GeoIPTimeout, clock, metrics, logger)
	}

	location := pipeline.NewLocationProvider(source, cfg.LocationTimeout, cfg.LocationMaxAge, cfg.HighAccuracy, metrics, logger)
	finder := overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout, metrics, logger)

	forecasts := openmeteo.NewCachedProvider(
		openmeteo.NewClient(cfg.ForecastURL, cfg.ForecastTimeout, clock, metrics, logger),
		store, clock, cfg.CacheMaxAge, cfg.CacheMaxDrift, metrics, logger,
	)

	selection := pipeline.NewSelection(store, logger)
	controller := pipeline.NewController(location, finder, forecasts, selection, store, clock, cfg.DefaultUnits, metrics, logger)
	controller.Start()

	srv := httpadapter.NewServer(cfg.HTTPAddr, controller, logger)
	refresh := scheduler.New(controller, cfg.RefreshInterval, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Probe permission state up front and acquire a position right away
	// when the source allows it without prompting.
	location.Probe(ctx)
	if location.State().Status == pipeline.LocationGranted {
		controller.RequestLocation()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := refresh.Start(); err != nil {
		logger.Error("refresh scheduler error", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	refresh.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
