// Command server runs the dashboard API: it serves forecasts, live
// parking occupancy, and weather context, refreshing each fragment on
// its own schedule.
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

	"github.com/npbw/visitor-pipeline/internal/api"
	"github.com/npbw/visitor-pipeline/internal/config"
	"github.com/npbw/visitor-pipeline/internal/features"
	"github.com/npbw/visitor-pipeline/internal/forecast"
	"github.com/npbw/visitor-pipeline/internal/modelstore"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/parking"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/weather"
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

	store := storage.NewLocal(cfg.DataDir, logger)
	models := modelstore.New(store, cfg.ModelsFolder, cfg.Algorithm, metrics, logger)
	weatherClient := weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, logger)
	imputer := weather.NewImputer(logger)
	builder := features.NewBuilder(cfg.ZScoreWindowDays, logger)

	forecastSvc := forecast.New(store, models, weatherClient, imputer, builder,
		clock, cfg.Location(), metrics, logger)
	parkingClient := parking.NewClient(cfg.ParkingBaseURL, cfg.ParkingToken,
		cfg.ParkingTimeout, clock, metrics, logger)
	parkingSvc := parking.NewService(parkingClient, store, logger)

	state := api.NewState()
	refresher := api.NewRefresher(state, parkingSvc, forecastSvc, weatherClient,
		imputer, store, clock, cfg.ParkingRefreshEvery, cfg.InferenceRefreshEvery,
		metrics, logger)

	srv := api.NewServer(cfg.HTTPAddr, state, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
		}
	}()

	go func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("refresher error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}
