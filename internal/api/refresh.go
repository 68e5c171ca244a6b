package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/forecast"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/parking"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/visitorcenter"
	"github.com/npbw/visitor-pipeline/internal/weather"
)

// Refresher rebuilds the serving-cache fragments on their schedules:
// parking frequently, inference on a slower cadence. Every rebuild is
// idempotent and works from storage, so a restart just repopulates.
type Refresher struct {
	state    *State
	parking  *parking.Service
	forecast *forecast.Service
	weather  *weather.Client
	imputer  *weather.Imputer
	storage  storage.Store
	clock    clockwork.Clock

	parkingEvery   time.Duration
	inferenceEvery time.Duration

	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRefresher creates a Refresher.
func NewRefresher(
	state *State,
	parkingSvc *parking.Service,
	forecastSvc *forecast.Service,
	weatherClient *weather.Client,
	imputer *weather.Imputer,
	st storage.Store,
	clock clockwork.Clock,
	parkingEvery, inferenceEvery time.Duration,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Refresher {
	return &Refresher{
		state:          state,
		parking:        parkingSvc,
		forecast:       forecastSvc,
		weather:        weatherClient,
		imputer:        imputer,
		storage:        st,
		clock:          clock,
		parkingEvery:   parkingEvery,
		inferenceEvery: inferenceEvery,
		metrics:        metrics,
		logger:         logger,
	}
}

// Run refreshes both fragments once, then keeps them fresh until the
// context is canceled. A failed cycle is logged and retried on the next
// tick; the cache keeps serving the previous fragment meanwhile.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.RefreshParking(ctx); err != nil {
		r.logger.Error("initial parking refresh failed", "error", err)
	}
	if err := r.RefreshInference(ctx); err != nil {
		r.logger.Error("initial inference refresh failed", "error", err)
	}

	parkingTicker := r.clock.NewTicker(r.parkingEvery)
	defer parkingTicker.Stop()
	inferenceTicker := r.clock.NewTicker(r.inferenceEvery)
	defer inferenceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-parkingTicker.Chan():
			if err := r.RefreshParking(ctx); err != nil {
				r.logger.Error("parking refresh failed", "error", err)
			}
		case <-inferenceTicker.Chan():
			if err := r.RefreshInference(ctx); err != nil {
				r.logger.Error("inference refresh failed", "error", err)
			}
		}
	}
}

// RefreshParking rebuilds the parking fragment.
func (r *Refresher) RefreshParking(ctx context.Context) error {
	r.metrics.RefreshRunning.Set(1)
	defer r.metrics.RefreshRunning.Set(0)

	snaps, err := r.parking.Refresh(ctx)
	if err != nil {
		r.metrics.PipelineRuns.WithLabelValues("parking_refresh", "error").Inc()
		return err
	}
	r.state.SetParking(snaps, r.clock.Now())
	r.metrics.PipelineRuns.WithLabelValues("parking_refresh", "success").Inc()
	return nil
}

// RefreshInference reruns inference from the stored visitor-center
// timeline and the latest model run, then refreshes the weather context
// for the same horizon.
func (r *Refresher) RefreshInference(ctx context.Context) error {
	r.metrics.RefreshRunning.Set(1)
	defer r.metrics.RefreshRunning.Set(0)

	if err := r.refreshInference(ctx); err != nil {
		r.metrics.PipelineRuns.WithLabelValues("inference_refresh", "error").Inc()
		return err
	}
	r.metrics.PipelineRuns.WithLabelValues("inference_refresh", "success").Inc()
	return nil
}

func (r *Refresher) refreshInference(ctx context.Context) error {
	hourly, err := r.storage.ReadTable(ctx,
		visitorcenter.HourlyTableName, storage.FormatParquet, visitorcenter.PreprocessedFolder)
	if err != nil {
		return fmt.Errorf("inference refresh: %w", err)
	}

	wide, err := r.forecast.Run(ctx, hourly)
	if err != nil {
		return err
	}
	now := r.clock.Now()
	r.state.SetForecasts(wide, now)

	// Weather context for the forecast horizon.
	_, today, end := r.forecast.Window()
	weatherTable, err := r.weather.FetchHourly(ctx, today, end)
	if err != nil {
		return fmt.Errorf("inference refresh: weather context: %w", err)
	}
	r.imputer.Impute(weatherTable)
	r.state.SetWeather(weatherTable, now)
	return nil
}
