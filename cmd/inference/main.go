// Command inference runs one forecast cycle against the latest trained
// run and the stored visitor-center timeline, then exits. The server
// binary does the same work on a schedule; this one exists for backfills
// and manual reruns.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/config"
	"github.com/npbw/visitor-pipeline/internal/features"
	"github.com/npbw/visitor-pipeline/internal/forecast"
	"github.com/npbw/visitor-pipeline/internal/modelstore"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/visitorcenter"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := storage.NewLocal(cfg.DataDir, logger)
	models := modelstore.New(store, cfg.ModelsFolder, cfg.Algorithm, metrics, logger)
	weatherClient := weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, logger)
	imputer := weather.NewImputer(logger)
	builder := features.NewBuilder(cfg.ZScoreWindowDays, logger)

	svc := forecast.New(store, models, weatherClient, imputer, builder,
		clock, cfg.Location(), metrics, logger)

	hourly, err := store.ReadTable(ctx,
		visitorcenter.HourlyTableName, storage.FormatParquet, visitorcenter.PreprocessedFolder)
	if err != nil {
		logger.Error("failed to read visitor center timeline", "error", err)
		os.Exit(1)
	}

	wide, err := svc.Run(ctx, hourly)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues("inference", "error").Inc()
		logger.Error("inference run failed", "error", err)
		os.Exit(1)
	}
	metrics.PipelineRuns.WithLabelValues("inference", "success").Inc()
	logger.Info("inference complete", "rows", wide.Len())
}
