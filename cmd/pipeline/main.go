// Command pipeline runs one training cycle: it reconciles the sensor
// counts, cleans and expands the visitor-center data, joins in weather,
// builds the feature splits, and trains one regressor per target. The
// trained run is persisted for the inference side to pick up.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/npbw/visitor-pipeline/internal/config"
	"github.com/npbw/visitor-pipeline/internal/features"
	"github.com/npbw/visitor-pipeline/internal/modelstore"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/quality"
	"github.com/npbw/visitor-pipeline/internal/sensor"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, metrics, logger); err != nil {
		metrics.PipelineRuns.WithLabelValues("training", "error").Inc()
		logger.Error("training run failed", "error", err)
		os.Exit(1)
	}
	metrics.PipelineRuns.WithLabelValues("training", "success").Inc()
}

func run(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) error {
	store := storage.NewLocal(cfg.DataDir, logger)

	raw, err := os.ReadFile(cfg.MappingPath)
	if err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}
	mapping, err := sensor.LoadMapping(raw)
	if err != nil {
		return err
	}

	var reconciled *table.Table
	err = timed(metrics, "reconcile", func() error {
		name, folder := quality.PreprocessedTable(quality.CategorySensor)
		sensorTable, err := store.ReadTable(ctx, name, storage.FormatCSV, folder)
		if err != nil {
			return fmt.Errorf("read sensor counts: %w", err)
		}

		engine := sensor.NewEngine(mapping, logger)
		out, stats, err := engine.Reconcile(sensorTable)
		if err != nil {
			return err
		}
		if err := sensor.AggregateRegions(out, mapping.Regions); err != nil {
			return err
		}
		if err := sensor.VerifyHourly(out); err != nil {
			return err
		}
		logger.Info("sensor counts reconciled",
			"rows_in", stats.RowsIn, "rows_out", out.Len())
		metrics.RowsProcessed.WithLabelValues("reconcile").Add(float64(out.Len()))
		reconciled = out
		return nil
	})
	if err != nil {
		return err
	}

	var hourly *table.Table
	err = timed(metrics, "visitor_centers", func() error {
		name, folder := quality.PreprocessedTable(quality.CategoryVisitorCenter)
		dailyRaw, err := store.ReadTable(ctx, name, storage.FormatCSV, folder)
		if err != nil {
			return fmt.Errorf("read visitor centers: %w", err)
		}

		daily, h, stats, err := visitorcenter.NewProcessor(logger).Process(dailyRaw)
		if err != nil {
			return err
		}
		logger.Info("visitor centers processed",
			"cells_fixed", stats.CellsFixed, "outliers_nulled", stats.OutliersNulled)

		if err := store.WriteTable(ctx, daily, visitorcenter.DailyTableName,
			storage.FormatParquet, visitorcenter.PreprocessedFolder); err != nil {
			return err
		}
		if err := store.WriteTable(ctx, h, visitorcenter.HourlyTableName,
			storage.FormatParquet, visitorcenter.PreprocessedFolder); err != nil {
			return err
		}
		metrics.RowsProcessed.WithLabelValues("visitor_centers").Add(float64(h.Len()))
		hourly = h
		return nil
	})
	if err != nil {
		return err
	}

	trainStart, trainEnd, testStart, testEnd := cfg.SplitDates()

	var weatherTable *table.Table
	err = timed(metrics, "weather", func() error {
		wc := weather.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, logger)
		t, err := wc.FetchHourly(ctx, trainStart, testEnd.AddDate(0, 0, 1))
		if err != nil {
			return err
		}
		weather.NewImputer(logger).Impute(t)
		weatherTable = t
		return nil
	})
	if err != nil {
		return err
	}

	var set *features.TrainingSet
	err = timed(metrics, "features", func() error {
		joined, err := features.LeftJoin(hourly, weatherTable)
		if err != nil {
			return err
		}
		joined, err = features.LeftJoin(joined, reconciled)
		if err != nil {
			return err
		}

		builder := features.NewBuilder(cfg.ZScoreWindowDays, logger)
		set, err = builder.BuildTraining(joined, trainStart, trainEnd, testStart, testEnd)
		if err != nil {
			return err
		}
		metrics.RowsProcessed.WithLabelValues("features").Add(float64(set.Train.Len()))
		logger.Info("training set built",
			"train_rows", set.Train.Len(), "test_rows", set.Test.Len())
		return nil
	})
	if err != nil {
		return err
	}

	return timed(metrics, "train", func() error {
		return train(ctx, cfg, store, set, metrics, logger)
	})
}

// train fits one regressor per target on the train split, reports test
// error, and persists the run.
func train(ctx context.Context, cfg *config.Config, store storage.Store, set *features.TrainingSet, metrics *observability.Metrics, logger *slog.Logger) error {
	names := features.FeatureNames()
	trainX, err := featureMatrix(set.Train, names)
	if err != nil {
		return err
	}
	testX, err := featureMatrix(set.Test, names)
	if err != nil {
		return err
	}

	models := make(map[string]*modelstore.LinearRegressor, len(features.Targets))
	for _, target := range features.Targets {
		y, ok := set.Train.Float(target)
		if !ok {
			return fmt.Errorf("train: target %q not found", target)
		}
		model, err := modelstore.Train(names, trainX, y)
		if err != nil {
			return fmt.Errorf("train %q: %w", target, err)
		}
		models[target] = model

		if testY, ok := set.Test.Float(target); ok && len(testY) > 0 {
			logger.Info("model trained",
				"target", target, "test_mae", meanAbsError(model.Predict(testX), testY))
		}
	}

	runID := modelstore.NewRunID()
	ms := modelstore.New(store, cfg.ModelsFolder, cfg.Algorithm, metrics, logger)
	if err := ms.SaveRun(ctx, runID, models, set.Stats); err != nil {
		return err
	}
	logger.Info("training run saved", "run_id", runID, "models", len(models))
	return nil
}

// featureMatrix extracts rows in the given column order.
func featureMatrix(t *table.Table, names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		vals, ok := t.Float(name)
		if !ok {
			return nil, fmt.Errorf("feature %q not found", name)
		}
		cols[j] = vals
	}
	rows := make([][]float64, t.Len())
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

func meanAbsError(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	var sum float64
	for i := range pred {
		d := pred[i] - actual[i]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(pred))
}

func timed(m *observability.Metrics, stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}
