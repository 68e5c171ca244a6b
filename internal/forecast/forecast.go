// Package forecast runs the inference path: it anchors the rolling
// window on the clock, sources forecast weather, builds the feature
// table, predicts every target with the latest model run, and publishes
// the per-region forecast table the dashboard serves.
package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/features"
	"github.com/npbw/visitor-pipeline/internal/modelstore"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
	"github.com/npbw/visitor-pipeline/internal/weather"
)

// Window geometry: ten days of lag context behind today, seven days of
// forecast horizon ahead.
const (
	lookbackDays = 10
	horizonDays  = 7
)

// Relative traffic color thresholds.
const (
	redThreshold   = 0.40
	greenThreshold = 0.05
)

// Regions maps display names to the prediction columns summed for the
// relative-traffic view.
var Regions = map[string][2]string{
	"Bayerischer Wald Total":                    {"sum_IN_abs", "sum_OUT_abs"},
	"Nationalparkzentrum Falkenstein":           {"Nationalparkzentrum Falkenstein IN", "Nationalparkzentrum Falkenstein OUT"},
	"Nationalparkzentrum Lusen":                 {"Nationalparkzentrum Lusen IN", "Nationalparkzentrum Lusen OUT"},
	"Falkenstein-Schwellhäusl":                  {"Falkenstein-Schwellhäusl IN", "Falkenstein-Schwellhäusl OUT"},
	"Scheuereck-Schachten-Trinkwassertalsperre": {"Scheuereck-Schachten-Trinkwassertalsperre IN", "Scheuereck-Schachten-Trinkwassertalsperre OUT"},
	"Lusen-Mauth-Finsterau":                     {"Lusen-Mauth-Finsterau IN", "Lusen-Mauth-Finsterau OUT"},
	"Rachel-Spiegelau":                          {"Rachel-Spiegelau IN", "Rachel-Spiegelau OUT"},
}

// visitorContextColumns are the columns the inference join takes from
// the hourly visitor-center table.
var visitorContextColumns = []string{
	"Tag", "Hour", "Monat", "Wochentag", "Wochenende", "Jahreszeit",
	"Laubfärbung", "Schulferien_Bayern", "Schulferien_CZ",
	"Feiertag_Bayern", "Feiertag_CZ",
	"HEH_geoeffnet", "HZW_geoeffnet", "WGM_geoeffnet",
	"Lusenschutzhaus_geoeffnet", "Racheldiensthuette_geoeffnet",
	"Falkensteinschutzhaus_geoeffnet", "Schwellhaeusl_geoeffnet",
}

// Storage folders for forecast outputs.
const (
	predictionsFolder = "models/inference_data_outputs"
	overallName       = "overall_predictions"
)

// Service drives one inference cycle.
type Service struct {
	storage storage.Store
	models  *modelstore.Store
	weather *weather.Client
	imputer *weather.Imputer
	builder *features.Builder
	clock   clockwork.Clock
	loc     *time.Location
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates a forecast service.
func New(
	st storage.Store,
	models *modelstore.Store,
	wc *weather.Client,
	imputer *weather.Imputer,
	builder *features.Builder,
	clock clockwork.Clock,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		storage: st,
		models:  models,
		weather: wc,
		imputer: imputer,
		builder: builder,
		clock:   clock,
		loc:     loc,
		metrics: metrics,
		logger:  logger,
	}
}

// Window returns the inference window anchored on the clock: today at
// local midnight, rendered as a naive wall-clock timestamp like every
// other Time index in the pipeline.
func (s *Service) Window() (start, today, end time.Time) {
	now := s.clock.Now().In(s.loc)
	today = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -lookbackDays), today, today.AddDate(0, 0, horizonDays)
}

// Run executes one inference cycle against the given hourly
// visitor-center table and returns the wide per-region forecast table.
func (s *Service) Run(ctx context.Context, hourlyVisitorCenter *table.Table) (*table.Table, error) {
	start, today, end := s.Window()
	s.logger.Info("running inference",
		"start", start.Format("2006-01-02"),
		"today", today.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
	)

	weatherTable, err := s.weather.FetchHourly(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	s.imputer.Impute(weatherTable)

	visitorContext, err := hourlyVisitorCenter.Select(visitorContextColumns...)
	if err != nil {
		return nil, fmt.Errorf("inference: visitor center context: %w", err)
	}
	joined, err := features.LeftJoin(visitorContext.SliceRange(start, end), weatherTable)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	run, err := s.models.LoadLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	featureTable, err := s.builder.BuildInference(joined, run.Stats, today, end)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	predictions, err := s.predictAll(ctx, run, featureTable)
	if err != nil {
		return nil, err
	}

	wide, err := buildOverallTable(featureTable.Time, predictions)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	if err := s.storage.WriteTable(ctx, wide, overallName, storage.FormatParquet, predictionsFolder); err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}
	s.metrics.ForecastsWritten.Add(float64(wide.Len()))
	s.logger.Info("forecasts published", "rows", wide.Len(), "run_id", run.ID)
	return wide, nil
}

// predictAll runs every model of the run over the feature table,
// persisting each per-target prediction series.
func (s *Service) predictAll(ctx context.Context, run *modelstore.Run, featureTable *table.Table) (map[string][]float64, error) {
	predictions := make(map[string][]float64, len(run.Models))
	for target, model := range run.Models {
		matrix, err := featureMatrix(featureTable, model.Features())
		if err != nil {
			return nil, fmt.Errorf("inference: %q: %w", target, err)
		}
		raw := model.Predict(matrix)
		counts := make([]float64, len(raw))
		for i, v := range raw {
			counts[i] = math.Max(0, math.Round(v))
		}
		predictions[target] = counts

		perTarget := table.New(featureTable.Time)
		if err := perTarget.AddFloat("predictions", counts); err != nil {
			return nil, fmt.Errorf("inference: %q: %w", target, err)
		}
		name := s.models.ArtifactBase(target)
		if err := s.storage.WriteTable(ctx, perTarget, name, storage.FormatParquet, predictionsFolder); err != nil {
			return nil, fmt.Errorf("inference: %q: %w", target, err)
		}
	}
	return predictions, nil
}

// featureMatrix extracts rows in the model's own feature order.
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

// buildOverallTable pivots the per-target predictions wide and adds the
// per-region weekly relative traffic and its color class.
func buildOverallTable(times []time.Time, predictions map[string][]float64) (*table.Table, error) {
	wide := table.New(times)
	for _, target := range features.Targets {
		vals, ok := predictions[target]
		if !ok {
			return nil, fmt.Errorf("missing predictions for %q", target)
		}
		if err := wide.AddFloat(target, vals); err != nil {
			return nil, err
		}
	}

	for _, region := range regionOrder() {
		pair := Regions[region]
		in, _ := wide.Float(pair[0])
		out, _ := wide.Float(pair[1])
		total := make([]float64, wide.Len())
		for i := range total {
			total[i] = in[i] + out[i]
		}
		if region != "Bayerischer Wald Total" {
			if err := wide.AddFloat(region, total); err != nil {
				return nil, err
			}
		}

		scaled := minMaxScale(total)
		if err := wide.AddFloat("weekly_relative_traffic_"+region, scaled); err != nil {
			return nil, err
		}
		colors := make([]string, len(scaled))
		for i, v := range scaled {
			colors[i] = trafficColor(v)
		}
		if err := wide.AddString("traffic_color_"+region, colors); err != nil {
			return nil, err
		}
	}
	return wide, nil
}

// regionOrder returns the region names in a fixed order so the output
// schema is stable.
func regionOrder() []string {
	return []string{
		"Bayerischer Wald Total",
		"Nationalparkzentrum Falkenstein",
		"Nationalparkzentrum Lusen",
		"Falkenstein-Schwellhäusl",
		"Scheuereck-Schachten-Trinkwassertalsperre",
		"Lusen-Mauth-Finsterau",
		"Rachel-Spiegelau",
	}
}

// minMaxScale maps values onto [0, 1]; a constant series maps to zeros.
func minMaxScale(vals []float64) []float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(vals))
	if hi == lo {
		return out
	}
	for i, v := range vals {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func trafficColor(v float64) string {
	switch {
	case v > redThreshold:
		return "red"
	case v < greenThreshold:
		return "green"
	default:
		return "blue"
	}
}
