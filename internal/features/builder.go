package features

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Builder runs the full feature engineering sequence. One Builder
// serves both training and inference so the schema contract in
// schema.go is applied identically on both paths.
type Builder struct {
	windowDays int
	logger     *slog.Logger
}

// NewBuilder creates a Builder with the given z-score window in days.
func NewBuilder(windowDays int, logger *slog.Logger) *Builder {
	return &Builder{windowDays: windowDays, logger: logger}
}

// TrainingSet is the output of BuildTraining: feature-plus-target tables
// for the two split windows and the standardization stats to persist
// alongside the trained models.
type TrainingSet struct {
	Train *table.Table
	Test  *table.Table
	Stats map[string]Stats
}

// engineer runs the steps shared by training and inference: leading
// unobserved holiday rows are cut, holiday distances and rolling weather
// z-scores are added.
func (b *Builder) engineer(t *table.Table) (*table.Table, error) {
	out, err := SliceAtFirstObserved(t, ColFeiertagBayern)
	if err != nil {
		return nil, err
	}
	if err := AddNearestHolidayDistance(out); err != nil {
		return nil, err
	}
	if err := AddDailyMax(out, ZScoreColumns); err != nil {
		return nil, err
	}
	if err := AddRollingZScores(out, ZScoreColumns, b.windowDays); err != nil {
		return nil, err
	}
	return out, nil
}

// transform applies cyclic encoding, standardization, and dummy
// encoding in place.
func (b *Builder) transform(t *table.Table, std *Standardizer, fit bool) error {
	for _, col := range CyclicColumns {
		if err := CyclicEncode(t, col); err != nil {
			return err
		}
	}
	if fit {
		if err := std.Fit(t, StandardizeColumns); err != nil {
			return err
		}
	}
	if err := std.Transform(t); err != nil {
		return err
	}
	return DummyEncode(t)
}

// BuildTraining produces the train and test tables for the fixed date
// split. The input is the joined hourly table carrying visitor-center
// context, weather, and the reconciled per-region counts. Standardization
// stats are fitted here and returned for reuse at inference.
func (b *Builder) BuildTraining(joined *table.Table, trainStart, trainEnd, testStart, testEnd time.Time) (*TrainingSet, error) {
	t := joined.SliceRange(trainStart, testEnd.AddDate(0, 0, 1))
	if t.Len() == 0 {
		return nil, fmt.Errorf("build training: no rows in %s..%s",
			trainStart.Format("2006-01-02"), testEnd.Format("2006-01-02"))
	}

	t, err := b.engineer(t)
	if err != nil {
		return nil, fmt.Errorf("build training: %w", err)
	}

	std := NewStandardizer()
	if err := b.transform(t, std, true); err != nil {
		return nil, fmt.Errorf("build training: %w", err)
	}

	selected, err := t.Select(append(FeatureNames(), Targets...)...)
	if err != nil {
		return nil, fmt.Errorf("build training: %w", err)
	}
	complete := selected.DropNullRows()
	b.logger.Info("training features built",
		"rows", complete.Len(),
		"dropped_incomplete", selected.Len()-complete.Len(),
		"features", len(FeatureNames()),
		"targets", len(Targets),
	)

	// Split boundaries are inclusive dates.
	return &TrainingSet{
		Train: complete.SliceRange(trainStart, trainEnd.AddDate(0, 0, 1)),
		Test:  complete.SliceRange(testStart, testEnd.AddDate(0, 0, 1)),
		Stats: std.Stats(),
	}, nil
}

// BuildInference produces the feature table for the forecast horizon
// [today, end). The input window must start well before today so the
// rolling z-scores have their trailing daily maxima; stats come from the
// training run whose models will consume these features.
func (b *Builder) BuildInference(joined *table.Table, stats map[string]Stats, today, end time.Time) (*table.Table, error) {
	t, err := b.engineer(joined.Clone())
	if err != nil {
		return nil, fmt.Errorf("build inference: %w", err)
	}

	if err := b.transform(t, NewStandardizerFromStats(stats), false); err != nil {
		return nil, fmt.Errorf("build inference: %w", err)
	}

	selected, err := t.Select(FeatureNames()...)
	if err != nil {
		return nil, fmt.Errorf("build inference: %w", err)
	}

	horizon := selected.SliceRange(today, end)
	complete := horizon.DropNullRows()
	if complete.Len() == 0 {
		return nil, fmt.Errorf("build inference: no complete feature rows in %s..%s",
			today.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	b.logger.Info("inference features built",
		"rows", complete.Len(),
		"dropped_incomplete", horizon.Len()-complete.Len(),
	)
	return complete, nil
}
