package weather

import (
	"log/slog"
	"math"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// zeroFillThreshold is the share of zero values above which a gappy
// column is zero-filled instead of interpolated. Sunshine duration and
// precipitation are zero most hours, so interpolating across their gaps
// would invent weather.
const zeroFillThreshold = 0.6

// Imputer fills gaps in sourced weather tables.
type Imputer struct {
	logger *slog.Logger
}

// NewImputer creates an Imputer.
func NewImputer(logger *slog.Logger) *Imputer {
	return &Imputer{logger: logger}
}

// Impute fills missing values in place, column by column: mostly-zero
// columns are zero-filled, string columns are forward-filled, numeric
// columns are linearly interpolated across interior gaps with results
// rounded to two decimals. Leading and trailing gaps of numeric columns
// stay missing. The Time index itself cannot have gaps represented, so
// a missing timestamp is a sourcing failure upstream of this step.
func (im *Imputer) Impute(t *table.Table) {
	n := t.Len()
	if n == 0 {
		return
	}
	for _, name := range t.Columns() {
		kind, _ := t.ColumnKind(name)
		if kind == table.KindString {
			vals, _ := t.String(name)
			filled := forwardFill(vals)
			if filled > 0 {
				im.logger.Debug("categorical gaps forward filled", "column", name, "filled", filled)
			}
			continue
		}

		vals, _ := t.Float(name)
		missing, zeros := 0, 0
		for _, v := range vals {
			if table.IsNull(v) {
				missing++
			} else if v == 0 {
				zeros++
			}
		}
		if missing == 0 {
			continue
		}
		if float64(zeros)/float64(n) > zeroFillThreshold {
			for i, v := range vals {
				if table.IsNull(v) {
					vals[i] = 0
				}
			}
			im.logger.Debug("gaps zero filled", "column", name, "filled", missing)
			continue
		}
		filled := interpolateLinear(vals)
		im.logger.Debug("gaps interpolated", "column", name, "filled", filled, "missing", missing)
	}
}

// forwardFill replaces "" with the previous non-empty value.
func forwardFill(vals []string) int {
	filled := 0
	last := ""
	for i, v := range vals {
		if v == "" {
			if last != "" {
				vals[i] = last
				filled++
			}
			continue
		}
		last = v
	}
	return filled
}

// interpolateLinear fills interior NaN runs by linear interpolation
// between the surrounding values, rounded to two decimals.
func interpolateLinear(vals []float64) int {
	filled := 0
	prev := -1
	for i, v := range vals {
		if table.IsNull(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - vals[prev]) / float64(i-prev)
			for j := prev + 1; j < i; j++ {
				vals[j] = round2(vals[prev] + step*float64(j-prev))
				filled++
			}
		}
		prev = i
	}
	return filled
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
