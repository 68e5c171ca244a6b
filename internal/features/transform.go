package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// zScoreEpsilon keeps the z-score denominator away from zero when a
// window has constant daily maxima.
const zScoreEpsilon = 1e-8

// SliceAtFirstObserved drops the leading rows where the given column is
// null. Holiday flags only start mid-series, so everything before the
// first observation carries no usable calendar signal.
func SliceAtFirstObserved(t *table.Table, column string) (*table.Table, error) {
	vals, ok := t.Float(column)
	if !ok {
		return nil, fmt.Errorf("slice at first observed: column %q not found", column)
	}
	first := -1
	for i, v := range vals {
		if !table.IsNull(v) {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("slice at first observed: column %q is entirely null", column)
	}
	keep := make([]bool, t.Len())
	for i := first; i < t.Len(); i++ {
		keep[i] = true
	}
	return t.Filter(keep), nil
}

func dateOf(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// AddNearestHolidayDistance adds the distance in days to the nearest
// holiday for both jurisdictions. A jurisdiction without any flagged
// holiday yields a null column.
func AddNearestHolidayDistance(t *table.Table) error {
	for _, jur := range []struct {
		flag, out string
	}{
		{ColFeiertagBayern, ColDistanceBayern},
		{ColFeiertagCZ, ColDistanceCZ},
	} {
		flags, ok := t.Float(jur.flag)
		if !ok {
			return fmt.Errorf("holiday distance: column %q not found", jur.flag)
		}

		holidaySet := make(map[time.Time]struct{})
		for i, v := range flags {
			if !table.IsNull(v) && v != 0 {
				holidaySet[dateOf(t.Time[i])] = struct{}{}
			}
		}
		holidays := make([]time.Time, 0, len(holidaySet))
		for d := range holidaySet {
			holidays = append(holidays, d)
		}
		sort.Slice(holidays, func(a, b int) bool { return holidays[a].Before(holidays[b]) })

		dist := table.Nulls(t.Len())
		if len(holidays) > 0 {
			byDate := make(map[time.Time]float64)
			for i := range t.Time {
				d := dateOf(t.Time[i])
				v, ok := byDate[d]
				if !ok {
					v = nearestDistanceDays(d, holidays)
					byDate[d] = v
				}
				dist[i] = v
			}
		}
		if err := t.AddFloat(jur.out, dist); err != nil {
			return err
		}
	}
	return nil
}

func nearestDistanceDays(d time.Time, sorted []time.Time) float64 {
	i := sort.Search(len(sorted), func(j int) bool { return !sorted[j].Before(d) })
	best := math.Inf(1)
	if i < len(sorted) {
		best = math.Min(best, sorted[i].Sub(d).Hours()/24)
	}
	if i > 0 {
		best = math.Min(best, d.Sub(sorted[i-1]).Hours()/24)
	}
	return math.Floor(best)
}

// AddDailyMax adds Daily_Max_<col> columns holding each calendar day's
// maximum, broadcast to every hour of the day. Null readings are
// ignored; an all-null day stays null.
func AddDailyMax(t *table.Table, columns []string) error {
	for _, col := range columns {
		vals, ok := t.Float(col)
		if !ok {
			return fmt.Errorf("daily max: column %q not found", col)
		}
		maxByDate := make(map[time.Time]float64)
		for i, v := range vals {
			if table.IsNull(v) {
				continue
			}
			d := dateOf(t.Time[i])
			if cur, ok := maxByDate[d]; !ok || v > cur {
				maxByDate[d] = v
			}
		}
		out := table.Nulls(t.Len())
		for i := range t.Time {
			if v, ok := maxByDate[dateOf(t.Time[i])]; ok {
				out[i] = v
			}
		}
		if err := t.AddFloat("Daily_Max_"+col, out); err != nil {
			return err
		}
	}
	return nil
}

// AddRollingZScores replaces the Daily_Max_<col> columns with
// ZScore_Daily_Max_<col>: each day's maximum scored against the rolling
// mean and standard deviation of the trailing window of daily maxima.
// Windows shorter than windowDays, or containing a null day, score null;
// callers drop residual-null rows afterwards.
func AddRollingZScores(t *table.Table, columns []string, windowDays int) error {
	dates := make([]time.Time, 0)
	seen := make(map[time.Time]int)
	for _, ts := range t.Time {
		d := dateOf(ts)
		if _, ok := seen[d]; !ok {
			seen[d] = len(dates)
			dates = append(dates, d)
		}
	}

	for _, col := range columns {
		dailyName := "Daily_Max_" + col
		hourly, ok := t.Float(dailyName)
		if !ok {
			return fmt.Errorf("rolling z-score: column %q not found", dailyName)
		}

		daily := table.Nulls(len(dates))
		for i, v := range hourly {
			daily[seen[dateOf(t.Time[i])]] = v
		}

		scores := table.Nulls(len(dates))
		window := make([]float64, 0, windowDays)
		for i := windowDays - 1; i < len(daily); i++ {
			window = window[:0]
			complete := true
			for j := i - windowDays + 1; j <= i; j++ {
				if table.IsNull(daily[j]) {
					complete = false
					break
				}
				window = append(window, daily[j])
			}
			if !complete {
				continue
			}
			mean, std := stat.MeanStdDev(window, nil)
			scores[i] = (daily[i] - mean) / (std + zScoreEpsilon)
		}

		out := table.Nulls(t.Len())
		for i := range t.Time {
			out[i] = scores[seen[dateOf(t.Time[i])]]
		}
		t.Drop(dailyName)
		if err := t.AddFloat("ZScore_"+dailyName, out); err != nil {
			return err
		}
	}
	return nil
}

// CyclicEncode adds <col>_sin and <col>_cos with period equal to the
// observed maximum, then drops the original column. String columns are
// first mapped to alphabetical category codes.
func CyclicEncode(t *table.Table, column string) error {
	var vals []float64
	kind, ok := t.ColumnKind(column)
	if !ok {
		return fmt.Errorf("cyclic encode: column %q not found", column)
	}
	if kind == table.KindString {
		raw, _ := t.String(column)
		vals = categoryCodes(raw)
	} else {
		src, _ := t.Float(column)
		vals = src
	}

	maxVal := math.Inf(-1)
	for _, v := range vals {
		if !table.IsNull(v) && v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(maxVal, -1) || maxVal == 0 {
		return fmt.Errorf("cyclic encode: column %q has no positive values", column)
	}

	sin := table.Nulls(t.Len())
	cos := table.Nulls(t.Len())
	for i, v := range vals {
		if table.IsNull(v) {
			continue
		}
		angle := 2 * math.Pi * v / maxVal
		sin[i] = math.Sin(angle)
		cos[i] = math.Cos(angle)
	}
	t.Drop(column)
	if err := t.AddFloat(column+"_sin", sin); err != nil {
		return err
	}
	return t.AddFloat(column+"_cos", cos)
}

// categoryCodes maps distinct strings to 0..k-1 in alphabetical order,
// empty strings to null.
func categoryCodes(vals []string) []float64 {
	uniq := make(map[string]struct{})
	for _, v := range vals {
		if v != "" {
			uniq[v] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(uniq))
	for v := range uniq {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)
	codes := make(map[string]float64, len(sorted))
	for i, v := range sorted {
		codes[v] = float64(i)
	}

	out := table.Nulls(len(vals))
	for i, v := range vals {
		if v != "" {
			out[i] = codes[v]
		}
	}
	return out
}

// Stats carries the standardization parameters of one feature.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Standardizer z-normalizes numeric features. Fit once on the training
// data; the stored stats are reapplied verbatim at inference, so a
// feature is never standardized against two different distributions.
type Standardizer struct {
	stats map[string]Stats
}

// NewStandardizer creates an unfitted Standardizer.
func NewStandardizer() *Standardizer {
	return &Standardizer{}
}

// NewStandardizerFromStats restores a Standardizer from persisted stats.
func NewStandardizerFromStats(stats map[string]Stats) *Standardizer {
	return &Standardizer{stats: stats}
}

// Stats returns the fitted parameters, nil before Fit.
func (s *Standardizer) Stats() map[string]Stats { return s.stats }

// Fit computes mean and standard deviation per column. Fitting twice is
// an error.
func (s *Standardizer) Fit(t *table.Table, columns []string) error {
	if s.stats != nil {
		return fmt.Errorf("standardizer already fitted")
	}
	stats := make(map[string]Stats, len(columns))
	for _, col := range columns {
		vals, ok := t.Float(col)
		if !ok {
			return fmt.Errorf("standardize fit: column %q not found", col)
		}
		present := make([]float64, 0, len(vals))
		for _, v := range vals {
			if !table.IsNull(v) {
				present = append(present, v)
			}
		}
		if len(present) < 2 {
			return fmt.Errorf("standardize fit: column %q has %d values", col, len(present))
		}
		mean, std := stat.MeanStdDev(present, nil)
		if std == 0 {
			return fmt.Errorf("standardize fit: column %q is constant", col)
		}
		stats[col] = Stats{Mean: mean, Std: std}
	}
	s.stats = stats
	return nil
}

// Transform applies the fitted stats in place.
func (s *Standardizer) Transform(t *table.Table) error {
	if s.stats == nil {
		return fmt.Errorf("standardizer not fitted")
	}
	for col, st := range s.stats {
		vals, ok := t.Float(col)
		if !ok {
			return fmt.Errorf("standardize: column %q not found", col)
		}
		for i, v := range vals {
			if !table.IsNull(v) {
				vals[i] = (v - st.Mean) / st.Std
			}
		}
	}
	return nil
}

// cocoDummies maps condition classes to dummy column names, in schema
// order.
var cocoDummies = []struct {
	class float64
	name  string
}{
	{1, "sunny"}, {2, "cloudy"}, {3, "rainy"},
	{4, "snowy"}, {5, "extreme"}, {6, "stormy"},
}

// seasonDummies is the fixed season vocabulary.
var seasonDummies = []string{"Frühling", "Sommer", "Herbst", "Winter"}

// DummyEncode expands coco_2 and Jahreszeit into fixed-vocabulary 0/1
// columns and drops the originals. Absent categories still produce
// all-zero columns so the schema width never varies.
func DummyEncode(t *table.Table) error {
	coco, ok := t.Float("coco_2")
	if !ok {
		return fmt.Errorf("dummy encode: column %q not found", "coco_2")
	}
	for _, d := range cocoDummies {
		vals := make([]float64, t.Len())
		for i, v := range coco {
			if !table.IsNull(v) && v == d.class {
				vals[i] = 1
			}
		}
		if err := t.AddFloat(d.name, vals); err != nil {
			return err
		}
	}

	season, ok := t.String("Jahreszeit")
	if !ok {
		return fmt.Errorf("dummy encode: column %q not found", "Jahreszeit")
	}
	for _, name := range seasonDummies {
		vals := make([]float64, t.Len())
		for i, v := range season {
			if v == name {
				vals[i] = 1
			}
		}
		if err := t.AddFloat(name, vals); err != nil {
			return err
		}
	}

	t.Drop("coco_2", "Jahreszeit")
	return nil
}
