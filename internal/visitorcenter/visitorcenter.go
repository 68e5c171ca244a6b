// Package visitorcenter cleans the daily visitor-center records and
// expands them into the hourly timeline the join engine builds on. The
// records arrive as one row per calendar day with attendance, parking,
// holiday, and facility-opening columns.
package visitorcenter

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Storage names of the preprocessed visitor-center tables.
const (
	PreprocessedFolder = "preprocessed"
	DailyTableName     = "visitor_centers_daily"
	HourlyTableName    = "visitor_centers_hourly"
)

// Column names of the daily export.
const (
	ColSchulferienBayern = "Schulferien_Bayern"
	ColSchulferienCZ     = "Schulferien_CZ"
	ColFeiertagBayern    = "Feiertag_Bayern"
	ColFeiertagCZ        = "Feiertag_CZ"
	ColBesuchszahlenHEH  = "Besuchszahlen_HEH"
	ColWGMGeoeffnet      = "WGM_geoeffnet"
	ColParkplHEHPKW      = "Parkpl_HEH_PKW"
	ColWaldschmidthaus   = "Waldschmidthaus_geoeffnet"
)

// outlierColumns are the attendance and parking counts screened for
// implausible values.
var outlierColumns = []string{
	"Besuchszahlen_HEH",
	"Besuchszahlen_HZW",
	"Besuchszahlen_WGM",
	"Parkpl_HEH_PKW",
	"Parkpl_HEH_BUS",
	"Parkpl_HZW_PKW",
	"Parkpl_HZW_BUS",
}

// coerceColumns are columns that occasionally arrive as text and must be
// forced numeric, unparseable cells becoming missing values.
var coerceColumns = []string{ColParkplHEHPKW, ColWaldschmidthaus}

// outlierSigma is the band width for daily count screening; the counts
// are heavy-tailed on event days, so the band is deliberately wide.
const outlierSigma = 7.0

// weekdayNames translates time.Weekday into the German names the
// modeling features use.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Montag",
	time.Tuesday:   "Dienstag",
	time.Wednesday: "Mittwoch",
	time.Thursday:  "Donnerstag",
	time.Friday:    "Freitag",
	time.Saturday:  "Samstag",
	time.Sunday:    "Sonntag",
}

// Seasons by meteorological month.
const (
	SeasonSpring = "Frühling"
	SeasonSummer = "Sommer"
	SeasonAutumn = "Herbst"
	SeasonWinter = "Winter"
)

// Processor cleans and expands visitor-center data.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(logger *slog.Logger) *Processor {
	return &Processor{logger: logger}
}

// Stats reports what Process changed.
type Stats struct {
	CellsFixed      int
	CellsCoerced    int
	OutliersNulled  int
	TrailingDropped bool
}

// Process cleans the daily table in a copy, derives calendar features,
// nulls extreme outliers, and expands it 1:24 into an hourly table with
// an Hour column. Both the cleaned daily table and the hourly expansion
// are returned; the daily table serves ad-hoc queries, the hourly one
// feeds the join engine.
func (p *Processor) Process(daily *table.Table) (cleanedDaily, hourly *table.Table, stats Stats, err error) {
	t := daily.Clone()

	stats.CellsCoerced = coerceNumeric(t)
	fixed, err := applyKnownFixes(t)
	if err != nil {
		return nil, nil, stats, err
	}
	stats.CellsFixed = fixed

	if dropped := dropTrailingEmptyRow(&t); dropped {
		stats.TrailingDropped = true
	}
	t.SortByTime()

	if err := addCalendarFeatures(t); err != nil {
		return nil, nil, stats, err
	}
	stats.OutliersNulled = p.nullOutliers(t)

	hourly = expandHourly(t)
	p.logger.Info("visitor center data processed",
		"days", t.Len(),
		"hours", hourly.Len(),
		"cells_fixed", stats.CellsFixed,
		"outliers_nulled", stats.OutliersNulled,
	)
	return t, hourly, stats, nil
}

// coerceNumeric forces known mistyped columns to floats, turning
// unparseable cells into missing values.
func coerceNumeric(t *table.Table) int {
	coerced := 0
	for _, name := range coerceColumns {
		kind, ok := t.ColumnKind(name)
		if !ok || kind != table.KindString {
			continue
		}
		raw, _ := t.String(name)
		vals := make([]float64, len(raw))
		for i, s := range raw {
			if s == "" {
				vals[i] = table.Null()
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				vals[i] = table.Null()
				coerced++
				continue
			}
			vals[i] = v
		}
		t.Drop(name)
		t.AddFloat(name, vals) //nolint:errcheck // name was just dropped
	}
	return coerced
}

// applyKnownFixes repairs the recorded data-entry mistakes: a duplicated
// date, a school-holiday typo, an open flag keyed as 11, and fractional
// attendance counts.
func applyKnownFixes(t *table.Table) (int, error) {
	fixed := 0

	// The 2023-09-29 row was keyed with the 2021 date; the second
	// occurrence is the 2023 one.
	dup := time.Date(2021, 9, 29, 0, 0, 0, 0, time.UTC)
	seen := false
	for i, ts := range t.Time {
		if !sameDate(ts, dup) {
			continue
		}
		if seen {
			t.Time[i] = time.Date(2023, 9, 29, 0, 0, 0, 0, ts.Location())
			fixed++
			break
		}
		seen = true
	}

	if vals, ok := t.Float(ColSchulferienBayern); ok {
		typoDay := time.Date(2017, 4, 30, 0, 0, 0, 0, time.UTC)
		for i, ts := range t.Time {
			if sameDate(ts, typoDay) && vals[i] == 10 {
				vals[i] = 0
				fixed++
			}
		}
	}

	if vals, ok := t.Float(ColWGMGeoeffnet); ok {
		for i, v := range vals {
			if v == 11 {
				vals[i] = 1
				fixed++
			}
		}
	}

	if vals, ok := t.Float(ColBesuchszahlenHEH); ok {
		for i, v := range vals {
			if !table.IsNull(v) && v != math.Trunc(v) {
				vals[i] = math.Ceil(v)
				fixed++
			}
		}
	} else {
		return fixed, fmt.Errorf("visitor center data: missing column %q", ColBesuchszahlenHEH)
	}

	return fixed, nil
}

// dropTrailingEmptyRow removes the last row when every data column is
// missing; the export tool appends one.
func dropTrailingEmptyRow(t **table.Table) bool {
	tbl := *t
	n := tbl.Len()
	if n == 0 {
		return false
	}
	for _, name := range tbl.Columns() {
		kind, _ := tbl.ColumnKind(name)
		if kind == table.KindFloat {
			vals, _ := tbl.Float(name)
			if !table.IsNull(vals[n-1]) {
				return false
			}
		} else {
			vals, _ := tbl.String(name)
			if vals[n-1] != "" {
				return false
			}
		}
	}
	keep := make([]bool, n)
	for i := 0; i < n-1; i++ {
		keep[i] = true
	}
	*t = tbl.Filter(keep)
	return true
}

// addCalendarFeatures derives Tag, Monat, Jahr, Wochentag, Wochenende,
// and Jahreszeit from the date index.
func addCalendarFeatures(t *table.Table) error {
	n := t.Len()
	day := make([]float64, n)
	month := make([]float64, n)
	year := make([]float64, n)
	weekday := make([]string, n)
	weekend := make([]float64, n)
	season := make([]string, n)

	for i, ts := range t.Time {
		day[i] = float64(ts.Day())
		month[i] = float64(ts.Month())
		year[i] = float64(ts.Year())
		weekday[i] = weekdayNames[ts.Weekday()]
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			weekend[i] = 1
		}
		season[i] = SeasonOf(ts.Month())
	}

	t.Drop("Wochentag")
	for _, col := range []struct {
		name string
		vals []float64
	}{
		{"Tag", day}, {"Monat", month}, {"Jahr", year}, {"Wochenende", weekend},
	} {
		if err := t.AddFloat(col.name, col.vals); err != nil {
			return err
		}
	}
	if err := t.AddString("Wochentag", weekday); err != nil {
		return err
	}
	return t.AddString("Jahreszeit", season)
}

// SeasonOf maps a month to its meteorological season name.
func SeasonOf(m time.Month) string {
	switch m {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// nullOutliers replaces values beyond outlierSigma standard deviations
// of their column mean with missing values.
func (p *Processor) nullOutliers(t *table.Table) int {
	nulled := 0
	for _, name := range outlierColumns {
		vals, ok := t.Float(name)
		if !ok {
			p.logger.Warn("outlier screening skipped, column missing", "column", name)
			continue
		}
		present := make([]float64, 0, len(vals))
		for _, v := range vals {
			if !table.IsNull(v) {
				present = append(present, v)
			}
		}
		if len(present) < 2 {
			continue
		}
		mean, std := stat.MeanStdDev(present, nil)
		lo, hi := mean-outlierSigma*std, mean+outlierSigma*std
		for i, v := range vals {
			if !table.IsNull(v) && (v < lo || v > hi) {
				vals[i] = table.Null()
				nulled++
			}
		}
	}
	return nulled
}

// expandHourly repeats every daily row 24 times, one per hour, and adds
// the Hour column.
func expandHourly(t *table.Table) *table.Table {
	n := t.Len()
	times := make([]time.Time, 0, n*24)
	hour := make([]float64, 0, n*24)
	idx := make([]int, 0, n*24)
	for i, ts := range t.Time {
		for h := 0; h < 24; h++ {
			times = append(times, ts.Add(time.Duration(h)*time.Hour))
			hour = append(hour, float64(h))
			idx = append(idx, i)
		}
	}

	out := table.New(times)
	for _, name := range t.Columns() {
		kind, _ := t.ColumnKind(name)
		if kind == table.KindFloat {
			src, _ := t.Float(name)
			vals := make([]float64, len(idx))
			for i, j := range idx {
				vals[i] = src[j]
			}
			out.AddFloat(name, vals) //nolint:errcheck // fresh table
		} else {
			src, _ := t.String(name)
			vals := make([]string, len(idx))
			for i, j := range idx {
				vals[i] = src[j]
			}
			out.AddString(name, vals) //nolint:errcheck
		}
	}
	out.AddFloat("Hour", hour) //nolint:errcheck
	return out
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
