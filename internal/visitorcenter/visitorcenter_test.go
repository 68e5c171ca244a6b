package visitorcenter

import (
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npbw/visitor-pipeline/internal/table"
)

func testProcessor() *Processor {
	return NewProcessor(slog.New(slog.DiscardHandler))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dailyFixture builds a minimal daily table with every column the
// cleaning rules touch.
func dailyFixture(times []time.Time) *table.Table {
	n := len(times)
	t := table.New(times)
	t.AddFloat(ColBesuchszahlenHEH, table.Floats(n, 100)) //nolint:errcheck
	t.AddFloat(ColSchulferienBayern, table.Floats(n, 0))  //nolint:errcheck
	t.AddFloat(ColWGMGeoeffnet, table.Floats(n, 1))       //nolint:errcheck
	return t
}

func TestProcessAppliesKnownFixes(t *testing.T) {
	times := []time.Time{
		day(2017, 4, 30),
		day(2021, 9, 29),
		day(2021, 9, 29), // mis-keyed, actually 2023
	}
	daily := dailyFixture(times)
	ferien, _ := daily.Float(ColSchulferienBayern)
	ferien[0] = 10 // typo for 0
	wgm, _ := daily.Float(ColWGMGeoeffnet)
	wgm[1] = 11 // typo for 1
	heh, _ := daily.Float(ColBesuchszahlenHEH)
	heh[2] = 41.3 // fractional count, rounded up

	cleaned, _, stats, err := testProcessor().Process(daily)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.CellsFixed)

	// Rows come back sorted, so the repaired 2023 date is last.
	assert.Equal(t, day(2023, 9, 29), cleaned.Time[2])

	ferien, _ = cleaned.Float(ColSchulferienBayern)
	assert.Equal(t, 0.0, ferien[0])
	wgm, _ = cleaned.Float(ColWGMGeoeffnet)
	assert.Equal(t, 1.0, wgm[1])
	heh, _ = cleaned.Float(ColBesuchszahlenHEH)
	assert.Equal(t, 42.0, heh[2])
}

func TestProcessCoercesTextColumns(t *testing.T) {
	daily := dailyFixture([]time.Time{day(2024, 5, 1), day(2024, 5, 2)})
	require.NoError(t, daily.AddString(ColParkplHEHPKW, []string{"120", "n/a"}))

	cleaned, _, stats, err := testProcessor().Process(daily)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CellsCoerced)

	vals, ok := cleaned.Float(ColParkplHEHPKW)
	require.True(t, ok)
	assert.Equal(t, 120.0, vals[0])
	assert.True(t, math.IsNaN(vals[1]))
}

func TestProcessDropsTrailingEmptyRow(t *testing.T) {
	daily := dailyFixture([]time.Time{day(2024, 5, 1), day(2024, 5, 2)})
	for _, name := range []string{ColBesuchszahlenHEH, ColSchulferienBayern, ColWGMGeoeffnet} {
		vals, _ := daily.Float(name)
		vals[1] = table.Null()
	}

	cleaned, _, stats, err := testProcessor().Process(daily)
	require.NoError(t, err)
	assert.True(t, stats.TrailingDropped)
	assert.Equal(t, 1, cleaned.Len())
}

func TestProcessCalendarFeatures(t *testing.T) {
	// 2024-05-04 is a Saturday.
	daily := dailyFixture([]time.Time{day(2024, 5, 3), day(2024, 5, 4)})

	cleaned, _, _, err := testProcessor().Process(daily)
	require.NoError(t, err)

	tag, _ := cleaned.Float("Tag")
	monat, _ := cleaned.Float("Monat")
	jahr, _ := cleaned.Float("Jahr")
	weekend, _ := cleaned.Float("Wochenende")
	weekday, _ := cleaned.String("Wochentag")
	season, _ := cleaned.String("Jahreszeit")

	assert.Equal(t, []float64{3, 4}, tag)
	assert.Equal(t, []float64{5, 5}, monat)
	assert.Equal(t, []float64{2024, 2024}, jahr)
	assert.Equal(t, []float64{0, 1}, weekend)
	assert.Equal(t, []string{"Freitag", "Samstag"}, weekday)
	assert.Equal(t, []string{SeasonSpring, SeasonSpring}, season)
}

func TestSeasonOf(t *testing.T) {
	assert.Equal(t, SeasonWinter, SeasonOf(time.December))
	assert.Equal(t, SeasonWinter, SeasonOf(time.February))
	assert.Equal(t, SeasonSpring, SeasonOf(time.March))
	assert.Equal(t, SeasonSummer, SeasonOf(time.July))
	assert.Equal(t, SeasonAutumn, SeasonOf(time.October))
}

func TestProcessNullsExtremeOutliers(t *testing.T) {
	// A single outlier among n points can reach at most (n-1)/sqrt(n)
	// sample standard deviations, so the fixture needs well over 51 rows
	// for a seven-sigma exceedance to be possible at all.
	times := make([]time.Time, 100)
	for i := range times {
		times[i] = day(2024, 1, 1).AddDate(0, 0, i)
	}
	daily := dailyFixture(times)
	heh, _ := daily.Float(ColBesuchszahlenHEH)
	heh[10] = 1e7 // far beyond seven sigma

	cleaned, _, stats, err := testProcessor().Process(daily)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OutliersNulled)

	heh, _ = cleaned.Float(ColBesuchszahlenHEH)
	assert.True(t, math.IsNaN(heh[10]))
	assert.Equal(t, 100.0, heh[0])
}

func TestProcessExpandsHourly(t *testing.T) {
	daily := dailyFixture([]time.Time{day(2024, 5, 1), day(2024, 5, 2)})

	_, hourly, _, err := testProcessor().Process(daily)
	require.NoError(t, err)
	require.Equal(t, 48, hourly.Len())

	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), hourly.Time[0])
	assert.Equal(t, time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), hourly.Time[23])
	assert.Equal(t, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), hourly.Time[24])

	hour, ok := hourly.Float("Hour")
	require.True(t, ok)
	assert.Equal(t, 0.0, hour[0])
	assert.Equal(t, 23.0, hour[23])

	// Daily values broadcast unchanged across the 24 hours.
	heh, _ := hourly.Float(ColBesuchszahlenHEH)
	assert.Equal(t, heh[0], heh[23])
}

func TestProcessMissingAttendanceColumnFails(t *testing.T) {
	daily := table.New([]time.Time{day(2024, 5, 1)})
	daily.AddFloat(ColSchulferienBayern, []float64{0}) //nolint:errcheck

	_, _, _, err := testProcessor().Process(daily)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColBesuchszahlenHEH)
}
