package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npbw/visitor-pipeline/internal/table"
	"github.com/npbw/visitor-pipeline/internal/weather"
)

func dayIndex(start time.Time, days int) []time.Time {
	times := make([]time.Time, days)
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	return times
}

func TestLeftJoinPreservesLeftRows(t *testing.T) {
	leftTimes := []time.Time{
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	left := table.New(leftTimes)
	require.NoError(t, left.AddFloat("visitors", []float64{5, 6, 7}))

	right := table.New([]time.Time{leftTimes[0], leftTimes[2]})
	require.NoError(t, right.AddFloat("temp", []float64{14.5, 16}))
	require.NoError(t, right.AddString("weekday", []string{"Mittwoch", "Mittwoch"}))

	joined, err := LeftJoin(left, right)
	require.NoError(t, err)
	require.Equal(t, 3, joined.Len())

	temp, _ := joined.Float("temp")
	assert.Equal(t, 14.5, temp[0])
	assert.True(t, math.IsNaN(temp[1]), "hour missing on the right stays null")
	assert.Equal(t, 16.0, temp[2])

	weekday, _ := joined.String("weekday")
	assert.Equal(t, []string{"Mittwoch", "", "Mittwoch"}, weekday)
}

func TestLeftJoinRejectsCollidingColumns(t *testing.T) {
	times := []time.Time{time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	left := table.New(times)
	require.NoError(t, left.AddFloat("temp", []float64{1}))
	right := table.New(times)
	require.NoError(t, right.AddFloat("temp", []float64{2}))

	_, err := LeftJoin(left, right)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"temp"`)
}

func TestSliceAtFirstObserved(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 4))
	require.NoError(t, tbl.AddFloat(ColFeiertagBayern, []float64{table.Null(), table.Null(), 0, 1}))

	got, err := SliceAtFirstObserved(tbl, ColFeiertagBayern)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), got.Time[0])

	require.NoError(t, tbl.AddFloat("empty", table.Nulls(4)))
	_, err = SliceAtFirstObserved(tbl, "empty")
	require.Error(t, err)
}

func TestAddNearestHolidayDistance(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 7))
	// Holiday on May 3rd in Bavaria, none in CZ.
	require.NoError(t, tbl.AddFloat(ColFeiertagBayern, []float64{0, 0, 1, 0, 0, 0, 0}))
	require.NoError(t, tbl.AddFloat(ColFeiertagCZ, []float64{0, 0, 0, 0, 0, 0, 0}))

	require.NoError(t, AddNearestHolidayDistance(tbl))

	bayern, _ := tbl.Float(ColDistanceBayern)
	assert.Equal(t, []float64{2, 1, 0, 1, 2, 3, 4}, bayern)

	cz, _ := tbl.Float(ColDistanceCZ)
	for _, v := range cz {
		assert.True(t, math.IsNaN(v), "no flagged holiday yields null distances")
	}
}

func TestAddDailyMaxBroadcastsToHours(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC),
	}
	tbl := table.New(times)
	require.NoError(t, tbl.AddFloat(weather.ColTemperature, []float64{12, 19, table.Null()}))

	require.NoError(t, AddDailyMax(tbl, []string{weather.ColTemperature}))

	daily, _ := tbl.Float("Daily_Max_" + weather.ColTemperature)
	assert.Equal(t, 19.0, daily[0])
	assert.Equal(t, 19.0, daily[1])
	assert.True(t, math.IsNaN(daily[2]), "all-null day stays null")
}

func TestAddRollingZScores(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 7))
	require.NoError(t, tbl.AddFloat(weather.ColTemperature, []float64{10, 12, 11, 13, 14, 9, 15}))
	require.NoError(t, AddDailyMax(tbl, []string{weather.ColTemperature}))

	require.NoError(t, AddRollingZScores(tbl, []string{weather.ColTemperature}, 5))

	assert.False(t, tbl.Has("Daily_Max_"+weather.ColTemperature))
	scores, ok := tbl.Float("ZScore_Daily_Max_" + weather.ColTemperature)
	require.True(t, ok)

	for i := 0; i < 4; i++ {
		assert.True(t, math.IsNaN(scores[i]), "day %d is inside the warm-up window", i)
	}
	assert.InDelta(t, 1.2649, scores[4], 1e-3)
	assert.InDelta(t, -1.4557, scores[5], 1e-3)
	assert.InDelta(t, 1.0796, scores[6], 1e-3)
}

func TestAddRollingZScoresNullDayPoisonsWindow(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 6))
	require.NoError(t, tbl.AddFloat(weather.ColTemperature, []float64{10, table.Null(), 11, 13, 14, 9}))
	require.NoError(t, AddDailyMax(tbl, []string{weather.ColTemperature}))

	require.NoError(t, AddRollingZScores(tbl, []string{weather.ColTemperature}, 5))

	scores, _ := tbl.Float("ZScore_Daily_Max_" + weather.ColTemperature)
	assert.True(t, math.IsNaN(scores[4]), "window containing the null day scores null")
	assert.True(t, math.IsNaN(scores[5]))
}

func TestCyclicEncodeRoundTrip(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 24))
	hours := make([]float64, 24)
	for i := range hours {
		hours[i] = float64(i)
	}
	require.NoError(t, tbl.AddFloat("Hour", hours))

	require.NoError(t, CyclicEncode(tbl, "Hour"))
	assert.False(t, tbl.Has("Hour"))

	sin, _ := tbl.Float("Hour_sin")
	cos, _ := tbl.Float("Hour_cos")
	// atan2 recovers the original value modulo the period.
	for i := 1; i < 23; i++ {
		angle := math.Atan2(sin[i], cos[i])
		if angle < 0 {
			angle += 2 * math.Pi
		}
		recovered := angle * 23 / (2 * math.Pi)
		assert.InDelta(t, float64(i), recovered, 1e-9, "hour %d", i)
	}
}

func TestCyclicEncodeStringColumnUsesCategoryCodes(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 3))
	require.NoError(t, tbl.AddString("Wochentag", []string{"Montag", "Dienstag", "Sonntag"}))

	require.NoError(t, CyclicEncode(tbl, "Wochentag"))

	// Alphabetical codes: Dienstag=0, Montag=1, Sonntag=2; period 2.
	sin, _ := tbl.Float("Wochentag_sin")
	cos, _ := tbl.Float("Wochentag_cos")
	assert.InDelta(t, 0, sin[0], 1e-9, "Montag sits at half the period")
	assert.InDelta(t, -1, cos[0], 1e-9)
	assert.InDelta(t, 1, cos[1], 1e-9, "Dienstag is the zero angle")
	assert.InDelta(t, 1, cos[2], 1e-9, "Sonntag wraps to a full period")
}

func TestStandardizerFitTransform(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 4))
	require.NoError(t, tbl.AddFloat(weather.ColTemperature, []float64{10, 12, 14, 16}))

	std := NewStandardizer()
	require.NoError(t, std.Fit(tbl, []string{weather.ColTemperature}))
	require.NoError(t, std.Transform(tbl))

	vals, _ := tbl.Float(weather.ColTemperature)
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-9, "standardized values center on zero")
}

func TestStandardizerRefitIsAnError(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 3))
	require.NoError(t, tbl.AddFloat(weather.ColTemperature, []float64{10, 12, 14}))

	std := NewStandardizer()
	require.NoError(t, std.Fit(tbl, []string{weather.ColTemperature}))
	err := std.Fit(tbl, []string{weather.ColTemperature})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already fitted")
}

func TestStandardizerStoredStatsMatchTrainingTransform(t *testing.T) {
	data := []float64{10, 12, 14, 16}
	mkTable := func() *table.Table {
		tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 4))
		require.NoError(t, tbl.AddFloat(weather.ColTemperature, append([]float64(nil), data...)))
		return tbl
	}

	trained := mkTable()
	std := NewStandardizer()
	require.NoError(t, std.Fit(trained, []string{weather.ColTemperature}))
	require.NoError(t, std.Transform(trained))

	restored := mkTable()
	require.NoError(t, NewStandardizerFromStats(std.Stats()).Transform(restored))

	want, _ := trained.Float(weather.ColTemperature)
	got, _ := restored.Float(weather.ColTemperature)
	assert.Equal(t, want, got)
}

func TestStandardizerTransformUnfittedIsAnError(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 2))
	require.Error(t, NewStandardizer().Transform(tbl))
}

func TestDummyEncodeFixedVocabulary(t *testing.T) {
	tbl := table.New(dayIndex(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), 3))
	// A calm summer stretch: no storms observed anywhere in the slice.
	require.NoError(t, tbl.AddFloat("coco_2", []float64{1, 2, table.Null()}))
	require.NoError(t, tbl.AddString("Jahreszeit", []string{"Sommer", "Sommer", "Sommer"}))

	require.NoError(t, DummyEncode(tbl))

	assert.False(t, tbl.Has("coco_2"))
	assert.False(t, tbl.Has("Jahreszeit"))

	sunny, _ := tbl.Float("sunny")
	assert.Equal(t, []float64{1, 0, 0}, sunny)
	cloudy, _ := tbl.Float("cloudy")
	assert.Equal(t, []float64{0, 1, 0}, cloudy)

	// Absent categories still exist as all-zero columns.
	for _, name := range []string{"rainy", "snowy", "extreme", "stormy", "Frühling", "Herbst", "Winter"} {
		vals, ok := tbl.Float(name)
		require.True(t, ok, name)
		assert.Equal(t, []float64{0, 0, 0}, vals, name)
	}
	sommer, _ := tbl.Float("Sommer")
	assert.Equal(t, []float64{1, 1, 1}, sommer)
}
