package weather

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npbw/visitor-pipeline/internal/table"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestFetchHourly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "48.9239", r.URL.Query().Get("lat"))
		assert.Equal(t, "13.4616", r.URL.Query().Get("lon"))
		w.Write([]byte(`{"hourly": [
			{"time": "2024-05-01T10:00:00", "temp": 14.2, "rhum": 61, "prcp": 0, "wspd": 8.5, "tsun": 40, "coco": 2},
			{"time": "2024-05-01T11:00:00", "temp": null, "rhum": 60, "prcp": 0.2, "wspd": 9.1, "tsun": 12, "coco": 25}
		]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, testLogger())
	got, err := client.FetchHourly(context.Background(),
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())

	temp, _ := got.Float(ColTemperature)
	assert.Equal(t, 14.2, temp[0])
	assert.True(t, math.IsNaN(temp[1]))

	// Condition codes come back grouped: 2=Fair -> clear class, 25=Thunderstorm -> stormy class.
	coco, _ := got.Float(ColCoco)
	assert.Equal(t, 1.0, coco[0])
	assert.Equal(t, 6.0, coco[1])
}

func TestFetchHourlyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := client.FetchHourly(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchHourlyEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second, testLogger())
	_, err := client.FetchHourly(context.Background(), time.Now(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no hourly data")
}

func TestGroupConditionCode(t *testing.T) {
	tests := []struct {
		code     int
		expected float64
	}{
		{1, 1}, {2, 1},
		{3, 2}, {5, 2},
		{7, 3}, {19, 3},
		{14, 4}, {22, 4},
		{6, 5}, {13, 5},
		{23, 6}, {27, 6},
	}
	for _, tt := range tests {
		code := tt.code
		assert.Equal(t, tt.expected, groupConditionCode(&code), "code %d", tt.code)
	}

	assert.True(t, table.IsNull(groupConditionCode(nil)))
	unknown := 99
	assert.True(t, table.IsNull(groupConditionCode(&unknown)))
}

func hourlyTimes(n int) []time.Time {
	times := make([]time.Time, n)
	for i := range times {
		times[i] = time.Date(2024, 5, 1, i, 0, 0, 0, time.UTC)
	}
	return times
}

func TestImputeInterpolatesInteriorGaps(t *testing.T) {
	tbl := table.New(hourlyTimes(5))
	require.NoError(t, tbl.AddFloat(ColTemperature, []float64{10, table.Null(), table.Null(), 13, table.Null()}))

	NewImputer(testLogger()).Impute(tbl)

	vals, _ := tbl.Float(ColTemperature)
	assert.Equal(t, 10.0, vals[0])
	assert.Equal(t, 11.0, vals[1])
	assert.Equal(t, 12.0, vals[2])
	assert.Equal(t, 13.0, vals[3])
	assert.True(t, math.IsNaN(vals[4]), "trailing gap stays missing")
}

func TestImputeRoundsInterpolation(t *testing.T) {
	tbl := table.New(hourlyTimes(3))
	require.NoError(t, tbl.AddFloat(ColTemperature, []float64{10, table.Null(), 10.05}))

	NewImputer(testLogger()).Impute(tbl)

	vals, _ := tbl.Float(ColTemperature)
	assert.Equal(t, 10.03, vals[1])
}

func TestImputeZeroFillsMostlyZeroColumns(t *testing.T) {
	tbl := table.New(hourlyTimes(10))
	vals := []float64{0, 0, 0, 0, 0, 0, 0, 5, table.Null(), table.Null()}
	require.NoError(t, tbl.AddFloat(ColSunshine, vals))

	NewImputer(testLogger()).Impute(tbl)

	got, _ := tbl.Float(ColSunshine)
	assert.Equal(t, 0.0, got[8])
	assert.Equal(t, 0.0, got[9])
}

func TestImputeForwardFillsCategorical(t *testing.T) {
	tbl := table.New(hourlyTimes(4))
	require.NoError(t, tbl.AddString("Wochentag", []string{"", "Montag", "", "Dienstag"}))

	NewImputer(testLogger()).Impute(tbl)

	got, _ := tbl.String("Wochentag")
	assert.Equal(t, []string{"", "Montag", "Montag", "Dienstag"}, got)
}
