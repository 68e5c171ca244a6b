package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/parking"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
)

func testServer(t *testing.T) (*Server, *State) {
	t.Helper()
	state := NewState()
	return NewServer("127.0.0.1:0", state, slog.New(slog.DiscardHandler)), state
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func forecastFixture(t *testing.T) *table.Table {
	t.Helper()
	times := []time.Time{
		time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 20, 1, 0, 0, 0, time.UTC),
	}
	tbl := table.New(times)
	require.NoError(t, tbl.AddFloat("traffic_abs", []float64{120, table.Null()}))
	require.NoError(t, tbl.AddString("traffic_color_Rachel-Spiegelau", []string{"green", "red"}))
	return tbl
}

func TestHealthz(t *testing.T) {
	s, _ := testServer(t)
	rec, body := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReflectsForecastState(t *testing.T) {
	s, state := testServer(t)

	rec, _ := get(t, s, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	state.SetForecasts(forecastFixture(t), time.Now())
	rec, body := get(t, s, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])
}

func TestForecastsEndpoint(t *testing.T) {
	s, state := testServer(t)

	rec, _ := get(t, s, "/api/forecasts")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	at := time.Date(2024, 4, 20, 6, 0, 0, 0, time.UTC)
	state.SetForecasts(forecastFixture(t), at)

	rec, body := get(t, s, "/api/forecasts")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-04-20T06:00:00Z", body["refreshed_at"])

	rows := body["rows"].([]any)
	require.Len(t, rows, 2)

	first := rows[0].(map[string]any)
	assert.Equal(t, "2024-04-20 00:00:00", first["time"])
	assert.Equal(t, 120.0, first["traffic_abs"])
	assert.Equal(t, "green", first["traffic_color_Rachel-Spiegelau"])

	second := rows[1].(map[string]any)
	assert.Nil(t, second["traffic_abs"], "missing values are null, not NaN")
}

func TestParkingEndpoint(t *testing.T) {
	s, state := testServer(t)

	rec, _ := get(t, s, "/api/parking")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	snaps := []parking.Snapshot{{
		Lot:           parking.Lots[0],
		Time:          time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Occupancy:     40,
		Capacity:      100,
		OccupancyRate: 40,
	}, {
		Lot:           parking.Lots[1],
		Time:          time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Occupancy:     table.Null(),
		Capacity:      table.Null(),
		OccupancyRate: table.Null(),
	}}
	state.SetParking(snaps, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	rec, body := get(t, s, "/api/parking")
	require.Equal(t, http.StatusOK, rec.Code)

	lots := body["lots"].([]any)
	require.Len(t, lots, 2)

	first := lots[0].(map[string]any)
	assert.Equal(t, parking.Lots[0].Slug, first["slug"])
	assert.Equal(t, 40.0, first["occupancy"])

	second := lots[1].(map[string]any)
	assert.Nil(t, second["occupancy"], "sensor silence serializes as null")
}

func TestWeatherEndpoint(t *testing.T) {
	s, state := testServer(t)

	times := []time.Time{time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)}
	tbl := table.New(times)
	require.NoError(t, tbl.AddFloat("Temperature (°C)", []float64{11.5}))
	state.SetWeather(tbl, time.Date(2024, 4, 20, 6, 0, 0, 0, time.UTC))

	rec, body := get(t, s, "/api/weather")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 11.5, rows[0].(map[string]any)["Temperature (°C)"])
}

func TestRefreshParkingPopulatesState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"@graph":[{"dcls:currentOccupancy":12,"dcls:currentCapacity":60,"dcls:currentOccupancyRate":20}]}`)
	}))
	t.Cleanup(server.Close)

	logger := slog.New(slog.DiscardHandler)
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	client := parking.NewClient(server.URL, "token", 5*time.Second, clock, metrics, logger)
	svc := parking.NewService(client, storage.NewLocal(t.TempDir(), logger), logger)

	state := NewState()
	refresher := NewRefresher(state, svc, nil, nil, nil, nil, clock,
		15*time.Minute, 3*time.Hour, metrics, logger)

	require.NoError(t, refresher.RefreshParking(context.Background()))

	snaps, at := state.Parking()
	require.Len(t, snaps, len(parking.Lots))
	assert.Equal(t, 12.0, snaps[0].Occupancy)
	assert.Equal(t, clock.Now(), at)
}
