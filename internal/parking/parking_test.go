package parking

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
)

func TestRepairClampsOccupancyToCapacity(t *testing.T) {
	got := Repair(Snapshot{Occupancy: 120, Capacity: 100, OccupancyRate: 120}, table.Null())
	assert.Equal(t, 100.0, got.Occupancy)
	assert.Equal(t, 100.0, got.OccupancyRate)
}

func TestRepairRecoversOccupancyFromRate(t *testing.T) {
	got := Repair(Snapshot{Occupancy: table.Null(), Capacity: 80, OccupancyRate: 25}, table.Null())
	assert.Equal(t, 20.0, got.Occupancy)
	assert.Equal(t, 25.0, got.OccupancyRate)
}

func TestRepairRecoversOccupancyFromHistory(t *testing.T) {
	got := Repair(Snapshot{Occupancy: table.Null(), Capacity: 50, OccupancyRate: table.Null()}, 0.4)
	assert.Equal(t, 20.0, got.Occupancy)
	assert.Equal(t, 40.0, got.OccupancyRate)
}

func TestRepairLeavesUnrecoverableMissing(t *testing.T) {
	got := Repair(Snapshot{Occupancy: table.Null(), Capacity: 50, OccupancyRate: table.Null()}, table.Null())
	assert.True(t, math.IsNaN(got.Occupancy))
}

func TestMeanFraction(t *testing.T) {
	occ := []float64{10, table.Null(), 30, 90}
	capacity := []float64{100, 100, 0, 60}
	// Rows 2 and 3 are skipped (zero capacity, overfull capped at 1):
	// (0.1 + 1.0) / 2.
	assert.InDelta(t, 0.55, MeanFraction(occ, capacity), 1e-9)

	assert.True(t, math.IsNaN(MeanFraction(nil, nil)))
	assert.True(t, math.IsNaN(MeanFraction([]float64{table.Null()}, []float64{100})))
}

func TestInterpolateHistory(t *testing.T) {
	vals := []float64{table.Null(), 10, table.Null(), table.Null(), 16, table.Null()}
	filled := InterpolateHistory(vals)
	assert.Equal(t, 2, filled)
	assert.Equal(t, 12.0, vals[2])
	assert.Equal(t, 14.0, vals[3])
	assert.True(t, math.IsNaN(vals[0]), "leading gap stays missing")
	assert.True(t, math.IsNaN(vals[5]), "trailing gap stays missing")
}

type lotReading struct {
	occupancy *float64
	capacity  *float64
	rate      *float64
}

func f(v float64) *float64 { return &v }

// occupancyServer serves a JSON-LD occupancy graph; the reading can be
// swapped between requests.
func occupancyServer(reading *lotReading) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"@graph":[{"dcls:currentOccupancy":%s,"dcls:currentCapacity":%s,"dcls:currentOccupancyRate":%s}]}`,
			jsonNumber(reading.occupancy), jsonNumber(reading.capacity), jsonNumber(reading.rate))
	}))
}

func jsonNumber(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%g", *v)
}

func testClient(t *testing.T, baseURL string, clock clockwork.Clock) *Client {
	t.Helper()
	return NewClient(baseURL, "test-token", 5*time.Second, clock,
		observability.NewMetricsForTesting(), slog.New(slog.DiscardHandler))
}

func TestFetchSnapshot(t *testing.T) {
	reading := &lotReading{occupancy: f(42), capacity: f(100), rate: f(42)}
	server := occupancyServer(reading)
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 10, 0, 30, 0, time.UTC))
	client := testClient(t, server.URL, clock)

	snap, err := client.FetchSnapshot(context.Background(), Lots[0])
	require.NoError(t, err)
	assert.Equal(t, Lots[0].Slug, snap.Lot.Slug)
	assert.Equal(t, 42.0, snap.Occupancy)
	assert.Equal(t, 100.0, snap.Capacity)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), snap.Time, "timestamps are minute aligned")
}

func TestFetchSnapshotMissingFieldsAreNull(t *testing.T) {
	reading := &lotReading{capacity: f(100)}
	server := occupancyServer(reading)
	t.Cleanup(server.Close)

	client := testClient(t, server.URL, clockwork.NewFakeClock())
	snap, err := client.FetchSnapshot(context.Background(), Lots[0])
	require.NoError(t, err)
	assert.True(t, math.IsNaN(snap.Occupancy))
	assert.True(t, math.IsNaN(snap.OccupancyRate))
	assert.Equal(t, 100.0, snap.Capacity)
}

func TestFetchSnapshotServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL, clockwork.NewFakeClock())
	_, err := client.FetchSnapshot(context.Background(), Lots[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetchSnapshotEmptyGraph(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"@graph":[]}`)
	}))
	t.Cleanup(server.Close)

	client := testClient(t, server.URL, clockwork.NewFakeClock())
	_, err := client.FetchSnapshot(context.Background(), Lots[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty graph")
}

func TestRefreshRepairsFromHistory(t *testing.T) {
	reading := &lotReading{occupancy: f(40), capacity: f(100), rate: f(40)}
	server := occupancyServer(reading)
	t.Cleanup(server.Close)

	logger := slog.New(slog.DiscardHandler)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	svc := NewService(testClient(t, server.URL, clock), storage.NewLocal(t.TempDir(), logger), logger)
	ctx := context.Background()

	// First round: complete readings seed the history.
	snaps, err := svc.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, len(Lots))
	assert.Equal(t, 40.0, snaps[0].Occupancy)

	// Second round: the sensor stops reporting occupancy and rate; the
	// reading is recovered from the historical fill fraction.
	clock.Advance(15 * time.Minute)
	*reading = lotReading{capacity: f(100)}
	snaps, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40.0, snaps[0].Occupancy)
	assert.Equal(t, 40.0, snaps[0].OccupancyRate)

	history, err := svc.History(ctx, Lots[0])
	require.NoError(t, err)
	assert.Equal(t, 2, history.Len())
}

func TestLotBySlug(t *testing.T) {
	lot, ok := LotBySlug("p-r-spiegelau-1")
	require.True(t, ok)
	assert.Equal(t, "ee0490b2-3cc5-4adb-a527-95267257598e", lot.SensorID)

	_, ok = LotBySlug("nope")
	assert.False(t, ok)
}
