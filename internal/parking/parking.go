// Package parking sources real-time occupancy snapshots for the park's
// parking lots and keeps a per-lot history used to repair the readings
// the sensors fail to deliver.
package parking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/table"
)

// Lot is one monitored parking area. The sensor ID is the cloud-side
// identity; the slug is ours.
type Lot struct {
	Slug      string
	SensorID  string
	Latitude  float64
	Longitude float64
}

// Lots are the monitored parking areas. Fredenbrücke and the
// Zwieslerwaldhaus ski center are excluded: their sensors push data too
// irregularly to be useful.
var Lots = []Lot{
	{Slug: "parkplatz-graupsaege-1", SensorID: "e42069a6-702f-4ef4-b3b5-04e310d97ca0", Latitude: 48.9178, Longitude: 13.4013},
	{Slug: "p-r-spiegelau-1", SensorID: "ee0490b2-3cc5-4adb-a527-95267257598e", Latitude: 48.9151, Longitude: 13.3148},
	{Slug: "parkplatz-zwieslerwaldhaus-1", SensorID: "6c9b765e-1ff9-401d-98bc-b0302ee65c62", Latitude: 49.1046, Longitude: 13.2438},
	{Slug: "parkplatz-zwieslerwaldhaus-nord-1", SensorID: "4bbb3b5c-edc2-4b00-a923-91c1544aa29d", Latitude: 49.1095, Longitude: 13.2449},
	{Slug: "parkplatz-nationalparkzentrum-falkenstein-2", SensorID: "a93b64e9-35fb-4b3e-8348-81ba8f1c0d6f", Latitude: 49.06042, Longitude: 13.23583},
	{Slug: "scheidt-bachmann-parkplatz-1", SensorID: "144e1868-3051-4140-a83c-41d4b79a6d14", Latitude: 48.9346, Longitude: 13.32418},
	{Slug: "parkplatz-nationalparkzentrum-lusen-p2", SensorID: "454b0f50-130b-4c21-9db2-b163e158c847", Latitude: 48.8907, Longitude: 13.48924},
	{Slug: "parkplatz-waldhaeuser-kirche-1", SensorID: "454b0f50-130b-4c21-9db2-b163e158c847", Latitude: 48.92842, Longitude: 13.4624},
	{Slug: "parkplatz-waldhaeuser-ausblick-1", SensorID: "a14d8ebd-9261-49f7-875b-6a924fe34990", Latitude: 48.92796, Longitude: 13.47076},
	{Slug: "parkplatz-skisportzentrum-finsterau-1", SensorID: "ea474092-1064-4ae7-955e-8db099955c16", Latitude: 48.94129, Longitude: 13.57491},
}

// Snapshot is one occupancy reading for one lot. Missing values are NaN.
type Snapshot struct {
	Lot           Lot
	Time          time.Time
	Occupancy     float64
	Capacity      float64
	OccupancyRate float64 // percent
}

// Client fetches occupancy snapshots from the cloud occupancy endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a parking sourcing client.
func NewClient(baseURL, token string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// occupancyResponse mirrors the cloud payload: a JSON-LD graph whose
// first item carries the occupancy fields.
type occupancyResponse struct {
	Graph []struct {
		Occupancy     *float64 `json:"dcls:currentOccupancy"`
		Capacity      *float64 `json:"dcls:currentCapacity"`
		OccupancyRate *float64 `json:"dcls:currentOccupancyRate"`
	} `json:"@graph"`
}

// FetchSnapshot retrieves the current occupancy of one lot.
func (c *Client) FetchSnapshot(ctx context.Context, lot Lot) (Snapshot, error) {
	start := c.clock.Now()
	snap, err := c.fetch(ctx, lot)
	c.metrics.SourceRequestDuration.WithLabelValues("parking").Observe(c.clock.Since(start).Seconds())
	if err != nil {
		c.metrics.SourceRequests.WithLabelValues("parking", "error").Inc()
		return Snapshot{}, err
	}
	c.metrics.SourceRequests.WithLabelValues("parking", "success").Inc()
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, lot Lot) (Snapshot, error) {
	params := url.Values{"token": {c.token}}
	endpoint := fmt.Sprintf("%s/list_occupancy/%s?%s", c.baseURL, lot.Slug, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parking %s: create request: %w", lot.Slug, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("parking %s: %w", lot.Slug, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Snapshot{}, fmt.Errorf("parking %s: status %d: %s", lot.Slug, resp.StatusCode, body)
	}

	var or occupancyResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return Snapshot{}, fmt.Errorf("parking %s: decode response: %w", lot.Slug, err)
	}
	if len(or.Graph) == 0 {
		return Snapshot{}, fmt.Errorf("parking %s: empty graph in response", lot.Slug)
	}

	item := or.Graph[0]
	return Snapshot{
		Lot:           lot,
		Time:          c.clock.Now().UTC().Truncate(time.Minute),
		Occupancy:     floatOrNull(item.Occupancy),
		Capacity:      floatOrNull(item.Capacity),
		OccupancyRate: floatOrNull(item.OccupancyRate),
	}, nil
}

// FetchAll retrieves snapshots for every lot. Individual lot failures
// are logged and skipped; only a total failure is an error.
func (c *Client) FetchAll(ctx context.Context) ([]Snapshot, error) {
	snaps := make([]Snapshot, 0, len(Lots))
	for _, lot := range Lots {
		snap, err := c.FetchSnapshot(ctx, lot)
		if err != nil {
			c.logger.Warn("parking lot fetch failed", "lot", lot.Slug, "error", err)
			continue
		}
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("parking: all %d lot fetches failed", len(Lots))
	}
	return snaps, nil
}

func floatOrNull(v *float64) float64 {
	if v == nil {
		return table.Null()
	}
	return *v
}

func isNull(v float64) bool { return math.IsNaN(v) }
