// Package weather sources hourly weather for the park and prepares it
// for the join engine: condition codes are grouped into six classes and
// gaps are imputed.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Final column names of the hourly weather table.
const (
	ColTemperature = "Temperature (°C)"
	ColHumidity    = "Relative Humidity (%)"
	ColPrecip      = "Precipitation (mm)"
	ColWindSpeed   = "Wind Speed (km/h)"
	ColSunshine    = "Sunshine Duration (min)"
	ColCoco        = "coco_2"
)

// Park entry coordinates the weather point is anchored on.
const (
	parkLatitude  = 48.9239
	parkLongitude = 13.4616
)

// Client fetches hourly weather observations and forecasts over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a weather sourcing client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchHourly retrieves hourly weather for [start, end] and returns it as
// a table with the final column names and grouped condition classes. A
// failed fetch aborts the run; there is no retry.
func (c *Client) FetchHourly(ctx context.Context, start, end time.Time) (*table.Table, error) {
	params := url.Values{
		"lat":   {fmt.Sprintf("%.4f", parkLatitude)},
		"lon":   {fmt.Sprintf("%.4f", parkLongitude)},
		"start": {start.Format("2006-01-02T15:04:05")},
		"end":   {end.Format("2006-01-02T15:04:05")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather API error: status %d: %s", resp.StatusCode, body)
	}

	var wr response
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(wr.Hourly) == 0 {
		return nil, fmt.Errorf("weather API returned no hourly data for %s..%s",
			start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))
	}

	t, err := wr.toTable()
	if err != nil {
		return nil, fmt.Errorf("weather response: %w", err)
	}
	c.logger.Info("weather data fetched",
		"rows", t.Len(),
		"start", start.Format("2006-01-02 15:04"),
		"end", end.Format("2006-01-02 15:04"),
	)
	return t, nil
}

// Weather API response types.

type response struct {
	Hourly []observation `json:"hourly"`
}

type observation struct {
	Time     string   `json:"time"`
	Temp     *float64 `json:"temp"`
	Rhum     *float64 `json:"rhum"`
	Prcp     *float64 `json:"prcp"`
	Wspd     *float64 `json:"wspd"`
	Tsun     *float64 `json:"tsun"`
	Coco     *int     `json:"coco"`
}

func (r response) toTable() (*table.Table, error) {
	n := len(r.Hourly)
	times := make([]time.Time, n)
	temp := make([]float64, n)
	rhum := make([]float64, n)
	prcp := make([]float64, n)
	wspd := make([]float64, n)
	tsun := make([]float64, n)
	coco := make([]float64, n)

	for i, o := range r.Hourly {
		ts, err := time.Parse("2006-01-02T15:04:05", o.Time)
		if err != nil {
			return nil, fmt.Errorf("hour %d: unparseable time %q", i, o.Time)
		}
		times[i] = ts
		temp[i] = floatOrNull(o.Temp)
		rhum[i] = floatOrNull(o.Rhum)
		prcp[i] = floatOrNull(o.Prcp)
		wspd[i] = floatOrNull(o.Wspd)
		tsun[i] = floatOrNull(o.Tsun)
		coco[i] = groupConditionCode(o.Coco)
	}

	t := table.New(times)
	for _, col := range []struct {
		name string
		vals []float64
	}{
		{ColTemperature, temp},
		{ColHumidity, rhum},
		{ColPrecip, prcp},
		{ColWindSpeed, wspd},
		{ColSunshine, tsun},
		{ColCoco, coco},
	} {
		if err := t.AddFloat(col.name, col.vals); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func floatOrNull(v *float64) float64 {
	if v == nil {
		return table.Null()
	}
	return *v
}

// groupConditionCode collapses the 27 raw condition codes into six
// classes: 1 clear, 2 cloudy, 3 rainy, 4 snowy, 5 extreme, 6 stormy.
func groupConditionCode(code *int) float64 {
	if code == nil {
		return table.Null()
	}
	switch *code {
	case 1, 2:
		return 1
	case 3, 4, 5:
		return 2
	case 7, 8, 9, 17, 18, 19:
		return 3
	case 14, 15, 16, 21, 22:
		return 4
	case 6, 10, 11, 12, 13, 20:
		return 5
	case 23, 24, 25, 26, 27:
		return 6
	default:
		return table.Null()
	}
}
