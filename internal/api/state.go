package api

import (
	"sync"
	"time"

	"github.com/npbw/visitor-pipeline/internal/parking"
	"github.com/npbw/visitor-pipeline/internal/table"
)

// State is the dashboard's serving cache. Refresh loops replace whole
// fragments; handlers only ever read a consistent snapshot.
type State struct {
	mu sync.RWMutex

	forecasts   *table.Table
	forecastsAt time.Time

	parking   []parking.Snapshot
	parkingAt time.Time

	weather   *table.Table
	weatherAt time.Time
}

// NewState creates an empty serving cache.
func NewState() *State { return &State{} }

// SetForecasts replaces the forecast fragment.
func (s *State) SetForecasts(t *table.Table, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = t
	s.forecastsAt = at
}

// Forecasts returns the current forecast table and its refresh time.
func (s *State) Forecasts() (*table.Table, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecasts, s.forecastsAt
}

// SetParking replaces the parking fragment.
func (s *State) SetParking(snaps []parking.Snapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parking = snaps
	s.parkingAt = at
}

// Parking returns the current parking snapshots and their refresh time.
func (s *State) Parking() ([]parking.Snapshot, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parking, s.parkingAt
}

// SetWeather replaces the weather fragment.
func (s *State) SetWeather(t *table.Table, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather = t
	s.weatherAt = at
}

// Weather returns the current weather table and its refresh time.
func (s *State) Weather() (*table.Table, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weather, s.weatherAt
}

// Ready reports whether the first forecast refresh has completed; the
// dashboard is useless before that.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecasts != nil
}
