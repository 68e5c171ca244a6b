// Package api serves the dashboard's read API: forecasts, live parking,
// and weather context, plus the operational endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Server exposes the dashboard API over the serving cache.
type Server struct {
	httpServer *http.Server
	state      *State
	logger     *slog.Logger
}

// NewServer creates the API server.
func NewServer(addr string, state *State, logger *slog.Logger) *Server {
	s := &Server{
		state:  state,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/forecasts", s.handleForecasts)
		r.Get("/parking", s.handleParking)
		r.Get("/weather", s.handleWeather)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful
// shutdown.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.state.Ready() {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "not ready", "reason": "no forecasts yet"})
		return
	}
	render.JSON(w, r, map[string]string{"status": "ready"})
}

// fragmentResponse wraps a serving-cache fragment with its refresh time.
type fragmentResponse struct {
	RefreshedAt string           `json:"refreshed_at"`
	Rows        []map[string]any `json:"rows"`
}

func (s *Server) handleForecasts(w http.ResponseWriter, r *http.Request) {
	t, at := s.state.Forecasts()
	if t == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "forecasts not available yet"})
		return
	}
	render.JSON(w, r, fragmentResponse{
		RefreshedAt: at.UTC().Format(time.RFC3339),
		Rows:        tableRows(t),
	})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	t, at := s.state.Weather()
	if t == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "weather not available yet"})
		return
	}
	render.JSON(w, r, fragmentResponse{
		RefreshedAt: at.UTC().Format(time.RFC3339),
		Rows:        tableRows(t),
	})
}

// lotResponse is one parking lot in the /api/parking payload.
type lotResponse struct {
	Slug          string   `json:"slug"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	Time          string   `json:"time"`
	Occupancy     *float64 `json:"occupancy"`
	Capacity      *float64 `json:"capacity"`
	OccupancyRate *float64 `json:"occupancy_rate"`
}

func (s *Server) handleParking(w http.ResponseWriter, r *http.Request) {
	snaps, at := s.state.Parking()
	if snaps == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "parking not available yet"})
		return
	}

	lots := make([]lotResponse, len(snaps))
	for i, snap := range snaps {
		lots[i] = lotResponse{
			Slug:          snap.Lot.Slug,
			Latitude:      snap.Lot.Latitude,
			Longitude:     snap.Lot.Longitude,
			Time:          snap.Time.UTC().Format(time.RFC3339),
			Occupancy:     nullable(snap.Occupancy),
			Capacity:      nullable(snap.Capacity),
			OccupancyRate: nullable(snap.OccupancyRate),
		}
	}
	render.JSON(w, r, map[string]any{
		"refreshed_at": at.UTC().Format(time.RFC3339),
		"lots":         lots,
	})
}

// tableRows renders a table as JSON-friendly rows; missing values become
// null.
func tableRows(t *table.Table) []map[string]any {
	names := t.Columns()
	rows := make([]map[string]any, t.Len())
	for i := range rows {
		row := make(map[string]any, len(names)+1)
		row["time"] = t.Time[i].Format("2006-01-02 15:04:05")
		for _, name := range names {
			if vals, ok := t.Float(name); ok {
				if v := nullable(vals[i]); v != nil {
					row[name] = *v
				} else {
					row[name] = nil
				}
				continue
			}
			if vals, ok := t.String(name); ok {
				if vals[i] == "" {
					row[name] = nil
				} else {
					row[name] = vals[i]
				}
			}
		}
		rows[i] = row
	}
	return rows
}

func nullable(v float64) *float64 {
	if table.IsNull(v) {
		return nil
	}
	return &v
}
