package parking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
)

// History storage layout: one table per lot under the parking folder.
const (
	historyFolder = "parking/history"

	colOccupancy = "occupancy"
	colCapacity  = "capacity"
	colRate      = "occupancy_rate"
)

// Service refreshes the live parking picture: it sources a snapshot per
// lot, repairs it against the lot's history, and appends it to that
// history.
type Service struct {
	client  *Client
	storage storage.Store
	logger  *slog.Logger
}

// NewService creates a parking service.
func NewService(client *Client, st storage.Store, logger *slog.Logger) *Service {
	return &Service{client: client, storage: st, logger: logger}
}

// Refresh fetches, repairs, and persists one round of snapshots. The
// returned snapshots are the repaired ones, in Lots order.
func (s *Service) Refresh(ctx context.Context) ([]Snapshot, error) {
	snaps, err := s.client.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		history, err := s.history(ctx, snap.Lot)
		if err != nil {
			return nil, err
		}
		repaired := Repair(snap, historyMeanFraction(history))
		if err := s.append(ctx, repaired, history); err != nil {
			return nil, err
		}
		out = append(out, repaired)
	}
	s.logger.Info("parking refreshed", "lots", len(out))
	return out, nil
}

// History returns a lot's full reading history with interior occupancy
// gaps interpolated.
func (s *Service) History(ctx context.Context, lot Lot) (*table.Table, error) {
	t, err := s.history(ctx, lot)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("parking %s: no history", lot.Slug)
	}
	if vals, ok := t.Float(colOccupancy); ok {
		if filled := InterpolateHistory(vals); filled > 0 {
			s.logger.Debug("parking history gaps interpolated", "lot", lot.Slug, "filled", filled)
		}
	}
	return t, nil
}

// history loads a lot's stored readings; nil when none exist yet.
func (s *Service) history(ctx context.Context, lot Lot) (*table.Table, error) {
	t, err := s.storage.ReadTable(ctx, lot.Slug, storage.FormatCSV, historyFolder)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("parking %s: %w", lot.Slug, err)
	}
	return t, nil
}

func historyMeanFraction(history *table.Table) float64 {
	if history == nil {
		return table.Null()
	}
	occ, ok := history.Float(colOccupancy)
	if !ok {
		return table.Null()
	}
	capacity, ok := history.Float(colCapacity)
	if !ok {
		return table.Null()
	}
	return MeanFraction(occ, capacity)
}

// append persists a repaired snapshot onto the lot's history, keeping
// the last reading per timestamp.
func (s *Service) append(ctx context.Context, snap Snapshot, history *table.Table) error {
	row := table.New([]time.Time{snap.Time})
	for _, col := range []struct {
		name string
		val  float64
	}{
		{colOccupancy, snap.Occupancy},
		{colCapacity, snap.Capacity},
		{colRate, snap.OccupancyRate},
	} {
		if err := row.AddFloat(col.name, []float64{col.val}); err != nil {
			return fmt.Errorf("parking %s: %w", snap.Lot.Slug, err)
		}
	}

	merged := row
	if history != nil {
		combined, err := history.Concat(row)
		if err != nil {
			return fmt.Errorf("parking %s: %w", snap.Lot.Slug, err)
		}
		merged = combined.DedupeTimeKeepLast()
		merged.SortByTime()
	}
	if err := s.storage.WriteTable(ctx, merged, snap.Lot.Slug, storage.FormatCSV, historyFolder); err != nil {
		return fmt.Errorf("parking %s: %w", snap.Lot.Slug, err)
	}
	return nil
}

// LotBySlug resolves a lot by its slug.
func LotBySlug(slug string) (Lot, bool) {
	i := slices.IndexFunc(Lots, func(l Lot) bool { return l.Slug == slug })
	if i < 0 {
		return Lot{}, false
	}
	return Lots[i], true
}
