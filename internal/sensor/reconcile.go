package sensor

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Stats counts the corrections applied during one reconciliation run.
type Stats struct {
	RowsIn             int
	RowsOut            int
	SwappedRows        int
	RepairedTimestamps int
	DecommissionNulled int
	OverlapNulled      int
	OutliersNulled     int
}

// Engine applies the mapping asset to a raw sensor export.
type Engine struct {
	mapping *Mapping
	logger  *slog.Logger

	// ids carries the typed identity of every sensor column through the
	// passes, so no stage has to recover location/direction from names.
	ids map[string]ColumnID
}

// NewEngine creates a reconciliation engine for one mapping asset.
func NewEngine(m *Mapping, logger *slog.Logger) *Engine {
	return &Engine{
		mapping: m,
		logger:  logger,
		ids:     make(map[string]ColumnID),
	}
}

// Reconcile runs all passes over a raw export whose Time index is already
// parsed. Individual bad readings are nulled, never fatal; only a table
// that contradicts the mapping asset aborts.
func (e *Engine) Reconcile(t *table.Table) (*table.Table, Stats, error) {
	stats := Stats{RowsIn: t.Len()}
	t = t.Clone()

	if err := e.applyRenames(t); err != nil {
		return nil, stats, err
	}
	e.identifyColumns(t)
	if err := e.applyDerived(t); err != nil {
		return nil, stats, err
	}

	e.applyRowSwaps(t, &stats)
	t.SortByTime()
	e.repairClockShifts(t, &stats)
	t.SortByTime()

	e.applyDecommissions(t, &stats)
	e.applyReplacements(t, &stats)

	t = t.SliceFrom(e.mapping.Earliest())

	if err := e.applyMerges(t); err != nil {
		return nil, stats, err
	}
	e.dropSubmodeColumns(t)

	e.clipOutliers(t, &stats)

	if err := e.addAggregates(t); err != nil {
		return nil, stats, err
	}

	stats.RowsOut = t.Len()
	e.logger.Info("sensor data reconciled",
		"rows_in", stats.RowsIn,
		"rows_out", stats.RowsOut,
		"repaired_timestamps", stats.RepairedTimestamps,
		"decommission_nulled", stats.DecommissionNulled,
		"overlap_nulled", stats.OverlapNulled,
		"outliers_nulled", stats.OutliersNulled,
	)
	return t, stats, nil
}

// applyRenames maps raw export headers to canonical names and removes the
// known duplicate-export artifacts.
func (e *Engine) applyRenames(t *table.Table) error {
	for _, r := range e.mapping.Renames {
		if !t.Has(r.Raw) {
			continue
		}
		// Some raw headers already carry the canonical name and are listed
		// only to attach their typed identity.
		if r.Raw != r.To.Name() {
			if err := t.Rename(r.Raw, r.To.Name()); err != nil {
				return fmt.Errorf("apply renames: %w", err)
			}
		}
		e.ids[r.To.Name()] = r.To
	}
	t.Drop(e.mapping.Drops...)
	return nil
}

// identifyColumns assigns typed identities to the columns the rename table
// did not cover. Raw exports name single-generation counters canonically
// ("<location> IN"), so the suffix split happens here once, at the ingest
// boundary.
func (e *Engine) identifyColumns(t *table.Table) {
	for _, name := range t.Columns() {
		if _, known := e.ids[name]; known {
			continue
		}
		if kind, _ := t.ColumnKind(name); kind != table.KindFloat {
			continue
		}
		switch {
		case strings.HasSuffix(name, " IN"):
			e.ids[name] = ColumnID{Location: strings.TrimSuffix(name, " IN"), Direction: DirIn}
		case strings.HasSuffix(name, " OUT"):
			e.ids[name] = ColumnID{Location: strings.TrimSuffix(name, " OUT"), Direction: DirOut}
		default:
			e.logger.Warn("unrecognized sensor column ignored", "column", name)
		}
	}
}

// applyDerived builds combined columns out of per-mode lanes. A missing
// lane poisons the sum for that hour, matching the source system.
func (e *Engine) applyDerived(t *table.Table) error {
	for _, d := range e.mapping.Derived {
		sums := make([]float64, t.Len())
		for _, src := range d.Sources {
			vals, ok := t.Float(src)
			if !ok {
				return fmt.Errorf("derived column %q: source %q not in table", d.Column.Name(), src)
			}
			for i, v := range vals {
				sums[i] += v
			}
		}
		if err := t.AddFloat(d.Column.Name(), sums); err != nil {
			return fmt.Errorf("derived column: %w", err)
		}
		e.ids[d.Column.Name()] = d.Column
	}
	return nil
}

// applyRowSwaps exchanges the non-time values of explicitly listed row
// pairs. The source system recorded a season-specific exception where two
// adjacent rows carry each other's data.
func (e *Engine) applyRowSwaps(t *table.Table, stats *Stats) {
	for _, swap := range e.mapping.RowSwaps {
		ta, _ := parseMappingTime(swap.A)
		tb, _ := parseMappingTime(swap.B)
		ia, ib := -1, -1
		for i, ts := range t.Time {
			if ts.Equal(ta) {
				ia = i
			}
			if ts.Equal(tb) {
				ib = i
			}
		}
		if ia < 0 || ib < 0 {
			e.logger.Warn("row swap timestamps not found", "a", swap.A, "b", swap.B)
			continue
		}
		for _, name := range t.Columns() {
			if vals, ok := t.Float(name); ok {
				vals[ia], vals[ib] = vals[ib], vals[ia]
			} else if strs, ok := t.String(name); ok {
				strs[ia], strs[ib] = strs[ib], strs[ia]
			}
		}
		stats.SwappedRows += 2
	}
}

// repairClockShifts fixes the fall-back daylight-saving artifact: an exact
// two-hour jump means the row's clock ran ahead by one hour and its data
// belongs to the skipped hour, so the timestamp moves back and the values
// are taken from the immediately following row. Single-hour gaps are left
// for downstream interpolation. The table must be sorted by time.
func (e *Engine) repairClockShifts(t *table.Table, stats *Stats) {
	var wrong []int
	for i := 1; i < t.Len(); i++ {
		if t.Time[i].Sub(t.Time[i-1]) == 2*time.Hour {
			wrong = append(wrong, i)
		}
	}
	for _, i := range wrong {
		t.Time[i] = t.Time[i].Add(-time.Hour)
		if i+1 < t.Len() {
			for _, name := range t.Columns() {
				if vals, ok := t.Float(name); ok {
					vals[i] = vals[i+1]
				} else if strs, ok := t.String(name); ok {
					strs[i] = strs[i+1]
				}
			}
		}
		stats.RepairedTimestamps++
	}
}

// ColumnIDs returns the typed identity of every reconciled sensor column.
func (e *Engine) ColumnIDs() map[string]ColumnID {
	out := make(map[string]ColumnID, len(e.ids))
	for k, v := range e.ids {
		out[k] = v
	}
	return out
}

// applyDecommissions nulls readings recorded before a sensor was validated.
func (e *Engine) applyDecommissions(t *table.Table, stats *Stats) {
	for _, d := range e.mapping.Decommissions {
		cutoff, _ := parseMappingTime(d.Cutoff)
		for _, name := range d.Columns {
			vals, ok := t.Float(name)
			if !ok {
				e.logger.Warn("decommission column not in table", "column", name)
				continue
			}
			for i, ts := range t.Time {
				if ts.Before(cutoff) && !table.IsNull(vals[i]) {
					vals[i] = table.Null()
					stats.DecommissionNulled++
				}
			}
		}
	}
}

// applyReplacements masks the overlap window of a generation handoff: the
// successor is invalid through the replacement date, the legacy counter
// invalid after it.
func (e *Engine) applyReplacements(t *table.Table, stats *Stats) {
	for _, r := range e.mapping.Replacements {
		date, _ := parseMappingTime(r.Date)
		for _, name := range r.Successor {
			if vals, ok := t.Float(name); ok {
				for i, ts := range t.Time {
					if !ts.After(date) && !table.IsNull(vals[i]) {
						vals[i] = table.Null()
						stats.OverlapNulled++
					}
				}
			}
		}
		for _, name := range r.Legacy {
			if vals, ok := t.Float(name); ok {
				for i, ts := range t.Time {
					if ts.After(date) && !table.IsNull(vals[i]) {
						vals[i] = table.Null()
						stats.OverlapNulled++
					}
				}
			}
		}
	}
}

// applyMerges coalesces each generation pair into one output column,
// preferring the legacy value while it is active.
func (e *Engine) applyMerges(t *table.Table) error {
	for _, m := range e.mapping.Merges {
		legacy, ok := t.Float(m.Legacy)
		if !ok {
			return fmt.Errorf("merge %q: legacy column %q not in table", m.Out, m.Legacy)
		}
		successor, ok := t.Float(m.Successor)
		if !ok {
			return fmt.Errorf("merge %q: successor column %q not in table", m.Out, m.Successor)
		}
		merged := make([]float64, t.Len())
		for i := range merged {
			if !table.IsNull(legacy[i]) {
				merged[i] = legacy[i]
			} else {
				merged[i] = successor[i]
			}
		}
		legacyID := e.ids[m.Legacy]
		t.Drop(m.Legacy, m.Successor)
		delete(e.ids, m.Legacy)
		delete(e.ids, m.Successor)
		if err := t.AddFloat(m.Out, merged); err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		e.ids[m.Out] = ColumnID{Location: legacyID.Location, Direction: legacyID.Direction}
	}
	return nil
}

// dropSubmodeColumns removes the per-mode lanes once combined columns
// exist; the pipeline never models cyclists and pedestrians separately.
func (e *Engine) dropSubmodeColumns(t *table.Table) {
	for name, id := range e.ids {
		if id.Mode != "" {
			t.Drop(name)
			delete(e.ids, name)
		}
	}
}

// clipOutliers nulls single-hour counts above the plausibility ceiling.
// Nulling instead of clamping lets interpolation repair the hour rather
// than bias it.
func (e *Engine) clipOutliers(t *table.Table, stats *Stats) {
	for name := range e.ids {
		vals, ok := t.Float(name)
		if !ok {
			continue
		}
		for i, v := range vals {
			if !table.IsNull(v) && v > e.mapping.OutlierCeiling {
				vals[i] = table.Null()
				stats.OutliersNulled++
			}
		}
	}
}

// addAggregates appends the park-wide hourly totals. Sums use min-count-1
// semantics: an hour with no reporting sensor at all stays null so the
// missing-data signal survives instead of masquerading as zero traffic.
func (e *Engine) addAggregates(t *table.Table) error {
	var inCols, outCols [][]float64
	for name, id := range e.ids {
		vals, ok := t.Float(name)
		if !ok {
			continue
		}
		if id.Direction == DirIn {
			inCols = append(inCols, vals)
		} else {
			outCols = append(outCols, vals)
		}
	}

	sumIn := sumMinCount1(t.Len(), inCols)
	sumOut := sumMinCount1(t.Len(), outCols)
	traffic := sumMinCount1(t.Len(), append(append([][]float64{}, inCols...), outCols...))

	if err := t.AddFloat("sum_IN_abs", sumIn); err != nil {
		return err
	}
	if err := t.AddFloat("sum_OUT_abs", sumOut); err != nil {
		return err
	}
	return t.AddFloat("traffic_abs", traffic)
}

// sumMinCount1 sums across columns per row, requiring at least one
// non-null contributor; otherwise the result is null.
func sumMinCount1(n int, cols [][]float64) []float64 {
	out := table.Nulls(n)
	for i := 0; i < n; i++ {
		sum := 0.0
		count := 0
		for _, col := range cols {
			if !math.IsNaN(col[i]) {
				sum += col[i]
				count++
			}
		}
		if count > 0 {
			out[i] = sum
		}
	}
	return out
}

// AggregateRegions appends one IN and one OUT column per configured
// region, each the min-count-1 sum of the region's member columns.
func AggregateRegions(t *table.Table, regions []Region) error {
	for _, r := range regions {
		for _, side := range []struct {
			suffix  string
			members []string
		}{
			{" IN", r.In},
			{" OUT", r.Out},
		} {
			if len(side.members) == 0 {
				continue
			}
			cols := make([][]float64, 0, len(side.members))
			for _, name := range side.members {
				vals, ok := t.Float(name)
				if !ok {
					return fmt.Errorf("region %q: member column %q not in table", r.Name, name)
				}
				cols = append(cols, vals)
			}
			if err := t.AddFloat(r.Name+side.suffix, sumMinCount1(t.Len(), cols)); err != nil {
				return err
			}
		}
	}
	return nil
}

// VerifyHourly checks the reconciled index invariants: strictly increasing
// timestamps (no duplicates) and no exact two-hour jump left unrepaired.
// Longer gaps are legitimate sensor outages.
func VerifyHourly(t *table.Table) error {
	for i := 1; i < t.Len(); i++ {
		d := t.Time[i].Sub(t.Time[i-1])
		if d <= 0 {
			return fmt.Errorf("duplicate or unsorted timestamp at %s", t.Time[i])
		}
		if d == 2*time.Hour {
			return fmt.Errorf("unrepaired two-hour gap before %s", t.Time[i])
		}
	}
	return nil
}
