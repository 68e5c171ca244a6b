// Package table provides a small column-oriented table with an hourly Time
// index. Float columns use NaN for missing values, string columns use "".
// Column order is preserved so downstream feature schemas are stable.
package table

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"
)

// Kind identifies the storage type of a column.
type Kind int

const (
	KindFloat Kind = iota
	KindString
)

// Column is a single named series. Exactly one of Floats/Strings is set,
// matching Kind, and its length equals the table length.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Table is an in-memory table indexed by Time.
type Table struct {
	Time   []time.Time
	cols   []*Column
	byName map[string]*Column
}

// New creates a table over the given time index. The index is not copied.
func New(times []time.Time) *Table {
	return &Table{
		Time:   times,
		byName: make(map[string]*Column),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Time) }

// Columns returns column names in insertion order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether a column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// AddFloat appends a float column. The slice length must match the table
// length and the name must be unused.
func (t *Table) AddFloat(name string, vals []float64) error {
	if len(vals) != t.Len() {
		return fmt.Errorf("add column %q: got %d values, table has %d rows", name, len(vals), t.Len())
	}
	if t.Has(name) {
		return fmt.Errorf("add column %q: already exists", name)
	}
	c := &Column{Name: name, Kind: KindFloat, Floats: vals}
	t.cols = append(t.cols, c)
	t.byName[name] = c
	return nil
}

// AddString appends a string column.
func (t *Table) AddString(name string, vals []string) error {
	if len(vals) != t.Len() {
		return fmt.Errorf("add column %q: got %d values, table has %d rows", name, len(vals), t.Len())
	}
	if t.Has(name) {
		return fmt.Errorf("add column %q: already exists", name)
	}
	c := &Column{Name: name, Kind: KindString, Strings: vals}
	t.cols = append(t.cols, c)
	t.byName[name] = c
	return nil
}

// Float returns the values of a float column.
func (t *Table) Float(name string) ([]float64, bool) {
	c, ok := t.byName[name]
	if !ok || c.Kind != KindFloat {
		return nil, false
	}
	return c.Floats, true
}

// String returns the values of a string column.
func (t *Table) String(name string) ([]string, bool) {
	c, ok := t.byName[name]
	if !ok || c.Kind != KindString {
		return nil, false
	}
	return c.Strings, true
}

// ColumnKind returns the kind of a column.
func (t *Table) ColumnKind(name string) (Kind, bool) {
	c, ok := t.byName[name]
	if !ok {
		return 0, false
	}
	return c.Kind, true
}

// Rename changes a column's name in place.
func (t *Table) Rename(old, new string) error {
	c, ok := t.byName[old]
	if !ok {
		return fmt.Errorf("rename: column %q not found", old)
	}
	if t.Has(new) {
		return fmt.Errorf("rename: column %q already exists", new)
	}
	delete(t.byName, old)
	c.Name = new
	t.byName[new] = c
	return nil
}

// Drop removes the named columns. Missing names are ignored.
func (t *Table) Drop(names ...string) {
	for _, name := range names {
		delete(t.byName, name)
	}
	kept := t.cols[:0]
	for _, c := range t.cols {
		if _, ok := t.byName[c.Name]; ok {
			kept = append(kept, c)
		}
	}
	t.cols = kept
}

// Select returns a new table holding only the named columns, in the given
// order. Missing columns are an error; this is what makes feature schemas
// fail loudly instead of drifting.
func (t *Table) Select(names ...string) (*Table, error) {
	out := New(t.Time)
	for _, name := range names {
		c, ok := t.byName[name]
		if !ok {
			return nil, fmt.Errorf("select: column %q not found", name)
		}
		var err error
		if c.Kind == KindFloat {
			err = out.AddFloat(name, c.Floats)
		} else {
			err = out.AddString(name, c.Strings)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// SortByTime sorts all rows chronologically (stable).
func (t *Table) SortByTime() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Time[idx[a]].Before(t.Time[idx[b]])
	})
	t.reorder(idx)
}

func (t *Table) reorder(idx []int) {
	times := make([]time.Time, len(idx))
	for i, j := range idx {
		times[i] = t.Time[j]
	}
	t.Time = times
	for _, c := range t.cols {
		if c.Kind == KindFloat {
			vals := make([]float64, len(idx))
			for i, j := range idx {
				vals[i] = c.Floats[j]
			}
			c.Floats = vals
		} else {
			vals := make([]string, len(idx))
			for i, j := range idx {
				vals[i] = c.Strings[j]
			}
			c.Strings = vals
		}
	}
}

// Filter returns a new table holding only rows where keep[i] is true.
func (t *Table) Filter(keep []bool) *Table {
	idx := make([]int, 0, t.Len())
	for i, k := range keep {
		if k {
			idx = append(idx, i)
		}
	}
	return t.take(idx)
}

func (t *Table) take(idx []int) *Table {
	times := make([]time.Time, len(idx))
	for i, j := range idx {
		times[i] = t.Time[j]
	}
	out := New(times)
	for _, c := range t.cols {
		if c.Kind == KindFloat {
			vals := make([]float64, len(idx))
			for i, j := range idx {
				vals[i] = c.Floats[j]
			}
			out.AddFloat(c.Name, vals) //nolint:errcheck // fresh table, lengths match
		} else {
			vals := make([]string, len(idx))
			for i, j := range idx {
				vals[i] = c.Strings[j]
			}
			out.AddString(c.Name, vals) //nolint:errcheck
		}
	}
	return out
}

// SliceRange returns rows in the half-open interval [start, end).
func (t *Table) SliceRange(start, end time.Time) *Table {
	keep := make([]bool, t.Len())
	for i, ts := range t.Time {
		keep[i] = !ts.Before(start) && ts.Before(end)
	}
	return t.Filter(keep)
}

// SliceFrom returns rows at or after start.
func (t *Table) SliceFrom(start time.Time) *Table {
	keep := make([]bool, t.Len())
	for i, ts := range t.Time {
		keep[i] = !ts.Before(start)
	}
	return t.Filter(keep)
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	out := New(slices.Clone(t.Time))
	for _, c := range t.cols {
		if c.Kind == KindFloat {
			out.AddFloat(c.Name, slices.Clone(c.Floats)) //nolint:errcheck
		} else {
			out.AddString(c.Name, slices.Clone(c.Strings)) //nolint:errcheck
		}
	}
	return out
}

// DropNullRows removes every row that has a missing value in any column.
func (t *Table) DropNullRows() *Table {
	keep := make([]bool, t.Len())
	for i := range keep {
		keep[i] = true
	}
	for _, c := range t.cols {
		if c.Kind == KindFloat {
			for i, v := range c.Floats {
				if math.IsNaN(v) {
					keep[i] = false
				}
			}
		} else {
			for i, v := range c.Strings {
				if v == "" {
					keep[i] = false
				}
			}
		}
	}
	return t.Filter(keep)
}

// Concat appends b's rows to a copy of t. Both tables must have identical
// column sets; columns are matched by name.
func (t *Table) Concat(b *Table) (*Table, error) {
	if len(t.cols) != len(b.cols) {
		return nil, fmt.Errorf("concat: column count mismatch: %d vs %d", len(t.cols), len(b.cols))
	}
	out := New(append(slices.Clone(t.Time), b.Time...))
	for _, c := range t.cols {
		bc, ok := b.byName[c.Name]
		if !ok || bc.Kind != c.Kind {
			return nil, fmt.Errorf("concat: column %q missing or mistyped in right table", c.Name)
		}
		var err error
		if c.Kind == KindFloat {
			err = out.AddFloat(c.Name, append(slices.Clone(c.Floats), bc.Floats...))
		} else {
			err = out.AddString(c.Name, append(slices.Clone(c.Strings), bc.Strings...))
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DedupeTimeKeepLast drops rows whose timestamp repeats, keeping the last
// occurrence. Used when re-uploaded data overlaps an existing file.
func (t *Table) DedupeTimeKeepLast() *Table {
	last := make(map[time.Time]int, t.Len())
	for i, ts := range t.Time {
		last[ts] = i
	}
	keep := make([]bool, t.Len())
	for i, ts := range t.Time {
		keep[i] = last[ts] == i
	}
	return t.Filter(keep)
}

// IsNull reports whether a float value represents a missing reading.
func IsNull(v float64) bool { return math.IsNaN(v) }

// Null is the missing-value marker for float columns.
func Null() float64 { return math.NaN() }

// Floats builds a float slice of length n filled with the given value.
func Floats(n int, v float64) []float64 {
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = v
	}
	return vals
}

// Nulls builds a float slice of length n filled with NaN.
func Nulls(n int) []float64 {
	return Floats(n, math.NaN())
}
