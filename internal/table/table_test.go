package table

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hours(start time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func TestAddAndLookup(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New(hours(base, 3))

	require.NoError(t, tbl.AddFloat("a", []float64{1, 2, 3}))
	require.NoError(t, tbl.AddString("s", []string{"x", "y", "z"}))

	vals, ok := tbl.Float("a")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3}, vals)

	strs, ok := tbl.String("s")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y", "z"}, strs)

	_, ok = tbl.Float("s")
	assert.False(t, ok, "string column must not be readable as float")

	assert.Equal(t, []string{"a", "s"}, tbl.Columns())
}

func TestAddLengthMismatch(t *testing.T) {
	tbl := New(hours(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 3))
	err := tbl.AddFloat("a", []float64{1, 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 2 values")
}

func TestAddDuplicate(t *testing.T) {
	tbl := New(hours(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 1))
	require.NoError(t, tbl.AddFloat("a", []float64{1}))
	require.Error(t, tbl.AddFloat("a", []float64{2}))
}

func TestSelectPreservesOrderAndFailsClosed(t *testing.T) {
	tbl := New(hours(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), 2))
	require.NoError(t, tbl.AddFloat("a", []float64{1, 2}))
	require.NoError(t, tbl.AddFloat("b", []float64{3, 4}))

	sel, err := tbl.Select("b", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, sel.Columns())

	_, err = tbl.Select("a", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestSortByTime(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New([]time.Time{base.Add(2 * time.Hour), base, base.Add(time.Hour)})
	require.NoError(t, tbl.AddFloat("a", []float64{30, 10, 20}))

	tbl.SortByTime()

	vals, _ := tbl.Float("a")
	assert.Equal(t, []float64{10, 20, 30}, vals)
	assert.True(t, tbl.Time[0].Before(tbl.Time[1]))
}

func TestSliceRangeHalfOpen(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New(hours(base, 5))
	require.NoError(t, tbl.AddFloat("a", []float64{0, 1, 2, 3, 4}))

	sliced := tbl.SliceRange(base.Add(time.Hour), base.Add(3*time.Hour))

	require.Equal(t, 2, sliced.Len())
	vals, _ := sliced.Float("a")
	assert.Equal(t, []float64{1, 2}, vals)
}

func TestDropNullRows(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New(hours(base, 3))
	require.NoError(t, tbl.AddFloat("a", []float64{1, math.NaN(), 3}))
	require.NoError(t, tbl.AddString("s", []string{"x", "y", ""}))

	clean := tbl.DropNullRows()

	require.Equal(t, 1, clean.Len())
	vals, _ := clean.Float("a")
	assert.Equal(t, []float64{1}, vals)
}

func TestConcatAndDedupeKeepLast(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	a := New(hours(base, 2))
	require.NoError(t, a.AddFloat("v", []float64{1, 2}))
	b := New([]time.Time{base.Add(time.Hour), base.Add(2 * time.Hour)})
	require.NoError(t, b.AddFloat("v", []float64{20, 30}))

	merged, err := a.Concat(b)
	require.NoError(t, err)
	require.Equal(t, 4, merged.Len())

	deduped := merged.DedupeTimeKeepLast()
	require.Equal(t, 3, deduped.Len())
	vals, _ := deduped.Float("v")
	assert.Equal(t, []float64{1, 20, 30}, vals)
}

func TestConcatColumnMismatch(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	a := New(hours(base, 1))
	require.NoError(t, a.AddFloat("v", []float64{1}))
	b := New(hours(base, 1))
	require.NoError(t, b.AddFloat("w", []float64{1}))

	_, err := a.Concat(b)
	require.Error(t, err)
}

func TestCloneIsIndependent(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New(hours(base, 2))
	require.NoError(t, tbl.AddFloat("a", []float64{1, 2}))

	cp := tbl.Clone()
	vals, _ := cp.Float("a")
	vals[0] = 99

	orig, _ := tbl.Float("a")
	assert.Equal(t, 1.0, orig[0])
}

func TestRenameAndDrop(t *testing.T) {
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tbl := New(hours(base, 1))
	require.NoError(t, tbl.AddFloat("old", []float64{1}))
	require.NoError(t, tbl.AddFloat("gone", []float64{2}))

	require.NoError(t, tbl.Rename("old", "new"))
	assert.True(t, tbl.Has("new"))
	assert.False(t, tbl.Has("old"))

	tbl.Drop("gone", "never-existed")
	assert.Equal(t, []string{"new"}, tbl.Columns())
}
