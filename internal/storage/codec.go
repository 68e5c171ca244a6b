package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/npbw/visitor-pipeline/internal/dateparse"
	"github.com/npbw/visitor-pipeline/internal/table"
)

// timeColumn is the reserved index column name in every stored table.
const timeColumn = "Time"

// timeLayout is the wall-clock format used by the csv and xlsx codecs.
const timeLayout = "2006-01-02 15:04:05"

// buildTable types raw cells into a table. The header must contain a Time
// column; a column whose non-empty cells all parse as floats becomes a
// float column, everything else stays a string column. Empty cells are
// missing values either way.
func buildTable(header []string, rows [][]string) (*table.Table, error) {
	timeIdx := -1
	for i, h := range header {
		if h == timeColumn {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("no %q column in header", timeColumn)
	}

	times := make([]time.Time, len(rows))
	for i, row := range rows {
		if timeIdx >= len(row) {
			return nil, fmt.Errorf("row %d: missing %q cell", i, timeColumn)
		}
		ts, ok := dateparse.ParseAny(row[timeIdx])
		if !ok {
			return nil, fmt.Errorf("row %d: unparseable timestamp %q", i, row[timeIdx])
		}
		times[i] = ts
	}

	t := table.New(times)
	for c, name := range header {
		if c == timeIdx {
			continue
		}
		cells := make([]string, len(rows))
		for i, row := range rows {
			if c < len(row) {
				cells[i] = row[c]
			}
		}
		if floats, ok := tryFloats(cells); ok {
			if err := t.AddFloat(name, floats); err != nil {
				return nil, err
			}
			continue
		}
		if err := t.AddString(name, cells); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// tryFloats parses cells as a float column; it fails if any non-empty
// cell is not numeric.
func tryFloats(cells []string) ([]float64, bool) {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		if s == "" {
			vals[i] = table.Null()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

// cellValue renders one table value as a cell string, "" for missing.
func cellValue(t *table.Table, name string, row int) string {
	kind, _ := t.ColumnKind(name)
	if kind == table.KindFloat {
		vals, _ := t.Float(name)
		if table.IsNull(vals[row]) {
			return ""
		}
		return strconv.FormatFloat(vals[row], 'f', -1, 64)
	}
	vals, _ := t.String(name)
	return vals[row]
}
