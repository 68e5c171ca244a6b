// Package features turns the joined hourly tables into the model
// feature set: holiday distances, rolling weather z-scores, cyclic and
// dummy encodings, and standardized numeric features. Training and
// inference share one schema definition so the two can never drift.
package features

import (
	"fmt"
	"time"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// LeftJoin merges right's columns into left on the Time index. Every
// left row is preserved; hours missing from right stay null so the
// imputation step can fill them. Column name collisions are an error.
func LeftJoin(left, right *table.Table) (*table.Table, error) {
	byTime := make(map[time.Time]int, right.Len())
	for i, ts := range right.Time {
		byTime[ts] = i
	}

	out := left.Clone()
	for _, name := range right.Columns() {
		if out.Has(name) {
			return nil, fmt.Errorf("join: column %q exists on both sides", name)
		}
		kind, _ := right.ColumnKind(name)
		if kind == table.KindFloat {
			src, _ := right.Float(name)
			vals := table.Nulls(out.Len())
			for i, ts := range out.Time {
				if j, ok := byTime[ts]; ok {
					vals[i] = src[j]
				}
			}
			if err := out.AddFloat(name, vals); err != nil {
				return nil, err
			}
		} else {
			src, _ := right.String(name)
			vals := make([]string, out.Len())
			for i, ts := range out.Time {
				if j, ok := byTime[ts]; ok {
					vals[i] = src[j]
				}
			}
			if err := out.AddString(name, vals); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
