package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// encodeParquet writes the table as a parquet file with one optional leaf
// per column. The Time index is stored as a wall-clock string so the
// round trip is timezone-agnostic; parquet orders fields by name, so
// callers relying on column order Select after reading.
func encodeParquet(t *table.Table, name string) ([]byte, error) {
	group := parquet.Group{timeColumn: parquet.String()}
	for _, col := range t.Columns() {
		kind, _ := t.ColumnKind(col)
		if kind == table.KindFloat {
			group[col] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[col] = parquet.Optional(parquet.String())
		}
	}
	schema := parquet.NewSchema(name, group)

	var buf bytes.Buffer
	w := parquet.NewGenericWriter[map[string]any](&buf, schema)

	rows := make([]map[string]any, t.Len())
	for i := 0; i < t.Len(); i++ {
		row := map[string]any{timeColumn: t.Time[i].Format(timeLayout)}
		for _, col := range t.Columns() {
			kind, _ := t.ColumnKind(col)
			if kind == table.KindFloat {
				vals, _ := t.Float(col)
				if !table.IsNull(vals[i]) {
					row[col] = vals[i]
				}
			} else {
				vals, _ := t.String(col)
				if vals[i] != "" {
					row[col] = vals[i]
				}
			}
		}
		rows[i] = row
	}
	if _, err := w.Write(rows); err != nil {
		return nil, fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeParquet(data []byte) (*table.Table, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}

	r := parquet.NewGenericReader[map[string]any](f)
	defer r.Close()

	rows := make([]map[string]any, f.NumRows())
	for i := range rows {
		rows[i] = map[string]any{}
	}
	read := 0
	for read < len(rows) {
		n, err := r.Read(rows[read:])
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read rows: %w", err)
		}
	}
	rows = rows[:read]

	header := make([]string, 0, len(f.Schema().Fields()))
	for _, field := range f.Schema().Fields() {
		header = append(header, field.Name())
	}

	records := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(header))
		for c, col := range header {
			v, ok := row[col]
			if !ok || v == nil {
				continue
			}
			switch x := v.(type) {
			case string:
				cells[c] = x
			case []byte:
				cells[c] = string(x)
			case float64:
				cells[c] = fmt.Sprintf("%v", x)
			default:
				cells[c] = fmt.Sprintf("%v", x)
			}
		}
		records[i] = cells
	}
	return buildTable(header, records)
}
