package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/npbw/visitor-pipeline/internal/table"
)

func encodeCSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	names := t.Columns()
	header := append([]string{timeColumn}, names...)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, len(header))
	for i := 0; i < t.Len(); i++ {
		row[0] = t.Time[i].Format(timeLayout)
		for c, name := range names {
			row[c+1] = cellValue(t, name, i)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func decodeCSV(data []byte) (*table.Table, error) {
	records, err := decodeCSVRecords(data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	return buildTable(records[0], records[1:])
}

func decodeCSVRecords(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}
