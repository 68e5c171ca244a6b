package storage

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/npbw/visitor-pipeline/internal/table"
)

const xlsxSheet = "Sheet1"

func encodeXLSX(t *table.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	names := t.Columns()
	header := make([]interface{}, 0, len(names)+1)
	header = append(header, timeColumn)
	for _, name := range names {
		header = append(header, name)
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i := 0; i < t.Len(); i++ {
		row := make([]interface{}, 0, len(names)+1)
		row = append(row, t.Time[i].Format(timeLayout))
		for _, name := range names {
			row = append(row, cellValue(t, name, i))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeXLSX(data []byte) (*table.Table, error) {
	records, err := decodeXLSXRecords(data)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty workbook")
	}
	return buildTable(records[0], records[1:])
}

func decodeXLSXRecords(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}
