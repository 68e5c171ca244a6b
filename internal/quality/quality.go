// Package quality validates uploaded data files before they reach the
// preprocessed store. An upload either passes its category's schema check
// and is typed, stamped, and merged, or it is quarantined whole; nothing
// is ever partially ingested.
package quality

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/dateparse"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/storage"
	"github.com/npbw/visitor-pipeline/internal/table"
)

// Category identifies the kind of data an upload claims to carry.
type Category string

const (
	CategorySensor        Category = "visitor_count_sensors"
	CategoryVisitorCenter Category = "visitors_count_centers"
)

// Storage folders the checker writes into, keyed by category underneath.
const (
	quarantineFolder   = "invalid-data"
	preprocessedFolder = "preprocessed"
)

// colUploadTime stamps every accepted row with the ingestion time.
const colUploadTime = "Upload_time"

// Schema is the fixed column contract of one upload category.
type Schema struct {
	// TimeColumn is the raw header carrying the timestamp.
	TimeColumn string
	// Expected lists every header the upload must carry, including the
	// time column. Order is not checked, presence is.
	Expected []string
	// IntColumns are counts: coerced numeric, rounded, missing becomes 0.
	IntColumns []string
	// BinaryColumns are flags: any positive value becomes 1, else 0.
	BinaryColumns []string
	// FloatColumns stay fractional; unparseable cells become missing.
	FloatColumns []string
}

func (s Schema) expectedSet() map[string]bool {
	set := make(map[string]bool, len(s.Expected))
	for _, name := range s.Expected {
		set[name] = true
	}
	return set
}

// Report describes the outcome of one upload check.
type Report struct {
	Category       Category
	Accepted       bool
	Missing        []string
	Unexpected     []string
	DroppedUnnamed []string
	Rows           int
	DroppedRows    int
	QuarantinedAs  string
	Start, End     time.Time
}

// Checker runs the upload quality gate.
type Checker struct {
	storage storage.Store
	clock   clockwork.Clock
	schemas map[Category]Schema
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewChecker creates a Checker over the given category schemas.
func NewChecker(st storage.Store, clock clockwork.Clock, schemas map[Category]Schema, metrics *observability.Metrics, logger *slog.Logger) *Checker {
	return &Checker{
		storage: st,
		clock:   clock,
		schemas: schemas,
		metrics: metrics,
		logger:  logger,
	}
}

// Ingest checks an uploaded file's records against its category schema.
// On a mismatch the unmodified upload is quarantined and the report says
// what was missing or unexpected; on a pass the data is typed, stamped,
// and merged into the category's preprocessed file, keeping the last row
// per timestamp.
func (c *Checker) Ingest(ctx context.Context, category Category, records [][]string) (*Report, error) {
	schema, ok := c.schemas[category]
	if !ok {
		return nil, fmt.Errorf("ingest: unknown category %q", category)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("ingest %s: upload has no data rows", category)
	}

	report := &Report{Category: category}
	header, rows := records[0], records[1:]

	header, rows, report.DroppedUnnamed = dropEmptyUnnamed(header, rows)
	report.Missing, report.Unexpected = diffColumns(header, schema.expectedSet(), schema.Expected)

	if len(report.Missing) > 0 || len(report.Unexpected) > 0 {
		name, err := c.quarantine(ctx, category, records)
		if err != nil {
			return nil, err
		}
		report.QuarantinedAs = name
		c.logger.Warn("upload quarantined",
			"category", string(category),
			"missing", report.Missing,
			"unexpected", report.Unexpected,
			"quarantined_as", name,
		)
		return report, nil
	}

	t, dropped, err := c.typeRows(schema, header, rows)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", category, err)
	}
	report.DroppedRows = dropped

	merged, err := c.merge(ctx, category, t)
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", category, err)
	}

	name, folder := PreprocessedTable(category)
	if err := c.storage.WriteTable(ctx, merged, name, storage.FormatCSV, folder); err != nil {
		return nil, fmt.Errorf("ingest %s: %w", category, err)
	}

	c.metrics.UploadsAccepted.Inc()
	report.Accepted = true
	report.Rows = merged.Len()
	report.Start = merged.Time[0]
	report.End = merged.Time[merged.Len()-1]
	c.logger.Info("upload accepted",
		"category", string(category),
		"rows", report.Rows,
		"dropped_rows", dropped,
		"start", report.Start.Format("2006-01-02"),
		"end", report.End.Format("2006-01-02"),
	)
	return report, nil
}

// PreprocessedTable returns the storage name and folder of a category's
// merged preprocessed file. Downstream pipelines read their inputs from
// here.
func PreprocessedTable(category Category) (name, folder string) {
	return string(category) + "_preprocessed", preprocessedFolder + "/" + string(category)
}

// quarantine writes the upload unmodified into the invalid folder.
func (c *Checker) quarantine(ctx context.Context, category Category, records [][]string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", category, err)
	}
	name := fmt.Sprintf("%s_%s.csv", category, c.clock.Now().UTC().Format("20060102_150405"))
	folder := quarantineFolder + "/" + string(category)
	if err := c.storage.WriteBytes(ctx, buf.Bytes(), name, folder); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", category, err)
	}
	c.metrics.UploadsQuarantined.Inc()
	return name, nil
}

// typeRows parses the timestamp column and coerces every other column to
// its schema type. Rows with unparseable timestamps are dropped.
func (c *Checker) typeRows(schema Schema, header []string, rows [][]string) (*table.Table, int, error) {
	timeIdx := -1
	for j, name := range header {
		if name == schema.TimeColumn {
			timeIdx = j
		}
	}
	if timeIdx < 0 {
		return nil, 0, fmt.Errorf("time column %q not in header", schema.TimeColumn)
	}

	raw := make([]string, len(rows))
	for i, row := range rows {
		raw[i] = cell(row, timeIdx)
	}
	times, bad := dateparse.ParseColumn(raw)
	badSet := make(map[int]bool, len(bad))
	for _, i := range bad {
		badSet[i] = true
	}
	if len(bad) > 0 {
		c.metrics.ValuesNulled.WithLabelValues("unparseable_time").Add(float64(len(bad)))
	}

	kept := make([]time.Time, 0, len(rows))
	keptRows := make([][]string, 0, len(rows))
	for i, row := range rows {
		if badSet[i] {
			continue
		}
		kept = append(kept, times[i])
		keptRows = append(keptRows, row)
	}
	if len(kept) == 0 {
		return nil, 0, fmt.Errorf("no rows with a parseable %q timestamp", schema.TimeColumn)
	}

	ints := toSet(schema.IntColumns)
	binaries := toSet(schema.BinaryColumns)
	floats := toSet(schema.FloatColumns)

	t := table.New(kept)
	for j, name := range header {
		if j == timeIdx {
			continue
		}
		cells := make([]string, len(keptRows))
		for i, row := range keptRows {
			cells[i] = cell(row, j)
		}
		var err error
		switch {
		case ints[name]:
			err = t.AddFloat(name, coerceInts(cells))
		case binaries[name]:
			err = t.AddFloat(name, coerceBinary(cells))
		case floats[name]:
			err = t.AddFloat(name, coerceFloats(cells))
		default:
			err = t.AddString(name, cells)
		}
		if err != nil {
			return nil, 0, err
		}
	}
	t.SortByTime()

	stamp := c.clock.Now().UTC().Format("2006-01-02 15:04:05")
	stamps := make([]string, t.Len())
	for i := range stamps {
		stamps[i] = stamp
	}
	if err := t.AddString(colUploadTime, stamps); err != nil {
		return nil, 0, err
	}
	return t, len(bad), nil
}

// cell reads a column from a possibly ragged row. csv exports with
// FieldsPerRecord disabled and excelize's GetRows both produce rows
// shorter than the header; a missing cell reads as empty.
func cell(row []string, j int) string {
	if j >= len(row) {
		return ""
	}
	return row[j]
}

// merge concatenates the new upload onto the category's existing
// preprocessed file, keeping the last row per timestamp so re-uploads
// supersede earlier data.
func (c *Checker) merge(ctx context.Context, category Category, fresh *table.Table) (*table.Table, error) {
	name, folder := PreprocessedTable(category)

	existing, err := c.storage.ReadTable(ctx, name, storage.FormatCSV, folder)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fresh, nil
		}
		return nil, err
	}

	combined, err := existing.Concat(fresh)
	if err != nil {
		return nil, fmt.Errorf("merge with existing %s: %w", name, err)
	}
	merged := combined.DedupeTimeKeepLast()
	merged.SortByTime()
	return merged, nil
}

// dropEmptyUnnamed removes export-artifact columns: headers containing
// "Unnamed" whose cells are all empty. Anything else stays and is judged
// by the schema check.
func dropEmptyUnnamed(header []string, rows [][]string) ([]string, [][]string, []string) {
	drop := make(map[int]bool)
	var dropped []string
	for j, name := range header {
		if !strings.Contains(name, "Unnamed") {
			continue
		}
		empty := true
		for _, row := range rows {
			if j < len(row) && strings.TrimSpace(row[j]) != "" {
				empty = false
				break
			}
		}
		if empty {
			drop[j] = true
			dropped = append(dropped, name)
		}
	}
	if len(drop) == 0 {
		return header, rows, nil
	}

	keepHeader := make([]string, 0, len(header))
	for j, name := range header {
		if !drop[j] {
			keepHeader = append(keepHeader, name)
		}
	}
	keepRows := make([][]string, len(rows))
	for i, row := range rows {
		keep := make([]string, 0, len(row))
		for j, cell := range row {
			if !drop[j] {
				keep = append(keep, cell)
			}
		}
		keepRows[i] = keep
	}
	return keepHeader, keepRows, dropped
}

// diffColumns reports expected headers absent from the upload and upload
// headers the schema does not know.
func diffColumns(header []string, expected map[string]bool, order []string) (missing, unexpected []string) {
	present := toSet(header)
	for _, name := range order {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	for _, name := range header {
		if !expected[name] {
			unexpected = append(unexpected, name)
		}
	}
	return missing, unexpected
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func coerceInts(cells []string) []float64 {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			vals[i] = 0
			continue
		}
		vals[i] = math.Round(v)
	}
	return vals
}

func coerceBinary(cells []string) []float64 {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && v > 0 {
			vals[i] = 1
		}
	}
	return vals
}

func coerceFloats(cells []string) []float64 {
	vals := make([]float64, len(cells))
	for i, s := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			vals[i] = table.Null()
			continue
		}
		vals[i] = v
	}
	return vals
}
