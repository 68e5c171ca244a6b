// Command validate ingests one uploaded CSV through the quality gate.
// An accepted upload is merged into the category's preprocessed file; a
// rejected one is quarantined unmodified and the exit code is non-zero
// so upload scripts can surface the failure.
//
// Usage:
//
//	go run ./cmd/validate -file upload.csv -category visitor_count_sensors
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/npbw/visitor-pipeline/internal/config"
	"github.com/npbw/visitor-pipeline/internal/observability"
	"github.com/npbw/visitor-pipeline/internal/quality"
	"github.com/npbw/visitor-pipeline/internal/sensor"
	"github.com/npbw/visitor-pipeline/internal/storage"
)

func main() {
	var (
		path     = flag.String("file", "", "path to the uploaded CSV")
		category = flag.String("category", string(quality.CategorySensor),
			fmt.Sprintf("upload category (%s or %s)", quality.CategorySensor, quality.CategoryVisitorCenter))
	)
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	report, err := ingest(cfg, *path, quality.Category(*category), logger)
	if err != nil {
		logger.Error("ingest failed", "error", err)
		os.Exit(1)
	}

	if !report.Accepted {
		fmt.Printf("REJECTED: quarantined as %s\n", report.QuarantinedAs)
		for _, col := range report.Missing {
			fmt.Printf("  missing column:    %s\n", col)
		}
		for _, col := range report.Unexpected {
			fmt.Printf("  unexpected column: %s\n", col)
		}
		os.Exit(1)
	}

	fmt.Printf("ACCEPTED: %d rows (%s .. %s), %d dropped for unparseable timestamps\n",
		report.Rows,
		report.Start.Format("2006-01-02"),
		report.End.Format("2006-01-02"),
		report.DroppedRows,
	)
}

func ingest(cfg *config.Config, path string, category quality.Category, logger *slog.Logger) (*quality.Report, error) {
	raw, err := os.ReadFile(cfg.MappingPath)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}
	mapping, err := sensor.LoadMapping(raw)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	checker := quality.NewChecker(
		storage.NewLocal(cfg.DataDir, logger),
		clockwork.NewRealClock(),
		map[quality.Category]quality.Schema{
			quality.CategorySensor:        quality.SensorSchema(mapping),
			quality.CategoryVisitorCenter: quality.VisitorCenterSchema(),
		},
		observability.NewMetrics(),
		logger,
	)
	return checker.Ingest(context.Background(), category, records)
}
