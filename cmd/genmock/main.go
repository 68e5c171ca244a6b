// Command genmock generates synthetic upload CSVs for local development:
// an hourly sensor-count export and a daily visitor-center workbook, both
// shaped to pass the quality gate. Column names come from the same
// sources the gate uses, so a mapping change is reflected here too.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock -start 2023-01-01 -days 120
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/npbw/visitor-pipeline/internal/quality"
	"github.com/npbw/visitor-pipeline/internal/sensor"
)

var germanWeekdays = map[time.Weekday]string{
	time.Monday:    "Montag",
	time.Tuesday:   "Dienstag",
	time.Wednesday: "Mittwoch",
	time.Thursday:  "Donnerstag",
	time.Friday:    "Freitag",
	time.Saturday:  "Samstag",
	time.Sunday:    "Sonntag",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "output directory for generated CSVs")
	mappingPath := flag.String("mapping", "configs/sensor_mapping.yaml", "path to the sensor mapping asset")
	start := flag.String("start", "2023-01-01", "first day of generated data")
	days := flag.Int("days", 120, "number of days to generate")
	seed := flag.Int64("seed", 42, "random seed for reproducible fixtures")
	flag.Parse()

	startDay, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}

	raw, err := os.ReadFile(*mappingPath)
	if err != nil {
		return fmt.Errorf("read mapping: %w", err)
	}
	mapping, err := sensor.LoadMapping(raw)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(*seed))

	sensorPath := filepath.Join(*outDir, "visitor_count_sensors.csv")
	if err := writeCSV(sensorPath, sensorRows(mapping, startDay, *days, rng)); err != nil {
		return fmt.Errorf("write sensor fixture: %w", err)
	}
	log.Printf("wrote sensor fixture: %s (%d days hourly)", sensorPath, *days)

	centerPath := filepath.Join(*outDir, "visitors_count_centers.csv")
	if err := writeCSV(centerPath, centerRows(startDay, *days, rng)); err != nil {
		return fmt.Errorf("write visitor center fixture: %w", err)
	}
	log.Printf("wrote visitor center fixture: %s (%d days)", centerPath, *days)
	return nil
}

// sensorRows produces one hourly row per sensor column the mapping knows,
// with a diurnal visitor curve and a weekend bump. A slice of rows uses
// the legacy German date format so the parser path stays exercised.
func sensorRows(m *sensor.Mapping, start time.Time, days int, rng *rand.Rand) [][]string {
	schema := quality.SensorSchema(m)
	rows := [][]string{schema.Expected}

	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			ts := day.Add(time.Duration(h) * time.Hour)
			row := make([]string, len(schema.Expected))
			row[0] = formatTime(ts, d%7 == 3)
			for j := 1; j < len(schema.Expected); j++ {
				row[j] = strconv.Itoa(hourlyCount(ts, rng))
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// centerRows produces the daily visitor-center workbook.
func centerRows(start time.Time, days int, rng *rand.Rand) [][]string {
	schema := quality.VisitorCenterSchema()
	rows := [][]string{schema.Expected}

	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		row := make([]string, len(schema.Expected))
		row[0] = day.Format("2006-01-02")
		row[1] = germanWeekdays[day.Weekday()]

		j := 2
		for range schema.IntColumns {
			row[j] = strconv.Itoa(50 + rng.Intn(400))
			j++
		}
		for _, name := range schema.BinaryColumns {
			row[j] = binaryFlag(name, day, rng)
			j++
		}
		temp := 8 + 12*math.Sin(2*math.Pi*float64(day.YearDay()-100)/365) + rng.Float64()*4
		floats := []float64{
			temp,
			rng.Float64() * 10,
			math.Max(0, -temp*2),
			rng.Float64() * 2000,
			rng.Float64() * 4000,
		}
		for _, v := range floats {
			row[j] = strconv.FormatFloat(v, 'f', 1, 64)
			j++
		}
		rows = append(rows, row)
	}
	return rows
}

// hourlyCount returns a plausible gate count: near zero at night, peaking
// early afternoon, higher on weekends.
func hourlyCount(ts time.Time, rng *rand.Rand) int {
	h := float64(ts.Hour())
	base := 40 * math.Max(0, math.Sin((h-6)*math.Pi/14))
	if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
		base *= 1.8
	}
	return int(base * (0.7 + 0.6*rng.Float64()))
}

func binaryFlag(name string, day time.Time, rng *rand.Rand) string {
	switch {
	case name == "Laubfärbung":
		if day.Month() == time.October {
			return "1"
		}
		return "0"
	case day.Month() == time.August: // summer holidays
		return "1"
	default:
		if rng.Float64() < 0.1 {
			return "1"
		}
		return "0"
	}
}

// formatTime renders timestamps in the ISO export format, or in the
// legacy German format for rows flagged to use it.
func formatTime(ts time.Time, german bool) string {
	if !german {
		return ts.Format("2006-01-02 15:04:05")
	}
	months := []string{"Jan.", "Feb.", "März", "Apr.", "Mai", "Juni",
		"Juli", "Aug.", "Sep.", "Okt.", "Nov.", "Dez."}
	return fmt.Sprintf("%d. %s %d %02d:%02d",
		ts.Day(), months[ts.Month()-1], ts.Year(), ts.Hour(), ts.Minute())
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
