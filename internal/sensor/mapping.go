// Package sensor reconciles raw visitor-counter exports into one coherent
// hourly series per location and direction. The park's counting hardware
// was installed, replaced, and occasionally run in parallel over an
// eight-year span; every correction applied here is driven by a versioned
// mapping asset, not code constants, so a hardware change is a data update.
package sensor

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/npbw/visitor-pipeline/internal/dateparse"
)

// Direction is the side of a counter a reading belongs to.
type Direction string

const (
	DirIn  Direction = "IN"
	DirOut Direction = "OUT"
)

// ColumnID is the typed identity of a reconciled sensor column. Carrying
// the identity alongside the data replaces the old habit of re-parsing
// "IN"/"OUT" out of column names at every stage.
type ColumnID struct {
	Location   string    `yaml:"location"`
	Direction  Direction `yaml:"direction"`
	Generation string    `yaml:"generation,omitempty"` // e.g. PYRO, MULTI, EVO; empty for single-generation sites
	Mode       string    `yaml:"mode,omitempty"`       // e.g. pedestrian, cyclist; empty for combined counts
}

// Name renders the canonical column name used in tables.
func (c ColumnID) Name() string {
	name := c.Location
	if c.Generation != "" {
		name += " " + c.Generation
	}
	if c.Mode != "" {
		name += " " + c.Mode
	}
	return name + " " + string(c.Direction)
}

func (c ColumnID) validate() error {
	if c.Location == "" {
		return fmt.Errorf("column identity missing location")
	}
	if c.Direction != DirIn && c.Direction != DirOut {
		return fmt.Errorf("column %q: direction must be IN or OUT, got %q", c.Location, c.Direction)
	}
	return nil
}

// Rename maps one raw export header to a canonical column identity.
type Rename struct {
	Raw string   `yaml:"raw"`
	To  ColumnID `yaml:"to"`
}

// Derived declares a column computed as the row-wise sum of source
// columns, used where the export splits one counter into per-mode lanes.
type Derived struct {
	Column  ColumnID `yaml:"column"`
	Sources []string `yaml:"sources"`
}

// Decommission nulls a column's readings before the cutoff. Hardware at
// these sites produced spurious data before it was validated.
type Decommission struct {
	Cutoff  string   `yaml:"cutoff"`
	Columns []string `yaml:"columns"`
}

// Replacement describes a hardware generation handoff at one location:
// the legacy counter is valid through the replacement date, the successor
// from the moment after it.
type Replacement struct {
	Location  string   `yaml:"location"`
	Date      string   `yaml:"date"`
	Legacy    []string `yaml:"legacy"`
	Successor []string `yaml:"successor"`
}

// Merge coalesces a legacy and a successor column into one output column,
// preferring the legacy value while it is active.
type Merge struct {
	Out       string `yaml:"out"`
	Legacy    string `yaml:"legacy"`
	Successor string `yaml:"successor"`
}

// RowSwap corrects a pair of rows whose values were recorded against each
// other's timestamp (a season-specific quirk of the source system).
type RowSwap struct {
	A string `yaml:"a"`
	B string `yaml:"b"`
}

// Region aggregates one or more physical locations into a user-facing
// named area.
type Region struct {
	Name string   `yaml:"name"`
	In   []string `yaml:"in"`
	Out  []string `yaml:"out"`
}

// Mapping is the versioned asset that drives reconciliation.
type Mapping struct {
	Version              int            `yaml:"version"`
	EarliestInstallation string         `yaml:"earliest_installation"`
	OutlierCeiling       float64        `yaml:"outlier_ceiling"`
	Renames              []Rename       `yaml:"renames"`
	Drops                []string       `yaml:"drops"`
	Derived              []Derived      `yaml:"derived"`
	RowSwaps             []RowSwap      `yaml:"row_swaps"`
	Decommissions        []Decommission `yaml:"decommissions"`
	Replacements         []Replacement  `yaml:"replacements"`
	Merges               []Merge        `yaml:"merges"`
	Regions              []Region       `yaml:"regions"`

	earliest time.Time
}

// LoadMapping parses and validates a mapping asset. Any malformed entry is
// a configuration error: the run must abort rather than reconcile against
// a half-understood hardware history.
func LoadMapping(data []byte) (*Mapping, error) {
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse sensor mapping: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid sensor mapping: %w", err)
	}
	return &m, nil
}

func (m *Mapping) validate() error {
	if m.EarliestInstallation == "" {
		return fmt.Errorf("earliest_installation is required")
	}
	t, err := parseMappingTime(m.EarliestInstallation)
	if err != nil {
		return fmt.Errorf("earliest_installation: %w", err)
	}
	m.earliest = t

	if m.OutlierCeiling <= 0 {
		return fmt.Errorf("outlier_ceiling must be positive, got %v", m.OutlierCeiling)
	}

	seen := make(map[string]string, len(m.Renames))
	for _, r := range m.Renames {
		if r.Raw == "" {
			return fmt.Errorf("rename with empty raw header")
		}
		if err := r.To.validate(); err != nil {
			return fmt.Errorf("rename %q: %w", r.Raw, err)
		}
		if prev, dup := seen[r.Raw]; dup {
			return fmt.Errorf("rename %q mapped twice (%q and %q)", r.Raw, prev, r.To.Name())
		}
		seen[r.Raw] = r.To.Name()
	}

	for _, d := range m.Derived {
		if err := d.Column.validate(); err != nil {
			return fmt.Errorf("derived column: %w", err)
		}
		if len(d.Sources) == 0 {
			return fmt.Errorf("derived column %q has no sources", d.Column.Name())
		}
	}

	for _, d := range m.Decommissions {
		if _, err := parseMappingTime(d.Cutoff); err != nil {
			return fmt.Errorf("decommission cutoff %q: %w", d.Cutoff, err)
		}
		if len(d.Columns) == 0 {
			return fmt.Errorf("decommission at %q lists no columns", d.Cutoff)
		}
	}

	for _, r := range m.Replacements {
		if _, err := parseMappingTime(r.Date); err != nil {
			return fmt.Errorf("replacement at %q: %w", r.Location, err)
		}
		if len(r.Legacy) == 0 && len(r.Successor) == 0 {
			return fmt.Errorf("replacement at %q masks no columns", r.Location)
		}
	}

	for _, mg := range m.Merges {
		if mg.Out == "" || mg.Legacy == "" || mg.Successor == "" {
			return fmt.Errorf("merge %q: out, legacy, and successor are all required", mg.Out)
		}
	}

	for _, s := range m.RowSwaps {
		if _, err := parseMappingTime(s.A); err != nil {
			return fmt.Errorf("row swap: %w", err)
		}
		if _, err := parseMappingTime(s.B); err != nil {
			return fmt.Errorf("row swap: %w", err)
		}
	}

	for _, r := range m.Regions {
		if r.Name == "" {
			return fmt.Errorf("region with empty name")
		}
		if len(r.In)+len(r.Out) == 0 {
			return fmt.Errorf("region %q has no member columns", r.Name)
		}
	}

	return nil
}

// Earliest returns the park's first valid sensor installation time; rows
// before it are excluded entirely.
func (m *Mapping) Earliest() time.Time { return m.earliest }

func parseMappingTime(s string) (time.Time, error) {
	t, ok := dateparse.ParseAny(s)
	if !ok {
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}
	return t, nil
}
