// Package storage defines the persistence contract the pipeline works
// against and a local filesystem backend implementing it. Tables are
// stored as csv, parquet, or xlsx; opaque blobs (model artifacts,
// quarantined uploads) bypass the codecs.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Format selects the on-disk encoding of a table.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatXLSX    Format = "xlsx"
)

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatParquet, FormatXLSX:
		return true
	}
	return false
}

// Entry describes one stored object within a folder.
type Entry struct {
	Name    string
	ModTime time.Time
}

// Store is the storage collaborator. Folders are logical prefixes; the
// backend decides how they map to physical locations. Core packages
// depend only on this interface.
type Store interface {
	// ReadTable loads a table; the stored object must carry a parseable
	// Time column.
	ReadTable(ctx context.Context, name string, format Format, folder string) (*table.Table, error)
	// WriteTable persists a table, creating the folder if needed.
	WriteTable(ctx context.Context, t *table.Table, name string, format Format, folder string) error
	// ReadRecords loads raw cell data without typing or a Time index.
	// Used for uploads whose schema has not been validated yet. Not
	// supported for parquet.
	ReadRecords(ctx context.Context, name string, format Format, folder string) ([][]string, error)
	// ReadBytes and WriteBytes move opaque blobs.
	ReadBytes(ctx context.Context, name, folder string) ([]byte, error)
	WriteBytes(ctx context.Context, data []byte, name, folder string) error
	// List returns the entries of a folder. A missing folder is an empty
	// list, not an error.
	List(ctx context.Context, folder string) ([]Entry, error)
}

// ErrNotFound is wrapped into read errors for missing objects.
var ErrNotFound = fmt.Errorf("object not found")
