package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/npbw/visitor-pipeline/internal/table"
)

// Local is a Store backed by a directory tree under a root path.
type Local struct {
	root   string
	logger *slog.Logger
}

// NewLocal creates a local filesystem store rooted at root.
func NewLocal(root string, logger *slog.Logger) *Local {
	return &Local{root: root, logger: logger}
}

func (l *Local) tablePath(folder, name string, format Format) string {
	return filepath.Join(l.root, folder, name+"."+string(format))
}

// ReadTable loads a table from folder/name.<format>.
func (l *Local) ReadTable(ctx context.Context, name string, format Format, folder string) (*table.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !format.Valid() {
		return nil, fmt.Errorf("read %s/%s: unsupported format %q", folder, name, format)
	}
	path := l.tablePath(folder, name, format)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s/%s: %w", folder, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", folder, name, err)
	}

	var t *table.Table
	switch format {
	case FormatCSV:
		t, err = decodeCSV(data)
	case FormatXLSX:
		t, err = decodeXLSX(data)
	case FormatParquet:
		t, err = decodeParquet(data)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	l.logger.Debug("table read", "path", path, "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}

// WriteTable persists a table to folder/name.<format>.
func (l *Local) WriteTable(ctx context.Context, t *table.Table, name string, format Format, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !format.Valid() {
		return fmt.Errorf("write %s/%s: unsupported format %q", folder, name, format)
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatCSV:
		data, err = encodeCSV(t)
	case FormatXLSX:
		data, err = encodeXLSX(t)
	case FormatParquet:
		data, err = encodeParquet(t, name)
	}
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", folder, name, err)
	}

	path := l.tablePath(folder, name, format)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	l.logger.Debug("table written", "path", path, "rows", t.Len(), "columns", len(t.Columns()))
	return nil
}

// ReadRecords loads raw cell data from a csv or xlsx object.
func (l *Local) ReadRecords(ctx context.Context, name string, format Format, folder string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := l.tablePath(folder, name, format)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s/%s: %w", folder, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", folder, name, err)
	}
	switch format {
	case FormatCSV:
		return decodeCSVRecords(data)
	case FormatXLSX:
		return decodeXLSXRecords(data)
	default:
		return nil, fmt.Errorf("read records %s/%s: unsupported format %q", folder, name, format)
	}
}

// ReadBytes loads an opaque blob.
func (l *Local) ReadBytes(ctx context.Context, name, folder string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.root, folder, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s/%s: %w", folder, name, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s/%s: %w", folder, name, err)
	}
	return data, nil
}

// WriteBytes stores an opaque blob unmodified.
func (l *Local) WriteBytes(ctx context.Context, data []byte, name, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(l.root, folder, name)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write %s/%s: %w", folder, name, err)
	}
	return nil
}

// List enumerates the files of a folder, newest not guaranteed first.
func (l *Local) List(ctx context.Context, folder string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(l.root, folder)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", folder, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", folder, err)
		}
		out = append(out, Entry{Name: e.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

// writeFileAtomic writes via a temp file and rename so readers never see
// a half-written table during a refresh cycle.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
