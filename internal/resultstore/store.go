// Package resultstore maintains flat CSV result tables keyed by a descriptor
// tuple, merging new rows into the existing file.
package resultstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"sharkbench/internal/version"
)

// Column is one named cell of a row.
type Column struct {
	Key   string
	Value string
}

// ConflictResolver picks the value columns to keep when a row with the same
// descriptor tuple already exists.
type ConflictResolver func(prev, next []string) []string

// KeepNew always replaces the existing values.
func KeepNew(_, next []string) []string { return next }

// KeepHigherFirst keeps the old values when their first value is numerically
// larger than the new one.
func KeepHigherFirst(prev, next []string) []string {
	if compareFirst(prev, next) > 0 {
		slog.Info("keeping old values", "old", prev[0], "new", next[0])
		return prev
	}
	return next
}

// KeepLowerFirst keeps the old values when their first value is numerically
// smaller than the new one.
func KeepLowerFirst(prev, next []string) []string {
	if compareFirst(prev, next) < 0 {
		slog.Info("keeping old values", "old", prev[0], "new", next[0])
		return prev
	}
	return next
}

// compareFirst returns 0 when either first value is missing or not a number.
func compareFirst(prev, next []string) int {
	if len(prev) == 0 || len(next) == 0 {
		return 0
	}
	a, errA := strconv.ParseFloat(prev[0], 64)
	b, errB := strconv.ParseFloat(next[0], 64)
	if errA != nil || errB != nil {
		return 0
	}
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

// Write merges one row into the table at path and rewrites the file. The
// header is rebuilt from the supplied column keys. A nil resolver keeps the
// new values.
func Write(path string, descriptors, values []Column, resolve ConflictResolver) error {
	if resolve == nil {
		resolve = KeepNew
	}

	for _, c := range slices.Concat(descriptors, values) {
		slog.Info("writing result", "key", c.Key, "value", c.Value)
	}

	_, rows, err := Read(path)
	if err != nil {
		return err
	}

	key := cells(descriptors)
	newValues := cells(values)

	merged := false
	for i, row := range rows {
		if len(row) < len(key) || !slices.Equal(row[:len(key)], key) {
			continue
		}
		kept := resolve(slices.Clone(row[len(key):]), newValues)
		rows[i] = slices.Concat(key, kept)
		merged = true
		break
	}
	if !merged {
		rows = append(rows, slices.Concat(key, newValues))
	}

	slices.SortStableFunc(rows, CompareRows)

	header := slices.Concat(keys(descriptors), keys(values))
	return writeRows(path, header, rows)
}

// CompareRows orders rows column by column. Columns are compared as dotted
// versions when both sides parse, otherwise as strings.
func CompareRows(a, b []string) int {
	for i := range min(len(a), len(b)) {
		if c := version.CompareStrings(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Read returns the header and data rows of path. A missing file is an empty
// table.
func Read(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if header == nil {
			header = record
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

// writeRows writes to a temporary file next to path and renames it over path,
// so a failed write never truncates the existing table.
func writeRows(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func cells(columns []Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Value
	}
	return out
}

func keys(columns []Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Key
	}
	return out
}
