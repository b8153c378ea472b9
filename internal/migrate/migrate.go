// Package migrate switches a version token inside build files and restores
// the original contents afterwards.
package migrate

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	// DefaultPatternKeyword can be used as a pattern value to select DefaultPattern.
	DefaultPatternKeyword = "DEFAULT_DOCKER_REGEX"

	// DefaultPattern matches `FROM <image>:<version>[-suffix][ AS name]` lines.
	DefaultPattern = `^FROM.*:([\d.]+)(?:-.*)?(?: AS \w+)?$`

	DefaultFile = "Dockerfile"
)

var (
	ErrInvalidRegex    = errors.New("invalid version regex")
	ErrVersionNotFound = errors.New("version not found")
)

// InvalidVersionError is returned when the pattern matched but captured a
// version other than the expected one.
type InvalidVersionError struct {
	Found string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("unexpected version %s", e.Found)
}

// FilePattern maps a file (relative to the working directory) to the pattern
// locating its version.
type FilePattern struct {
	File    string
	Pattern string
}

type transformation struct {
	path     string
	pattern  string
	original *string
}

// Migrator rewrites the version captured by each file's pattern from one
// version to another.
type Migrator struct {
	transformations []transformation
	from            string
	to              string
}

// New creates a migrator for dir. With no patterns, the Dockerfile in dir is
// migrated using DefaultPattern.
func New(dir string, patterns []FilePattern, from, to string) *Migrator {
	if len(patterns) == 0 {
		patterns = []FilePattern{{File: DefaultFile, Pattern: DefaultPattern}}
	}

	ts := make([]transformation, 0, len(patterns))
	for _, p := range patterns {
		pattern := p.Pattern
		if pattern == DefaultPatternKeyword {
			pattern = DefaultPattern
		}
		ts = append(ts, transformation{
			path:    filepath.Join(dir, p.File),
			pattern: pattern,
		})
	}

	return &Migrator{transformations: ts, from: from, to: to}
}

// Migrate captures every file's contents and rewrites the version. Nothing is
// written unless every file migrates cleanly.
func (m *Migrator) Migrate() error {
	updated := make([]string, len(m.transformations))

	for i := range m.transformations {
		t := &m.transformations[i]
		data, err := os.ReadFile(t.path)
		if err != nil {
			return fmt.Errorf("could not read %s: %w", t.path, err)
		}
		original := string(data)
		t.original = &original

		contents, err := migrateContents(original, t.pattern, m.from, m.to)
		if err != nil {
			var invalid *InvalidVersionError
			switch {
			case errors.As(err, &invalid):
				return fmt.Errorf("expected %s in %s but found %s: %w", m.from, t.path, invalid.Found, err)
			case errors.Is(err, ErrVersionNotFound):
				return fmt.Errorf("expected %s in %s but found none: %w", m.from, t.path, err)
			default:
				return fmt.Errorf("pattern for %s: %w", t.path, err)
			}
		}
		updated[i] = contents
	}

	for i, t := range m.transformations {
		if err := writeFile(t.path, updated[i]); err != nil {
			return err
		}
		slog.Info("migrated version", "file", t.path, "from", m.from, "to", m.to)
	}
	return nil
}

// Restore writes back the contents captured by Migrate. Files that were never
// captured are left alone.
func (m *Migrator) Restore() error {
	var errs []error
	for _, t := range m.transformations {
		if t.original == nil {
			continue
		}
		if err := writeFile(t.path, *t.original); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("restored version", "file", t.path, "version", m.from)
	}
	return errors.Join(errs...)
}

func writeFile(path, contents string) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		return fmt.Errorf("could not write %s: %w", path, err)
	}
	return nil
}

// migrateContents replaces the first capture group of every match equal to
// from with to. Matches capturing another version are kept verbatim; it is
// only an error when no match carried the expected version.
func migrateContents(original, pattern, from, to string) (string, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return "", fmt.Errorf("%w: could not compile %s: %v", ErrInvalidRegex, pattern, err)
	}
	if re.NumSubexp() < 1 {
		return "", fmt.Errorf("%w: %s has no capture group", ErrInvalidRegex, pattern)
	}

	var (
		b        strings.Builder
		last     int
		replaced bool
		detected string
	)
	for _, loc := range re.FindAllStringSubmatchIndex(original, -1) {
		start, end := loc[2], loc[3]
		if start < 0 {
			continue
		}
		if original[start:end] != from {
			detected = original[start:end]
			continue
		}
		b.WriteString(original[last:start])
		b.WriteString(to)
		last = end
		replaced = true
	}

	if !replaced {
		if detected != "" {
			return "", &InvalidVersionError{Found: detected}
		}
		return "", ErrVersionNotFound
	}

	b.WriteString(original[last:])
	return b.String(), nil
}
