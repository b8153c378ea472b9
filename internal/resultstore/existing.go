package resultstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Layout names the header columns that identify an existing result.
type Layout struct {
	Path             string
	LanguageVersion  string
	FrameworkVersion string // empty for tables without a framework
}

var (
	ComputationLayout = Layout{Path: "path", LanguageVersion: "version"}
	WebLayout         = Layout{Path: "path", LanguageVersion: "version", FrameworkVersion: "framework_version"}
)

// Existing lists the versions already benchmarked for one variant directory.
type Existing struct {
	Language          string
	Variant           string
	LanguageVersions  map[string]struct{}
	FrameworkVersions map[string]struct{}
}

// Has reports whether the combination was already benchmarked. An empty
// frameworkVersion only checks the language version.
func (e *Existing) Has(languageVersion, frameworkVersion string) bool {
	if e == nil {
		return false
	}
	if _, ok := e.LanguageVersions[languageVersion]; !ok {
		return false
	}
	if frameworkVersion == "" {
		return true
	}
	_, ok := e.FrameworkVersions[frameworkVersion]
	return ok
}

// ExistingMap is language -> variant -> existing result.
type ExistingMap map[string]map[string]*Existing

// Lookup returns nil when nothing was benchmarked for language/variant.
func (m ExistingMap) Lookup(language, variant string) *Existing {
	return m[language][variant]
}

// ErrInvalidPath is returned for a path column not of the form lang/variant.
var ErrInvalidPath = errors.New("invalid directory format (expected: lang/variant)")

// ReadExisting reads the table at path. A missing file yields an empty map.
func ReadExisting(path string, layout Layout) (ExistingMap, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ExistingMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	m, err := readExisting(f, layout)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return m, nil
}

func readExisting(r io.Reader, layout Layout) (ExistingMap, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return ExistingMap{}, nil
	}
	if err != nil {
		return nil, err
	}

	pathCol := slices.Index(header, layout.Path)
	langCol := slices.Index(header, layout.LanguageVersion)
	if pathCol < 0 || langCol < 0 {
		return nil, fmt.Errorf("header %v lacks %q or %q", header, layout.Path, layout.LanguageVersion)
	}
	frameworkCol := -1
	if layout.FrameworkVersion != "" {
		if frameworkCol = slices.Index(header, layout.FrameworkVersion); frameworkCol < 0 {
			return nil, fmt.Errorf("header %v lacks %q", header, layout.FrameworkVersion)
		}
	}

	m := ExistingMap{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) <= max(pathCol, langCol, frameworkCol) {
			continue
		}

		language, variant, ok := strings.Cut(record[pathCol], "/")
		if !ok || language == "" || variant == "" || strings.Contains(variant, "/") {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPath, record[pathCol])
		}

		variants, ok := m[language]
		if !ok {
			variants = map[string]*Existing{}
			m[language] = variants
		}
		e, ok := variants[variant]
		if !ok {
			e = &Existing{
				Language:          language,
				Variant:           variant,
				LanguageVersions:  map[string]struct{}{},
				FrameworkVersions: map[string]struct{}{},
			}
			variants[variant] = e
		}

		e.LanguageVersions[record[langCol]] = struct{}{}
		if frameworkCol >= 0 {
			e.FrameworkVersions[record[frameworkCol]] = struct{}{}
		}
	}
	return m, nil
}
