// Package meta loads the benchmark.yaml descriptor of a benchmark directory.
package meta

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sharkbench/internal/migrate"
	"sharkbench/internal/workspace"
)

const FileName = "benchmark.yaml"

var validate = validator.New(validator.WithRequiredStructEnabled())

// VersionPatterns maps a file (relative to the benchmark directory) to the
// pattern locating its version, in document order.
type VersionPatterns []migrate.FilePattern

func (p *VersionPatterns) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping of file to pattern", node.Line)
	}
	out := make(VersionPatterns, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var file, pattern string
		if err := node.Content[i].Decode(&file); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&pattern); err != nil {
			return err
		}
		out = append(out, migrate.FilePattern{File: file, Pattern: pattern})
	}
	*p = out
	return nil
}

func (p VersionPatterns) String() string {
	if p == nil {
		return "Default"
	}
	parts := make([]string, len(p))
	for i, fp := range p {
		parts[i] = fp.File + ": " + fp.Pattern
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// CopyList is a list of files copied from the _common directory. An entry is
// either a path kept as is, or a single-key mapping of source to destination.
type CopyList []workspace.CopySpec

func (c *CopyList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: copy must be a list", node.Line)
	}
	out := make(CopyList, 0, len(node.Content))
	for _, item := range node.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, workspace.CopySpec{Src: item.Value, Dst: item.Value})
		case yaml.MappingNode:
			if len(item.Content) != 2 {
				return fmt.Errorf("line %d: copy entry must have exactly one source", item.Line)
			}
			out = append(out, workspace.CopySpec{Src: item.Content[0].Value, Dst: item.Content[1].Value})
		default:
			return fmt.Errorf("line %d: invalid copy entry", item.Line)
		}
	}
	for _, spec := range out {
		if spec.Src == "" || spec.Dst == "" {
			return errors.New("copy entry with empty path")
		}
	}
	*c = out
	return nil
}

// Benchmark is the descriptor shared by computation and web benchmarks.
type Benchmark struct {
	Language       string          `yaml:"language" validate:"required"`
	Mode           string          `yaml:"mode" validate:"required"`
	Versions       []string        `yaml:"version" validate:"required,min=1,dive,required"`
	VersionRegex   VersionPatterns `yaml:"version_regex"`
	ExtendedWarmup bool            `yaml:"extended_warmup"`
	Runs           *int            `yaml:"runs" validate:"omitempty,gt=0"`
	Copy           CopyList        `yaml:"copy"`
}

// Web adds the framework descriptor of a web benchmark.
type Web struct {
	Benchmark `yaml:",inline"`

	Framework             string          `yaml:"framework" validate:"required"`
	FrameworkStdlib       bool            `yaml:"framework_stdlib"`
	FrameworkWebsite      string          `yaml:"framework_website" validate:"required"`
	FrameworkFlavor       string          `yaml:"framework_flavor" validate:"required"`
	FrameworkVersions     []string        `yaml:"framework_version" validate:"required,min=1,dive,required"`
	FrameworkVersionRegex VersionPatterns `yaml:"framework_version_regex"`
	Concurrency           *int            `yaml:"concurrency" validate:"omitempty,gt=0"`
}

// LoadBenchmark reads and validates dir/benchmark.yaml.
func LoadBenchmark(dir string) (*Benchmark, error) {
	var b Benchmark
	if err := load(dir, &b); err != nil {
		return nil, err
	}
	if err := checkPatterns(b.VersionRegex); err != nil {
		return nil, fmt.Errorf("invalid %s in %s: %w", FileName, dir, err)
	}
	return &b, nil
}

// LoadWeb reads and validates dir/benchmark.yaml including framework fields.
func LoadWeb(dir string) (*Web, error) {
	var w Web
	if err := load(dir, &w); err != nil {
		return nil, err
	}
	for _, p := range []VersionPatterns{w.VersionRegex, w.FrameworkVersionRegex} {
		if err := checkPatterns(p); err != nil {
			return nil, fmt.Errorf("invalid %s in %s: %w", FileName, dir, err)
		}
	}
	return &w, nil
}

func load(dir string, out any) error {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read meta data: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid %s: %w", path, err)
	}
	return nil
}

func checkPatterns(patterns VersionPatterns) error {
	for _, p := range patterns {
		if p.Pattern == migrate.DefaultPatternKeyword {
			continue
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("%w for %s: %w", migrate.ErrInvalidRegex, p.File, err)
		}
	}
	return nil
}

// Field is one line of the descriptor summary.
type Field struct {
	Key   string
	Value string
}

func (b *Benchmark) Fields() []Field {
	return []Field{
		{"Language", b.Language},
		{"Mode", b.Mode},
		{"Language version", strings.Join(b.Versions, ", ")},
		{"Language version regex", b.VersionRegex.String()},
	}
}

func (w *Web) Fields() []Field {
	concurrency := "Default"
	if w.Concurrency != nil {
		concurrency = strconv.Itoa(*w.Concurrency)
	}
	copies := make([]string, len(w.Copy))
	for i, c := range w.Copy {
		copies[i] = c.Src + " -> " + c.Dst
	}
	return append(w.Benchmark.Fields(),
		Field{"Framework", w.Framework},
		Field{"Framework stdlib", strconv.FormatBool(w.FrameworkStdlib)},
		Field{"Framework website", w.FrameworkWebsite},
		Field{"Framework flavor", w.FrameworkFlavor},
		Field{"Framework version", strings.Join(w.FrameworkVersions, ", ")},
		Field{"Framework version regex", w.FrameworkVersionRegex.String()},
		Field{"Concurrency", concurrency},
		Field{"Copy", strings.Join(copies, ", ")},
	)
}
