// Package db stores the history of reduced benchmark runs.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sharkbench/internal/benchmark"
)

const (
	KindComputation = "computation"
	KindWeb         = "web"
)

var ErrNotFound = errors.New("run not found")

// Run is one reduced benchmark result for a single version combination.
type Run struct {
	ID               string
	Kind             string
	Path             string
	Language         string
	Version          string
	FrameworkVersion string
	TimeMedian       time.Duration
	MemoryMedian     int64
	MemoryP99        int64
	Metrics          []benchmark.Metric
	CreatedAt        time.Time
}

// NewRun builds a history record from a reduced result.
func NewRun(kind, path, language, version, frameworkVersion string, res benchmark.Result) Run {
	run := Run{
		Kind:             kind,
		Path:             path,
		Language:         language,
		Version:          version,
		FrameworkVersion: frameworkVersion,
		TimeMedian:       res.TimeMedian,
		MemoryMedian:     res.MemoryMedian,
		MemoryP99:        res.MemoryP99,
	}
	for _, name := range res.MetricNames {
		run.Metrics = append(run.Metrics, benchmark.Metric{Name: name, Value: res.Metrics[name]})
	}
	return run
}

// Result converts the record back for comparison against a fresh run.
func (r Run) Result() benchmark.Result {
	res := benchmark.Result{
		TimeMedian:   r.TimeMedian,
		MemoryMedian: r.MemoryMedian,
		MemoryP99:    r.MemoryP99,
		Metrics:      make(map[string]int64, len(r.Metrics)),
	}
	for _, m := range r.Metrics {
		res.Metrics[m.Name] = m.Value
		res.MetricNames = append(res.MetricNames, m.Name)
	}
	return res
}

// RunKey identifies the lineage a run is compared against.
type RunKey struct {
	Kind             string
	Path             string
	Version          string
	FrameworkVersion string
}

func (r Run) Key() RunKey {
	return RunKey{Kind: r.Kind, Path: r.Path, Version: r.Version, FrameworkVersion: r.FrameworkVersion}
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	Kind  string
	Path  string
	Limit int
}

// Store interface defines the methods for persistent storage
type Store interface {
	Close() error
	// SaveRun assigns ID and CreatedAt when unset.
	SaveRun(ctx context.Context, run *Run) error
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)
	// LatestRun returns ErrNotFound when no run matches key.
	LatestRun(ctx context.Context, key RunKey) (*Run, error)
}

type metricJSON struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func encodeMetrics(metrics []benchmark.Metric) (string, error) {
	out := make([]metricJSON, len(metrics))
	for i, m := range metrics {
		out[i] = metricJSON{Name: m.Name, Value: m.Value}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode metrics: %w", err)
	}
	return string(data), nil
}

func decodeMetrics(data string) ([]benchmark.Metric, error) {
	if data == "" {
		return nil, nil
	}
	var in []metricJSON
	if err := json.Unmarshal([]byte(data), &in); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	out := make([]benchmark.Metric, len(in))
	for i, m := range in {
		out[i] = benchmark.Metric{Name: m.Name, Value: m.Value}
	}
	return out, nil
}

func prepare(run *Run) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun reads the columns in runColumns order. created is converted by the caller.
func scanRun(row scanner, created any) (*Run, string, error) {
	var (
		run        Run
		timeNanos  int64
		metricsRaw string
	)
	err := row.Scan(&run.ID, &run.Kind, &run.Path, &run.Language, &run.Version, &run.FrameworkVersion,
		&timeNanos, &run.MemoryMedian, &run.MemoryP99, &metricsRaw, created)
	if err != nil {
		return nil, "", err
	}
	run.TimeMedian = time.Duration(timeNanos)
	return &run, metricsRaw, nil
}

const runColumns = `id, kind, path, language, version, framework_version, time_median_ns, memory_median, memory_p99, metrics, created_at`
