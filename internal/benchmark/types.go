package benchmark

import (
	"context"
	"time"

	"sharkbench/internal/stats"
)

// Metric is one named integer produced by an iteration.
type Metric struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Metrics is what one iteration reports besides its wall time. Data is
// reduced into the result; Debug is only logged.
type Metrics struct {
	Data  []Metric
	Debug []Metric
}

// Result is the reduced outcome of all measured rounds.
type Result struct {
	TimeMedian   time.Duration    `json:"time_median"`
	MemoryMedian int64            `json:"memory_median"`
	MemoryP99    int64            `json:"memory_p99"`
	Metrics      map[string]int64 `json:"metrics"`
	MetricNames  []string         `json:"metric_names"` // first-seen order
}

// Metric returns the reduced value of a named metric.
func (r *Result) Metric(name string) (int64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}

// Runtime builds, starts and tears down the container under test.
type Runtime interface {
	Up(ctx context.Context, dir, lifecycle string) error
	Down(ctx context.Context, dir, lifecycle string) error
}

// Iteration is one unit of work measured by the runner.
type Iteration interface {
	RunIteration(ctx context.Context) (Metrics, error)
}

// IterationFunc adapts a function to Iteration.
type IterationFunc func(ctx context.Context) (Metrics, error)

func (f IterationFunc) RunIteration(ctx context.Context) (Metrics, error) { return f(ctx) }

// Sampler records container memory while started.
type Sampler interface {
	Start()
	Stop()
	MemoryUsage() stats.MemoryUsage
	Err() error
}

// Migration switches a version in the build files and puts it back.
type Migration interface {
	Migrate() error
	Restore() error
}

// Phase tells warmup rounds from measured ones.
type Phase string

const (
	PhaseWarmup  Phase = "warmup"
	PhaseMeasure Phase = "measure"
)

// Observer is notified about every iteration.
type Observer interface {
	IterationDone(phase Phase, elapsed time.Duration, memory stats.MemoryUsage, metrics Metrics)
	IterationFailed(phase Phase, err error)
}

type nopObserver struct{}

func (nopObserver) IterationDone(Phase, time.Duration, stats.MemoryUsage, Metrics) {}
func (nopObserver) IterationFailed(Phase, error)                                   {}
