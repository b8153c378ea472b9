// Package benchmark runs one benchmark target through container start,
// warmup and measured rounds, and reduces the rounds into a Result.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jpillora/backoff"

	"sharkbench/internal/percentile"
	"sharkbench/internal/stats"
	"sharkbench/internal/workspace"
)

const (
	DefaultSettleDelay = 5 * time.Second
	DefaultCooldown    = time.Second
	DefaultMaxFailures = 5
	DefaultRetryDelay  = time.Second
)

var ErrTooManyFailures = errors.New("too many failed iterations")

// Options describes one target/version combination.
type Options struct {
	Dir       string
	Lifecycle string // rendered compose definition, empty to use the directory's own

	Copy       []workspace.CopySpec
	Migrations []Migration

	Warmups int
	Runs    int

	SettleDelay time.Duration
	Cooldown    time.Duration
	MaxFailures int
	RetryDelay  time.Duration
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.Cooldown == 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.MaxFailures == 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = DefaultRetryDelay
	}
}

// Runner drives rounds strictly one at a time against a single container.
type Runner struct {
	runtime  Runtime
	sampler  Sampler
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Runner)

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

func NewRunner(runtime Runtime, sampler Sampler, opts ...Option) *Runner {
	r := &Runner{
		runtime:  runtime,
		sampler:  sampler,
		observer: nopObserver{},
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type round struct {
	elapsed time.Duration
	memory  stats.MemoryUsage
	metrics Metrics
}

// Run executes the full round sequence. The container is always torn down,
// migrated files are always restored and copied files always removed, in
// that order, even when a round fails.
func (r *Runner) Run(ctx context.Context, opts Options, it Iteration) (res *Result, err error) {
	opts.setDefaults()
	if opts.Runs < 1 {
		return nil, fmt.Errorf("runs must be positive, got %d", opts.Runs)
	}

	if len(opts.Copy) > 0 {
		defer func() {
			err = errors.Join(err, workspace.DeleteCopiedFiles(opts.Dir, opts.Copy))
		}()
		if err := workspace.CopyFiles(opts.Dir, opts.Copy); err != nil {
			return nil, err
		}
	}

	for _, m := range opts.Migrations {
		defer func() {
			if rerr := m.Restore(); rerr != nil {
				err = errors.Join(err, fmt.Errorf("failed to restore version: %w", rerr))
			}
		}()
		if err := m.Migrate(); err != nil {
			return nil, fmt.Errorf("failed to migrate version: %w", err)
		}
	}

	defer func() {
		slog.Info("stopping container", "dir", opts.Dir)
		// Teardown must still run after a cancelled run.
		downCtx := context.WithoutCancel(ctx)
		if derr := r.runtime.Down(downCtx, opts.Dir, opts.Lifecycle); derr != nil {
			err = errors.Join(err, fmt.Errorf("failed to stop container: %w", derr))
		}
	}()

	slog.Info("building image", "dir", opts.Dir)
	if err := r.runtime.Up(ctx, opts.Dir, opts.Lifecycle); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	slog.Info("waiting for container to be ready", "delay", opts.SettleDelay)
	if err := r.sleep(ctx, opts.SettleDelay); err != nil {
		return nil, err
	}

	rounds, err := r.rounds(ctx, opts, it)
	if err != nil {
		return nil, err
	}
	return reduce(rounds), nil
}

func (r *Runner) rounds(ctx context.Context, opts Options, it Iteration) ([]round, error) {
	b := &backoff.Backoff{
		Min:    opts.RetryDelay,
		Max:    opts.RetryDelay * 10,
		Factor: 2,
	}

	var (
		rounds   = make([]round, 0, opts.Runs)
		failures int
		total    = opts.Warmups + opts.Runs
	)

	for slot := 0; slot < total; {
		phase := PhaseMeasure
		if slot < opts.Warmups {
			phase = PhaseWarmup
		}

		rd, err := r.iterate(ctx, it)
		if serr := r.sampler.Err(); serr != nil {
			return nil, fmt.Errorf("memory sampler failed: %w", serr)
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			r.observer.IterationFailed(phase, err)
			if failures > opts.MaxFailures {
				return nil, fmt.Errorf("%w (%d): %w", ErrTooManyFailures, failures, err)
			}
			delay := b.Duration()
			slog.Warn("iteration failed, retrying", "phase", phase, "failures", failures, "retry_in", delay, "error", err)
			if err := r.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		b.Reset()

		r.observer.IterationDone(phase, rd.elapsed, rd.memory, rd.metrics)
		logRound(phase, slot, opts.Warmups, rd)

		if phase == PhaseMeasure {
			rounds = append(rounds, rd)
		}
		slot++

		if slot < total {
			if err := r.sleep(ctx, opts.Cooldown); err != nil {
				return nil, err
			}
		}
	}
	return rounds, nil
}

func (r *Runner) iterate(ctx context.Context, it Iteration) (round, error) {
	r.sampler.Start()
	start := time.Now()
	metrics, err := it.RunIteration(ctx)
	elapsed := time.Since(start)
	r.sampler.Stop()

	if err != nil {
		return round{}, err
	}
	return round{elapsed: elapsed, memory: r.sampler.MemoryUsage(), metrics: metrics}, nil
}

func logRound(phase Phase, slot, warmups int, rd round) {
	n := slot + 1
	if phase == PhaseMeasure {
		n -= warmups
	}
	args := []any{
		"phase", phase,
		"round", n,
		"time_ms", rd.elapsed.Milliseconds(),
		"memory_median", humanize.IBytes(uint64(max(rd.memory.Median, 0))),
		"memory_p99", humanize.IBytes(uint64(max(rd.memory.P99, 0))),
	}
	for _, m := range slices.Concat(rd.metrics.Data, rd.metrics.Debug) {
		args = append(args, m.Name, m.Value)
	}
	slog.Info("round finished", args...)
}

func reduce(rounds []round) *Result {
	times := make([]time.Duration, len(rounds))
	medians := make([]int64, len(rounds))
	p99s := make([]int64, len(rounds))
	for i, rd := range rounds {
		times[i] = rd.elapsed
		medians[i] = rd.memory.Median
		p99s[i] = rd.memory.P99
	}
	slices.Sort(times)
	slices.Sort(medians)
	slices.Sort(p99s)

	res := &Result{
		TimeMedian:   percentile.P50(times),
		MemoryMedian: percentile.P50(medians),
		MemoryP99:    percentile.P99(p99s),
		Metrics:      map[string]int64{},
	}

	values := map[string][]int64{}
	for _, rd := range rounds {
		for _, m := range rd.metrics.Data {
			if _, seen := values[m.Name]; !seen {
				res.MetricNames = append(res.MetricNames, m.Name)
			}
			values[m.Name] = append(values[m.Name], m.Value)
		}
	}
	for _, name := range res.MetricNames {
		v := values[name]
		slices.Sort(v)
		res.Metrics[name] = percentile.P50(v)
	}

	slog.Info("benchmark finished",
		"time_median_ms", res.TimeMedian.Milliseconds(),
		"memory_median", humanize.IBytes(uint64(max(res.MemoryMedian, 0))),
		"memory_p99", humanize.IBytes(uint64(max(res.MemoryP99, 0))),
	)
	return res
}
