package suite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/db"
	"sharkbench/internal/loadtest"
	"sharkbench/internal/meta"
	"sharkbench/internal/migrate"
	"sharkbench/internal/resultstore"
)

const (
	WebResultFile = "web_result.csv"

	DefaultConcurrency = 32
	DefaultWebDuration = 15 * time.Second
	DefaultWebRuns     = 5
)

// Web load tests every target with the periodic table requests.
type Web struct {
	Env         *Env
	Requests    []loadtest.PreparedRequest
	Concurrency int // default when the descriptor has none
	Duration    time.Duration
	Runs        int

	// DataSource is started around the whole suite; the targets query it.
	DataSource    benchmark.Runtime
	DataSourceDir string

	loadTest func(ctx context.Context, opts loadtest.Options) (*loadtest.Result, error)
}

func NewWeb(env *Env, requests []loadtest.PreparedRequest) *Web {
	return &Web{
		Env:         env,
		Requests:    requests,
		Concurrency: DefaultConcurrency,
		Duration:    DefaultWebDuration,
		Runs:        DefaultWebRuns,
		loadTest:    loadtest.Run,
	}
}

func (w *Web) Kind() string               { return db.KindWeb }
func (w *Web) ResultFile() string         { return WebResultFile }
func (w *Web) Layout() resultstore.Layout { return resultstore.WebLayout }

// Start brings up the data source. The returned stop func tears it down.
func (w *Web) Start(ctx context.Context) (stop func() error, err error) {
	if w.DataSource == nil {
		return func() error { return nil }, nil
	}
	slog.Info("starting data source", "dir", w.DataSourceDir)
	if err := w.DataSource.Up(ctx, w.DataSourceDir, ""); err != nil {
		return nil, fmt.Errorf("failed to start data source: %w", err)
	}
	return func() error {
		slog.Info("stopping data source", "dir", w.DataSourceDir)
		return w.DataSource.Down(context.WithoutCancel(ctx), w.DataSourceDir, "")
	}, nil
}

func (w *Web) RunTarget(ctx context.Context, t Target, existing *resultstore.Existing) error {
	m, err := meta.LoadWeb(t.Dir)
	if err != nil {
		return err
	}

	if existing != nil && allExist(m.Versions, m.FrameworkVersions, existing) {
		slog.Info("skipping", "dir", t.Dir)
		for _, lv := range m.Versions {
			for _, fv := range m.FrameworkVersions {
				w.Env.skip(w.Kind(), lv+"/"+fv)
			}
		}
		return nil
	}

	slog.Info("benchmarking", "dir", t.Dir)
	w.Env.describe(t, m.Fields())

	concurrency := w.Concurrency
	if m.Concurrency != nil {
		slog.Info("overriding concurrency", "concurrency", *m.Concurrency, "default", w.Concurrency)
		concurrency = *m.Concurrency
	}
	warmups, runs := 1, w.Runs
	if m.ExtendedWarmup {
		warmups = 3
	}
	if m.Runs != nil {
		runs = *m.Runs
	}
	if w.Env.Validate {
		warmups, runs = 0, 1
	}

	iteration := w.iteration(concurrency)

	for _, lv := range m.Versions {
		for _, fv := range m.FrameworkVersions {
			label := fmt.Sprintf("%s v%s / %s v%s", m.Mode, lv, m.Framework, fv)
			if existing.Has(lv, fv) {
				w.Env.skip(w.Kind(), label)
				continue
			}

			var migrations []benchmark.Migration
			if len(m.Versions) > 1 {
				migrations = append(migrations, migrate.New(t.Dir, m.VersionRegex, m.Versions[0], lv))
			}
			if len(m.FrameworkVersions) > 1 {
				migrations = append(migrations, migrate.New(t.Dir, m.FrameworkVersionRegex, m.FrameworkVersions[0], fv))
			}

			opts := w.Env.options(t.Dir, m.Copy, migrations, warmups, runs)
			res, err := w.Env.Runner.Run(ctx, opts, iteration)
			if err != nil {
				return w.Env.fail(w.Kind(), label, err)
			}

			if !w.Env.Validate {
				if err := w.write(m, t, lv, fv, concurrency, res); err != nil {
					return w.Env.fail(w.Kind(), label, err)
				}
			}
			w.Env.record(ctx, db.NewRun(w.Kind(), t.Path(), m.Language, lv, fv, *res), res)
		}
	}
	return nil
}

func (w *Web) iteration(concurrency int) benchmark.Iteration {
	return benchmark.IterationFunc(func(ctx context.Context) (benchmark.Metrics, error) {
		res, err := w.loadTest(ctx, loadtest.Options{
			Concurrency: concurrency,
			Duration:    w.Duration,
			Requests:    w.Requests,
			FailOnError: w.Env.Validate,
			Verbose:     w.Env.Verbose,
		})
		if err != nil {
			return benchmark.Metrics{}, err
		}
		return benchmark.Metrics{
			Data: []benchmark.Metric{
				{Name: "rps_median", Value: int64(res.RPSMedian)},
				{Name: "rps_p99", Value: int64(res.RPSP99)},
				{Name: "latency_median", Value: res.LatencyMedian.Microseconds()},
				{Name: "latency_p99", Value: res.LatencyP99.Microseconds()},
				{Name: "errors", Value: int64(res.FailCount)},
			},
			Debug: []benchmark.Metric{
				{Name: "success", Value: int64(res.SuccessCount)},
				{Name: "time", Value: res.TotalTime.Milliseconds()},
			},
		}, nil
	})
}

func (w *Web) write(m *meta.Web, t Target, lv, fv string, concurrency int, res *benchmark.Result) error {
	metric := func(name string) string {
		v, _ := res.Metric(name)
		return strconv.FormatInt(v, 10)
	}
	return resultstore.Write(
		filepath.Join(w.Env.ResultDir, WebResultFile),
		[]resultstore.Column{
			{Key: "language", Value: m.Language},
			{Key: "mode", Value: m.Mode},
			{Key: "version", Value: lv},
			{Key: "framework", Value: m.Framework},
			{Key: "framework_stdlib", Value: strconv.FormatBool(m.FrameworkStdlib)},
			{Key: "framework_website", Value: m.FrameworkWebsite},
			{Key: "framework_flavor", Value: m.FrameworkFlavor},
			{Key: "framework_version", Value: fv},
			{Key: "concurrency", Value: strconv.Itoa(concurrency)},
			{Key: "path", Value: t.Path()},
		},
		[]resultstore.Column{
			{Key: "rps_median", Value: metric("rps_median")},
			{Key: "rps_p99", Value: metric("rps_p99")},
			{Key: "latency_median", Value: metric("latency_median")},
			{Key: "latency_p99", Value: metric("latency_p99")},
			{Key: "memory_median", Value: strconv.FormatInt(res.MemoryMedian, 10)},
			{Key: "memory_p99", Value: strconv.FormatInt(res.MemoryP99, 10)},
			{Key: "errors", Value: metric("errors")},
		},
		resultstore.KeepHigherFirst,
	)
}
