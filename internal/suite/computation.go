package suite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/db"
	"sharkbench/internal/meta"
	"sharkbench/internal/migrate"
	"sharkbench/internal/resultstore"
)

const (
	ComputationResultFile = "computation_result.csv"

	// ComputationIterations is the work size requested from every target.
	ComputationIterations = "1000000000"
	// ComputationExpected must appear in every response body.
	ComputationExpected = "3.1415926525880504;785398157.7092886;0.7853981633136793"

	DefaultComputationRuns    = 15
	DefaultComputationTimeout = 600 * time.Second
)

// Computation sends one heavy request per round and measures its wall time.
type Computation struct {
	Env     *Env
	Runs    int // default when the descriptor has none
	Timeout time.Duration
	Client  *http.Client
}

func NewComputation(env *Env) *Computation {
	return &Computation{Env: env, Runs: DefaultComputationRuns, Timeout: DefaultComputationTimeout}
}

func (c *Computation) Kind() string               { return db.KindComputation }
func (c *Computation) ResultFile() string         { return ComputationResultFile }
func (c *Computation) Layout() resultstore.Layout { return resultstore.ComputationLayout }

func (c *Computation) RunTarget(ctx context.Context, t Target, existing *resultstore.Existing) error {
	m, err := meta.LoadBenchmark(t.Dir)
	if err != nil {
		return err
	}

	if existing != nil && allExist(m.Versions, []string{""}, existing) {
		slog.Info("skipping", "dir", t.Dir)
		for _, v := range m.Versions {
			c.Env.skip(c.Kind(), v)
		}
		return nil
	}

	slog.Info("benchmarking", "dir", t.Dir)
	c.Env.describe(t, m.Fields())

	warmups, runs := 1, c.Runs
	if m.ExtendedWarmup {
		warmups = 3
	}
	if m.Runs != nil {
		slog.Info("overriding runs", "runs", *m.Runs, "default", c.Runs)
		runs = *m.Runs
	}
	if c.Env.Validate {
		warmups, runs = 0, 1
	}

	for _, version := range m.Versions {
		if existing.Has(version, "") {
			c.Env.skip(c.Kind(), fmt.Sprintf("%s v%s", m.Mode, version))
			continue
		}

		var migrations []benchmark.Migration
		if len(m.Versions) > 1 {
			migrations = append(migrations, migrate.New(t.Dir, m.VersionRegex, m.Versions[0], version))
		}

		opts := c.Env.options(t.Dir, m.Copy, migrations, warmups, runs)
		res, err := c.Env.Runner.Run(ctx, opts, benchmark.IterationFunc(c.iterate))
		if err != nil {
			return c.Env.fail(c.Kind(), version, err)
		}

		if !c.Env.Validate {
			if err := c.write(m, t, version, res); err != nil {
				return c.Env.fail(c.Kind(), version, err)
			}
		}
		c.Env.record(ctx, db.NewRun(c.Kind(), t.Path(), m.Language, version, "", *res), res)
	}
	return nil
}

func (c *Computation) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c *Computation) iterate(ctx context.Context) (benchmark.Metrics, error) {
	url := strings.TrimRight(c.Env.BaseURL, "/") + "/?iterations=" + ComputationIterations
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return benchmark.Metrics{}, err
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return benchmark.Metrics{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return benchmark.Metrics{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return benchmark.Metrics{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), ComputationExpected) {
		return benchmark.Metrics{}, fmt.Errorf("invalid response: %s (expected: %s)", body, ComputationExpected)
	}
	return benchmark.Metrics{}, nil
}

func (c *Computation) write(m *meta.Benchmark, t Target, version string, res *benchmark.Result) error {
	return resultstore.Write(
		filepath.Join(c.Env.ResultDir, ComputationResultFile),
		[]resultstore.Column{
			{Key: "language", Value: m.Language},
			{Key: "mode", Value: m.Mode},
			{Key: "version", Value: version},
			{Key: "path", Value: t.Path()},
		},
		[]resultstore.Column{
			{Key: "time_median", Value: strconv.FormatInt(res.TimeMedian.Milliseconds(), 10)},
			{Key: "memory_median", Value: strconv.FormatInt(res.MemoryMedian, 10)},
			{Key: "memory_p99", Value: strconv.FormatInt(res.MemoryP99, 10)},
		},
		resultstore.KeepLowerFirst,
	)
}

// allExist reports whether every language/framework combination is already
// in the result table.
func allExist(languageVersions, frameworkVersions []string, existing *resultstore.Existing) bool {
	for _, lv := range languageVersions {
		for _, fv := range frameworkVersions {
			if !existing.Has(lv, fv) {
				return false
			}
		}
	}
	return true
}
