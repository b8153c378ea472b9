package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/config"
	"sharkbench/internal/db"
	"sharkbench/internal/docker"
	"sharkbench/internal/metrics"
	"sharkbench/internal/notify"
	"sharkbench/internal/stats"
	"sharkbench/internal/suite"
	"sharkbench/internal/telemetry"
	"sharkbench/internal/ui"
)

type runFlags struct {
	computation bool
	web         bool
	lang        string
	only        string
	missing     bool
	validate    bool
	failFast    bool
	noColor     bool
}

// backend starts targets and measures their memory.
type backend struct {
	runtime    benchmark.Runtime
	dataSource benchmark.Runtime
	sampler    benchmark.Sampler
	close      func() error
}

// Factories, replaced in tests.
var (
	newBackend  = dockerBackend
	newStore    = db.NewStore
	newNotifier = func() notify.Notifier { return notify.NewManager(notify.OptionsFromViper()) }
)

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the computation and web benchmarks",
		Long: `Runs every target under <benchmark_dir>/computation and <benchmark_dir>/web.
Without --computation or --web both suites run. Results are merged into
<result_dir>/computation_result.csv and <result_dir>/web_result.csv.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBenchmarks(cmd, f)
		},
	}
	cmd.Flags().BoolVar(&f.computation, "computation", false, "Run the computation benchmark")
	cmd.Flags().BoolVar(&f.web, "web", false, "Run the web benchmark")
	cmd.Flags().StringVar(&f.lang, "lang", "", "Only run targets of this language directory")
	cmd.Flags().StringVar(&f.only, "only", "", "Only run this target (lang/variant)")
	cmd.Flags().BoolVar(&f.missing, "missing", false, "Skip versions that already have results")
	cmd.Flags().BoolVar(&f.validate, "validate", false, "Run every version once without warmup and write nothing")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Stop at the first failing target")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	return cmd
}

func (f runFlags) suites() []string {
	if f.computation == f.web {
		return []string{db.KindComputation, db.KindWeb}
	}
	if f.computation {
		return []string{db.KindComputation}
	}
	return []string{db.KindWeb}
}

func runBenchmarks(cmd *cobra.Command, f runFlags) error {
	if f.noColor {
		ui.DisableColor()
	}
	out := cmd.OutOrStdout()
	s := config.Current()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(nil)
	if s.MetricsAddr != "" {
		addr, err := telemetry.StartMetricsServer(ctx, s.MetricsAddr, m.Handler())
		if err != nil {
			return err
		}
		slog.Info("serving metrics", "addr", addr)
	}

	var history db.Store
	if s.HistoryEnabled && !f.validate {
		store, err := newStore(db.StoreConfig{Type: s.HistoryType, ConnectionString: s.HistoryDSN})
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer store.Close()
		history = store
	}

	b, err := newBackend(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			slog.Warn("failed to release backend", "error", err)
		}
	}()

	fmt.Fprintln(out, ui.GenerateLogo())

	sel := suite.Selection{Language: f.lang, Only: f.only, Missing: f.missing, FailFast: f.failFast}
	notifier := newNotifier()

	var errs []error
	for _, kind := range f.suites() {
		env := &suite.Env{
			Runner:      benchmark.NewRunner(b.runtime, b.sampler, benchmark.WithObserver(m.Observer(kind))),
			Root:        s.BenchmarkDir,
			ResultDir:   s.ResultDir,
			BaseURL:     s.BaseURL,
			Lifecycle:   docker.RenderComposeFile(s.ContainerName, s.Network),
			SettleDelay: s.SettleDelay,
			Cooldown:    s.Cooldown,
			MaxFailures: s.MaxFailures,
			Validate:    f.validate,
			Verbose:     s.Verbose,
			History:     history,
			Notifier:    notifier,
			Metrics:     m,
			Out:         out,
		}

		st, err := newSuite(kind, env, s, b)
		if err != nil {
			return err
		}
		summary, err := suite.Run(ctx, env, st, sel)
		fmt.Fprintf(out, "%s: %s\n", kind, summary)
		if err != nil {
			errs = append(errs, err)
			if f.failFast || ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func newSuite(kind string, env *suite.Env, s config.Settings, b *backend) (suite.Suite, error) {
	if kind == db.KindComputation {
		c := suite.NewComputation(env)
		c.Runs = s.ComputationRuns
		c.Timeout = s.ComputationTimeout
		return c, nil
	}

	table, err := suite.LoadPeriodicTable(s.WebDataFile)
	if err != nil {
		return nil, err
	}
	w := suite.NewWeb(env, suite.PeriodicTableRequests(s.BaseURL, table))
	w.Concurrency = s.WebConcurrency
	w.Duration = s.WebDuration
	w.Runs = s.WebRuns
	w.DataSource = b.dataSource
	w.DataSourceDir = s.WebDataSourceDir
	return w, nil
}

// dockerBackend connects to the daemon, picks the runtime and stats source,
// and starts the memory sampler.
func dockerBackend(ctx context.Context, s config.Settings) (*backend, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*backend, error) {
		cli.Close()
		return nil, err
	}
	if err := cli.CheckDaemon(ctx); err != nil {
		return fail(err)
	}
	if err := cli.EnsureNetwork(ctx, s.Network); err != nil {
		return fail(err)
	}

	compose := docker.NewComposeRuntime()
	compose.Binary = s.DockerBinary

	var rt benchmark.Runtime = compose
	if s.Runtime == config.RuntimeEngine {
		rt = docker.NewEngineRuntime(cli, s.ContainerName, s.Network)
	}

	var src stats.Source
	if s.StatsSource == config.StatsSourceEngine {
		src = stats.NewEngineSource(cli, s.ContainerName)
	} else {
		cliSource := stats.NewCLISource()
		cliSource.Binary = s.DockerBinary
		src = cliSource
	}

	sampler := stats.NewSampler(s.ContainerName)
	if err := sampler.Run(ctx, src); err != nil {
		return fail(err)
	}
	slog.Debug("backend ready", "runtime", s.Runtime, "stats_source", s.StatsSource)

	return &backend{
		runtime:    rt,
		dataSource: compose,
		sampler:    sampler,
		close: func() error {
			return errors.Join(sampler.Dispose(), cli.Close())
		},
	}, nil
}
