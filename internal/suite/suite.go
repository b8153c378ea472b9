// Package suite drives the computation and web benchmarks over every
// language/variant directory and persists their results.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/db"
	"sharkbench/internal/meta"
	"sharkbench/internal/metrics"
	"sharkbench/internal/notify"
	"sharkbench/internal/resultstore"
	"sharkbench/internal/ui"
	"sharkbench/internal/workspace"
)

// Runner runs one target/version combination.
type Runner interface {
	Run(ctx context.Context, opts benchmark.Options, it benchmark.Iteration) (*benchmark.Result, error)
}

// Env is shared by every target of a suite run.
type Env struct {
	Runner Runner

	// Root holds one directory per suite kind, e.g. "benchmark".
	Root      string
	ResultDir string
	BaseURL   string
	// Lifecycle is the rendered compose definition handed to the runtime.
	Lifecycle string

	SettleDelay time.Duration
	Cooldown    time.Duration
	MaxFailures int
	RetryDelay  time.Duration

	// Validate runs each version once without warmup and writes nothing.
	Validate bool
	Verbose  bool

	// Optional collaborators.
	History  db.Store
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Out      io.Writer

	summary Summary
}

func (e *Env) out() io.Writer {
	if e.Out == nil {
		return io.Discard
	}
	return e.Out
}

func (e *Env) notifier() notify.Notifier {
	if e.Notifier == nil {
		return notify.Nop{}
	}
	return e.Notifier
}

func (e *Env) options(dir string, copies []workspace.CopySpec, migrations []benchmark.Migration, warmups, runs int) benchmark.Options {
	return benchmark.Options{
		Dir:         dir,
		Lifecycle:   e.Lifecycle,
		Copy:        copies,
		Migrations:  migrations,
		Warmups:     warmups,
		Runs:        runs,
		SettleDelay: e.SettleDelay,
		Cooldown:    e.Cooldown,
		MaxFailures: e.MaxFailures,
		RetryDelay:  e.RetryDelay,
	}
}

// Summary counts version combinations by outcome.
type Summary struct {
	Benchmarked int
	Skipped     int
	Failed      int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d benchmarked, %d skipped, %d failed", s.Benchmarked, s.Skipped, s.Failed)
}

// Target is one language/variant directory.
type Target struct {
	Dir      string
	Language string
	Variant  string
}

// Path is the target's result table key, e.g. "go/gin-1-go-1.21".
func (t Target) Path() string {
	return t.Language + "/" + t.Variant
}

// Selection narrows which targets run.
type Selection struct {
	Language string // --lang
	Only     string // --only lang/variant
	Missing  bool   // skip versions already in the result table
	FailFast bool   // stop at the first failed target
}

var ErrInvalidOnly = errors.New("invalid directory format, expected <language>/<variant>")

// Targets lists the variant directories of suiteDir matching sel. The
// shared _common directory is never a target.
func Targets(suiteDir string, sel Selection) ([]Target, error) {
	if sel.Only != "" {
		parts := strings.Split(sel.Only, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[1] == workspace.CommonDir {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOnly, sel.Only)
		}
		dir := filepath.Join(suiteDir, parts[0], parts[1])
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("benchmark %s not found: %w", sel.Only, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("benchmark %s is not a directory", sel.Only)
		}
		return []Target{{Dir: dir, Language: parts[0], Variant: parts[1]}}, nil
	}

	var languages []string
	if sel.Language != "" {
		languages = []string{sel.Language}
	} else {
		entries, err := os.ReadDir(suiteDir)
		if err != nil {
			return nil, fmt.Errorf("could not read directory %s: %w", suiteDir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				languages = append(languages, e.Name())
			}
		}
	}

	var targets []Target
	for _, lang := range languages {
		langDir := filepath.Join(suiteDir, lang)
		entries, err := os.ReadDir(langDir)
		if err != nil {
			return nil, fmt.Errorf("could not read directory %s: %w", langDir, err)
		}
		for _, e := range entries {
			if !e.IsDir() || e.Name() == workspace.CommonDir {
				continue
			}
			targets = append(targets, Target{Dir: filepath.Join(langDir, e.Name()), Language: lang, Variant: e.Name()})
		}
	}
	return targets, nil
}

// Suite benchmarks targets of one kind.
type Suite interface {
	Kind() string
	ResultFile() string
	Layout() resultstore.Layout
	RunTarget(ctx context.Context, t Target, existing *resultstore.Existing) error
}

// Starter is implemented by suites that need a collaborator running while
// their targets are benchmarked.
type Starter interface {
	Start(ctx context.Context) (stop func() error, err error)
}

// Run executes s for every selected target. A failing target is logged and
// reported; the remaining targets still run unless sel.FailFast is set. The
// returned error joins all target failures.
func Run(ctx context.Context, env *Env, s Suite, sel Selection) (_ Summary, err error) {
	env.summary = Summary{}
	suiteDir := filepath.Join(env.Root, s.Kind())

	targets, err := Targets(suiteDir, sel)
	if err != nil {
		return env.summary, err
	}

	existing := resultstore.ExistingMap{}
	if sel.Missing {
		existing, err = resultstore.ReadExisting(filepath.Join(env.ResultDir, s.ResultFile()), s.Layout())
		if err != nil {
			return env.summary, fmt.Errorf("failed to read existing results: %w", err)
		}
	}

	if st, ok := s.(Starter); ok {
		stop, err := st.Start(ctx)
		if err != nil {
			return env.summary, err
		}
		defer func() {
			if stopErr := stop(); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
		}()
	}

	slog.Info("running benchmarks", "suite", s.Kind(), "targets", len(targets))
	env.notify(ctx, notify.EventStart, fmt.Sprintf("Running %s benchmarks (%d targets)", s.Kind(), len(targets)))

	var errs []error
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		err := s.RunTarget(ctx, t, existing.Lookup(t.Language, t.Variant))
		if err == nil {
			continue
		}
		err = fmt.Errorf("%s: %w", t.Dir, err)
		slog.Error("benchmark failed", "suite", s.Kind(), "target", t.Path(), "error", err)
		env.notify(ctx, notify.EventFailure, fmt.Sprintf("%s benchmark %s failed: %v", s.Kind(), t.Path(), err))
		errs = append(errs, err)
		if sel.FailFast {
			break
		}
	}

	slog.Info("benchmarks finished", "suite", s.Kind(), "summary", env.summary.String())
	env.notify(ctx, notify.EventComplete, fmt.Sprintf("Finished %s benchmarks: %s", s.Kind(), env.summary))
	return env.summary, errors.Join(errs...)
}

func (e *Env) notify(ctx context.Context, event, message string) {
	if err := e.notifier().Notify(ctx, event, message); err != nil {
		slog.Warn("failed to send notification", "event", event, "error", err)
	}
}

func (e *Env) track(kind, status string) {
	switch status {
	case metrics.StatusOK:
		e.summary.Benchmarked++
	case metrics.StatusSkipped:
		e.summary.Skipped++
	case metrics.StatusFailed:
		e.summary.Failed++
	}
	if e.Metrics != nil {
		e.Metrics.TrackTarget(kind, status)
	}
}

// skip records a combination already present in the result table.
func (e *Env) skip(kind, label string) {
	slog.Info("skipping, already exists", "suite", kind, "version", label)
	e.track(kind, metrics.StatusSkipped)
}

// describe prints the descriptor summary of a target.
func (e *Env) describe(t Target, fields []meta.Field) {
	fmt.Fprintln(e.out(), ui.RenderFields(t.Path(), fields))
}

// record stores a finished combination in the history and compares it with
// the previous run of the same versions.
func (e *Env) record(ctx context.Context, run db.Run, res *benchmark.Result) {
	e.track(run.Kind, metrics.StatusOK)
	fmt.Fprintln(e.out(), ui.RenderResult(*res))

	message := fmt.Sprintf("%s %s v%s done", run.Kind, run.Path, run.Version)
	if run.FrameworkVersion != "" {
		message += " / v" + run.FrameworkVersion
	}

	if e.History != nil && !e.Validate {
		prev, err := e.History.LatestRun(ctx, run.Key())
		switch {
		case err == nil:
			cmp := benchmark.Compare(prev.Result(), *res)
			slog.Info("compared with previous run", "path", run.Path, "previous", prev.CreatedAt, "change", cmp.String())
			fmt.Fprintln(e.out(), ui.RenderComparison(cmp))
			message += " (" + cmp.String() + ")"
		case errors.Is(err, db.ErrNotFound):
		default:
			slog.Warn("failed to read run history", "error", err)
		}

		if err := e.History.SaveRun(ctx, &run); err != nil {
			slog.Warn("failed to save run history", "error", err)
		}
	}

	e.notify(ctx, notify.EventSuccess, message)
}

// fail records a failed combination and wraps err with its version label.
func (e *Env) fail(kind, label string, err error) error {
	e.track(kind, metrics.StatusFailed)
	return fmt.Errorf("version %s: %w", label, err)
}
