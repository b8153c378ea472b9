package suite

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharkbench/internal/db"
	"sharkbench/internal/metrics"
	"sharkbench/internal/notify"
)

const computationMeta = `language: Go
mode: Go
version:
  - "1.21"
  - "1.22"
runs: 2
`

func computationServer(t *testing.T, body string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, ComputationIterations, r.URL.Query().Get("iterations"))
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func setupComputation(t *testing.T, env *Env) {
	t.Helper()
	writeFiles(t, filepath.Join(env.Root, "computation"), map[string]string{
		"go/std/benchmark.yaml": computationMeta,
		"go/std/Dockerfile":     "FROM golang:1.21 AS build\nRUN go build\n",
		"go/_common/ignored":    "",
	})
}

func TestComputation_WritesResultsAndHistory(t *testing.T) {
	rt := &fakeRuntime{}
	env := testEnv(t, rt)
	setupComputation(t, env)

	srv, hits := computationServer(t, ComputationExpected+"\n")
	env.BaseURL = srv.URL

	history, err := db.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer history.Close()
	env.History = history

	n := &recordingNotifier{}
	env.Notifier = n
	m := metrics.NewMetrics(nil)
	env.Metrics = m
	var out strings.Builder
	env.Out = &out

	summary, err := Run(context.Background(), env, NewComputation(env), Selection{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Benchmarked: 2}, summary)
	// one warmup plus two runs per version
	assert.Equal(t, int64(6), hits.Load())

	require.Len(t, rt.ups, 2)
	assert.Equal(t, "services: {}\n", rt.ups[0].lifecycle)
	assert.Contains(t, rt.ups[0].dockerfile, "FROM golang:1.21 AS build")
	assert.Contains(t, rt.ups[1].dockerfile, "FROM golang:1.22 AS build")
	assert.Len(t, rt.downs, 2)

	rows := readCSV(t, filepath.Join(env.ResultDir, ComputationResultFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"language", "mode", "version", "path", "time_median", "memory_median", "memory_p99"}, rows[0])
	assert.Equal(t, []string{"Go", "Go", "1.21", "go/std"}, rows[1][:4])
	assert.Equal(t, []string{"1000", "2000"}, rows[1][5:])
	assert.Equal(t, []string{"Go", "Go", "1.22", "go/std"}, rows[2][:4])

	runs, err := history.ListRuns(context.Background(), db.RunFilter{Kind: db.KindComputation})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	assert.Equal(t, []string{notify.EventStart, notify.EventSuccess, notify.EventSuccess, notify.EventComplete}, n.events)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.TargetsTotal.WithLabelValues(db.KindComputation, metrics.StatusOK)))
	assert.Contains(t, out.String(), "go/std")

	// A second run compares with the first one.
	out.Reset()
	_, err = Run(context.Background(), env, NewComputation(env), Selection{Only: "go/std"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "memory +0.00%")

	runs, err = history.ListRuns(context.Background(), db.RunFilter{Path: "go/std"})
	require.NoError(t, err)
	assert.Len(t, runs, 4)
}

func TestComputation_MissingSkipsExisting(t *testing.T) {
	rt := &fakeRuntime{}
	env := testEnv(t, rt)
	setupComputation(t, env)
	srv, _ := computationServer(t, ComputationExpected)
	env.BaseURL = srv.URL

	writeFiles(t, env.ResultDir, map[string]string{
		ComputationResultFile: "language,mode,version,path,time_median,memory_median,memory_p99\nGo,Go,1.21,go/std,900,800,1600\n",
	})

	summary, err := Run(context.Background(), env, NewComputation(env), Selection{Missing: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{Benchmarked: 1, Skipped: 1}, summary)
	require.Len(t, rt.ups, 1)
	assert.Contains(t, rt.ups[0].dockerfile, "golang:1.22")

	rows := readCSV(t, filepath.Join(env.ResultDir, ComputationResultFile))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Go", "Go", "1.21", "go/std", "900", "800", "1600"}, rows[1])

	// Everything exists now: the target is skipped without starting anything.
	summary, err = Run(context.Background(), env, NewComputation(env), Selection{Missing: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 2}, summary)
	assert.Len(t, rt.ups, 1)
}

func TestComputation_ValidateWritesNothing(t *testing.T) {
	env := testEnv(t, &fakeRuntime{})
	setupComputation(t, env)
	srv, hits := computationServer(t, ComputationExpected)
	env.BaseURL = srv.URL
	env.Validate = true

	summary, err := Run(context.Background(), env, NewComputation(env), Selection{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Benchmarked)
	assert.Equal(t, int64(2), hits.Load())
	assert.NoFileExists(t, filepath.Join(env.ResultDir, ComputationResultFile))
}

func TestComputation_InvalidResponseFailsTarget(t *testing.T) {
	env := testEnv(t, &fakeRuntime{})
	setupComputation(t, env)
	writeFiles(t, filepath.Join(env.Root, "computation"), map[string]string{
		"rust/std/benchmark.yaml": "language: Rust\nmode: Rust\nversion: [\"1.79\"]\nruns: 1\n",
		"rust/std/Dockerfile":     "FROM rust:1.79\n",
	})
	srv, _ := computationServer(t, "3.14")
	env.BaseURL = srv.URL
	n := &recordingNotifier{}
	env.Notifier = n

	summary, err := Run(context.Background(), env, NewComputation(env), Selection{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "go/std")
	assert.Contains(t, err.Error(), "rust/std")
	assert.Contains(t, err.Error(), "invalid response")
	assert.Equal(t, Summary{Failed: 2}, summary)
	assert.Equal(t, []string{notify.EventStart, notify.EventFailure, notify.EventFailure, notify.EventComplete}, n.events)

	summary, err = Run(context.Background(), env, NewComputation(env), Selection{FailFast: true})
	require.Error(t, err)
	assert.Equal(t, Summary{Failed: 1}, summary)
}

func TestComputation_InvalidMeta(t *testing.T) {
	env := testEnv(t, &fakeRuntime{})
	writeFiles(t, filepath.Join(env.Root, "computation"), map[string]string{
		"go/std/benchmark.yaml": "language: Go\n",
	})

	_, err := Run(context.Background(), env, NewComputation(env), Selection{})
	assert.ErrorContains(t, err, "invalid")
}
