package suite

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/resultstore"
	"sharkbench/internal/stats"
)

// writeFiles creates files under root; keys are slash separated paths.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

type upCall struct {
	dir        string
	lifecycle  string
	dockerfile string
}

type fakeRuntime struct {
	mu    sync.Mutex
	ups   []upCall
	downs []string
	upErr error
}

func (f *fakeRuntime) Up(_ context.Context, dir, lifecycle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, _ := os.ReadFile(filepath.Join(dir, "Dockerfile"))
	f.ups = append(f.ups, upCall{dir: dir, lifecycle: lifecycle, dockerfile: string(data)})
	return f.upErr
}

func (f *fakeRuntime) Down(_ context.Context, dir, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downs = append(f.downs, dir)
	return nil
}

type fakeSampler struct{}

func (fakeSampler) Start()                         {}
func (fakeSampler) Stop()                          {}
func (fakeSampler) Err() error                     { return nil }
func (fakeSampler) MemoryUsage() stats.MemoryUsage { return stats.MemoryUsage{Median: 1000, P99: 2000} }

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func testEnv(t *testing.T, rt benchmark.Runtime) *Env {
	t.Helper()
	root := t.TempDir()
	return &Env{
		Runner:      benchmark.NewRunner(rt, fakeSampler{}),
		Root:        filepath.Join(root, "benchmark"),
		ResultDir:   filepath.Join(root, "result"),
		Lifecycle:   "services: {}\n",
		SettleDelay: time.Millisecond,
		Cooldown:    time.Millisecond,
		RetryDelay:  time.Millisecond,
		MaxFailures: 2,
	}
}

func TestTargets(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"go/std/benchmark.yaml":    "",
		"go/gin/benchmark.yaml":    "",
		"go/_common/shared.go":     "",
		"go/README.md":             "",
		"rust/axum/benchmark.yaml": "",
		"NOTES.md":                 "",
	})

	all, err := Targets(root, Selection{})
	require.NoError(t, err)
	var paths []string
	for _, tg := range all {
		paths = append(paths, tg.Path())
	}
	assert.Equal(t, []string{"go/gin", "go/std", "rust/axum"}, paths)

	byLang, err := Targets(root, Selection{Language: "rust"})
	require.NoError(t, err)
	require.Len(t, byLang, 1)
	assert.Equal(t, filepath.Join(root, "rust", "axum"), byLang[0].Dir)

	only, err := Targets(root, Selection{Only: "go/std", Language: "rust"})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, Target{Dir: filepath.Join(root, "go", "std"), Language: "go", Variant: "std"}, only[0])

	for _, bad := range []string{"go", "go/std/x", "/std", "go/_common"} {
		_, err := Targets(root, Selection{Only: bad})
		assert.ErrorIs(t, err, ErrInvalidOnly, bad)
	}

	_, err = Targets(root, Selection{Only: "go/missing"})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Targets(root, Selection{Language: "zig"})
	assert.Error(t, err)
}

func TestAllExist(t *testing.T) {
	existing := &resultstore.Existing{
		LanguageVersions:  map[string]struct{}{"1.21": {}, "1.22": {}},
		FrameworkVersions: map[string]struct{}{"1.9": {}},
	}
	assert.True(t, allExist([]string{"1.21", "1.22"}, []string{""}, existing))
	assert.True(t, allExist([]string{"1.21"}, []string{"1.9"}, existing))
	assert.False(t, allExist([]string{"1.21", "1.23"}, []string{""}, existing))
	assert.False(t, allExist([]string{"1.21"}, []string{"1.9", "1.10"}, existing))
}

func TestSummary_String(t *testing.T) {
	assert.Equal(t, "2 benchmarked, 1 skipped, 0 failed", Summary{Benchmarked: 2, Skipped: 1}.String())
}
