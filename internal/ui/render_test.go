package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/db"
	"sharkbench/internal/meta"
)

func withProfile(t *testing.T, p termenv.Profile) {
	t.Helper()
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(p)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })
}

func TestRenderFields(t *testing.T) {
	withProfile(t, termenv.Ascii)

	out := RenderFields("go/std", []meta.Field{
		{Key: "Language", Value: "Go"},
		{Key: "Framework version", Value: "1.22"},
	})
	assert.Contains(t, out, "go/std")
	assert.Contains(t, out, "Language           Go")
	assert.Contains(t, out, "Framework version  1.22")
}

func TestRenderResult(t *testing.T) {
	withProfile(t, termenv.Ascii)

	out := RenderResult(benchmark.Result{
		TimeMedian:   1500 * time.Millisecond,
		MemoryMedian: 3 << 20,
		MemoryP99:    4 << 20,
		Metrics:      map[string]int64{"rps_median": 120000},
		MetricNames:  []string{"rps_median"},
	})
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "3.0 MiB")
	assert.Contains(t, out, "4.0 MiB")
	assert.Contains(t, out, "120,000")
}

func TestRenderComparison_Colors(t *testing.T) {
	withProfile(t, termenv.ANSI256)

	c := benchmark.Comparison{
		TimeDiff:   -10,
		MemoryDiff: 5,
		MetricDiff: map[string]float64{"rps_median": 20, "errors": 0},
		Curr:       benchmark.Result{MetricNames: []string{"rps_median", "errors"}},
	}
	out := RenderComparison(c)

	parts := strings.Split(out, ",")
	assert.Len(t, parts, 4)
	assert.Contains(t, parts[0], "46")
	assert.Contains(t, parts[0], "time -10.00%")
	assert.Contains(t, parts[1], "196")
	assert.Contains(t, parts[2], "46")
	assert.Contains(t, parts[3], "errors +0.00%")
}

func TestLowerIsBetter(t *testing.T) {
	assert.False(t, lowerIsBetter("rps_median"))
	assert.False(t, lowerIsBetter("rps_p99"))
	assert.True(t, lowerIsBetter("latency_p99"))
	assert.True(t, lowerIsBetter("errors"))
}

func TestRenderHistory(t *testing.T) {
	withProfile(t, termenv.Ascii)

	assert.Equal(t, "No runs recorded.", RenderHistory(nil))

	out := RenderHistory([]db.Run{
		{
			Kind: db.KindWeb, Path: "rust/axum", Version: "1.79", FrameworkVersion: "0.7.5",
			MemoryMedian: 8 << 20, Metrics: []benchmark.Metric{{Name: "rps_median", Value: 150000}},
			CreatedAt: time.Now().Add(-2 * time.Hour),
		},
		{
			Kind: db.KindComputation, Path: "go", Version: "1.22", TimeMedian: 2 * time.Second,
			CreatedAt: time.Now(),
		},
	})
	for _, want := range []string{"KIND", "rust/axum", "0.7.5", "8.0 MiB", "rps_median=150,000", "2 hours ago", "2s"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderTable(t *testing.T) {
	withProfile(t, termenv.Ascii)

	out := RenderTable([]string{"language", "time_median"}, [][]string{{"Go", "1200"}, {"Rust", "900"}})
	lines := strings.Split(out, "\n")
	assert.Greater(t, len(lines), 4)
	assert.Contains(t, out, "language")
	assert.Contains(t, out, "Rust")
	assert.Contains(t, out, "900")
}

func TestGenerateLogo(t *testing.T) {
	withProfile(t, termenv.Ascii)
	logo := GenerateLogo()
	assert.Len(t, strings.Split(logo, "\n"), 5)
}
