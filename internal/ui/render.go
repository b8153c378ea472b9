package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"sharkbench/internal/benchmark"
	"sharkbench/internal/db"
	"sharkbench/internal/meta"
)

// RenderFields renders a titled key/value pane.
func RenderFields(title string, fields []meta.Field) string {
	width := 0
	for _, f := range fields {
		width = max(width, lipgloss.Width(f.Key))
	}

	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		key := labelStyle.Width(width).Render(f.Key)
		lines = append(lines, key+"  "+valueStyle.Render(f.Value))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(title),
		paneStyle.Render(strings.Join(lines, "\n")),
	)
}

// RenderResult summarizes a reduced result.
func RenderResult(res benchmark.Result) string {
	fields := []meta.Field{
		{Key: "Time (median)", Value: res.TimeMedian.String()},
		{Key: "Memory (median)", Value: humanize.IBytes(uint64(max(res.MemoryMedian, 0)))},
		{Key: "Memory (p99)", Value: humanize.IBytes(uint64(max(res.MemoryP99, 0)))},
	}
	for _, name := range res.MetricNames {
		fields = append(fields, meta.Field{Key: name, Value: humanize.Comma(res.Metrics[name])})
	}
	return RenderFields("Result", fields)
}

// lowerIsBetter reports the direction of a metric. Throughput is the only
// metric where an increase is an improvement.
func lowerIsBetter(name string) bool {
	return !strings.HasPrefix(name, "rps")
}

func renderDiff(name string, diff float64) string {
	text := fmt.Sprintf("%s %+.2f%%", name, diff)
	switch {
	case diff == 0:
		return dimStyle.Render(text)
	case (diff < 0) == lowerIsBetter(name):
		return betterStyle.Render(text)
	default:
		return worseStyle.Render(text)
	}
}

// RenderComparison renders a comparison against the previous run, colored
// by whether each change is an improvement.
func RenderComparison(c benchmark.Comparison) string {
	parts := []string{renderDiff("time", c.TimeDiff), renderDiff("memory", c.MemoryDiff)}
	for _, name := range c.Curr.MetricNames {
		if d, ok := c.MetricDiff[name]; ok {
			parts = append(parts, renderDiff(name, d))
		}
	}
	return strings.Join(parts, dimStyle.Render(", "))
}

// RenderTable renders rows under header with the shared table style.
func RenderTable(header []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(header...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	return t.Render()
}

// RenderHistory renders history runs newest first.
func RenderHistory(runs []db.Run) string {
	if len(runs) == 0 {
		return dimStyle.Render("No runs recorded.")
	}

	header := []string{"WHEN", "KIND", "PATH", "VERSION", "FRAMEWORK", "TIME", "MEMORY", "METRICS"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		metrics := make([]string, 0, len(r.Metrics))
		for _, m := range r.Metrics {
			metrics = append(metrics, fmt.Sprintf("%s=%s", m.Name, humanize.Comma(m.Value)))
		}
		timeMedian := "-"
		if r.Kind == db.KindComputation {
			timeMedian = r.TimeMedian.String()
		}
		rows = append(rows, []string{
			humanize.Time(r.CreatedAt),
			r.Kind,
			r.Path,
			r.Version,
			orDash(r.FrameworkVersion),
			timeMedian,
			humanize.IBytes(uint64(max(r.MemoryMedian, 0))),
			strings.Join(metrics, " "),
		})
	}
	return RenderTable(header, rows)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
