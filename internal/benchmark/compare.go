package benchmark

import (
	"fmt"
	"strings"
)

// Comparison holds the percentage change between two results of the same
// target and version.
type Comparison struct {
	TimeDiff   float64 // Percentage change
	MemoryDiff float64 // Percentage change
	MetricDiff map[string]float64
	Prev       Result
	Curr       Result
}

// Compare computes the change from prev to curr. Metrics missing from
// either result are not compared.
func Compare(prev, curr Result) Comparison {
	comp := Comparison{
		TimeDiff:   percentChange(float64(prev.TimeMedian), float64(curr.TimeMedian)),
		MemoryDiff: percentChange(float64(prev.MemoryMedian), float64(curr.MemoryMedian)),
		MetricDiff: map[string]float64{},
		Prev:       prev,
		Curr:       curr,
	}
	for _, name := range curr.MetricNames {
		p, ok := prev.Metrics[name]
		if !ok {
			continue
		}
		comp.MetricDiff[name] = percentChange(float64(p), float64(curr.Metrics[name]))
	}
	return comp
}

func percentChange(prev, curr float64) float64 {
	if prev == 0 {
		return 0
	}
	return (curr - prev) / prev * 100
}

func (c Comparison) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "time %+.2f%%, memory %+.2f%%", c.TimeDiff, c.MemoryDiff)
	for _, name := range c.Curr.MetricNames {
		if d, ok := c.MetricDiff[name]; ok {
			fmt.Fprintf(&b, ", %s %+.2f%%", name, d)
		}
	}
	return b.String()
}
