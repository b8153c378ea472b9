package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/docker/go-units"
)

var (
	// ErrUnknownUnit means the runtime changed its stats format. It is not recoverable.
	ErrUnknownUnit = errors.New("unknown memory unit")

	ErrMalformedUsage = errors.New("malformed memory usage")
)

var memUsageRegex = regexp.MustCompile(`(\d*\.?\d+)(\w+)`)

// ParseMemUsage returns the number of bytes in the used portion of a docker
// MemUsage value. Example: "1.5GiB / 16GiB" -> 1610612736
func ParseMemUsage(memUsage string) (int64, error) {
	used, _, _ := strings.Cut(memUsage, "/")
	used = strings.TrimSpace(used)

	m := memUsageRegex.FindStringSubmatch(used)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedUsage, memUsage)
	}

	switch m[2] {
	case "KiB", "MiB", "GiB":
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownUnit, m[2])
	}

	n, err := units.RAMInBytes(m[1] + m[2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformedUsage, memUsage, err)
	}
	return n, nil
}

type statsLine struct {
	Name     *string `json:"Name"`
	MemUsage *string `json:"MemUsage"`
}

// parseLine extracts the memory usage of container from one line of the stats feed.
// ok is false when the line belongs to another container or carries no JSON object.
func parseLine(line, container string) (usage int64, ok bool, err error) {
	start := strings.IndexByte(line, '{')
	end := strings.LastIndexByte(line, '}')
	if start < 0 || end < start {
		return 0, false, nil
	}
	trimmed := line[start : end+1]

	var sl statsLine
	if err := json.Unmarshal([]byte(trimmed), &sl); err != nil {
		return 0, false, fmt.Errorf("failed to parse stats line %q: %w", trimmed, err)
	}
	if sl.Name == nil || sl.MemUsage == nil {
		return 0, false, fmt.Errorf("stats line %q is missing Name or MemUsage", trimmed)
	}
	if *sl.Name != container {
		return 0, false, nil
	}

	usage, err = ParseMemUsage(*sl.MemUsage)
	if err != nil {
		return 0, false, err
	}
	return usage, true, nil
}

// formatBytes renders n with the largest of KiB, MiB or GiB that keeps the value >= 1.
// Values below 1KiB are still rendered in KiB, so the output always parses.
func formatBytes(n uint64) string {
	switch {
	case n >= units.GiB:
		return fmt.Sprintf("%.3fGiB", float64(n)/units.GiB)
	case n >= units.MiB:
		return fmt.Sprintf("%.3fMiB", float64(n)/units.MiB)
	default:
		return fmt.Sprintf("%.3fKiB", float64(n)/units.KiB)
	}
}
