package suite

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/url"
	"os"
	"slices"
	"strings"

	"sharkbench/internal/loadtest"
)

// Element is one entry of the periodic table data source, keyed by symbol.
type Element struct {
	Name   string  `json:"name"`
	Number int64   `json:"number"`
	Group  int64   `json:"group"`
	Shells []int64 `json:"shells"`
}

// LoadPeriodicTable reads the data file shared with the data source container.
func LoadPeriodicTable(path string) (map[string]Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read periodic table: %w", err)
	}
	var table map[string]Element
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("periodic table %s is empty", path)
	}
	return table, nil
}

// PeriodicTableRequests builds one element and one shells request per symbol.
func PeriodicTableRequests(baseURL string, table map[string]Element) []loadtest.PreparedRequest {
	base := strings.TrimRight(baseURL, "/") + "/api/v1/periodic-table/"
	symbols := slices.Sorted(maps.Keys(table))

	requests := make([]loadtest.PreparedRequest, 0, 2*len(symbols))
	for _, s := range symbols {
		e := table[s]
		requests = append(requests, loadtest.PreparedRequest{
			URL: base + "element?symbol=" + url.QueryEscape(s),
			Expected: map[string]loadtest.ExpectedValue{
				"name":   loadtest.StringValue(e.Name),
				"number": loadtest.IntValue(e.Number),
				"group":  loadtest.IntValue(e.Group),
			},
		})
	}
	for _, s := range symbols {
		requests = append(requests, loadtest.PreparedRequest{
			URL:      base + "shells?symbol=" + url.QueryEscape(s),
			Expected: map[string]loadtest.ExpectedValue{"shells": loadtest.IntListValue(table[s].Shells)},
		})
	}
	return requests
}
