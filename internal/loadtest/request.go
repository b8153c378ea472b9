package loadtest

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PreparedRequest is one GET request and the JSON fields its response must carry.
type PreparedRequest struct {
	URL      string
	Expected map[string]ExpectedValue
}

// ExpectedValue is the expected value of one JSON field.
type ExpectedValue interface {
	// Match reports whether the raw JSON value equals the expected value.
	Match(raw json.RawMessage) bool
	String() string
}

type StringValue string

func (v StringValue) Match(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == string(v)
}

func (v StringValue) String() string { return strconv.Quote(string(v)) }

type IntValue int64

func (v IntValue) Match(raw json.RawMessage) bool {
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	return n == int64(v)
}

func (v IntValue) String() string { return strconv.FormatInt(int64(v), 10) }

// IntListValue matches a JSON array positionally.
type IntListValue []int64

func (v IntListValue) Match(raw json.RawMessage) bool {
	var list []int64
	if err := json.Unmarshal(raw, &list); err != nil {
		return false
	}
	return slices.Equal(list, v)
}

func (v IntListValue) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Validator checks a response body against the expected fields.
type Validator func(body []byte, expected map[string]ExpectedValue) error

// ValidateJSON requires the body to be a JSON object whose expected fields
// are present and equal.
func ValidateJSON(body []byte, expected map[string]ExpectedValue) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return fmt.Errorf("response is not a JSON object: %w", err)
	}

	for key, want := range expected {
		got, ok := fields[key]
		if !ok {
			return fmt.Errorf(`expected "%s": %s but this key does not exist`, key, want)
		}
		if !want.Match(got) {
			return fmt.Errorf(`expected "%s": %s but got %s`, key, want, got)
		}
	}
	return nil
}
