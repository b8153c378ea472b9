// Package version parses and orders dotted numeric versions such as "1.10.2".
package version

import (
	"errors"
	"slices"
	"strconv"
	"strings"
)

var ErrInvalid = errors.New("invalid version")

// Version is a dot-separated list of numeric parts.
type Version struct {
	parts []uint64
}

// Parse parses a dotted numeric version. Every part must be a non-negative integer.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, ErrInvalid
	}

	fields := strings.Split(s, ".")
	parts := make([]uint64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return Version{}, ErrInvalid
		}
		parts = append(parts, n)
	}
	return Version{parts: parts}, nil
}

// Compare returns -1, 0 or +1. Parts are compared numerically, left to right;
// a version that is a prefix of another sorts first.
func (v Version) Compare(other Version) int {
	return slices.Compare(v.parts, other.parts)
}

func (v Version) String() string {
	s := make([]string, len(v.parts))
	for i, p := range v.parts {
		s[i] = strconv.FormatUint(p, 10)
	}
	return strings.Join(s, ".")
}

// CompareStrings compares two strings as versions when both parse,
// otherwise as plain strings.
func CompareStrings(a, b string) int {
	va, errA := Parse(a)
	vb, errB := Parse(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}
