// Package percentile picks percentile elements out of sorted slices.
// Values are always taken by index and never interpolated.
package percentile

import "cmp"

// P1 returns the 1st percentile of the sorted values.
// Avoids the minimum if possible.
func P1[T cmp.Ordered](values []T) T {
	return higher(values, 0.01)
}

// P50 returns the 50th percentile of the sorted values.
// Avoids the maximum if possible.
func P50[T cmp.Ordered](values []T) T {
	return lower(values, 0.5)
}

// P99 returns the 99th percentile of the sorted values.
// Avoids the maximum if possible.
func P99[T cmp.Ordered](values []T) T {
	return lower(values, 0.99)
}

func lower[T cmp.Ordered](values []T, q float64) T {
	if len(values) == 0 {
		panic("percentile: cannot calculate percentile of empty slice")
	}

	index := int(float64(len(values)) * q)
	if index > 0 {
		index--
	}
	return values[index]
}

func higher[T cmp.Ordered](values []T, q float64) T {
	if len(values) == 0 {
		panic("percentile: cannot calculate percentile of empty slice")
	}

	index := int(float64(len(values)) * q)
	if index == 0 && len(values) > 1 {
		index = 1
	}
	return values[index]
}
