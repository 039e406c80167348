package window

import (
	"fmt"
	"slices"

	"bank-analytics/pkg/analytics"

	"github.com/shopspring/decimal"
)

// Bucketed is an item with its NTILE bucket, 1 being the highest values.
type Bucketed[T any] struct {
	Item    T
	Measure decimal.Decimal
	Bucket  int
}

// NTile sorts items by measure, highest first (ties keep input order), and
// splits them into n buckets as evenly as possible. When len(items) is not a
// multiple of n the first len(items)%n buckets hold one extra item, so ten
// items in four buckets split 3, 3, 2, 2.
func NTile[T any](items []T, n int, measure func(T) (decimal.Decimal, bool)) ([]Bucketed[T], error) {
	if n < 1 {
		err := fmt.Errorf("%w: bucket count must be positive, got %d", analytics.ErrInvalidWindow, n)
		return nil, analytics.WrapError(err, analytics.StageOperator, "")
	}

	out := make([]Bucketed[T], 0, len(items))
	for i, item := range items {
		m, ok := measure(item)
		if !ok {
			return nil, missingKey("measure", i)
		}
		out = append(out, Bucketed[T]{Item: item, Measure: m})
	}

	slices.SortStableFunc(out, func(a, b Bucketed[T]) int {
		return b.Measure.Cmp(a.Measure)
	})

	size, extra := len(out)/n, len(out)%n
	i := 0
	for bucket := 1; bucket <= n && i < len(out); bucket++ {
		count := size
		if bucket <= extra {
			count++
		}
		for j := 0; j < count; j++ {
			out[i].Bucket = bucket
			i++
		}
	}
	return out, nil
}

// Quartiles is NTile with four buckets.
func Quartiles[T any](items []T, measure func(T) (decimal.Decimal, bool)) ([]Bucketed[T], error) {
	return NTile(items, 4, measure)
}
