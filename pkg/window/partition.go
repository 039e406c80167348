// Package window implements SQL-style window operators over in-memory rows:
// RANK, running SUM, LAG difference, NTILE and trailing AVG.
//
// Operators are pure and generic over the row type. Partition, order and
// measure keys are passed as selectors returning (value, ok); a selector
// reporting ok == false fails the call with analytics.ErrInvalidPartition.
// Empty input yields an empty result and a nil error.
package window

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"bank-analytics/pkg/analytics"
)

// MonthOf truncates t to the first instant of its month in UTC.
func MonthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

type group[K cmp.Ordered, T any] struct {
	key   K
	items []T
}

// partitionBy groups items by key. Groups come back in ascending key order;
// items keep their input order within a group.
func partitionBy[K cmp.Ordered, T any](items []T, key func(T) (K, bool)) ([]group[K, T], error) {
	pos := make(map[K]int)
	var groups []group[K, T]

	for i, item := range items {
		k, ok := key(item)
		if !ok {
			return nil, missingKey("partition", i)
		}
		g, exists := pos[k]
		if !exists {
			g = len(groups)
			pos[k] = g
			groups = append(groups, group[K, T]{key: k})
		}
		groups[g].items = append(groups[g].items, item)
	}

	slices.SortFunc(groups, func(a, b group[K, T]) int {
		return cmp.Compare(a.key, b.key)
	})
	return groups, nil
}

func missingKey(kind string, row int) error {
	err := fmt.Errorf("%w: row %d has no %s key", analytics.ErrInvalidPartition, row, kind)
	return analytics.WrapError(err, analytics.StageOperator, "")
}
