package window

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Ranked is an item with its rank inside its partition.
type Ranked[K cmp.Ordered, T any] struct {
	Partition K
	Item      T
	Measure   decimal.Decimal
	Rank      int
}

// Rank orders each partition by measure, highest first, and assigns
// competition ranks: equal measures share a rank and the next distinct
// measure skips ahead (1, 1, 3). Equal measures keep their input order.
// Output is grouped by ascending partition key, rank order within.
func Rank[K cmp.Ordered, T any](
	items []T,
	partition func(T) (K, bool),
	measure func(T) (decimal.Decimal, bool),
) ([]Ranked[K, T], error) {
	out := make([]Ranked[K, T], 0, len(items))
	if len(items) == 0 {
		return out, nil
	}

	measures := make([]decimal.Decimal, len(items))
	for i, item := range items {
		m, ok := measure(item)
		if !ok {
			return nil, missingKey("measure", i)
		}
		measures[i] = m
	}

	type indexed struct {
		idx  int
		item T
	}
	rows := make([]indexed, len(items))
	for i, item := range items {
		rows[i] = indexed{idx: i, item: item}
	}

	groups, err := partitionBy(rows, func(r indexed) (K, bool) { return partition(r.item) })
	if err != nil {
		return nil, err
	}

	for _, g := range groups {
		slices.SortStableFunc(g.items, func(a, b indexed) int {
			return measures[b.idx].Cmp(measures[a.idx])
		})

		rank := 0
		for i, r := range g.items {
			if i == 0 || !measures[r.idx].Equal(measures[g.items[i-1].idx]) {
				rank = i + 1
			}
			out = append(out, Ranked[K, T]{
				Partition: g.key,
				Item:      r.item,
				Measure:   measures[r.idx],
				Rank:      rank,
			})
		}
	}
	return out, nil
}

// TopN keeps the rows ranked n or better. Ties at the cutoff are all kept.
func TopN[K cmp.Ordered, T any](ranked []Ranked[K, T], n int) []Ranked[K, T] {
	out := make([]Ranked[K, T], 0, len(ranked))
	for _, r := range ranked {
		if r.Rank <= n {
			out = append(out, r)
		}
	}
	return out
}
