package window

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"bank-analytics/pkg/analytics"

	"github.com/shopspring/decimal"
)

// PeriodTotal is the sum of a measure for one partition and period.
type PeriodTotal[K cmp.Ordered] struct {
	Partition K
	Period    time.Time
	Total     decimal.Decimal
}

// Running is a period total with the cumulative sum up to and including it.
type Running[K cmp.Ordered] struct {
	PeriodTotal[K]
	Cumulative decimal.Decimal
}

// Growth is a period total with the change from the previous period.
// Change is null on the first period of a partition.
type Growth[K cmp.Ordered] struct {
	PeriodTotal[K]
	Change decimal.NullDecimal
}

// Average is a period total with the trailing mean ending at it.
// Mean is null when the window is not full and partial windows are off.
type Average[K cmp.Ordered] struct {
	PeriodTotal[K]
	Mean decimal.NullDecimal
}

// Window configures MovingAverage.
type Window struct {
	// Size is the number of trailing periods averaged, current included
	Size int
	// Partial averages fewer than Size periods at the start of a partition
	Partial bool
}

// Series buckets rows into per-partition period totals.
type Series[K cmp.Ordered, T any] struct {
	Partition func(T) (K, bool)
	Period    func(T) (time.Time, bool)
	Measure   func(T) (decimal.Decimal, bool)
}

// Totals sums the measure per partition and period. Rows whose period keys
// are equal merge into one bucket. Output is ordered by partition key, then
// ascending period.
func (s Series[K, T]) Totals(items []T) ([]PeriodTotal[K], error) {
	type point struct {
		period time.Time
		amount decimal.Decimal
	}

	points := make([]point, len(items))
	for i, item := range items {
		p, ok := s.Period(item)
		if !ok {
			return nil, missingKey("period", i)
		}
		m, ok := s.Measure(item)
		if !ok {
			return nil, missingKey("measure", i)
		}
		points[i] = point{period: p, amount: m}
	}

	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	groups, err := partitionBy(idx, func(i int) (K, bool) { return s.Partition(items[i]) })
	if err != nil {
		return nil, err
	}

	out := make([]PeriodTotal[K], 0, len(groups))
	for _, g := range groups {
		slices.SortStableFunc(g.items, func(a, b int) int {
			return points[a].period.Compare(points[b].period)
		})
		for _, i := range g.items {
			p := points[i]
			if n := len(out); n > 0 && out[n-1].Partition == g.key && out[n-1].Period.Equal(p.period) {
				out[n-1].Total = out[n-1].Total.Add(p.amount)
				continue
			}
			out = append(out, PeriodTotal[K]{Partition: g.key, Period: p.period, Total: p.amount})
		}
	}
	return out, nil
}

// Running returns cumulative period totals per partition.
func (s Series[K, T]) Running(items []T) ([]Running[K], error) {
	totals, err := s.Totals(items)
	if err != nil {
		return nil, err
	}
	return Cumulate(totals), nil
}

// Growth returns period over period changes per partition.
func (s Series[K, T]) Growth(items []T) ([]Growth[K], error) {
	totals, err := s.Totals(items)
	if err != nil {
		return nil, err
	}
	return Lag(totals), nil
}

// MovingAverage returns trailing means of period totals per partition.
func (s Series[K, T]) MovingAverage(items []T, w Window) ([]Average[K], error) {
	totals, err := s.Totals(items)
	if err != nil {
		return nil, err
	}
	return MovingAverage(totals, w)
}

// Cumulate computes running sums over totals ordered as Totals returns them.
// The sum restarts whenever the partition changes.
func Cumulate[K cmp.Ordered](totals []PeriodTotal[K]) []Running[K] {
	out := make([]Running[K], len(totals))
	var sum decimal.Decimal
	for i, t := range totals {
		if i == 0 || totals[i-1].Partition != t.Partition {
			sum = decimal.Zero
		}
		sum = sum.Add(t.Total)
		out[i] = Running[K]{PeriodTotal: t, Cumulative: sum}
	}
	return out
}

// Lag computes current minus previous total over totals ordered as Totals
// returns them. The first period of each partition has a null change.
func Lag[K cmp.Ordered](totals []PeriodTotal[K]) []Growth[K] {
	out := make([]Growth[K], len(totals))
	for i, t := range totals {
		g := Growth[K]{PeriodTotal: t}
		if i > 0 && totals[i-1].Partition == t.Partition {
			g.Change = decimal.NewNullDecimal(t.Total.Sub(totals[i-1].Total))
		}
		out[i] = g
	}
	return out
}

// MovingAverage computes the mean of the trailing w.Size totals ending at
// each position, restarting at every partition boundary.
func MovingAverage[K cmp.Ordered](totals []PeriodTotal[K], w Window) ([]Average[K], error) {
	if w.Size < 1 {
		err := fmt.Errorf("%w: window size must be positive, got %d", analytics.ErrInvalidWindow, w.Size)
		return nil, analytics.WrapError(err, analytics.StageOperator, "")
	}

	out := make([]Average[K], len(totals))
	start := 0
	for i, t := range totals {
		if i > 0 && totals[i-1].Partition != t.Partition {
			start = i
		}
		lo := max(start, i-w.Size+1)
		n := i - lo + 1

		a := Average[K]{PeriodTotal: t}
		if n == w.Size || w.Partial {
			sum := decimal.Zero
			for _, p := range totals[lo : i+1] {
				sum = sum.Add(p.Total)
			}
			a.Mean = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(n))))
		}
		out[i] = a
	}
	return out, nil
}
