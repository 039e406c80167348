// Package report assembles window operator outputs into the named analyses.
// Every analysis is a pure function of transaction facts; Assembler resolves
// the facts from a store and runs the analyses.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/join"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/window"

	"github.com/shopspring/decimal"
)

// MovingAveragePlaces is the number of decimal places moving averages are
// rounded to.
const MovingAveragePlaces = 2

type customerTotal struct {
	customerID   int64
	ordinal      int
	customerName string
	branchID     int64
	branchName   string
	total        decimal.Decimal
}

// customerTotals sums transaction amounts per customer, in the order the
// customers were loaded into the store.
func customerTotals(facts []join.Fact) ([]customerTotal, error) {
	pos := make(map[int64]int)
	var out []customerTotal
	for i, f := range facts {
		if !f.HasTransaction {
			return nil, noTransaction(i)
		}
		p, ok := pos[f.CustomerID]
		if !ok {
			p = len(out)
			pos[f.CustomerID] = p
			out = append(out, customerTotal{
				customerID:   f.CustomerID,
				ordinal:      f.CustomerOrdinal,
				customerName: f.CustomerName,
				branchID:     f.BranchID,
				branchName:   f.BranchName,
			})
		}
		out[p].total = out[p].total.Add(f.Amount)
	}
	slices.SortFunc(out, func(a, b customerTotal) int {
		return cmp.Compare(a.ordinal, b.ordinal)
	})
	return out, nil
}

func noTransaction(row int) error {
	err := fmt.Errorf("%w: fact %d carries no transaction", analytics.ErrInvalidPartition, row)
	return analytics.WrapError(err, analytics.StageOperator, "")
}

// branchNames maps branch ids to names for the branches present in facts.
func branchNames(facts []join.Fact) map[int64]string {
	names := make(map[int64]string)
	for _, f := range facts {
		names[f.BranchID] = f.BranchName
	}
	return names
}

// monthlyByBranch buckets transaction amounts by branch and calendar month.
var monthlyByBranch = window.Series[int64, join.Fact]{
	Partition: func(f join.Fact) (int64, bool) { return f.BranchID, true },
	Period: func(f join.Fact) (time.Time, bool) {
		return window.MonthOf(f.TransactionDate), f.HasTransaction
	},
	Measure: func(f join.Fact) (decimal.Decimal, bool) { return f.Amount, f.HasTransaction },
}

// TopCustomers ranks customers by total amount within their branch and keeps
// those ranked n or better. Customers tied at the cutoff are all kept.
func TopCustomers(facts []join.Fact, n int) ([]TopCustomerRow, error) {
	if n < 1 {
		err := fmt.Errorf("%w: top n must be positive, got %d", analytics.ErrInvalidWindow, n)
		return nil, analytics.WrapError(err, analytics.StageOperator, "")
	}

	totals, err := customerTotals(facts)
	if err != nil {
		return nil, err
	}

	ranked, err := window.Rank(totals,
		func(c customerTotal) (int64, bool) { return c.branchID, true },
		func(c customerTotal) (decimal.Decimal, bool) { return c.total, true },
	)
	if err != nil {
		return nil, err
	}

	top := window.TopN(ranked, n)
	rows := make([]TopCustomerRow, 0, len(top))
	for _, r := range top {
		rows = append(rows, TopCustomerRow{
			BranchName:   r.Item.branchName,
			CustomerName: r.Item.customerName,
			TotalAmount:  r.Measure,
			Rank:         r.Rank,
		})
	}
	return rows, nil
}

// RunningTotals computes each branch's monthly totals and their running sum.
func RunningTotals(facts []join.Fact) ([]RunningTotalRow, error) {
	running, err := monthlyByBranch.Running(facts)
	if err != nil {
		return nil, err
	}

	names := branchNames(facts)
	rows := make([]RunningTotalRow, 0, len(running))
	for _, r := range running {
		rows = append(rows, RunningTotalRow{
			BranchName:   names[r.Partition],
			Month:        r.Period,
			MonthlyTotal: r.Total,
			RunningTotal: r.Cumulative,
		})
	}
	return rows, nil
}

// MonthlyGrowth computes each branch's month over month change.
// Months without transactions are skipped, not treated as zero.
func MonthlyGrowth(facts []join.Fact) ([]GrowthRow, error) {
	growth, err := monthlyByBranch.Growth(facts)
	if err != nil {
		return nil, err
	}

	names := branchNames(facts)
	rows := make([]GrowthRow, 0, len(growth))
	for _, g := range growth {
		rows = append(rows, GrowthRow{
			BranchName:    names[g.Partition],
			Month:         g.Period,
			MonthlyTotal:  g.Total,
			MonthlyGrowth: g.Change,
		})
	}
	return rows, nil
}

// Quartiles segments customers into four spending buckets.
func Quartiles(facts []join.Fact) ([]QuartileRow, error) {
	segments, err := Segments(facts, 4)
	if err != nil {
		return nil, err
	}
	rows := make([]QuartileRow, 0, len(segments))
	for _, s := range segments {
		rows = append(rows, QuartileRow{
			CustomerName: s.CustomerName,
			TotalAmount:  s.TotalAmount,
			Quartile:     s.Segment,
		})
	}
	return rows, nil
}

// Segments splits customers into n buckets by total amount, highest first.
func Segments(facts []join.Fact, n int) ([]SegmentRow, error) {
	totals, err := customerTotals(facts)
	if err != nil {
		return nil, err
	}

	buckets, err := window.NTile(totals, n, func(c customerTotal) (decimal.Decimal, bool) {
		return c.total, true
	})
	if err != nil {
		return nil, err
	}

	rows := make([]SegmentRow, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, SegmentRow{
			CustomerName: b.Item.customerName,
			TotalAmount:  b.Measure,
			Segment:      b.Bucket,
			Segments:     n,
		})
	}
	return rows, nil
}

// MovingAverages computes each branch's trailing monthly average over w.
func MovingAverages(facts []join.Fact, w window.Window) ([]MovingAverageRow, error) {
	averages, err := monthlyByBranch.MovingAverage(facts, w)
	if err != nil {
		return nil, err
	}

	names := branchNames(facts)
	rows := make([]MovingAverageRow, 0, len(averages))
	for _, a := range averages {
		mean := a.Mean
		if mean.Valid {
			mean.Decimal = mean.Decimal.Round(MovingAveragePlaces)
		}
		rows = append(rows, MovingAverageRow{
			BranchName:   names[a.Partition],
			Month:        a.Period,
			MonthlyTotal: a.Total,
			MovingAvg:    mean,
		})
	}
	return rows, nil
}

// InactiveCustomers lists customers without any transaction, in customer
// order. It expects facts resolved with join.CustomerOuter; inner facts
// never contain an inactive customer.
func InactiveCustomers(facts []join.Fact) ([]InactiveCustomerRow, error) {
	type activity struct {
		row    InactiveCustomerRow
		active bool
	}

	pos := make(map[int64]int)
	var seen []activity
	for _, f := range facts {
		p, ok := pos[f.CustomerID]
		if !ok {
			p = len(seen)
			pos[f.CustomerID] = p
			seen = append(seen, activity{row: InactiveCustomerRow{
				CustomerID:   f.CustomerID,
				CustomerName: f.CustomerName,
				BranchName:   f.BranchName,
			}})
		}
		if f.HasAccount {
			seen[p].row.HasAccount = true
		}
		if f.HasTransaction {
			seen[p].active = true
		}
	}

	rows := make([]InactiveCustomerRow, 0)
	for _, a := range seen {
		if !a.active {
			rows = append(rows, a.row)
		}
	}
	return rows, nil
}

// ChannelMix counts transactions and sums amounts per branch and channel.
// Branches come in id order, channels in schema.Channels order; channels a
// branch never used are omitted.
func ChannelMix(facts []join.Fact) ([]ChannelMixRow, error) {
	type key struct {
		branch  int64
		channel schema.Channel
	}
	type mix struct {
		count int
		total decimal.Decimal
	}

	mixes := make(map[key]*mix)
	var branches []int64
	for i, f := range facts {
		if !f.HasTransaction {
			return nil, noTransaction(i)
		}
		k := key{f.BranchID, f.Channel}
		m, ok := mixes[k]
		if !ok {
			m = &mix{}
			mixes[k] = m
			if !slices.Contains(branches, f.BranchID) {
				branches = append(branches, f.BranchID)
			}
		}
		m.count++
		m.total = m.total.Add(f.Amount)
	}
	slices.Sort(branches)

	names := branchNames(facts)
	rows := make([]ChannelMixRow, 0, len(mixes))
	for _, b := range branches {
		for _, c := range schema.Channels {
			m, ok := mixes[key{b, c}]
			if !ok {
				continue
			}
			rows = append(rows, ChannelMixRow{
				BranchName:       names[b],
				Channel:          c,
				TransactionCount: m.count,
				TotalAmount:      m.total,
			})
		}
	}
	return rows, nil
}
