package report_test

import (
	"context"
	"errors"
	"testing"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/join"
	"bank-analytics/pkg/report"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/schema/schematest"
	"bank-analytics/pkg/window"

	"github.com/shopspring/decimal"
)

func facts(t *testing.T, store *schema.Store, mode join.Mode) []join.Fact {
	t.Helper()
	fs, err := join.NewResolver(store, join.ResolverConfig{}).Resolve(context.Background(), mode)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return fs
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nullDec(s string) decimal.NullDecimal {
	if s == "" {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(dec(s))
}

func equalNull(a, b decimal.NullDecimal) bool {
	return a.Valid == b.Valid && (!a.Valid || a.Decimal.Equal(b.Decimal))
}

func TestTopCustomers(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	tests := []struct {
		name string
		n    int
		want []report.TopCustomerRow
	}{
		{
			name: "top 3",
			n:    3,
			want: []report.TopCustomerRow{
				{BranchName: "Downtown", CustomerName: "Alice", TotalAmount: dec("500"), Rank: 1},
				{BranchName: "Downtown", CustomerName: "Bob", TotalAmount: dec("500"), Rank: 1},
				{BranchName: "Downtown", CustomerName: "Carol", TotalAmount: dec("300"), Rank: 3},
				{BranchName: "Harbor", CustomerName: "Erin", TotalAmount: dec("75"), Rank: 1},
				{BranchName: "Harbor", CustomerName: "Dave", TotalAmount: dec("50"), Rank: 2},
			},
		},
		{
			name: "ties at the cutoff are kept",
			n:    1,
			want: []report.TopCustomerRow{
				{BranchName: "Downtown", CustomerName: "Alice", TotalAmount: dec("500"), Rank: 1},
				{BranchName: "Downtown", CustomerName: "Bob", TotalAmount: dec("500"), Rank: 1},
				{BranchName: "Harbor", CustomerName: "Erin", TotalAmount: dec("75"), Rank: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := report.TopCustomers(fs, tt.n)
			if err != nil {
				t.Fatalf("TopCustomers() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("TopCustomers() returned %d rows, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				g, w := got[i], tt.want[i]
				if g.BranchName != w.BranchName || g.CustomerName != w.CustomerName ||
					!g.TotalAmount.Equal(w.TotalAmount) || g.Rank != w.Rank {
					t.Errorf("row %d = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}

func TestTopCustomers_TiesKeepCustomerLoadOrder(t *testing.T) {
	// Zed is loaded first but has the higher id and the later transaction.
	store := schematest.New().
		Branch(1, "Downtown", "North").
		Customer(30, "Zed", 1).
		Customer(5, "Amy", 1).
		Account(300, 30).
		Account(50, 5).
		Txn(50, "2024-01-01", "100", schema.ChannelOnline).
		Txn(300, "2024-01-02", "100", schema.ChannelOnline).
		Store(t)

	got, err := report.TopCustomers(facts(t, store, join.Inner), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].CustomerName != "Zed" || got[1].CustomerName != "Amy" {
		t.Fatalf("TopCustomers() = %+v, want Zed then Amy", got)
	}
	if got[0].Rank != 1 || got[1].Rank != 1 {
		t.Errorf("ranks = %d, %d, want 1, 1", got[0].Rank, got[1].Rank)
	}

	quartiles, err := report.Quartiles(facts(t, store, join.Inner))
	if err != nil {
		t.Fatal(err)
	}
	if quartiles[0].CustomerName != "Zed" || quartiles[0].Quartile != 1 || quartiles[1].Quartile != 2 {
		t.Errorf("Quartiles() = %+v, want Zed in quartile 1", quartiles)
	}
}

func TestTopCustomers_InvalidN(t *testing.T) {
	_, err := report.TopCustomers(nil, 0)
	if !errors.Is(err, analytics.ErrInvalidWindow) {
		t.Errorf("TopCustomers(n=0) error = %v, want ErrInvalidWindow", err)
	}
}

func TestTopCustomers_OuterFactsRejected(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.CustomerOuter)
	_, err := report.TopCustomers(fs, 3)
	if !analytics.IsInvalidPartition(err) {
		t.Errorf("TopCustomers(outer facts) error = %v, want ErrInvalidPartition", err)
	}
}

func TestRunningTotals(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	got, err := report.RunningTotals(fs)
	if err != nil {
		t.Fatalf("RunningTotals() error = %v", err)
	}

	want := []report.RunningTotalRow{
		{BranchName: "Downtown", Month: schematest.Date("2024-01-01"), MonthlyTotal: dec("100"), RunningTotal: dec("100")},
		{BranchName: "Downtown", Month: schematest.Date("2024-02-01"), MonthlyTotal: dec("900"), RunningTotal: dec("1000")},
		{BranchName: "Downtown", Month: schematest.Date("2024-03-01"), MonthlyTotal: dec("300"), RunningTotal: dec("1300")},
		{BranchName: "Harbor", Month: schematest.Date("2024-01-01"), MonthlyTotal: dec("50"), RunningTotal: dec("50")},
		{BranchName: "Harbor", Month: schematest.Date("2024-03-01"), MonthlyTotal: dec("75"), RunningTotal: dec("125")},
	}
	if len(got) != len(want) {
		t.Fatalf("RunningTotals() returned %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i := range got {
		g, w := got[i], want[i]
		if g.BranchName != w.BranchName || !g.Month.Equal(w.Month) ||
			!g.MonthlyTotal.Equal(w.MonthlyTotal) || !g.RunningTotal.Equal(w.RunningTotal) {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestMonthlyGrowth(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	got, err := report.MonthlyGrowth(fs)
	if err != nil {
		t.Fatalf("MonthlyGrowth() error = %v", err)
	}

	want := []struct {
		branch string
		total  string
		growth string
	}{
		{"Downtown", "100", ""},
		{"Downtown", "900", "800"},
		{"Downtown", "300", "-600"},
		{"Harbor", "50", ""},
		{"Harbor", "75", "25"},
	}
	if len(got) != len(want) {
		t.Fatalf("MonthlyGrowth() returned %d rows, want %d", len(got), len(want))
	}
	for i, w := range want {
		g := got[i]
		if g.BranchName != w.branch || !g.MonthlyTotal.Equal(dec(w.total)) || !equalNull(g.MonthlyGrowth, nullDec(w.growth)) {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestQuartiles(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	got, err := report.Quartiles(fs)
	if err != nil {
		t.Fatalf("Quartiles() error = %v", err)
	}

	want := []report.QuartileRow{
		{CustomerName: "Alice", TotalAmount: dec("500"), Quartile: 1},
		{CustomerName: "Bob", TotalAmount: dec("500"), Quartile: 1},
		{CustomerName: "Carol", TotalAmount: dec("300"), Quartile: 2},
		{CustomerName: "Erin", TotalAmount: dec("75"), Quartile: 3},
		{CustomerName: "Dave", TotalAmount: dec("50"), Quartile: 4},
	}
	if len(got) != len(want) {
		t.Fatalf("Quartiles() returned %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i := range got {
		g, w := got[i], want[i]
		if g.CustomerName != w.CustomerName || !g.TotalAmount.Equal(w.TotalAmount) || g.Quartile != w.Quartile {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestSegments_InvalidBucketCount(t *testing.T) {
	_, err := report.Segments(nil, 0)
	if !errors.Is(err, analytics.ErrInvalidWindow) {
		t.Errorf("Segments(n=0) error = %v, want ErrInvalidWindow", err)
	}
}

func TestMovingAverages(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	tests := []struct {
		name string
		w    window.Window
		want []string
	}{
		{
			name: "partial windows",
			w:    window.Window{Size: 3, Partial: true},
			want: []string{"100", "500", "433.33", "50", "62.5"},
		},
		{
			name: "full windows only",
			w:    window.Window{Size: 3},
			want: []string{"", "", "433.33", "", ""},
		},
		{
			name: "single month window",
			w:    window.Window{Size: 1},
			want: []string{"100", "900", "300", "50", "75"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := report.MovingAverages(fs, tt.w)
			if err != nil {
				t.Fatalf("MovingAverages() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("MovingAverages() returned %d rows, want %d", len(got), len(tt.want))
			}
			for i, w := range tt.want {
				if !equalNull(got[i].MovingAvg, nullDec(w)) {
					t.Errorf("row %d moving avg = %v, want %q", i, got[i].MovingAvg, w)
				}
			}
		})
	}
}

func TestMovingAverages_InvalidWindow(t *testing.T) {
	_, err := report.MovingAverages(nil, window.Window{Size: 0})
	if !errors.Is(err, analytics.ErrInvalidWindow) {
		t.Errorf("MovingAverages(size=0) error = %v, want ErrInvalidWindow", err)
	}
}

func TestInactiveCustomers(t *testing.T) {
	store := schematest.Downtown().Store(t)

	got, err := report.InactiveCustomers(facts(t, store, join.CustomerOuter))
	if err != nil {
		t.Fatalf("InactiveCustomers() error = %v", err)
	}
	want := []report.InactiveCustomerRow{
		{CustomerID: 22, CustomerName: "Frank", BranchName: "Harbor", HasAccount: false},
		{CustomerID: 23, CustomerName: "Grace", BranchName: "Harbor", HasAccount: true},
	}
	if len(got) != len(want) {
		t.Fatalf("InactiveCustomers() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	inner, err := report.InactiveCustomers(facts(t, store, join.Inner))
	if err != nil {
		t.Fatalf("InactiveCustomers(inner) error = %v", err)
	}
	if len(inner) != 0 {
		t.Errorf("InactiveCustomers(inner) = %+v, want none", inner)
	}
}

func TestChannelMix(t *testing.T) {
	fs := facts(t, schematest.Downtown().Store(t), join.Inner)

	got, err := report.ChannelMix(fs)
	if err != nil {
		t.Fatalf("ChannelMix() error = %v", err)
	}

	want := []report.ChannelMixRow{
		{BranchName: "Downtown", Channel: schema.ChannelOnline, TransactionCount: 3, TotalAmount: dec("900")},
		{BranchName: "Downtown", Channel: schema.ChannelBranch, TransactionCount: 1, TotalAmount: dec("400")},
		{BranchName: "Harbor", Channel: schema.ChannelOnline, TransactionCount: 1, TotalAmount: dec("75")},
		{BranchName: "Harbor", Channel: schema.ChannelBranch, TransactionCount: 1, TotalAmount: dec("50")},
	}
	if len(got) != len(want) {
		t.Fatalf("ChannelMix() returned %d rows, want %d: %+v", len(got), len(want), got)
	}
	for i := range got {
		g, w := got[i], want[i]
		if g.BranchName != w.BranchName || g.Channel != w.Channel ||
			g.TransactionCount != w.TransactionCount || !g.TotalAmount.Equal(w.TotalAmount) {
			t.Errorf("row %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestAnalyses_EmptyInput(t *testing.T) {
	if rows, err := report.TopCustomers(nil, 3); err != nil || len(rows) != 0 {
		t.Errorf("TopCustomers(nil) = %v, %v", rows, err)
	}
	if rows, err := report.RunningTotals(nil); err != nil || len(rows) != 0 {
		t.Errorf("RunningTotals(nil) = %v, %v", rows, err)
	}
	if rows, err := report.MonthlyGrowth(nil); err != nil || len(rows) != 0 {
		t.Errorf("MonthlyGrowth(nil) = %v, %v", rows, err)
	}
	if rows, err := report.Quartiles(nil); err != nil || len(rows) != 0 {
		t.Errorf("Quartiles(nil) = %v, %v", rows, err)
	}
	if rows, err := report.MovingAverages(nil, window.Window{Size: 3}); err != nil || len(rows) != 0 {
		t.Errorf("MovingAverages(nil) = %v, %v", rows, err)
	}
	if rows, err := report.InactiveCustomers(nil); err != nil || rows == nil || len(rows) != 0 {
		t.Errorf("InactiveCustomers(nil) = %v, %v", rows, err)
	}
	if rows, err := report.ChannelMix(nil); err != nil || len(rows) != 0 {
		t.Errorf("ChannelMix(nil) = %v, %v", rows, err)
	}
}
