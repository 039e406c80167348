package window

import (
	"testing"

	"bank-analytics/pkg/analytics"

	"github.com/shopspring/decimal"
)

type total struct {
	branch   string
	customer string
	amount   decimal.Decimal
}

func t3(branch, customer string, amount int64) total {
	return total{branch: branch, customer: customer, amount: decimal.NewFromInt(amount)}
}

func byBranch(t total) (string, bool) { return t.branch, t.branch != "" }
func byAmount(t total) (decimal.Decimal, bool) { return t.amount, true }

func TestRank_TiesShareRank(t *testing.T) {
	items := []total{
		t3("Downtown", "C", 300),
		t3("Downtown", "A", 500),
		t3("Downtown", "B", 500),
	}

	ranked, err := Rank(items, byBranch, byAmount)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	want := []struct {
		customer string
		rank     int
	}{{"A", 1}, {"B", 1}, {"C", 3}}

	if len(ranked) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(ranked))
	}
	for i, w := range want {
		if ranked[i].Item.customer != w.customer || ranked[i].Rank != w.rank {
			t.Errorf("Row %d: expected %s rank %d, got %s rank %d",
				i, w.customer, w.rank, ranked[i].Item.customer, ranked[i].Rank)
		}
	}
}

func TestRank_Properties(t *testing.T) {
	items := []total{
		t3("North", "a", 10), t3("South", "b", 7), t3("North", "c", 10),
		t3("North", "d", 3), t3("South", "e", 7), t3("South", "f", 9),
		t3("North", "g", 12), t3("South", "h", 1), t3("North", "i", 3),
	}

	ranked, err := Rank(items, byBranch, byAmount)
	if err != nil {
		t.Fatal(err)
	}

	sizes := map[string]int{}
	for _, it := range items {
		sizes[it.branch]++
	}

	for i := 1; i < len(ranked); i++ {
		prev, cur := ranked[i-1], ranked[i]
		if prev.Partition > cur.Partition {
			t.Fatalf("Partitions out of order at %d", i)
		}
		if prev.Partition != cur.Partition {
			continue
		}
		if cur.Rank < prev.Rank {
			t.Errorf("Ranks decrease at %d: %d after %d", i, cur.Rank, prev.Rank)
		}
		if cur.Measure.Equal(prev.Measure) && cur.Rank != prev.Rank {
			t.Errorf("Tied measures at %d got ranks %d and %d", i, prev.Rank, cur.Rank)
		}
	}
	for _, r := range ranked {
		if r.Rank > sizes[r.Partition] {
			t.Errorf("Rank %d exceeds partition size %d", r.Rank, sizes[r.Partition])
		}
	}
}

func TestRank_StableTieBreak(t *testing.T) {
	items := []total{t3("X", "first", 5), t3("X", "second", 5), t3("X", "third", 5)}

	for run := 0; run < 3; run++ {
		ranked, err := Rank(items, byBranch, byAmount)
		if err != nil {
			t.Fatal(err)
		}
		for i, name := range []string{"first", "second", "third"} {
			if ranked[i].Item.customer != name || ranked[i].Rank != 1 {
				t.Errorf("Run %d: expected %s at %d with rank 1, got %+v", run, name, i, ranked[i])
			}
		}
	}
}

func TestRank_MissingPartition(t *testing.T) {
	items := []total{t3("X", "a", 1), t3("", "b", 2)}

	_, err := Rank(items, byBranch, byAmount)
	if !analytics.IsInvalidPartition(err) {
		t.Errorf("Expected invalid partition error, got %v", err)
	}
}

func TestRank_Empty(t *testing.T) {
	ranked, err := Rank([]total{}, byBranch, byAmount)
	if err != nil || len(ranked) != 0 {
		t.Errorf("Expected empty result, got %v, %v", ranked, err)
	}
}

func TestTopN(t *testing.T) {
	items := []total{
		t3("X", "a", 9), t3("X", "b", 8), t3("X", "c", 8), t3("X", "d", 8), t3("X", "e", 1),
	}
	ranked, _ := Rank(items, byBranch, byAmount)

	top := TopN(ranked, 3)
	if len(top) != 4 {
		t.Errorf("Expected ties at the cutoff to be kept (4 rows), got %d", len(top))
	}

	top = TopN(ranked, 1)
	if len(top) != 1 || top[0].Item.customer != "a" {
		t.Errorf("Expected only a, got %+v", top)
	}
}
