package window

import (
	"errors"
	"testing"

	"bank-analytics/pkg/analytics"

	"github.com/shopspring/decimal"
)

func values(n int) []total {
	out := make([]total, n)
	for i := range out {
		out[i] = t3("all", string(rune('a'+i)), int64(i+1))
	}
	return out
}

func bucketSizes[T any](rows []Bucketed[T], n int) []int {
	sizes := make([]int, n)
	for _, r := range rows {
		sizes[r.Bucket-1]++
	}
	return sizes
}

func TestNTile_Sizes(t *testing.T) {
	tests := []struct {
		name  string
		items int
		n     int
		want  []int
	}{
		{"ten in quartiles", 10, 4, []int{3, 3, 2, 2}},
		{"four in quartiles", 4, 4, []int{1, 1, 1, 1}},
		{"seven in quartiles", 7, 4, []int{2, 2, 2, 1}},
		{"two in quartiles", 2, 4, []int{1, 1, 0, 0}},
		{"five in one", 5, 1, []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := NTile(values(tt.items), tt.n, byAmount)
			if err != nil {
				t.Fatal(err)
			}
			got := bucketSizes(rows, tt.n)
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Fatalf("Expected sizes %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestNTile_HighestFirst(t *testing.T) {
	rows, err := Quartiles(values(10), byAmount)
	if err != nil {
		t.Fatal(err)
	}

	if !rows[0].Measure.Equal(decimal.NewFromInt(10)) || rows[0].Bucket != 1 {
		t.Errorf("Expected 10 in bucket 1, got %s in %d", rows[0].Measure, rows[0].Bucket)
	}
	last := rows[len(rows)-1]
	if !last.Measure.Equal(decimal.NewFromInt(1)) || last.Bucket != 4 {
		t.Errorf("Expected 1 in bucket 4, got %s in %d", last.Measure, last.Bucket)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Bucket < rows[i-1].Bucket {
			t.Fatalf("Buckets decrease at %d", i)
		}
	}
}

func TestNTile_InvalidCount(t *testing.T) {
	_, err := NTile(values(3), 0, byAmount)
	if !errors.Is(err, analytics.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow, got %v", err)
	}
}

func TestNTile_MissingMeasure(t *testing.T) {
	missing := func(total) (decimal.Decimal, bool) { return decimal.Zero, false }
	_, err := NTile(values(3), 4, missing)
	if !analytics.IsInvalidPartition(err) {
		t.Errorf("Expected invalid partition error, got %v", err)
	}
}

func TestNTile_Empty(t *testing.T) {
	rows, err := Quartiles([]total{}, byAmount)
	if err != nil || len(rows) != 0 {
		t.Errorf("Expected empty result, got %v, %v", rows, err)
	}
}
