package schema_test

import (
	"errors"
	"testing"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/schema/schematest"

	"github.com/shopspring/decimal"
)

func TestNewStore_Lookup(t *testing.T) {
	s := schematest.Downtown().Store(t)

	b, ok := s.Branch(1)
	if !ok || b.Name != "Downtown" {
		t.Errorf("Expected branch Downtown, got %+v (ok=%v)", b, ok)
	}

	c, ok := s.Customer(11)
	if !ok || c.FullName != "Bob" {
		t.Errorf("Expected customer Bob, got %+v (ok=%v)", c, ok)
	}

	a, ok := s.Account(201)
	if !ok || a.CustomerID != 21 {
		t.Errorf("Expected account 201 owned by 21, got %+v (ok=%v)", a, ok)
	}

	tx, ok := s.Transaction(3)
	if !ok || !tx.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Expected transaction 3 of 500, got %+v (ok=%v)", tx, ok)
	}

	if _, ok := s.Customer(999); ok {
		t.Error("Expected missing customer lookup to fail")
	}
}

func TestNewStore_InsertionOrder(t *testing.T) {
	s := schematest.New().
		Branch(3, "C", "x").
		Branch(1, "A", "x").
		Branch(2, "B", "x").
		Store(t)

	branches := s.Branches()
	want := []int64{3, 1, 2}
	for i, b := range branches {
		if b.ID != want[i] {
			t.Fatalf("Expected insertion order %v, got branch %d at %d", want, b.ID, i)
		}
	}

	branches[0].Name = "mutated"
	if b, _ := s.Branch(3); b.Name != "C" {
		t.Error("Branches must return a copy")
	}
}

func TestNewStore_Integrity(t *testing.T) {
	tests := []struct {
		name    string
		builder *schematest.Builder
	}{
		{
			name:    "customer without branch",
			builder: schematest.New().Customer(1, "A", 9),
		},
		{
			name:    "account without customer",
			builder: schematest.New().Branch(1, "B", "r").Account(5, 9),
		},
		{
			name: "transaction without account",
			builder: schematest.New().Branch(1, "B", "r").Customer(1, "A", 1).
				Txn(9, "2024-01-01", "10", schema.ChannelOnline),
		},
		{
			name: "unknown channel",
			builder: schematest.New().Branch(1, "B", "r").Customer(1, "A", 1).Account(1, 1).
				Txn(1, "2024-01-01", "10", schema.Channel("ATM")),
		},
		{
			name: "negative amount",
			builder: schematest.New().Branch(1, "B", "r").Customer(1, "A", 1).Account(1, 1).
				Txn(1, "2024-01-01", "-10", schema.ChannelOnline),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.NewStore(tt.builder.Dataset())
			if !analytics.IsIntegrity(err) {
				t.Fatalf("Expected integrity error, got %v", err)
			}
			if stage, _ := analytics.StageOf(err); stage != analytics.StageLoad {
				t.Errorf("Expected load stage, got %q", stage)
			}
		})
	}
}

func TestNewStore_NegativeAmountsAllowed(t *testing.T) {
	ds := schematest.New().Branch(1, "B", "r").Customer(1, "A", 1).Account(1, 1).
		Txn(1, "2024-01-01", "-10", schema.ChannelOnline).Dataset()

	if _, err := schema.NewStore(ds, schema.WithNegativeAmounts()); err != nil {
		t.Fatalf("Expected negative amount to load, got %v", err)
	}
}

func TestNewStore_Duplicates(t *testing.T) {
	s := schematest.New().
		Branch(1, "First", "r").
		Branch(1, "Second", "r").
		Store(t)

	b, _ := s.Branch(1)
	if b.Name != "First" {
		t.Errorf("Expected first occurrence to win, got %q", b.Name)
	}

	dups := s.Duplicates()
	if len(dups) != 1 || dups[0] != (schema.Duplicate{Entity: "branch", ID: 1}) {
		t.Errorf("Unexpected duplicates %v", dups)
	}
}

func TestStore_Fingerprint(t *testing.T) {
	a := schematest.Downtown().Store(t)
	b := schematest.Downtown().Store(t)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("Equal datasets must share a fingerprint")
	}

	c := schematest.Downtown().Txn(100, "2024-04-01", "1", schema.ChannelOnline).Store(t)
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("Different datasets must not share a fingerprint")
	}
}

func TestStore_Fingerprint_FieldBoundaries(t *testing.T) {
	tests := []struct {
		name string
		a, b *schematest.Builder
	}{
		{
			name: "separator moved between name and region",
			a:    schematest.New().Branch(1, "North|East", "X"),
			b:    schematest.New().Branch(1, "North", "East|X"),
		},
		{
			name: "trailing separator moved to region",
			a:    schematest.New().Branch(1, "North|", "East"),
			b:    schematest.New().Branch(1, "North", "|East"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fa, fb := tt.a.Store(t).Fingerprint(), tt.b.Store(t).Fingerprint(); fa == fb {
				t.Errorf("distinct datasets share fingerprint %s", fa)
			}
		})
	}
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		in      string
		want    schema.Channel
		wantErr bool
	}{
		{"ONLINE", schema.ChannelOnline, false},
		{" branch ", schema.ChannelBranch, false},
		{"atm", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := schema.ParseChannel(tt.in)
			if tt.wantErr {
				if !errors.Is(err, analytics.ErrIntegrity) {
					t.Errorf("Expected integrity error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseChannel(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}
