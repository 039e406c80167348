// Package schematest builds small datasets for tests.
package schematest

import (
	"testing"
	"time"

	"bank-analytics/pkg/schema"

	"github.com/shopspring/decimal"
)

// Builder accumulates entities in insertion order.
// Transaction ids are assigned sequentially starting at 1.
type Builder struct {
	ds      schema.Dataset
	nextTxn int64
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Branch appends a branch.
func (b *Builder) Branch(id int64, name, region string) *Builder {
	b.ds.Branches = append(b.ds.Branches, schema.Branch{ID: id, Name: name, Region: region})
	return b
}

// Customer appends a customer registered on 2023-01-01.
func (b *Builder) Customer(id int64, name string, branchID int64) *Builder {
	b.ds.Customers = append(b.ds.Customers, schema.Customer{
		ID:               id,
		FullName:         name,
		RegistrationDate: Date("2023-01-01"),
		BranchID:         branchID,
	})
	return b
}

// Account appends a checking account opened on 2023-01-01.
func (b *Builder) Account(id, customerID int64) *Builder {
	b.ds.Accounts = append(b.ds.Accounts, schema.Account{
		ID:         id,
		Type:       "CHECKING",
		OpenDate:   Date("2023-01-01"),
		CustomerID: customerID,
	})
	return b
}

// Txn appends a transaction. date is YYYY-MM-DD, amount a decimal string.
func (b *Builder) Txn(accountID int64, date, amount string, channel schema.Channel) *Builder {
	b.nextTxn++
	b.ds.Transactions = append(b.ds.Transactions, schema.Transaction{
		ID:        b.nextTxn,
		Date:      Date(date),
		Amount:    decimal.RequireFromString(amount),
		Channel:   channel,
		AccountID: accountID,
	})
	return b
}

// Dataset returns the accumulated dataset.
func (b *Builder) Dataset() schema.Dataset {
	return b.ds
}

// Store builds a store and fails the test on error.
func (b *Builder) Store(t testing.TB, opts ...schema.Option) *schema.Store {
	t.Helper()
	s, err := schema.NewStore(b.ds, opts...)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

// Date parses YYYY-MM-DD as midnight UTC and panics on bad input.
func Date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Downtown returns the reference dataset used across package tests.
//
//	Downtown (North): Alice 500, Bob 500, Carol 300
//	  months: 2024-01 100, 2024-02 900, 2024-03 300
//	Harbor (South): Dave 50, Erin 75, Frank (no account), Grace (idle account)
//	  months: 2024-01 50, 2024-03 75
func Downtown() *Builder {
	return New().
		Branch(1, "Downtown", "North").
		Branch(2, "Harbor", "South").
		Customer(10, "Alice", 1).
		Customer(11, "Bob", 1).
		Customer(12, "Carol", 1).
		Customer(20, "Dave", 2).
		Customer(21, "Erin", 2).
		Customer(22, "Frank", 2).
		Customer(23, "Grace", 2).
		Account(100, 10).
		Account(101, 11).
		Account(102, 12).
		Account(200, 20).
		Account(201, 21).
		Account(230, 23).
		Txn(100, "2024-01-05", "100", schema.ChannelOnline).
		Txn(100, "2024-02-10", "400", schema.ChannelBranch).
		Txn(101, "2024-02-11", "500", schema.ChannelOnline).
		Txn(102, "2024-03-02", "300", schema.ChannelOnline).
		Txn(200, "2024-01-20", "50", schema.ChannelBranch).
		Txn(201, "2024-03-15", "75", schema.ChannelOnline)
}
