// Package schema holds the four banking entities and a read-only, validated
// store over them.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bank-analytics/pkg/analytics"

	"github.com/shopspring/decimal"
)

// Channel is the channel a transaction was made through.
type Channel string

const (
	ChannelOnline Channel = "ONLINE"
	ChannelBranch Channel = "BRANCH"
)

// Channels lists every valid channel in display order.
var Channels = []Channel{ChannelOnline, ChannelBranch}

// Valid reports whether c is one of the two known channels.
func (c Channel) Valid() bool {
	return c == ChannelOnline || c == ChannelBranch
}

// ParseChannel parses a channel name, ignoring case and surrounding space.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown channel %q", analytics.ErrIntegrity, s)
	}
	return c, nil
}

// UnmarshalJSON decodes a channel name with ParseChannel.
func (c *Channel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseChannel(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Branch is a bank branch.
type Branch struct {
	ID     int64  `json:"branch_id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}

// Customer belongs to exactly one branch.
type Customer struct {
	ID               int64     `json:"customer_id"`
	FullName         string    `json:"full_name"`
	RegistrationDate time.Time `json:"registration_date"`
	BranchID         int64     `json:"branch_id"`
}

// Account belongs to exactly one customer.
type Account struct {
	ID         int64     `json:"account_id"`
	Type       string    `json:"account_type"`
	OpenDate   time.Time `json:"open_date"`
	CustomerID int64     `json:"customer_id"`
}

// Transaction is posted against exactly one account.
type Transaction struct {
	ID        int64           `json:"transaction_id"`
	Date      time.Time       `json:"transaction_date"`
	Amount    decimal.Decimal `json:"amount"`
	Channel   Channel         `json:"channel_type"`
	AccountID int64           `json:"account_id"`
}

// Dataset is the raw input: the four entity collections in insertion order.
type Dataset struct {
	Branches     []Branch      `json:"branches"`
	Customers    []Customer    `json:"customers"`
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
}
