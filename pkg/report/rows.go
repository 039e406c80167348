package report

import (
	"time"

	"bank-analytics/pkg/schema"

	"github.com/shopspring/decimal"
)

// TopCustomerRow is one customer among the highest spenders of a branch.
type TopCustomerRow struct {
	BranchName   string          `json:"branch_name"`
	CustomerName string          `json:"customer_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Rank         int             `json:"rank"`
}

// RunningTotalRow is a branch's monthly total with its year-to-date sum.
type RunningTotalRow struct {
	BranchName   string          `json:"branch_name"`
	Month        time.Time       `json:"month"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	RunningTotal decimal.Decimal `json:"running_total"`
}

// GrowthRow is a branch's monthly total with the change from the previous
// month. MonthlyGrowth is null on the first month of a branch.
type GrowthRow struct {
	BranchName    string              `json:"branch_name"`
	Month         time.Time           `json:"month"`
	MonthlyTotal  decimal.Decimal     `json:"monthly_total"`
	MonthlyGrowth decimal.NullDecimal `json:"monthly_growth"`
}

// QuartileRow places a customer in one of four spending buckets, 1 being the top.
type QuartileRow struct {
	CustomerName string          `json:"customer_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Quartile     int             `json:"quartile"`
}

// SegmentRow places a customer in one of a configurable number of spending
// buckets, 1 being the top.
type SegmentRow struct {
	CustomerName string          `json:"customer_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Segment      int             `json:"segment"`
	Segments     int             `json:"segments"`
}

// MovingAverageRow is a branch's monthly total with its trailing average,
// rounded to cents.
type MovingAverageRow struct {
	BranchName   string              `json:"branch_name"`
	Month        time.Time           `json:"month"`
	MonthlyTotal decimal.Decimal     `json:"monthly_total"`
	MovingAvg    decimal.NullDecimal `json:"moving_avg"`
}

// InactiveCustomerRow is a customer with no transaction on any account.
type InactiveCustomerRow struct {
	CustomerID   int64  `json:"customer_id"`
	CustomerName string `json:"customer_name"`
	BranchName   string `json:"branch_name"`
	HasAccount   bool   `json:"has_account"`
}

// ChannelMixRow counts a branch's transactions made through one channel.
type ChannelMixRow struct {
	BranchName       string          `json:"branch_name"`
	Channel          schema.Channel  `json:"channel_type"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// Report holds every analysis computed over one dataset.
type Report struct {
	RunID       string       `json:"run_id"`
	Fingerprint string       `json:"fingerprint"`
	GeneratedAt time.Time    `json:"generated_at"`
	Stats       schema.Stats `json:"stats"`

	TopCustomers      []TopCustomerRow      `json:"top_customers"`
	RunningTotals     []RunningTotalRow     `json:"running_totals"`
	MonthlyGrowth     []GrowthRow           `json:"monthly_growth"`
	Quartiles         []QuartileRow         `json:"quartiles"`
	Segments          []SegmentRow          `json:"segments"`
	MovingAverages    []MovingAverageRow    `json:"moving_averages"`
	InactiveCustomers []InactiveCustomerRow `json:"inactive_customers"`
	ChannelMix        []ChannelMixRow       `json:"channel_mix"`
}

// Result is the output of a single analysis run.
type Result struct {
	Analysis    Analysis  `json:"analysis"`
	RunID       string    `json:"run_id"`
	Fingerprint string    `json:"fingerprint"`
	GeneratedAt time.Time `json:"generated_at"`
	RowCount    int       `json:"row_count"`
	Rows        any       `json:"rows"`
}
