package schema

import (
	"fmt"
	"strconv"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/logging"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// Store is an immutable, validated snapshot of a Dataset.
// Lookups by primary key are O(1); iteration follows insertion order.
// A Store is safe for concurrent reads.
type Store struct {
	branches     []Branch
	customers    []Customer
	accounts     []Account
	transactions []Transaction

	branchIdx      map[int64]int
	customerIdx    map[int64]int
	accountIdx     map[int64]int
	transactionIdx map[int64]int

	duplicates  []Duplicate
	fingerprint string
}

// Duplicate records a primary key seen more than once at load.
type Duplicate struct {
	Entity string
	ID     int64
}

func (d Duplicate) String() string {
	return d.Entity + " " + strconv.FormatInt(d.ID, 10)
}

// Stats holds entity counts.
type Stats struct {
	Branches     int `json:"branches"`
	Customers    int `json:"customers"`
	Accounts     int `json:"accounts"`
	Transactions int `json:"transactions"`
}

type storeOptions struct {
	allowNegative bool
	logger        *logging.Logger
}

// Option configures NewStore.
type Option func(*storeOptions)

// WithNegativeAmounts accepts transactions with negative amounts
// (refunds, reversals). By default they fail the load.
func WithNegativeAmounts() Option {
	return func(o *storeOptions) { o.allowNegative = true }
}

// WithLogger sets the logger used to report the load.
func WithLogger(logger *logging.Logger) Option {
	return func(o *storeOptions) { o.logger = logger }
}

// NewStore copies ds, indexes it and validates referential integrity.
// It fails with analytics.ErrIntegrity when a foreign key references a
// missing parent, a channel is unknown, or a negative amount is not allowed.
// Duplicate primary keys do not fail the load: the first occurrence is indexed
// and the rest are reported by Duplicates.
func NewStore(ds Dataset, opts ...Option) (*Store, error) {
	o := storeOptions{logger: logging.L()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.Named("schema")

	s := &Store{
		branches:     append([]Branch(nil), ds.Branches...),
		customers:    append([]Customer(nil), ds.Customers...),
		accounts:     append([]Account(nil), ds.Accounts...),
		transactions: append([]Transaction(nil), ds.Transactions...),
	}

	s.branchIdx = make(map[int64]int, len(s.branches))
	for i, b := range s.branches {
		s.index(s.branchIdx, "branch", b.ID, i)
	}
	s.customerIdx = make(map[int64]int, len(s.customers))
	for i, c := range s.customers {
		s.index(s.customerIdx, "customer", c.ID, i)
	}
	s.accountIdx = make(map[int64]int, len(s.accounts))
	for i, a := range s.accounts {
		s.index(s.accountIdx, "account", a.ID, i)
	}
	s.transactionIdx = make(map[int64]int, len(s.transactions))
	for i, t := range s.transactions {
		s.index(s.transactionIdx, "transaction", t.ID, i)
	}

	if err := s.validate(o.allowNegative); err != nil {
		logger.Warn("dataset rejected", zap.Error(err))
		return nil, analytics.WrapError(err, analytics.StageLoad, "")
	}

	s.fingerprint = s.computeFingerprint()

	stats := s.Stats()
	logger.Debug("dataset loaded",
		zap.Int("branches", stats.Branches),
		zap.Int("customers", stats.Customers),
		zap.Int("accounts", stats.Accounts),
		zap.Int("transactions", stats.Transactions),
		zap.Int("duplicates", len(s.duplicates)),
		zap.String("fingerprint", s.fingerprint),
	)

	return s, nil
}

func (s *Store) index(idx map[int64]int, entity string, id int64, pos int) {
	if _, exists := idx[id]; exists {
		s.duplicates = append(s.duplicates, Duplicate{Entity: entity, ID: id})
		return
	}
	idx[id] = pos
}

func (s *Store) validate(allowNegative bool) error {
	for _, c := range s.customers {
		if _, ok := s.branchIdx[c.BranchID]; !ok {
			return fmt.Errorf("%w: customer %d references missing branch %d", analytics.ErrIntegrity, c.ID, c.BranchID)
		}
	}
	for _, a := range s.accounts {
		if _, ok := s.customerIdx[a.CustomerID]; !ok {
			return fmt.Errorf("%w: account %d references missing customer %d", analytics.ErrIntegrity, a.ID, a.CustomerID)
		}
	}
	for _, t := range s.transactions {
		if _, ok := s.accountIdx[t.AccountID]; !ok {
			return fmt.Errorf("%w: transaction %d references missing account %d", analytics.ErrIntegrity, t.ID, t.AccountID)
		}
		if !t.Channel.Valid() {
			return fmt.Errorf("%w: transaction %d has unknown channel %q", analytics.ErrIntegrity, t.ID, t.Channel)
		}
		if !allowNegative && t.Amount.IsNegative() {
			return fmt.Errorf("%w: transaction %d has negative amount %s", analytics.ErrIntegrity, t.ID, t.Amount)
		}
	}
	return nil
}

// Branch looks up a branch by id.
func (s *Store) Branch(id int64) (Branch, bool) {
	i, ok := s.branchIdx[id]
	if !ok {
		return Branch{}, false
	}
	return s.branches[i], true
}

// Customer looks up a customer by id.
func (s *Store) Customer(id int64) (Customer, bool) {
	i, ok := s.customerIdx[id]
	if !ok {
		return Customer{}, false
	}
	return s.customers[i], true
}

// CustomerOrdinal returns the load position of a customer, starting at 0.
func (s *Store) CustomerOrdinal(id int64) (int, bool) {
	i, ok := s.customerIdx[id]
	return i, ok
}

// Account looks up an account by id.
func (s *Store) Account(id int64) (Account, bool) {
	i, ok := s.accountIdx[id]
	if !ok {
		return Account{}, false
	}
	return s.accounts[i], true
}

// Transaction looks up a transaction by id.
func (s *Store) Transaction(id int64) (Transaction, bool) {
	i, ok := s.transactionIdx[id]
	if !ok {
		return Transaction{}, false
	}
	return s.transactions[i], true
}

// Branches returns all branches in insertion order.
func (s *Store) Branches() []Branch {
	return append([]Branch(nil), s.branches...)
}

// Customers returns all customers in insertion order.
func (s *Store) Customers() []Customer {
	return append([]Customer(nil), s.customers...)
}

// Accounts returns all accounts in insertion order.
func (s *Store) Accounts() []Account {
	return append([]Account(nil), s.accounts...)
}

// Transactions returns all transactions in insertion order.
func (s *Store) Transactions() []Transaction {
	return append([]Transaction(nil), s.transactions...)
}

// Duplicates returns the primary keys seen more than once, in load order.
func (s *Store) Duplicates() []Duplicate {
	return append([]Duplicate(nil), s.duplicates...)
}

// Stats returns entity counts.
func (s *Store) Stats() Stats {
	return Stats{
		Branches:     len(s.branches),
		Customers:    len(s.customers),
		Accounts:     len(s.accounts),
		Transactions: len(s.transactions),
	}
}

// Fingerprint returns a digest of the dataset contents in insertion order.
// Equal datasets produce equal fingerprints.
func (s *Store) Fingerprint() string {
	return s.fingerprint
}

func (s *Store) computeFingerprint() string {
	d := xxhash.New()
	buf := make([]byte, 0, 128)

	// Strings are length-prefixed so separators inside values cannot
	// shift bytes from one field into the next.
	field := func(b []byte, v string) []byte {
		b = strconv.AppendInt(b, int64(len(v)), 10)
		b = append(b, ':')
		b = append(b, v...)
		return append(b, '|')
	}
	date := func(t time.Time) string {
		return t.UTC().Format(time.RFC3339Nano)
	}

	for _, b := range s.branches {
		buf = append(buf[:0], 'B', '|')
		buf = strconv.AppendInt(buf, b.ID, 10)
		buf = append(buf, '|')
		buf = field(buf, b.Name)
		buf = field(buf, b.Region)
		_, _ = d.Write(buf)
	}
	for _, c := range s.customers {
		buf = append(buf[:0], 'C', '|')
		buf = strconv.AppendInt(buf, c.ID, 10)
		buf = append(buf, '|')
		buf = field(buf, c.FullName)
		buf = field(buf, date(c.RegistrationDate))
		buf = strconv.AppendInt(buf, c.BranchID, 10)
		_, _ = d.Write(buf)
	}
	for _, a := range s.accounts {
		buf = append(buf[:0], 'A', '|')
		buf = strconv.AppendInt(buf, a.ID, 10)
		buf = append(buf, '|')
		buf = field(buf, a.Type)
		buf = field(buf, date(a.OpenDate))
		buf = strconv.AppendInt(buf, a.CustomerID, 10)
		_, _ = d.Write(buf)
	}
	for _, t := range s.transactions {
		buf = append(buf[:0], 'T', '|')
		buf = strconv.AppendInt(buf, t.ID, 10)
		buf = append(buf, '|')
		buf = field(buf, date(t.Date))
		buf = field(buf, t.Amount.String())
		buf = field(buf, string(t.Channel))
		buf = strconv.AppendInt(buf, t.AccountID, 10)
		_, _ = d.Write(buf)
	}

	return strconv.FormatUint(d.Sum64(), 16)
}
