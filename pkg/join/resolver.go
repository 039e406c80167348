// Package join denormalizes the entity store into transaction facts,
// the single input of every analytical operator.
package join

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/schema"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Mode selects the join semantics.
type Mode int

const (
	// Inner keeps only transactions whose account, customer and branch resolve.
	Inner Mode = iota
	// CustomerOuter keeps every customer. Customers without accounts or
	// without transactions yield one fact with null transaction fields.
	CustomerOuter
)

func (m Mode) String() string {
	switch m {
	case Inner:
		return "inner"
	case CustomerOuter:
		return "customer_outer"
	default:
		return "unknown"
	}
}

// Fact is the denormalized transaction-customer-branch row.
// Transaction fields are zero when HasTransaction is false; account fields
// are zero when HasAccount is false. CustomerOrdinal is the customer's load
// position in the store and orders customers that tie on a measure.
type Fact struct {
	TransactionID   int64           `json:"transaction_id,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate time.Time       `json:"transaction_date"`
	Channel         schema.Channel  `json:"channel_type,omitempty"`
	AccountID       int64           `json:"account_id,omitempty"`
	CustomerID      int64           `json:"customer_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerOrdinal int             `json:"-"`
	BranchID        int64           `json:"branch_id"`
	BranchName      string          `json:"branch_name"`
	Region          string          `json:"region"`

	HasAccount     bool `json:"has_account"`
	HasTransaction bool `json:"has_transaction"`
}

// DefaultChunkSize is the number of transactions resolved per worker task.
const DefaultChunkSize = 4096

// Resolver produces facts from a store.
type Resolver struct {
	store     *schema.Store
	workers   int
	chunkSize int
	logger    *logging.Logger
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Workers bounds concurrent chunk resolution (0 or 1 = sequential)
	Workers int
	// ChunkSize is the number of transactions per task (default: DefaultChunkSize)
	ChunkSize int
	// Logger defaults to the global logger
	Logger *logging.Logger
}

// NewResolver creates a resolver over store.
func NewResolver(store *schema.Store, config ResolverConfig) *Resolver {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}
	return &Resolver{
		store:     store,
		workers:   config.Workers,
		chunkSize: config.ChunkSize,
		logger:    config.Logger.Named("join"),
	}
}

// Resolve materializes the facts for mode.
// It fails with analytics.ErrResolution when the store holds duplicate
// primary keys. An empty store yields an empty result.
func (r *Resolver) Resolve(ctx context.Context, mode Mode) ([]Fact, error) {
	start := time.Now()

	if dups := r.store.Duplicates(); len(dups) > 0 {
		names := make([]string, 0, len(dups))
		for _, d := range dups {
			names = append(names, d.String())
		}
		err := fmt.Errorf("%w: duplicate primary keys: %s", analytics.ErrResolution, strings.Join(names, ", "))
		return nil, analytics.WrapError(err, analytics.StageResolve, "")
	}

	var (
		facts []Fact
		err   error
	)
	switch mode {
	case Inner:
		facts, err = r.resolveInner(ctx)
	case CustomerOuter:
		facts, err = r.resolveOuter(ctx)
	default:
		err = fmt.Errorf("%w: unknown join mode %d", analytics.ErrResolution, int(mode))
	}
	if err != nil {
		return nil, analytics.WrapError(err, analytics.StageResolve, "")
	}

	r.logger.Debug("facts resolved",
		zap.Stringer("mode", mode),
		zap.Int("facts", len(facts)),
		zap.Duration("duration", time.Since(start)),
	)
	return facts, nil
}

func (r *Resolver) resolveInner(ctx context.Context) ([]Fact, error) {
	txns := r.store.Transactions()
	if len(txns) == 0 {
		return []Fact{}, nil
	}

	nchunks := (len(txns) + r.chunkSize - 1) / r.chunkSize
	parts := make([][]Fact, nchunks)

	g, gctx := errgroup.WithContext(ctx)
	if r.workers > 0 {
		g.SetLimit(r.workers)
	} else {
		g.SetLimit(1)
	}

	for i := 0; i < nchunks; i++ {
		lo := i * r.chunkSize
		hi := min(lo+r.chunkSize, len(txns))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			parts[i] = r.resolveChunk(txns[lo:hi])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	facts := make([]Fact, 0, len(txns))
	for _, p := range parts {
		facts = append(facts, p...)
	}
	return facts, nil
}

func (r *Resolver) resolveChunk(txns []schema.Transaction) []Fact {
	out := make([]Fact, 0, len(txns))
	for _, t := range txns {
		account, ok := r.store.Account(t.AccountID)
		if !ok {
			continue
		}
		f, ok := r.customerFact(account.CustomerID)
		if !ok {
			continue
		}
		f.withAccount(account)
		f.withTransaction(t)
		out = append(out, f)
	}
	return out
}

func (r *Resolver) resolveOuter(ctx context.Context) ([]Fact, error) {
	accountsByCustomer := make(map[int64][]schema.Account)
	for _, a := range r.store.Accounts() {
		accountsByCustomer[a.CustomerID] = append(accountsByCustomer[a.CustomerID], a)
	}
	txnsByAccount := make(map[int64][]schema.Transaction)
	for _, t := range r.store.Transactions() {
		txnsByAccount[t.AccountID] = append(txnsByAccount[t.AccountID], t)
	}

	var facts []Fact
	for _, c := range r.store.Customers() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		base, ok := r.customerFact(c.ID)
		if !ok {
			continue
		}

		accounts := accountsByCustomer[c.ID]
		if len(accounts) == 0 {
			facts = append(facts, base)
			continue
		}
		for _, a := range accounts {
			withAccount := base
			withAccount.withAccount(a)

			txns := txnsByAccount[a.ID]
			if len(txns) == 0 {
				facts = append(facts, withAccount)
				continue
			}
			for _, t := range txns {
				f := withAccount
				f.withTransaction(t)
				facts = append(facts, f)
			}
		}
	}

	if facts == nil {
		facts = []Fact{}
	}
	return facts, nil
}

func (r *Resolver) customerFact(customerID int64) (Fact, bool) {
	c, ok := r.store.Customer(customerID)
	if !ok {
		return Fact{}, false
	}
	ordinal, _ := r.store.CustomerOrdinal(customerID)
	b, ok := r.store.Branch(c.BranchID)
	if !ok {
		return Fact{}, false
	}
	return Fact{
		CustomerID:      c.ID,
		CustomerName:    c.FullName,
		CustomerOrdinal: ordinal,
		BranchID:        b.ID,
		BranchName:      b.Name,
		Region:          b.Region,
	}, true
}

func (f *Fact) withAccount(a schema.Account) {
	f.AccountID = a.ID
	f.HasAccount = true
}

func (f *Fact) withTransaction(t schema.Transaction) {
	f.TransactionID = t.ID
	f.Amount = t.Amount
	f.TransactionDate = t.Date
	f.Channel = t.Channel
	f.HasTransaction = true
}
