// Package postgres loads a dataset from the four banking tables of a
// PostgreSQL database. Both the lib/pq ("postgres") and the pgx ("pgx")
// database/sql drivers are registered; Config.Driver picks one.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/schema"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Supported driver names.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	// Driver is DriverPQ or DriverPGX (default: DriverPQ)
	Driver string

	// DSN is a libpq keyword/value string or a postgres:// URL
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ConnectTimeout bounds the initial ping (default: 5s)
	ConnectTimeout time.Duration
}

// DefaultConfig returns a local development configuration.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverPQ,
		DSN:             "host=localhost port=5432 user=postgres password=postgres dbname=bank sslmode=disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// ConfigFromEnv starts from DefaultConfig and applies POSTGRES_DRIVER and
// POSTGRES_DSN. Without POSTGRES_DSN, a DSN is assembled from POSTGRES_HOST,
// POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB when
// POSTGRES_HOST is set.
func ConfigFromEnv() Config {
	config := DefaultConfig()

	if driver := os.Getenv("POSTGRES_DRIVER"); driver != "" {
		config.Driver = driver
	}

	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		config.DSN = dsn
	} else if host := os.Getenv("POSTGRES_HOST"); host != "" {
		config.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host,
			envOr("POSTGRES_PORT", "5432"),
			envOr("POSTGRES_USER", "postgres"),
			os.Getenv("POSTGRES_PASSWORD"),
			envOr("POSTGRES_DB", "bank"),
		)
	}

	return config
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the driver name and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPQ, DriverPGX:
	default:
		return fmt.Errorf("postgres: unsupported driver %q (want %q or %q)", c.Driver, DriverPQ, DriverPGX)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("postgres: DSN is required")
	}
	return nil
}

// Source reads the dataset from PostgreSQL.
type Source struct {
	db     *sql.DB
	driver string
	logger *logging.Logger
}

// Open connects and pings the database.
func Open(ctx context.Context, config Config) (*Source, error) {
	if config.Driver == "" {
		config.Driver = DriverPQ
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Source{
		db:     db,
		driver: config.Driver,
		logger: logging.L().Named("postgres"),
	}
	s.logger.Debug("connected", zap.String("driver", config.Driver))
	return s, nil
}

// Name implements source.Source.
func (s *Source) Name() string {
	return "postgres"
}

// DB exposes the underlying pool.
func (s *Source) DB() *sql.DB {
	return s.db
}

// Close closes the pool.
func (s *Source) Close() error {
	return s.db.Close()
}

// DDL creates the four tables when they do not exist. Foreign keys mirror
// the referential integrity the store validates at load.
var DDL = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		branch_id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		region TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		customer_id BIGINT PRIMARY KEY,
		full_name TEXT NOT NULL,
		registration_date DATE NOT NULL,
		branch_id BIGINT NOT NULL REFERENCES branches(branch_id)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		account_id BIGINT PRIMARY KEY,
		account_type TEXT NOT NULL,
		open_date DATE NOT NULL,
		customer_id BIGINT NOT NULL REFERENCES customers(customer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		transaction_id BIGINT PRIMARY KEY,
		transaction_date DATE NOT NULL,
		amount NUMERIC(15,2) NOT NULL,
		channel_type TEXT NOT NULL CHECK (upper(trim(channel_type)) IN ('ONLINE', 'BRANCH')),
		account_id BIGINT NOT NULL REFERENCES accounts(account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions(transaction_date)`,
}

// InitSchema applies DDL.
func (s *Source) InitSchema(ctx context.Context) error {
	for _, query := range DDL {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("postgres: init schema: %w", err)
		}
	}
	return nil
}

const (
	selectBranches     = `SELECT branch_id, name, region FROM branches ORDER BY branch_id`
	selectCustomers    = `SELECT customer_id, full_name, registration_date, branch_id FROM customers ORDER BY customer_id`
	selectAccounts     = `SELECT account_id, account_type, open_date, customer_id FROM accounts ORDER BY account_id`
	selectTransactions = `SELECT transaction_id, transaction_date, amount, channel_type, account_id FROM transactions ORDER BY transaction_id`
)

// Load implements source.Source. Rows are read ordered by primary key inside
// one read-only repeatable-read transaction, so the four tables are a
// consistent snapshot.
func (s *Source) Load(ctx context.Context) (schema.Dataset, error) {
	start := time.Now()
	var ds schema.Dataset

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return ds, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	err = query(ctx, tx, selectBranches, func(rows *sql.Rows) error {
		var b schema.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Region); err != nil {
			return err
		}
		ds.Branches = append(ds.Branches, b)
		return nil
	})
	if err != nil {
		return ds, err
	}

	err = query(ctx, tx, selectCustomers, func(rows *sql.Rows) error {
		var c schema.Customer
		if err := rows.Scan(&c.ID, &c.FullName, &c.RegistrationDate, &c.BranchID); err != nil {
			return err
		}
		c.RegistrationDate = c.RegistrationDate.UTC()
		ds.Customers = append(ds.Customers, c)
		return nil
	})
	if err != nil {
		return ds, err
	}

	err = query(ctx, tx, selectAccounts, func(rows *sql.Rows) error {
		var a schema.Account
		if err := rows.Scan(&a.ID, &a.Type, &a.OpenDate, &a.CustomerID); err != nil {
			return err
		}
		a.OpenDate = a.OpenDate.UTC()
		ds.Accounts = append(ds.Accounts, a)
		return nil
	})
	if err != nil {
		return ds, err
	}

	err = query(ctx, tx, selectTransactions, func(rows *sql.Rows) error {
		var (
			t       schema.Transaction
			channel string
		)
		if err := rows.Scan(&t.ID, &t.Date, &t.Amount, &channel, &t.AccountID); err != nil {
			return err
		}
		t.Date = t.Date.UTC()
		c, err := schema.ParseChannel(channel)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		t.Channel = c
		ds.Transactions = append(ds.Transactions, t)
		return nil
	})
	if err != nil {
		return ds, err
	}

	if err := tx.Commit(); err != nil {
		return ds, fmt.Errorf("postgres: commit: %w", err)
	}

	s.logger.Debug("dataset read",
		zap.String("driver", s.driver),
		zap.Int("transactions", len(ds.Transactions)),
		zap.Duration("duration", time.Since(start)),
	)
	return ds, nil
}

func query(ctx context.Context, tx *sql.Tx, q string, scan func(*sql.Rows) error) error {
	rows, err := tx.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("postgres: scan: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("postgres: rows: %w", err)
	}
	return nil
}
