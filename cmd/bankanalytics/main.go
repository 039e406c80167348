// Command bankanalytics computes banking analytics reports from a JSON
// snapshot or a PostgreSQL database, either once (report) or behind an
// HTTP API (serve).
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"
	"bank-analytics/pkg/schema"
	"bank-analytics/pkg/source"
	"bank-analytics/pkg/source/jsonfile"
	"bank-analytics/pkg/source/postgres"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootFlags struct {
	envFile     string
	data        string
	postgresDSN string
	driver      string
	logLevel    string
}

var engineFlags struct {
	topN      int
	quantiles int
	window    int
	noPartial bool
	negatives bool
}

var rootCmd = &cobra.Command{
	Use:   "bankanalytics",
	Short: "Read-only analytics over branches, customers, accounts and transactions",
	Long: `bankanalytics ranks customers per branch, tracks monthly branch totals,
segments customers into quantiles and smooths monthly totals with a trailing
average. The dataset comes from a JSON snapshot (--data) or PostgreSQL
(--postgres-dsn).`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "Environment file loaded before reading configuration")
	pf.StringVar(&rootFlags.data, "data", "", "JSON snapshot to load")
	pf.StringVar(&rootFlags.postgresDSN, "postgres-dsn", "", "PostgreSQL DSN to load from (overrides POSTGRES_DSN)")
	pf.StringVar(&rootFlags.driver, "driver", "", "PostgreSQL driver: postgres (lib/pq) or pgx")
	pf.StringVar(&rootFlags.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	pf.IntVar(&engineFlags.topN, "top-n", 0, "Rank cutoff of top_customers (default from ANALYTICS_TOP_N or 3)")
	pf.IntVar(&engineFlags.quantiles, "quantiles", 0, "Bucket count of the segments analysis (default from ANALYTICS_QUANTILES or 4)")
	pf.IntVar(&engineFlags.window, "window", 0, "Months in the moving average (default from ANALYTICS_MOVING_WINDOW or 3)")
	pf.BoolVar(&engineFlags.noPartial, "no-partial", false, "Emit null instead of averaging over a short leading window")
	pf.BoolVar(&engineFlags.negatives, "allow-negative", false, "Accept negative transaction amounts")
}

// setup loads the env file and installs the global logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(rootFlags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", rootFlags.envFile, err)
	}
	if rootFlags.logLevel != "" {
		os.Setenv("LOG_LEVEL", rootFlags.logLevel)
	}
	if cmd.Name() != "serve" && os.Getenv("LOG_FORMAT") == "" && os.Getenv("LOG_DEV") == "" {
		// Keep stdout clean for report output.
		os.Setenv("LOG_DEV", "true")
		if rootFlags.logLevel == "" && os.Getenv("LOG_LEVEL") == "" {
			os.Setenv("LOG_LEVEL", "warn")
		}
	}

	logger, err := logging.NewLoggerFromEnv()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.SetGlobal(logger)
	return nil
}

// engineConfig reads ANALYTICS_* and applies the engine flags over it.
func engineConfig() (analytics.Config, error) {
	config, err := analytics.ConfigFromEnv()
	if err != nil {
		return config, err
	}
	if engineFlags.topN != 0 {
		config.TopN = engineFlags.topN
	}
	if engineFlags.quantiles != 0 {
		config.Quantiles = engineFlags.quantiles
	}
	if engineFlags.window != 0 {
		config.MovingWindow = engineFlags.window
	}
	if engineFlags.noPartial {
		config.PartialWindows = false
	}
	if engineFlags.negatives {
		config.AllowNegativeAmounts = true
	}
	return config, config.Validate()
}

// openSource picks the dataset source from flags and environment. The
// returned close function releases database connections.
func openSource(ctx context.Context) (source.Source, func(), error) {
	if rootFlags.data != "" {
		return jsonfile.New(rootFlags.data), func() {}, nil
	}

	config := postgres.ConfigFromEnv()
	if rootFlags.postgresDSN != "" {
		config.DSN = rootFlags.postgresDSN
	}
	if rootFlags.driver != "" {
		config.Driver = rootFlags.driver
	}
	if rootFlags.postgresDSN == "" && os.Getenv("POSTGRES_DSN") == "" && os.Getenv("POSTGRES_HOST") == "" {
		return nil, nil, errors.New("no dataset: pass --data <file.json> or --postgres-dsn")
	}

	pg, err := postgres.Open(ctx, config)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

// loadStore opens the configured source and builds a validated store.
func loadStore(ctx context.Context, config analytics.Config, collector metrics.Collector) (*schema.Store, error) {
	src, closeSrc, err := openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	var opts []schema.Option
	if config.AllowNegativeAmounts {
		opts = append(opts, schema.WithNegativeAmounts())
	}
	return source.Open(ctx, src, collector, opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.L().Debug("command failed", zap.Error(err))
		os.Exit(1)
	}
}
