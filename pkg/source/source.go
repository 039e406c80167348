// Package source turns an external dataset (a JSON snapshot or a PostgreSQL
// database) into a validated schema.Store.
package source

import (
	"context"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"
	"bank-analytics/pkg/schema"

	"go.uber.org/zap"
)

// Source reads the four entity collections.
type Source interface {
	// Load returns the dataset in insertion order.
	Load(ctx context.Context) (schema.Dataset, error)

	// Name identifies the source in logs and metrics.
	Name() string
}

// Open loads src and builds a store from it, recording the load on collector.
// Load failures and integrity violations are both returned as load-stage errors.
func Open(ctx context.Context, src Source, collector metrics.Collector, opts ...schema.Option) (*schema.Store, error) {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.L().Named("source").With(zap.String("source", src.Name()))
	start := time.Now()

	ds, err := src.Load(ctx)
	if err == nil {
		var store *schema.Store
		store, err = schema.NewStore(ds, opts...)
		if err == nil {
			stats := store.Stats()
			entities := stats.Branches + stats.Customers + stats.Accounts + stats.Transactions
			collector.RecordLoad(src.Name(), entities, time.Since(start), "none")
			logger.Info("dataset loaded",
				zap.Int("entities", entities),
				zap.String("fingerprint", store.Fingerprint()),
				zap.Duration("duration", time.Since(start)),
			)
			return store, nil
		}
	}

	err = analytics.WrapError(err, analytics.StageLoad, "")
	collector.RecordLoad(src.Name(), 0, time.Since(start), analytics.ClassifyError(err))
	logger.Error("dataset load failed", zap.Error(err))
	return nil, err
}
