package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"bank-analytics/pkg/api"
	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/cache/bloom"
	"bank-analytics/pkg/cache/memory"
	"bank-analytics/pkg/cache/redis"
	"bank-analytics/pkg/chain"
	"bank-analytics/pkg/logging"
	"bank-analytics/pkg/metrics"
	metricsmem "bank-analytics/pkg/metrics/memory"
	promcollector "bank-analytics/pkg/metrics/prometheus"
	"bank-analytics/pkg/report"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports over HTTP",
	Long: `Load the dataset once and serve reports over HTTP.

Endpoints:
  GET    /health
  GET    /status
  GET    /reports               every analysis
  GET    /reports/{analysis}    one analysis
  DELETE /reports/cache         drop cached reports of the loaded dataset
  GET    /metrics               Prometheus metrics
  GET    /metrics/json          in-process metrics snapshot

Reports are cached in memory and, with --redis, in Redis (REDIS_* variables).`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags struct {
	addr        string
	redis       bool
	bloomItems  uint
	memorySize  int
	reportTTL   time.Duration
	decay       float64
	shutdownTTL time.Duration
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (default from PORT or :8080)")
	f.BoolVar(&serveFlags.redis, "redis", false, "Add a Redis layer below the in-memory report cache")
	f.UintVar(&serveFlags.bloomItems, "bloom-items", 10000, "Expected keys of the Redis bloom prefilter (0 disables it)")
	f.IntVar(&serveFlags.memorySize, "memory-size", 256, "Maximum reports held in memory")
	f.DurationVar(&serveFlags.reportTTL, "report-ttl", time.Hour, "TTL of cached reports in the slowest layer")
	f.Float64Var(&serveFlags.decay, "ttl-decay", 0.5, "TTL ratio between a layer and the one below it (0 or 1 keeps TTLs uniform)")
	f.DurationVar(&serveFlags.shutdownTTL, "shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	logger := logging.L()

	config, err := engineConfig()
	if err != nil {
		return err
	}

	prom := promcollector.NewPrometheusCollector("bank_analytics")
	if err := prom.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	mem := metricsmem.NewMemoryCollector()
	collector := metrics.Multi{prom, mem}

	store, err := loadStore(ctx, config, collector)
	if err != nil {
		return err
	}
	assembler, err := report.NewAssembler(store, config, report.WithCollector(collector))
	if err != nil {
		return err
	}

	reportCache, err := buildCache(collector)
	if err != nil {
		return err
	}
	defer reportCache.Close()

	serverConfig := api.ServerConfigFromEnv()
	if serveFlags.addr != "" {
		serverConfig.Address = serveFlags.addr
	}
	serverConfig.ReportTTL = serveFlags.reportTTL

	server := api.NewServer(assembler, serverConfig,
		api.WithCache(reportCache),
		api.WithRequestRecorder(prom),
		api.WithGatherer(prometheus.DefaultGatherer),
		api.WithMemoryMetrics(mem),
	)
	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("serving reports",
		zap.String("address", serverConfig.Address),
		zap.String("fingerprint", assembler.Fingerprint()),
		zap.String("cache", reportCache.String()),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveFlags.shutdownTTL)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// buildCache assembles memory -> [bloom ->] redis. An unreachable Redis is
// logged and left out, so the API still serves from memory.
func buildCache(collector metrics.Collector) (*chain.Chain, error) {
	logger := logging.L()

	memConfig := memory.DefaultMemoryCacheConfig()
	memConfig.MaxSize = serveFlags.memorySize
	layers := []cache.Layer{memory.NewMemoryCache(memConfig)}

	if serveFlags.redis {
		redisConfig, err := redis.ConfigFromEnv()
		if err != nil {
			return nil, err
		}
		rc, err := redis.NewRedisCache(redisConfig)
		if err != nil {
			logger.Warn("redis unavailable, caching in memory only", zap.Error(err))
		} else {
			var layer cache.Layer = rc
			if serveFlags.bloomItems > 0 {
				layer = bloom.NewBloomLayer(rc, serveFlags.bloomItems, 0.01)
			}
			layers = append(layers, layer)
		}
	}

	return chain.New(layers,
		chain.WithCollector(collector),
		chain.WithTTLStrategy(chain.DecayingTTLStrategy{DecayFactor: serveFlags.decay}),
		chain.WithWarmTTL(serveFlags.reportTTL),
	)
}
