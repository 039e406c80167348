package prometheus

import (
	"strconv"
	"time"

	"bank-analytics/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements metrics.Collector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Engine
	loads           *prometheus.CounterVec
	loadLatency     *prometheus.HistogramVec
	datasetEntities *prometheus.GaugeVec
	resolves        *prometheus.CounterVec
	resolvedFacts   *prometheus.GaugeVec
	resolveLatency  *prometheus.HistogramVec
	analysisRuns    *prometheus.CounterVec
	analysisRows    *prometheus.GaugeVec
	analysisLatency *prometheus.HistogramVec

	// Report cache
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheSets    *prometheus.CounterVec
	cacheErrors  *prometheus.CounterVec
	getLatency   *prometheus.HistogramVec
	setLatency   *prometheus.HistogramVec
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Chain-level
	chainHits    *prometheus.CounterVec
	chainMisses  *prometheus.CounterVec
	chainLatency *prometheus.HistogramVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latency := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &PrometheusCollector{
		namespace: namespace,
		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dataset_loads_total",
				Help:      "Total number of dataset loads per source and outcome",
			},
			[]string{"source", "error"},
		),
		loadLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dataset_load_duration_seconds",
				Help:      "Dataset load latency",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"source"},
		),
		datasetEntities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dataset_entities",
				Help:      "Number of entities in the last loaded dataset",
			},
			[]string{"source"},
		),
		resolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "join_resolves_total",
				Help:      "Total number of join resolutions per mode",
			},
			[]string{"mode"},
		),
		resolvedFacts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "join_facts",
				Help:      "Number of facts produced by the last resolution per mode",
			},
			[]string{"mode"},
		),
		resolveLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "join_resolve_duration_seconds",
				Help:      "Join resolution latency",
				Buckets:   latency,
			},
			[]string{"mode"},
		),
		analysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_runs_total",
				Help:      "Total number of analysis runs per analysis and error type",
			},
			[]string{"analysis", "error"},
		),
		analysisRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "analysis_rows",
				Help:      "Number of rows produced by the last successful run",
			},
			[]string{"analysis"},
		),
		analysisLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis computation latency",
				Buckets:   latency,
			},
			[]string{"analysis"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of report cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of report cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheSets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_sets_total",
				Help:      "Total number of report cache set operations per layer",
			},
			[]string{"layer"},
		),
		cacheErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_errors_total",
				Help:      "Total number of report cache errors per layer and operation",
			},
			[]string{"layer", "operation"},
		),
		getLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_get_duration_seconds",
				Help:      "Report cache get latency",
				Buckets:   latency,
			},
			[]string{"layer"},
		),
		setLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_set_duration_seconds",
				Help:      "Report cache set latency",
				Buckets:   latency,
			},
			[]string{"layer"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per layer",
			},
			[]string{"layer"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state per layer (0=closed, 1=open, 2=half-open)",
			},
			[]string{"layer"},
		),
		chainHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_hits_total",
				Help:      "Total number of chain-level cache hits",
			},
			[]string{"layer_index"},
		),
		chainMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chain_misses_total",
				Help:      "Total number of chain-level cache misses",
			},
			[]string{},
		),
		chainLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chain_get_duration_seconds",
				Help:      "Chain get operation total latency",
				Buckets:   latency,
			},
			[]string{"hit"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests per route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency per route",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pc.loads,
		pc.loadLatency,
		pc.datasetEntities,
		pc.resolves,
		pc.resolvedFacts,
		pc.resolveLatency,
		pc.analysisRuns,
		pc.analysisRows,
		pc.analysisLatency,
		pc.cacheHits,
		pc.cacheMisses,
		pc.cacheSets,
		pc.cacheErrors,
		pc.getLatency,
		pc.setLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.chainHits,
		pc.chainMisses,
		pc.chainLatency,
		pc.httpRequests,
		pc.httpLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordLoad records a dataset load.
func (pc *PrometheusCollector) RecordLoad(source string, entities int, duration time.Duration, errType string) {
	pc.loads.WithLabelValues(source, errType).Inc()
	pc.loadLatency.WithLabelValues(source).Observe(duration.Seconds())
	if errType == "none" {
		pc.datasetEntities.WithLabelValues(source).Set(float64(entities))
	}
}

// RecordResolve records a join resolution.
func (pc *PrometheusCollector) RecordResolve(mode string, facts int, duration time.Duration) {
	pc.resolves.WithLabelValues(mode).Inc()
	pc.resolvedFacts.WithLabelValues(mode).Set(float64(facts))
	pc.resolveLatency.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordAnalysis records an analysis run.
func (pc *PrometheusCollector) RecordAnalysis(analysis string, rows int, duration time.Duration, errType string) {
	pc.analysisRuns.WithLabelValues(analysis, errType).Inc()
	if errType == "none" {
		pc.analysisRows.WithLabelValues(analysis).Set(float64(rows))
		pc.analysisLatency.WithLabelValues(analysis).Observe(duration.Seconds())
	}
}

// RecordCacheGet records a cache get operation.
func (pc *PrometheusCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	if hit {
		pc.cacheHits.WithLabelValues(layer).Inc()
	} else {
		pc.cacheMisses.WithLabelValues(layer).Inc()
	}
	pc.getLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordCacheSet records a cache set operation.
func (pc *PrometheusCollector) RecordCacheSet(layer string, success bool, duration time.Duration) {
	pc.cacheSets.WithLabelValues(layer).Inc()
	if !success {
		pc.cacheErrors.WithLabelValues(layer, "set").Inc()
	}
	pc.setLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(layer string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(layer).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(layer).Inc()
	}
}

// RecordChainGet records a chain-level get operation.
func (pc *PrometheusCollector) RecordChainGet(hit bool, layerIndex int, totalDuration time.Duration) {
	hitLabel := "false"
	if hit {
		pc.chainHits.WithLabelValues(strconv.Itoa(layerIndex)).Inc()
		hitLabel = "true"
	} else {
		pc.chainMisses.WithLabelValues().Inc()
	}
	pc.chainLatency.WithLabelValues(hitLabel).Observe(totalDuration.Seconds())
}

// RecordHTTPRequest records a served HTTP request. route is the route
// template, not the raw path, to keep label cardinality bounded.
func (pc *PrometheusCollector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	pc.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	pc.httpLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}
