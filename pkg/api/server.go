// Package api serves assembled reports over HTTP. Report payloads are
// cached in the tiered report cache under the dataset fingerprint, so a
// reload with different data never serves a stale report.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/chain"
	"bank-analytics/pkg/logging"
	metricsmem "bank-analytics/pkg/metrics/memory"
	"bank-analytics/pkg/report"
	"bank-analytics/pkg/writer"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// Reporter computes reports. *report.Assembler implements it.
type Reporter interface {
	Run(ctx context.Context, analysis report.Analysis) (*report.Result, error)
	All(ctx context.Context) (*report.Report, error)
	Fingerprint() string
}

// RequestRecorder records served requests. The prometheus collector
// implements it.
type RequestRecorder interface {
	RecordHTTPRequest(route, method string, status int, duration time.Duration)
}

// Server provides the report endpoints.
type Server struct {
	reporter Reporter
	cache    *chain.Chain
	config   ServerConfig
	logger   *logging.Logger
	server   *http.Server
	started  time.Time

	recorder RequestRecorder
	gatherer prometheus.Gatherer
	snapshot func() metricsmem.Snapshot
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	// ReadTimeout for HTTP requests
	ReadTimeout time.Duration

	// WriteTimeout for HTTP responses
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections
	IdleTimeout time.Duration

	// RequestTimeout bounds the computation of one report
	RequestTimeout time.Duration

	// ReportTTL is the base TTL of cached report payloads
	ReportTTL time.Duration

	// AllowedOrigins is the CORS origin allow-list ("*" allows any)
	AllowedOrigins []string
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:        ":8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 20 * time.Second,
		ReportTTL:      time.Hour,
		AllowedOrigins: []string{"*"},
	}
}

// ServerConfigFromEnv applies PORT and CORS_ALLOWED_ORIGINS (comma separated)
// to DefaultServerConfig.
func ServerConfigFromEnv() ServerConfig {
	config := DefaultServerConfig()
	if port := os.Getenv("PORT"); port != "" {
		config.Address = ":" + strings.TrimPrefix(port, ":")
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowedOrigins = append(config.AllowedOrigins, o)
			}
		}
	}
	return config
}

// Option configures a Server.
type Option func(*Server)

// WithCache serves report payloads through c.
func WithCache(c *chain.Chain) Option {
	return func(s *Server) { s.cache = c }
}

// WithRequestRecorder records every request on r.
func WithRequestRecorder(r RequestRecorder) Option {
	return func(s *Server) { s.recorder = r }
}

// WithGatherer sets the registry exposed on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMemoryMetrics exposes c on /metrics/json.
func WithMemoryMetrics(c *metricsmem.MemoryCollector) Option {
	return func(s *Server) { s.snapshot = c.Snapshot }
}

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new API server.
func NewServer(reporter Reporter, config ServerConfig, opts ...Option) *Server {
	s := &Server{
		reporter: reporter,
		config:   config,
		logger:   logging.L(),
		gatherer: prometheus.DefaultGatherer,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("api")

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler with CORS and middleware applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.metricsMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/reports", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/reports/cache", s.handleInvalidate).Methods(http.MethodDelete)
	r.HandleFunc("/reports/{analysis}", s.handleAnalysis).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Cache", "X-Dataset-Fingerprint"},
	})
	return c.Handler(r)
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("listening", zap.String("address", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"fingerprint": s.reporter.Fingerprint(),
		"timestamp":   time.Now().Unix(),
	})
}

type layerStatus struct {
	Name    string                  `json:"name"`
	Circuit string                  `json:"circuit"`
	Writer  writer.AsyncWriterStats `json:"writer"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "running",
		"fingerprint": s.reporter.Fingerprint(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"analyses":    report.Analyses,
	}
	if s.cache != nil {
		stats := s.cache.WriterStats()
		layers := make([]layerStatus, 0, s.cache.Len())
		for i, l := range s.cache.Layers() {
			layers = append(layers, layerStatus{Name: l.Name(), Circuit: l.State().String(), Writer: stats[i]})
		}
		response["cache"] = layers
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, "", func(ctx context.Context) (interface{}, error) {
		return s.reporter.All(ctx)
	})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := report.ParseAnalysis(mux.Vars(r)["analysis"])
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}
	s.serveCached(w, r, string(analysis), func(ctx context.Context) (interface{}, error) {
		return s.reporter.Run(ctx, analysis)
	})
}

// serveCached writes the payload cached under (fingerprint, name), computing
// and caching it on a miss. Without a cache every request computes.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, name string, compute func(context.Context) (interface{}, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	fingerprint := s.reporter.Fingerprint()
	load := func(ctx context.Context) ([]byte, error) {
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}

	var (
		payload []byte
		hit     bool
		err     error
	)
	if s.cache != nil {
		payload, hit, err = s.cache.GetOrLoad(ctx, cache.ReportKey(fingerprint, name), s.config.ReportTTL, load)
	} else {
		payload, err = load(ctx)
	}
	if err != nil {
		s.writeAnalyticsError(w, r, err)
		return
	}

	w.Header().Set("X-Dataset-Fingerprint", fingerprint)
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleInvalidate deletes the current dataset's report keys from every layer.
// With ?scope=all it also empties the in-process layers, dropping reports
// cached for earlier datasets.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"invalidated": 0})
		return
	}

	clearAll := r.URL.Query().Get("scope") == "all"
	if clearAll {
		if err := s.cache.Clear(r.Context()); err != nil {
			writeError(w, r, http.StatusBadGateway, err.Error())
			return
		}
	}

	fingerprint := s.reporter.Fingerprint()
	names := make([]string, 0, len(report.Analyses)+1)
	names = append(names, "")
	for _, a := range report.Analyses {
		names = append(names, string(a))
	}

	var lastErr error
	for _, name := range names {
		if err := s.cache.Delete(r.Context(), cache.ReportKey(fingerprint, name)); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		s.logger.Warn("cache invalidation incomplete", zap.Error(lastErr))
		writeError(w, r, http.StatusBadGateway, lastErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint": fingerprint,
		"invalidated": len(names),
		"cleared":     clearAll,
	})
}

func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	if s.snapshot == nil {
		writeError(w, r, http.StatusNotFound, "metrics collector does not support JSON snapshot")
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// writeAnalyticsError maps an analytics error kind to a status code.
func (s *Server) writeAnalyticsError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analytics.ErrUnknownAnalysis):
		status = http.StatusNotFound
	case errors.Is(err, analytics.ErrIntegrity),
		errors.Is(err, analytics.ErrResolution),
		errors.Is(err, analytics.ErrInvalidPartition):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("report failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}

	body := map[string]interface{}{
		"error":      err.Error(),
		"kind":       analytics.ClassifyError(err),
		"request_id": RequestID(r.Context()),
	}
	if stage, ok := analytics.StageOf(err); ok {
		body["stage"] = stage
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error":      msg,
		"request_id": RequestID(r.Context()),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
