package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bank-analytics/pkg/analytics"
	"bank-analytics/pkg/cache"
	"bank-analytics/pkg/cache/memory"
	"bank-analytics/pkg/chain"
	metricsmem "bank-analytics/pkg/metrics/memory"
	promcollector "bank-analytics/pkg/metrics/prometheus"
	"bank-analytics/pkg/report"
	"bank-analytics/pkg/schema/schematest"

	"github.com/prometheus/client_golang/prometheus"
)

// countingReporter counts computations so tests can tell hits from misses.
type countingReporter struct {
	*report.Assembler
	runs int64
}

func (c *countingReporter) Run(ctx context.Context, a report.Analysis) (*report.Result, error) {
	atomic.AddInt64(&c.runs, 1)
	return c.Assembler.Run(ctx, a)
}

func (c *countingReporter) All(ctx context.Context) (*report.Report, error) {
	atomic.AddInt64(&c.runs, 1)
	return c.Assembler.All(ctx)
}

type fixture struct {
	handler   http.Handler
	reporter  *countingReporter
	chain     *chain.Chain
	collector *metricsmem.MemoryCollector
}

func setupTestServer(t *testing.T) *fixture {
	t.Helper()
	collector := metricsmem.NewMemoryCollector()

	assembler, err := report.NewAssembler(schematest.Downtown().Store(t), analytics.DefaultConfig(),
		report.WithCollector(collector))
	if err != nil {
		t.Fatal(err)
	}
	reporter := &countingReporter{Assembler: assembler}

	l1 := memory.NewMemoryCache(memory.DefaultMemoryCacheConfig())
	c, err := chain.New([]cache.Layer{l1}, chain.WithCollector(collector))
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	prom := promcollector.NewPrometheusCollector("test")
	registry := prometheus.NewRegistry()
	if err := prom.Register(registry); err != nil {
		t.Fatal(err)
	}

	server := NewServer(reporter, DefaultServerConfig(),
		WithCache(c),
		WithRequestRecorder(prom),
		WithGatherer(registry),
		WithMemoryMetrics(collector),
	)
	return &fixture{handler: server.Handler(), reporter: reporter, chain: c, collector: collector}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestServer_Health(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %v", body["status"])
	}
	if body["fingerprint"] != f.reporter.Fingerprint() {
		t.Errorf("fingerprint = %v", body["fingerprint"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestServer_Status(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "running" {
		t.Errorf("Expected status running, got %v", body["status"])
	}
	layers, _ := body["cache"].([]interface{})
	if len(layers) != 1 {
		t.Fatalf("cache layers = %v", body["cache"])
	}
	l := layers[0].(map[string]interface{})
	if l["name"] != "memory" || l["circuit"] != "closed" {
		t.Errorf("layer status = %v", l)
	}
	if _, ok := l["writer"].(map[string]interface{})["queue_depth"]; !ok {
		t.Errorf("writer stats missing: %v", l["writer"])
	}
}

func TestServer_Analysis(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodGet, "/reports/top-customers")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}

	var result struct {
		Analysis string                 `json:"analysis"`
		RowCount int                    `json:"row_count"`
		Rows     []report.TopCustomerRow `json:"rows"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Analysis != "top_customers" || result.RowCount != 5 || len(result.Rows) != 5 {
		t.Fatalf("result = %+v", result)
	}
	if r := result.Rows[0]; r.CustomerName != "Alice" || r.Rank != 1 {
		t.Errorf("first row = %+v", r)
	}

	w = f.do(t, http.MethodGet, "/reports/top_customers")
	if got := w.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}
	if runs := atomic.LoadInt64(&f.reporter.runs); runs != 1 {
		t.Errorf("analysis computed %d times, want 1", runs)
	}
}

func TestServer_FullReport(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodGet, "/reports")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body)
	}

	var rep report.Report
	if err := json.NewDecoder(w.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.Fingerprint != f.reporter.Fingerprint() {
		t.Errorf("Fingerprint = %q", rep.Fingerprint)
	}
	if rep.Stats.Transactions != 6 || len(rep.InactiveCustomers) != 2 {
		t.Errorf("report = %+v", rep)
	}
	if got := w.Header().Get("X-Dataset-Fingerprint"); got != rep.Fingerprint {
		t.Errorf("X-Dataset-Fingerprint = %q", got)
	}
}

func TestServer_UnknownAnalysis(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodGet, "/reports/forecast")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	body := decode(t, w)
	if body["kind"] != "unknown_analysis" {
		t.Errorf("kind = %v", body["kind"])
	}
	if !strings.Contains(body["error"].(string), "forecast") {
		t.Errorf("error = %v", body["error"])
	}
}

func TestServer_Invalidate(t *testing.T) {
	f := setupTestServer(t)

	f.do(t, http.MethodGet, "/reports/quartiles")
	w := f.do(t, http.MethodDelete, "/reports/cache")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if body := decode(t, w); body["invalidated"] != float64(len(report.Analyses)+1) {
		t.Errorf("invalidated = %v", body["invalidated"])
	}

	w = f.do(t, http.MethodGet, "/reports/quartiles")
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache after invalidation = %q, want MISS", got)
	}
}

func TestServer_InvalidateAll(t *testing.T) {
	f := setupTestServer(t)
	ctx := context.Background()

	stale := cache.ReportKey("0ld", "quartiles")
	if err := f.chain.Set(ctx, stale, []byte(`{}`), time.Minute); err != nil {
		t.Fatal(err)
	}

	w := f.do(t, http.MethodDelete, "/reports/cache")
	if body := decode(t, w); body["cleared"] != false {
		t.Errorf("cleared = %v, want false", body["cleared"])
	}
	if _, err := f.chain.Get(ctx, stale); err != nil {
		t.Fatalf("plain invalidation dropped another dataset's report: %v", err)
	}

	w = f.do(t, http.MethodDelete, "/reports/cache?scope=all")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if body := decode(t, w); body["cleared"] != true {
		t.Errorf("cleared = %v, want true", body["cleared"])
	}
	if _, err := f.chain.Get(ctx, stale); !cache.IsNotFound(err) {
		t.Errorf("Get(stale) error = %v, want not found", err)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := setupTestServer(t)

	w := f.do(t, http.MethodPost, "/reports")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestServer_Metrics(t *testing.T) {
	f := setupTestServer(t)

	f.do(t, http.MethodGet, "/reports/channel_mix")
	f.do(t, http.MethodGet, "/reports/channel_mix")

	w := f.do(t, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "test_http_requests_total") {
		t.Error("/metrics should expose the request counter")
	}

	want := `test_http_requests_total{method="GET",route="/reports/{analysis}",status="200"} 2`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("/metrics missing %s", want)
	}
}

func TestServer_MetricsJSON(t *testing.T) {
	f := setupTestServer(t)

	f.do(t, http.MethodGet, "/reports/running_totals")
	w := f.do(t, http.MethodGet, "/metrics/json")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var snap metricsmem.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Analyses["running_totals"].Runs != 1 {
		t.Errorf("running_totals runs = %d", snap.Analyses["running_totals"].Runs)
	}
	if snap.ChainMisses != 1 {
		t.Errorf("ChainMisses = %d", snap.ChainMisses)
	}
}

func TestServer_NoCache(t *testing.T) {
	assembler, err := report.NewAssembler(schematest.Downtown().Store(t), analytics.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	handler := NewServer(assembler, DefaultServerConfig(), WithGatherer(prometheus.NewRegistry())).Handler()

	req := httptest.NewRequest(http.MethodGet, "/reports/moving_averages", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
}

func TestServer_CORS(t *testing.T) {
	f := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestServer_RequestIDPropagated(t *testing.T) {
	f := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestServer_StartStop(t *testing.T) {
	config := DefaultServerConfig()
	config.Address = "127.0.0.1:0"

	assembler, err := report.NewAssembler(schematest.Downtown().Store(t), analytics.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	server := NewServer(assembler, config, WithGatherer(prometheus.NewRegistry()))
	if err := server.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestServerConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	config := ServerConfigFromEnv()
	if config.Address != ":9090" {
		t.Errorf("Address = %q", config.Address)
	}
	if len(config.AllowedOrigins) != 2 || config.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", config.AllowedOrigins)
	}
	if config.ReportTTL != time.Hour {
		t.Errorf("ReportTTL = %v", config.ReportTTL)
	}
}
