package memory

import (
	"sync"
	"time"

	"bank-analytics/pkg/metrics"
)

// MemoryCollector implements metrics.Collector in memory, for tests and the
// JSON metrics endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	analyses map[string]*AnalysisMetrics
	layers   map[string]*LayerMetrics

	loads            int64
	loadErrors       int64
	resolves         map[string]int64
	chainHits        int64
	chainMisses      int64
	chainHitsByLayer map[int]int64
}

// AnalysisMetrics holds counters for one analysis.
type AnalysisMetrics struct {
	Runs         int64
	Errors       int64
	ErrorsByType map[string]int64
	LastRows     int
	Durations    []time.Duration
}

// LayerMetrics holds counters for one cache layer.
type LayerMetrics struct {
	Hits         int64
	Misses       int64
	Sets         int64
	SetErrors    int64
	CircuitState metrics.CircuitState
	CircuitOpens int64
}

// NewMemoryCollector creates an empty collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{
		analyses:         make(map[string]*AnalysisMetrics),
		layers:           make(map[string]*LayerMetrics),
		resolves:         make(map[string]int64),
		chainHitsByLayer: make(map[int]int64),
	}
}

// analysis and layer must be called with mu held.
func (mc *MemoryCollector) analysis(name string) *AnalysisMetrics {
	am, ok := mc.analyses[name]
	if !ok {
		am = &AnalysisMetrics{ErrorsByType: make(map[string]int64)}
		mc.analyses[name] = am
	}
	return am
}

func (mc *MemoryCollector) layer(name string) *LayerMetrics {
	lm, ok := mc.layers[name]
	if !ok {
		lm = &LayerMetrics{}
		mc.layers[name] = lm
	}
	return lm
}

// RecordLoad records a dataset load.
func (mc *MemoryCollector) RecordLoad(source string, entities int, duration time.Duration, errType string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.loads++
	if errType != "none" {
		mc.loadErrors++
	}
}

// RecordResolve records a join resolution.
func (mc *MemoryCollector) RecordResolve(mode string, facts int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.resolves[mode]++
}

// RecordAnalysis records an analysis run.
func (mc *MemoryCollector) RecordAnalysis(analysis string, rows int, duration time.Duration, errType string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	am := mc.analysis(analysis)
	am.Runs++
	am.Durations = append(am.Durations, duration)
	if errType != "none" {
		am.Errors++
		am.ErrorsByType[errType]++
		return
	}
	am.LastRows = rows
}

// RecordCacheGet records a cache layer lookup.
func (mc *MemoryCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if hit {
		lm.Hits++
	} else {
		lm.Misses++
	}
}

// RecordCacheSet records a cache layer write.
func (mc *MemoryCollector) RecordCacheSet(layer string, success bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	lm.Sets++
	if !success {
		lm.SetErrors++
	}
}

// RecordCircuitState records a circuit breaker transition.
func (mc *MemoryCollector) RecordCircuitState(layer string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	lm := mc.layer(layer)
	if lm.CircuitState != metrics.CircuitOpen && state == metrics.CircuitOpen {
		lm.CircuitOpens++
	}
	lm.CircuitState = state
}

// RecordChainGet records a chain-level lookup.
func (mc *MemoryCollector) RecordChainGet(hit bool, layerIndex int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.chainHits++
		mc.chainHitsByLayer[layerIndex]++
	} else {
		mc.chainMisses++
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Loads            int64                      `json:"loads"`
	LoadErrors       int64                      `json:"load_errors"`
	Resolves         map[string]int64           `json:"resolves"`
	Analyses         map[string]AnalysisMetrics `json:"analyses"`
	Layers           map[string]LayerMetrics    `json:"layers"`
	ChainHits        int64                      `json:"chain_hits"`
	ChainMisses      int64                      `json:"chain_misses"`
	ChainHitsByLayer map[int]int64              `json:"chain_hits_by_layer"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	s := Snapshot{
		Loads:            mc.loads,
		LoadErrors:       mc.loadErrors,
		Resolves:         make(map[string]int64, len(mc.resolves)),
		Analyses:         make(map[string]AnalysisMetrics, len(mc.analyses)),
		Layers:           make(map[string]LayerMetrics, len(mc.layers)),
		ChainHits:        mc.chainHits,
		ChainMisses:      mc.chainMisses,
		ChainHitsByLayer: make(map[int]int64, len(mc.chainHitsByLayer)),
	}
	for k, v := range mc.resolves {
		s.Resolves[k] = v
	}
	for k, v := range mc.analyses {
		cp := *v
		cp.ErrorsByType = make(map[string]int64, len(v.ErrorsByType))
		for et, n := range v.ErrorsByType {
			cp.ErrorsByType[et] = n
		}
		cp.Durations = append([]time.Duration(nil), v.Durations...)
		s.Analyses[k] = cp
	}
	for k, v := range mc.layers {
		s.Layers[k] = *v
	}
	for k, v := range mc.chainHitsByLayer {
		s.ChainHitsByLayer[k] = v
	}
	return s
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.analyses = make(map[string]*AnalysisMetrics)
	mc.layers = make(map[string]*LayerMetrics)
	mc.resolves = make(map[string]int64)
	mc.loads, mc.loadErrors = 0, 0
	mc.chainHits, mc.chainMisses = 0, 0
	mc.chainHitsByLayer = make(map[int]int64)
}
