package metrics

import (
	"time"
)

// Collector receives measurements from the analytics engine and the report
// cache. Implementations export them to a backend (Prometheus, tests).
type Collector interface {
	// Dataset loading and join resolution
	RecordLoad(source string, entities int, duration time.Duration, errType string)
	RecordResolve(mode string, facts int, duration time.Duration)

	// Analysis runs. errType is "none" on success.
	RecordAnalysis(analysis string, rows int, duration time.Duration, errType string)

	// Report cache layers
	RecordCacheGet(layer string, hit bool, duration time.Duration)
	RecordCacheSet(layer string, success bool, duration time.Duration)
	RecordCircuitState(layer string, state CircuitState)

	// Chain-level lookups. layerIndex is -1 on a full miss.
	RecordChainGet(hit bool, layerIndex int, duration time.Duration)
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards every measurement.
type NoOpCollector struct{}

func (NoOpCollector) RecordLoad(string, int, time.Duration, string) {}
func (NoOpCollector) RecordResolve(string, int, time.Duration) {}
func (NoOpCollector) RecordAnalysis(string, int, time.Duration, string) {}
func (NoOpCollector) RecordCacheGet(string, bool, time.Duration) {}
func (NoOpCollector) RecordCacheSet(string, bool, time.Duration) {}
func (NoOpCollector) RecordCircuitState(string, CircuitState) {}
func (NoOpCollector) RecordChainGet(bool, int, time.Duration) {}
