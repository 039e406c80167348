package metrics

import "time"

// Multi fans every measurement out to each collector in order.
type Multi []Collector

var _ Collector = Multi(nil)

func (m Multi) RecordLoad(source string, entities int, duration time.Duration, errType string) {
	for _, c := range m {
		c.RecordLoad(source, entities, duration, errType)
	}
}

func (m Multi) RecordResolve(mode string, facts int, duration time.Duration) {
	for _, c := range m {
		c.RecordResolve(mode, facts, duration)
	}
}

func (m Multi) RecordAnalysis(analysis string, rows int, duration time.Duration, errType string) {
	for _, c := range m {
		c.RecordAnalysis(analysis, rows, duration, errType)
	}
}

func (m Multi) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	for _, c := range m {
		c.RecordCacheGet(layer, hit, duration)
	}
}

func (m Multi) RecordCacheSet(layer string, success bool, duration time.Duration) {
	for _, c := range m {
		c.RecordCacheSet(layer, success, duration)
	}
}

func (m Multi) RecordCircuitState(layer string, state CircuitState) {
	for _, c := range m {
		c.RecordCircuitState(layer, state)
	}
}

func (m Multi) RecordChainGet(hit bool, layerIndex int, duration time.Duration) {
	for _, c := range m {
		c.RecordChainGet(hit, layerIndex, duration)
	}
}
