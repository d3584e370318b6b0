package memorybank

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	remembered atomic.Int64
	recalled   atomic.Int64
	forgotten  atomic.Int64
	updated    atomic.Int64
}

func (m *Metrics) IncRemembered()    { m.remembered.Add(1) }
func (m *Metrics) IncRecalled(n int) { m.recalled.Add(int64(n)) }
func (m *Metrics) IncForgotten(n int) {
	m.forgotten.Add(int64(n))
}
func (m *Metrics) IncUpdated() { m.updated.Add(1) }

// Snapshot returns the current values for reporting/logging.
type MetricsSnapshot struct {
	Remembered int64 `json:"remembered"`
	Recalled   int64 `json:"recalled"`
	Forgotten  int64 `json:"forgotten"`
	Updated    int64 `json:"updated"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Remembered: m.remembered.Load(),
		Recalled:   m.recalled.Load(),
		Forgotten:  m.forgotten.Load(),
		Updated:    m.updated.Load(),
	}
}
