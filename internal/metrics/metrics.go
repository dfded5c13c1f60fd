// Package metrics implements run metrics collection for the summary footer.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Phase names a timed stage of a run.
type Phase string

const (
	PhaseIndex       Phase = "index"
	PhaseMaterialize Phase = "materialize"
	PhaseRegenerate  Phase = "regenerate"
)

// Metrics collects per-entry and per-phase measurements.
type Metrics interface {
	// RecordEntry records one processed archive entry with its outcome
	// (copied, applied, offset, partial, failed, ...) and duration.
	RecordEntry(outcome string, duration time.Duration)
	// RecordPhase records the wall time of one phase.
	RecordPhase(phase Phase, duration time.Duration)
	// GetSnapshot returns the current metrics snapshot.
	GetSnapshot() Snapshot
	// Reset clears all metrics (useful for testing).
	Reset()
}

// Snapshot contains a point-in-time view of collected metrics.
type Snapshot struct {
	Entries  EntryMetrics
	Outcomes map[string]int64 // outcome -> count
	Phases   []PhaseTiming
}

// EntryMetrics tracks per-entry processing statistics.
type EntryMetrics struct {
	Total     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// PhaseTiming is the accumulated duration of a phase.
type PhaseTiming struct {
	Phase    Phase
	Duration time.Duration
}

// NoOpMetrics is a metrics collector that discards all metrics.
type NoOpMetrics struct{}

func (n *NoOpMetrics) RecordEntry(_ string, _ time.Duration) {}
func (n *NoOpMetrics) RecordPhase(_ Phase, _ time.Duration)  {}
func (n *NoOpMetrics) GetSnapshot() Snapshot                 { return Snapshot{} }
func (n *NoOpMetrics) Reset()                                {}

// InMemoryMetrics is a thread-safe in-memory metrics collector.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	entries  EntryMetrics
	outcomes map[string]int64
	phases   map[Phase]time.Duration

	// nanoseconds
	minTime atomic.Int64
	maxTime atomic.Int64
}

// NewInMemoryMetrics creates a new in-memory metrics collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	m := &InMemoryMetrics{
		outcomes: make(map[string]int64),
		phases:   make(map[Phase]time.Duration),
	}
	m.minTime.Store(int64(time.Hour))
	return m
}

func (m *InMemoryMetrics) RecordEntry(outcome string, duration time.Duration) {
	m.mu.Lock()
	m.entries.Total++
	m.entries.TotalTime += duration
	m.outcomes[outcome]++
	m.mu.Unlock()

	durNanos := int64(duration)
	for {
		oldMin := m.minTime.Load()
		if durNanos >= oldMin || m.minTime.CompareAndSwap(oldMin, durNanos) {
			break
		}
	}
	for {
		oldMax := m.maxTime.Load()
		if durNanos <= oldMax || m.maxTime.CompareAndSwap(oldMax, durNanos) {
			break
		}
	}
}

func (m *InMemoryMetrics) RecordPhase(phase Phase, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[phase] += duration
}

func (m *InMemoryMetrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Snapshot{
		Entries:  m.entries,
		Outcomes: make(map[string]int64, len(m.outcomes)),
	}
	for k, v := range m.outcomes {
		snapshot.Outcomes[k] = v
	}
	for phase, d := range m.phases {
		snapshot.Phases = append(snapshot.Phases, PhaseTiming{Phase: phase, Duration: d})
	}
	sort.Slice(snapshot.Phases, func(i, j int) bool { return snapshot.Phases[i].Phase < snapshot.Phases[j].Phase })

	if snapshot.Entries.Total > 0 {
		snapshot.Entries.MinTime = time.Duration(m.minTime.Load())
		snapshot.Entries.MaxTime = time.Duration(m.maxTime.Load())
	}
	return snapshot
}

func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = EntryMetrics{}
	m.outcomes = make(map[string]int64)
	m.phases = make(map[Phase]time.Duration)
	m.minTime.Store(int64(time.Hour))
	m.maxTime.Store(0)
}
