package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryMetricsRecordsEntries(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	m.RecordEntry("copied", 2*time.Millisecond)
	m.RecordEntry("applied", 5*time.Millisecond)
	m.RecordEntry("copied", time.Millisecond)

	snapshot := m.GetSnapshot()
	require.Equal(t, int64(3), snapshot.Entries.Total)
	require.Equal(t, 8*time.Millisecond, snapshot.Entries.TotalTime)
	require.Equal(t, time.Millisecond, snapshot.Entries.MinTime)
	require.Equal(t, 5*time.Millisecond, snapshot.Entries.MaxTime)
	require.Equal(t, map[string]int64{"copied": 2, "applied": 1}, snapshot.Outcomes)
}

func TestInMemoryMetricsPhasesAreSorted(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	m.RecordPhase(PhaseMaterialize, time.Second)
	m.RecordPhase(PhaseIndex, time.Millisecond)
	m.RecordPhase(PhaseMaterialize, time.Second)

	require.Equal(t, []PhaseTiming{
		{Phase: PhaseIndex, Duration: time.Millisecond},
		{Phase: PhaseMaterialize, Duration: 2 * time.Second},
	}, m.GetSnapshot().Phases)
}

func TestInMemoryMetricsConcurrentRecording(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.RecordEntry("copied", time.Duration(i+1)*time.Microsecond)
		}(i)
	}
	wg.Wait()

	snapshot := m.GetSnapshot()
	require.Equal(t, int64(50), snapshot.Entries.Total)
	require.Equal(t, time.Microsecond, snapshot.Entries.MinTime)
	require.Equal(t, 50*time.Microsecond, snapshot.Entries.MaxTime)
}

func TestInMemoryMetricsReset(t *testing.T) {
	t.Parallel()

	m := NewInMemoryMetrics()
	m.RecordEntry("failed", time.Second)
	m.RecordPhase(PhaseRegenerate, time.Second)
	m.Reset()

	snapshot := m.GetSnapshot()
	require.Zero(t, snapshot.Entries.Total)
	require.Zero(t, snapshot.Entries.MinTime)
	require.Empty(t, snapshot.Outcomes)
	require.Empty(t, snapshot.Phases)
}

func TestNoOpMetrics(t *testing.T) {
	t.Parallel()

	var m Metrics = &NoOpMetrics{}
	m.RecordEntry("copied", time.Second)
	require.Zero(t, m.GetSnapshot().Entries.Total)
}
