package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	assert.NotNil(t, m.commitLatencies)
	assert.NotNil(t, m.electionDurations)
	assert.False(t, m.startTime().IsZero())
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordAppendEntries()
	m.RecordAppendEntries()
	m.RecordRequestVote()
	m.RecordHeartbeat()
	m.RecordCommandCommitted()
	m.RecordElection()
	m.RecordElection()
	m.RecordStepDown()

	assert.Equal(t, uint64(2), m.appendEntriesCount.Load())
	assert.Equal(t, uint64(1), m.requestVoteCount.Load())
	assert.Equal(t, uint64(1), m.heartbeatCount.Load())
	assert.Equal(t, uint64(1), m.commandsCommitted.Load())
	assert.Equal(t, uint64(2), m.electionCount.Load())
	assert.Equal(t, uint64(1), m.stepDownCount.Load())
}

func TestMetrics_RecordElectionWon(t *testing.T) {
	m := NewMetrics()

	m.RecordElectionWon(200 * time.Millisecond)
	m.RecordElectionWon(150 * time.Millisecond)

	assert.Equal(t, uint64(2), m.electionsWon.Load())
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 150 * time.Millisecond}, m.electionDurations.snapshot())
}

func TestMetrics_Throughput(t *testing.T) {
	m := NewMetrics()

	t.Run("returns 0 for no commands", func(t *testing.T) {
		assert.Equal(t, 0.0, m.Throughput())
	})

	t.Run("calculates throughput", func(t *testing.T) {
		m.startNanos.Store(time.Now().Add(-1 * time.Second).UnixNano())

		m.RecordCommandCommitted()
		m.RecordCommandCommitted()

		throughput := m.Throughput()
		assert.Greater(t, throughput, 0.0)
		assert.LessOrEqual(t, throughput, 3.0)
	})
}

func TestMetrics_CommitLatencyStats(t *testing.T) {
	t.Run("returns empty stats for no latencies", func(t *testing.T) {
		assert.Equal(t, LatencyStats{}, NewMetrics().CommitLatencyStats())
	})

	t.Run("calculates statistics", func(t *testing.T) {
		m := NewMetrics()
		m.RecordCommitLatency(300 * time.Millisecond)
		m.RecordCommitLatency(100 * time.Millisecond)
		m.RecordCommitLatency(200 * time.Millisecond)

		stats := m.CommitLatencyStats()
		assert.Equal(t, 3, stats.Count)
		assert.InDelta(t, 200.0, stats.Mean, 1.0)
		assert.InDelta(t, 200.0, stats.P50, 1.0)
		assert.InDelta(t, 100.0, stats.Min, 1.0)
		assert.InDelta(t, 300.0, stats.Max, 1.0)
		assert.Greater(t, stats.StdDev, 0.0)
	})

	t.Run("calculates percentiles", func(t *testing.T) {
		m := NewMetrics()
		for i := 1; i <= 100; i++ {
			m.RecordCommitLatency(time.Duration(i) * time.Millisecond)
		}

		stats := m.CommitLatencyStats()
		assert.InDelta(t, 50.0, stats.P50, 5.0)
		assert.InDelta(t, 95.0, stats.P95, 5.0)
		assert.InDelta(t, 99.0, stats.P99, 5.0)
	})
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 50))
	assert.Equal(t, 7.0, percentile([]float64{7}, 99))
	assert.InDelta(t, 1.5, percentile([]float64{1, 2}, 50), 0.001)
}

func TestMetrics_Report(t *testing.T) {
	m := NewMetrics()
	m.RecordCommitLatency(100 * time.Millisecond)
	m.RecordCommitLatency(200 * time.Millisecond)
	m.RecordCommandCommitted()
	m.RecordAppendEntries()
	m.RecordRequestVote()
	m.RecordElection()
	m.RecordElectionWon(50 * time.Millisecond)

	report := m.Report(2)

	assert.Equal(t, 2, report.PeerID)
	assert.Equal(t, uint64(1), report.CommandsCommitted)
	assert.Equal(t, uint64(1), report.AppendEntriesCount)
	assert.Equal(t, uint64(1), report.RequestVoteCount)
	assert.Equal(t, uint64(1), report.ElectionCount)
	assert.Equal(t, uint64(1), report.ElectionsWon)
	assert.Equal(t, 2, report.CommitLatency.Count)
	assert.Equal(t, 1, report.ElectionStats.Count)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.WriteText(&buf))
		assert.Contains(t, buf.String(), "== peer 2")
		assert.Contains(t, buf.String(), "elections: started 1 won 1")
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		require.NoError(t, report.SaveJSON(path))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.EqualValues(t, 2, decoded["peer_id"])
		assert.EqualValues(t, 1, decoded["commands_committed"])
	})
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetrics()
	m.RecordCommitLatency(100 * time.Millisecond)
	m.RecordCommandCommitted()
	m.RecordAppendEntries()
	m.RecordRequestVote()
	m.RecordElection()
	m.RecordElectionWon(200 * time.Millisecond)
	m.RecordStepDown()

	m.Reset()

	assert.Equal(t, uint64(0), m.commandsCommitted.Load())
	assert.Equal(t, uint64(0), m.appendEntriesCount.Load())
	assert.Equal(t, uint64(0), m.requestVoteCount.Load())
	assert.Equal(t, uint64(0), m.electionCount.Load())
	assert.Equal(t, uint64(0), m.electionsWon.Load())
	assert.Equal(t, uint64(0), m.stepDownCount.Load())
	assert.Equal(t, 0, m.commitLatencies.len())
	assert.Equal(t, 0, m.electionDurations.len())
}

func TestMetrics_Concurrency(t *testing.T) {
	m := NewMetrics()
	iterations := 500

	var wg sync.WaitGroup
	for i := 0; i < iterations; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			m.RecordCommitLatency(time.Millisecond)
			m.RecordCommandCommitted()
		}()
		go func() {
			defer wg.Done()
			m.RecordAppendEntries()
			m.RecordRequestVote()
		}()
		go func() {
			defer wg.Done()
			_ = m.Report(0)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(iterations), m.commandsCommitted.Load())
	assert.Equal(t, uint64(iterations), m.appendEntriesCount.Load())
	assert.Equal(t, iterations, m.commitLatencies.len())
}
