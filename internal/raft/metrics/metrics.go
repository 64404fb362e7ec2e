package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// samples is a mutex guarded list of durations.
type samples struct {
	mu   sync.Mutex
	data []time.Duration
}

func newSamples(capacity int) *samples {
	return &samples{data: make([]time.Duration, 0, capacity)}
}

func (s *samples) add(d time.Duration) {
	s.mu.Lock()
	s.data = append(s.data, d)
	s.mu.Unlock()
}

func (s *samples) snapshot() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.data))
	copy(out, s.data)
	return out
}

func (s *samples) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func (s *samples) reset(capacity int) {
	s.mu.Lock()
	s.data = make([]time.Duration, 0, capacity)
	s.mu.Unlock()
}

// Metrics collects the counters and latencies of one Raft peer. It satisfies server.MetricsCollector.
type Metrics struct {
	// Commit latency: time from NewCommand appending an entry to the leader observing it committed.
	commitLatencies *samples

	// RPCs served or made
	appendEntriesCount atomic.Uint64
	requestVoteCount   atomic.Uint64
	heartbeatCount     atomic.Uint64

	commandsCommitted atomic.Uint64
	startNanos        atomic.Int64

	// Elections
	electionCount     atomic.Uint64
	electionsWon      atomic.Uint64
	stepDownCount     atomic.Uint64
	electionDurations *samples
}

func NewMetrics() *Metrics {
	m := &Metrics{
		commitLatencies:   newSamples(1024),
		electionDurations: newSamples(64),
	}
	m.startNanos.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) RecordCommitLatency(latency time.Duration) {
	m.commitLatencies.add(latency)
}

func (m *Metrics) RecordCommandCommitted() {
	m.commandsCommitted.Add(1)
}

func (m *Metrics) RecordAppendEntries() {
	m.appendEntriesCount.Add(1)
}

func (m *Metrics) RecordRequestVote() {
	m.requestVoteCount.Add(1)
}

func (m *Metrics) RecordHeartbeat() {
	m.heartbeatCount.Add(1)
}

// RecordElection counts an election started by this peer.
func (m *Metrics) RecordElection() {
	m.electionCount.Add(1)
}

// RecordElectionWon records how long the candidacy lasted until a majority was reached.
func (m *Metrics) RecordElectionWon(duration time.Duration) {
	m.electionsWon.Add(1)
	m.electionDurations.add(duration)
}

func (m *Metrics) RecordStepDown() {
	m.stepDownCount.Add(1)
}

func (m *Metrics) startTime() time.Time {
	return time.Unix(0, m.startNanos.Load())
}

// LatencyStats contains percentile statistics for latencies
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min_ms"`
	Max    float64 `json:"max_ms"`
	Mean   float64 `json:"mean_ms"`
	P50    float64 `json:"p50_ms"`
	P95    float64 `json:"p95_ms"`
	P99    float64 `json:"p99_ms"`
	StdDev float64 `json:"stddev_ms"`
}

func computeStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	ms := make([]float64, len(durations))
	var sum float64
	for i, d := range durations {
		ms[i] = float64(d.Microseconds()) / 1000.0
		sum += ms[i]
	}
	mean := sum / float64(len(ms))

	var variance float64
	for _, v := range ms {
		diff := v - mean
		variance += diff * diff
	}

	return LatencyStats{
		Count:  len(ms),
		Min:    ms[0],
		Max:    ms[len(ms)-1],
		Mean:   mean,
		P50:    percentile(ms, 50),
		P95:    percentile(ms, 95),
		P99:    percentile(ms, 99),
		StdDev: math.Sqrt(variance / float64(len(ms))),
	}
}

// percentile interpolates the pth percentile of sorted.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	index := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

func (m *Metrics) CommitLatencyStats() LatencyStats {
	return computeStats(m.commitLatencies.snapshot())
}

func (m *Metrics) ElectionStats() LatencyStats {
	return computeStats(m.electionDurations.snapshot())
}

// Throughput returns committed commands per second since creation or the last Reset.
func (m *Metrics) Throughput() float64 {
	elapsed := time.Since(m.startTime()).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(m.commandsCommitted.Load()) / elapsed
}

// Report is a point in time snapshot of a peer's metrics.
type Report struct {
	PeerID    int       `json:"peer_id"`
	Duration  float64   `json:"duration_seconds"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	CommandsCommitted uint64       `json:"commands_committed"`
	ThroughputCmdSec  float64      `json:"throughput_cmd_per_sec"`
	CommitLatency     LatencyStats `json:"commit_latency"`

	AppendEntriesCount uint64 `json:"append_entries_count"`
	RequestVoteCount   uint64 `json:"request_vote_count"`
	HeartbeatCount     uint64 `json:"heartbeat_count"`

	ElectionCount uint64       `json:"election_count"`
	ElectionsWon  uint64       `json:"elections_won"`
	StepDowns     uint64       `json:"step_downs"`
	ElectionStats LatencyStats `json:"election_stats"`
}

func (m *Metrics) Report(peerID int) Report {
	start := m.startTime()
	end := time.Now()

	return Report{
		PeerID:             peerID,
		Duration:           end.Sub(start).Seconds(),
		StartTime:          start,
		EndTime:            end,
		CommandsCommitted:  m.commandsCommitted.Load(),
		ThroughputCmdSec:   m.Throughput(),
		CommitLatency:      m.CommitLatencyStats(),
		AppendEntriesCount: m.appendEntriesCount.Load(),
		RequestVoteCount:   m.requestVoteCount.Load(),
		HeartbeatCount:     m.heartbeatCount.Load(),
		ElectionCount:      m.electionCount.Load(),
		ElectionsWon:       m.electionsWon.Load(),
		StepDowns:          m.stepDownCount.Load(),
		ElectionStats:      m.ElectionStats(),
	}
}

// WriteText writes the report in a human-readable format.
func (r *Report) WriteText(w io.Writer) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("== peer %d (%.2fs) ==\n", r.PeerID, r.Duration)
	printf("commands committed: %d (%.2f cmd/sec)\n", r.CommandsCommitted, r.ThroughputCmdSec)
	if r.CommitLatency.Count > 0 {
		printf("commit latency: p50 %.3fms p95 %.3fms p99 %.3fms max %.3fms\n",
			r.CommitLatency.P50, r.CommitLatency.P95, r.CommitLatency.P99, r.CommitLatency.Max)
	}
	printf("rpcs: append_entries %d request_vote %d heartbeats %d\n",
		r.AppendEntriesCount, r.RequestVoteCount, r.HeartbeatCount)
	printf("elections: started %d won %d step_downs %d\n", r.ElectionCount, r.ElectionsWon, r.StepDowns)
	if r.ElectionStats.Count > 0 {
		printf("election duration: mean %.3fms p95 %.3fms\n", r.ElectionStats.Mean, r.ElectionStats.P95)
	}
	return err
}

// SaveJSON writes the report to filename as indented JSON.
func (r *Report) SaveJSON(filename string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Reset clears all collected metrics and restarts the throughput clock.
func (m *Metrics) Reset() {
	m.commitLatencies.reset(1024)
	m.electionDurations.reset(64)

	m.appendEntriesCount.Store(0)
	m.requestVoteCount.Store(0)
	m.heartbeatCount.Store(0)
	m.commandsCommitted.Store(0)
	m.electionCount.Store(0)
	m.electionsWon.Store(0)
	m.stepDownCount.Store(0)
	m.startNanos.Store(time.Now().UnixNano())
}
