package pipeline

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Stats collects latency samples and counters of one session for the stats
// command. It keeps a bounded ring buffer of recent observations per stage
// and computes percentiles on demand.
//
// Safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	synthesis latencyBuffer
	playback  latencyBuffer

	spoken  int64
	failed  int64
	dropped int64
}

// NewStats creates a Stats retaining at most windowSize samples per stage.
func NewStats(windowSize int) *Stats {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Stats{
		synthesis: newLatencyBuffer(windowSize),
		playback:  newLatencyBuffer(windowSize),
	}
}

// RecordSynthesis records a successful synthesis latency sample.
func (s *Stats) RecordSynthesis(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synthesis.add(d)
}

// RecordPlayback records the duration of one completed playback and counts
// it as spoken.
func (s *Stats) RecordPlayback(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playback.add(d)
	s.spoken++
}

// IncrFailed counts a failed synthesis.
func (s *Stats) IncrFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

// IncrDropped counts an audio unit discarded without playback.
func (s *Stats) IncrDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

// LatencyPercentiles holds p50 and p95 values for one stage.
type LatencyPercentiles struct {
	P50 time.Duration
	P95 time.Duration
}

// StatsSnapshot is a point-in-time view of a session's statistics.
type StatsSnapshot struct {
	Synthesis LatencyPercentiles
	Playback  LatencyPercentiles
	Spoken    int64
	Failed    int64
	Dropped   int64
}

// Snapshot returns a point-in-time view of all statistics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Synthesis: s.synthesis.percentiles(),
		Playback:  s.playback.percentiles(),
		Spoken:    s.spoken,
		Failed:    s.failed,
		Dropped:   s.dropped,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{data: make([]time.Duration, size)}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos == len(lb.data) {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = len(lb.data)
	}
	if n == 0 {
		return LatencyPercentiles{}
	}
	sorted := slices.Clone(lb.data[:n])
	slices.Sort(sorted)
	return LatencyPercentiles{
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
	}
}

// percentile returns the nearest-rank value at p (0.0-1.0) of sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
