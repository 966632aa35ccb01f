package backend

import (
	"slices"
	"sync"
	"time"
	"unicode/utf8"
)

type call struct {
	at      time.Time
	latency time.Duration
	chars   int
	failed  bool
}

// StatsSnapshot aggregates the backend calls inside the window. Latency and
// throughput figures cover successful calls only.
type StatsSnapshot struct {
	Count       int     `json:"count"`
	Failed      int     `json:"failed"`
	Chars       int     `json:"chars"`
	CharsPerSec float64 `json:"chars_per_sec"`
	MinMs       int64   `json:"min_ms"`
	MaxMs       int64   `json:"max_ms"`
	AvgMs       float64 `json:"avg_ms"`
	P50Ms       float64 `json:"p50_ms"`
	P95Ms       float64 `json:"p95_ms"`
	P99Ms       float64 `json:"p99_ms"`
}

// LLMStats keeps a rolling window of translation calls.
type LLMStats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
}

func NewLLMStats(window time.Duration) *LLMStats {
	if window <= 0 {
		window = time.Hour
	}
	return &LLMStats{window: window}
}

// Record adds one call that sent text to the backend.
func (s *LLMStats) Record(latency time.Duration, text string, failed bool) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(now)
	s.calls = append(s.calls, call{
		at:      now,
		latency: max(latency, 0),
		chars:   utf8.RuneCountInString(text),
		failed:  failed,
	})
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expire(time.Now())

	var (
		snap  StatsSnapshot
		ms    []int64
		total time.Duration
	)
	for _, c := range s.calls {
		if c.failed {
			snap.Failed++
			continue
		}
		ms = append(ms, c.latency.Milliseconds())
		total += c.latency
		snap.Chars += c.chars
	}
	if len(ms) == 0 {
		return snap
	}
	slices.Sort(ms)

	snap.Count = len(ms)
	snap.MinMs = ms[0]
	snap.MaxMs = ms[len(ms)-1]
	snap.AvgMs = float64(total.Milliseconds()) / float64(len(ms))
	snap.P50Ms = quantile(ms, 0.50)
	snap.P95Ms = quantile(ms, 0.95)
	snap.P99Ms = quantile(ms, 0.99)
	if total > 0 {
		snap.CharsPerSec = float64(snap.Chars) / total.Seconds()
	}
	return snap
}

// expire drops calls older than the window. Calls are appended in time
// order, so the expired ones form a prefix.
func (s *LLMStats) expire(now time.Time) {
	cutoff := now.Add(-s.window)
	i, _ := slices.BinarySearchFunc(s.calls, cutoff, func(c call, t time.Time) int {
		return c.at.Compare(t)
	})
	s.calls = slices.Delete(s.calls, 0, i)
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []int64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo >= len(sorted)-1 {
		return float64(sorted[len(sorted)-1])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
