package backend

import (
	"strings"
	"testing"
	"time"
)

func TestLLMStats_Percentiles(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	for _, ms := range []int{300, 100, 500, 200, 400} {
		stats.Record(time.Duration(ms)*time.Millisecond, "hello", false)
	}

	snap := stats.Snapshot()
	tests := []struct {
		name      string
		got, want float64
	}{
		{"count", float64(snap.Count), 5},
		{"min", float64(snap.MinMs), 100},
		{"max", float64(snap.MaxMs), 500},
		{"avg", snap.AvgMs, 300},
		{"p50", snap.P50Ms, 300},
		{"p95", snap.P95Ms, 480},
		{"p99", snap.P99Ms, 496},
		{"chars", float64(snap.Chars), 25},
		{"chars/sec", snap.CharsPerSec, 25.0 / 1.5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}
}

func TestLLMStats_Window(t *testing.T) {
	stats := NewLLMStats(10 * time.Millisecond)
	stats.Record(100*time.Millisecond, "old", false)
	time.Sleep(25 * time.Millisecond)

	if snap := stats.Snapshot(); snap.Count != 0 {
		t.Fatalf("expected expired call to be dropped, got count=%d", snap.Count)
	}

	stats.Record(200*time.Millisecond, "new", false)
	snap := stats.Snapshot()
	if snap.Count != 1 || snap.MinMs != 200 || snap.MaxMs != 200 {
		t.Errorf("expected one 200ms call, got %+v", snap)
	}
}

func TestLLMStats_FailuresExcludedFromLatency(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	stats.Record(100*time.Millisecond, "ok", false)
	stats.Record(9*time.Second, strings.Repeat("x", 4000), true)
	stats.Record(300*time.Millisecond, "ok", false)

	snap := stats.Snapshot()
	if snap.Count != 2 || snap.Failed != 1 {
		t.Fatalf("expected count=2 failed=1, got %+v", snap)
	}
	if snap.MaxMs != 300 || snap.Chars != 4 {
		t.Errorf("expected failed call excluded, got max=%d chars=%d", snap.MaxMs, snap.Chars)
	}
}

func TestLLMStats_Empty(t *testing.T) {
	stats := NewLLMStats(0)
	stats.Record(-time.Second, "é", true)

	snap := stats.Snapshot()
	if snap.Count != 0 || snap.Failed != 1 || snap.CharsPerSec != 0 {
		t.Errorf("expected only a failure, got %+v", snap)
	}
}
