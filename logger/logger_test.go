package logger

import (
	"sync/atomic"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestPollerCounters(t *testing.T) {
	s0, f0, r0 := PollerCounters()
	IncrementFetchSuccess()
	IncrementFetchFailure()
	IncrementCookieRefresh()
	s1, f1, r1 := PollerCounters()
	if s1 != s0+1 || f1 != f0+1 || r1 != r0+1 {
		t.Fatalf("counters did not advance: %d/%d/%d -> %d/%d/%d", s0, f0, r0, s1, f1, r1)
	}
}

func channelCounts(name string) (messages, bytes int64) {
	v, ok := channels.Load(name)
	if !ok {
		return 0, 0
	}
	cs := v.(*channelStat)
	return atomic.LoadInt64(&cs.messages), atomic.LoadInt64(&cs.bytes)
}

// One successful cycle touches the channel counters exactly once, from the
// channel send path; the fetch-success counter must not add a second count.
func TestFetchSuccessDoesNotCountChannel(t *testing.T) {
	m0, b0 := channelCounts("oi_raw")
	RecordChannelMessage("oi_raw", 10)
	IncrementFetchSuccess()
	m1, b1 := channelCounts("oi_raw")
	if m1-m0 != 1 {
		t.Fatalf("one cycle counted as %d oi_raw messages", m1-m0)
	}
	if b1-b0 != 10 {
		t.Fatalf("one 10-byte cycle counted as %d oi_raw bytes", b1-b0)
	}
}
