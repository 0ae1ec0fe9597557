package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsAreNoop(t *testing.T) {
	m := New(Config{})
	m.Inc(MetricChallengeSent)
	m.Observe(MetricVerifyLatency, time.Millisecond)

	if m.Value(MetricChallengeSent) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricChallengeSent)
	if nilMetrics.Enabled() {
		t.Fatal("nil metrics must report disabled")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricResponseMismatch)
			}
		}()
	}
	wg.Wait()

	if got := m.Snapshot().Counters[MetricResponseMismatch]; got != 16000 {
		t.Fatalf("expected 16000, got %d", got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatency: true})
	for _, d := range []time.Duration{time.Millisecond, 7 * time.Millisecond, 30 * time.Millisecond, time.Second} {
		m.Observe(MetricVerifyLatency, d)
	}
	m.Observe(MetricChallengeSent, time.Millisecond)

	buckets := m.Snapshot().Histograms[MetricVerifyLatency]
	want := []uint64{1, 1, 0, 1, 0, 0, 0, 1}
	for i := range want {
		if buckets[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d", i, want[i], buckets[i])
		}
	}
	if _, ok := m.Snapshot().Histograms[MetricChallengeSent]; ok {
		t.Fatal("only verify latency is a histogram")
	}
}
