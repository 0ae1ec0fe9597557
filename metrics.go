package goStepUp

import (
	"time"

	internalmetrics "github.com/MrEthical07/goStepUp/internal/metrics"
)

// MetricID indexes an engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricChallengeSent         = internalmetrics.MetricChallengeSent
	MetricChallengeSendFailed   = internalmetrics.MetricChallengeSendFailed
	MetricResponseVerified      = internalmetrics.MetricResponseVerified
	MetricResponseMismatch      = internalmetrics.MetricResponseMismatch
	MetricAttemptLimitReached   = internalmetrics.MetricAttemptLimitReached
	MetricFailureLimitReached   = internalmetrics.MetricFailureLimitReached
	MetricReplayRejected        = internalmetrics.MetricReplayRejected
	MetricStaleRequestRejected  = internalmetrics.MetricStaleRequestRejected
	MetricRequestObjectAccepted = internalmetrics.MetricRequestObjectAccepted
	MetricAccountAdded          = internalmetrics.MetricAccountAdded
	MetricAccountRemoved        = internalmetrics.MetricAccountRemoved
	MetricAccountUpdated        = internalmetrics.MetricAccountUpdated
	MetricAccountEvicted        = internalmetrics.MetricAccountEvicted
	// MetricVerifyLatency is the only histogram.
	MetricVerifyLatency = internalmetrics.MetricVerifyLatency
)

// Metrics holds atomic counters and the optional verify-latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics returns a no-op instance when cfg.Enabled is false.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeVerify(d time.Duration) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(MetricVerifyLatency, d)
}
