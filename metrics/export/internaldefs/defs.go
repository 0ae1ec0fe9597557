package internaldefs

import (
	goStepUp "github.com/MrEthical07/goStepUp"
)

// CounterDef names one engine counter for every exporter.
type CounterDef struct {
	ID   goStepUp.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for every exporter.
type HistogramDef struct {
	ID   goStepUp.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported by every exporter alongside the engine counters.
const AuditDroppedName = "stepup_audit_dropped_total"

const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: goStepUp.MetricChallengeSent, Name: "stepup_challenge_sent_total", Help: "Challenges generated and delivered."},
	{ID: goStepUp.MetricChallengeSendFailed, Name: "stepup_challenge_send_failed_total", Help: "Challenges whose delivery failed."},
	{ID: goStepUp.MetricResponseVerified, Name: "stepup_response_verified_total", Help: "Responses that matched the pending challenge."},
	{ID: goStepUp.MetricResponseMismatch, Name: "stepup_response_mismatch_total", Help: "Responses that did not match."},
	{ID: goStepUp.MetricAttemptLimitReached, Name: "stepup_attempt_limit_reached_total", Help: "Events refused by the total window table."},
	{ID: goStepUp.MetricFailureLimitReached, Name: "stepup_failure_limit_reached_total", Help: "Verifications refused by the failure window table."},
	{ID: goStepUp.MetricReplayRejected, Name: "stepup_replay_rejected_total", Help: "Signed request values seen twice."},
	{ID: goStepUp.MetricStaleRequestRejected, Name: "stepup_stale_request_rejected_total", Help: "Signed requests outside the acceptance window."},
	{ID: goStepUp.MetricRequestObjectAccepted, Name: "stepup_request_object_accepted_total", Help: "Signed requests accepted."},
	{ID: goStepUp.MetricAccountAdded, Name: "stepup_account_added_total", Help: "Accounts persisted."},
	{ID: goStepUp.MetricAccountRemoved, Name: "stepup_account_removed_total", Help: "Accounts removed by the caller."},
	{ID: goStepUp.MetricAccountUpdated, Name: "stepup_account_updated_total", Help: "Accounts updated."},
	{ID: goStepUp.MetricAccountEvicted, Name: "stepup_account_evicted_total", Help: "Accounts evicted to honour the per-key cap."},
}

var HistogramDefs = []HistogramDef{
	{ID: goStepUp.MetricVerifyLatency, Name: "stepup_verify_latency_seconds", Help: "VerifyResponse latency histogram."},
}

// HistogramBounds are the upper bounds of the engine buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundValues mirrors HistogramBounds without the +Inf bucket.
var HistogramBoundValues = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// NormalizeBuckets copies raw into the fixed layout, dropping extras.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
