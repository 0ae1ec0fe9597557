package goStepUp

import "github.com/MrEthical07/goStepUp/restrictor"

// Outcome is the result of comparing a response with the pending challenge.
type Outcome uint8

const (
	OutcomeUnknown Outcome = iota
	OutcomeVerified
	OutcomeMismatch
	// OutcomeLimitReached supersedes the comparison once a cap is reached.
	OutcomeLimitReached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeLimitReached:
		return "limit_reached"
	default:
		return "unknown"
	}
}

// Result is returned by StepUpAccount.VerifyResponse. Limit is set only for
// OutcomeLimitReached.
type Result struct {
	Outcome Outcome
	Limit   *restrictor.LimitError
}

// Verified reports whether the response matched and was admitted.
func (r Result) Verified() bool { return r.Outcome == OutcomeVerified }
