package goStepUp

import (
	"fmt"
	"strconv"
	"time"
)

type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintWarn:
		return "warn"
	case LintHigh:
		return "high"
	default:
		return "info"
	}
}

// LintWarning flags a valid but questionable setting.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

type LintResult []LintWarning

func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that pass Validate but weaken step-up protection.
// Call Validate first; Lint assumes a valid configuration.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if !c.Restrictor.Enabled {
		add("restrictor_disabled", LintHigh, "attempt and failure restriction is disabled")
	} else {
		if len(c.Restrictor.Failures) == 0 {
			add("failure_limit_missing", LintHigh, "no failure window configured; responses can be guessed at the attempt rate")
		}
		for window, max := range c.Restrictor.Failures {
			ms, err := strconv.ParseInt(window, 10, 64)
			if err != nil {
				continue
			}
			if max > 10 && time.Duration(ms)*time.Millisecond <= time.Hour {
				add("failure_limit_high", LintWarn, "failure window %sms allows %d failures", window, max)
			}
		}
		if len(c.Restrictor.Total) == 0 {
			add("attempt_limit_missing", LintWarn, "no total window configured; challenges can be resent without bound")
		}
	}

	if c.Challenge.MaxLength < 6 {
		add("challenge_short", LintWarn, "challenge length %d is below 6", c.Challenge.MaxLength)
	}
	if c.TOTP.Skew > 1 {
		add("totp_skew_large", LintWarn, "TOTP skew %d accepts codes %d periods away", c.TOTP.Skew, c.TOTP.Skew)
	}

	if !c.Replay.Enabled {
		add("replay_disabled", LintWarn, "signed request replay protection is disabled")
	} else if c.Replay.Window > 10*time.Minute {
		add("replay_window_long", LintInfo, "replay window %s keeps requests acceptable for a long time", c.Replay.Window)
	}
	if c.RequestObject.Enabled && c.RequestObject.SigningMethod == "hs256" {
		add("request_shared_secret", LintInfo, "request objects use a shared HMAC secret")
	}
	if c.RequestObject.Enabled && c.RequestObject.Leeway > time.Minute {
		add("request_leeway_large", LintWarn, "request object leeway %s exceeds one minute", c.RequestObject.Leeway)
	}

	if c.Storage.Backend != BackendMemory && !c.Encryption.EncryptTarget {
		add("target_unencrypted", LintWarn, "account targets are stored in plaintext")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not emitted")
	}

	return ws
}
