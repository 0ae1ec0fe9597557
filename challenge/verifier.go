package challenge

import (
	"crypto/subtle"
	"strings"
)

// Verifier reports whether response answers challenge for target.
type Verifier interface {
	Verify(challenge, response, target string) bool
}

// Standalone is implemented by verifiers that derive the expected response
// from the target alone, without an issued challenge.
type Standalone interface {
	Standalone() bool
}

// IsStandalone reports whether v needs no issued challenge.
func IsStandalone(v Verifier) bool {
	s, ok := v.(Standalone)
	return ok && s.Standalone()
}

// TextVerifier compares trimmed strings in constant time.
type TextVerifier struct {
	// CaseInsensitive folds case before comparing, useful for hex challenges typed by hand.
	CaseInsensitive bool
}

// Verify treats two absent values as a match and a single absent value as a mismatch.
func (v TextVerifier) Verify(challenge, response, _ string) bool {
	c := strings.TrimSpace(challenge)
	r := strings.TrimSpace(response)
	if c == "" || r == "" {
		return c == r
	}
	if v.CaseInsensitive {
		c = strings.ToLower(c)
		r = strings.ToLower(r)
	}
	return subtle.ConstantTimeCompare([]byte(c), []byte(r)) == 1
}
