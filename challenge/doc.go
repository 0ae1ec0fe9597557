// Package challenge defines the generator and verifier strategies that step-up
// accounts compose with.
//
// A [Generator] produces the one-time value delivered to a target; a [Verifier]
// compares a user response against it. Both are stateless and safe for
// concurrent use. Absent values are represented by the empty string: two absent
// values match, one absent value never matches.
//
// Time-based verifiers such as [TOTPVerifier] implement [Standalone]: the target
// itself is the shared secret and no challenge is ever issued.
package challenge
