package goStepUp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/MrEthical07/goStepUp/storage"
)

func TestKindOf(t *testing.T) {
	limit := &restrictor.LimitError{Kind: restrictor.LimitFailure, Window: time.Minute, Max: 3}
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"limit", limit, KindLimit},
		{"wrapped limit", fmt.Errorf("verify: %w", limit), KindLimit},
		{"replayed", ErrReplayed, KindReplay},
		{"stale", fmt.Errorf("%w: issued in the future", ErrStaleRequest), KindReplay},
		{"storage", fmt.Errorf("%w: dial tcp", storage.ErrUnavailable), KindStorage},
		{"restrictor store", restrictor.ErrStoreUnavailable, KindStorage},
		{"delivery", fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.New("boom")), KindStorage},
		{"no challenge", ErrNoPendingChallenge, KindConsistency},
		{"no verifier", ErrVerifierNotConfigured, KindConfiguration},
		{"unknown kind", ErrUnknownAccountKind, KindConfiguration},
		{"not editable", ErrAccountNotEditable, KindValidation},
		{"not found", storage.ErrNotFound, KindValidation},
		{"other", errors.New("something else"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLimitTakesPrecedenceOverStorage(t *testing.T) {
	err := fmt.Errorf("%w: %w", storage.ErrUnavailable, restrictor.ErrLimitReached)
	if KindOf(err) != KindLimit {
		t.Fatalf("expected limit kind, got %v", KindOf(err))
	}
}

func TestErrorKindString(t *testing.T) {
	if KindLimit.String() != "limit" || KindUnknown.String() != "unknown" || ErrorKind(200).String() != "unknown" {
		t.Fatal("unexpected ErrorKind strings")
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{
		OutcomeVerified:     "verified",
		OutcomeMismatch:     "mismatch",
		OutcomeLimitReached: "limit_reached",
	} {
		if o.String() != want {
			t.Fatalf("%d.String() = %q, want %q", o, o.String(), want)
		}
	}
}
