package goStepUp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/goStepUp/challenge"
	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/MrEthical07/goStepUp/storage"
)

// StepUpAccount is one second factor of a principal. Accounts are created by
// a Method and hold plaintext; encryption happens only in storage.
//
// An account cycles through Uninitialized → ChallengeIssued → Verified or
// Rejected, returning to ChallengeIssued on every SendChallenge. Accounts are
// safe for concurrent use; the restrictor serializes event counting per key.
type StepUpAccount struct {
	mu        sync.Mutex
	id        int64
	name      string
	target    string
	enabled   bool
	editable  bool
	challenge string
	issued    bool

	kind   AccountKind
	method string
	key    string
	engine *Engine
}

func newAccount(e *Engine, kind AccountKind, method, key string, rec storage.Record) *StepUpAccount {
	return &StepUpAccount{
		id:       rec.ID,
		name:     rec.Name,
		target:   rec.Target,
		enabled:  rec.Enabled,
		editable: rec.Editable,
		kind:     kind,
		method:   method,
		key:      key,
		engine:   e,
	}
}

func (a *StepUpAccount) record() storage.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return storage.Record{
		ID:       a.id,
		Name:     a.name,
		Target:   a.target,
		Enabled:  a.enabled,
		Editable: a.editable,
	}
}

// ID is storage.UnsetID until the account is persisted.
func (a *StepUpAccount) ID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.id
}

func (a *StepUpAccount) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.name
}

func (a *StepUpAccount) Target() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.target
}

func (a *StepUpAccount) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

func (a *StepUpAccount) Editable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.editable
}

// Kind returns the account kind name.
func (a *StepUpAccount) Kind() string { return a.kind.Name }

// Method returns the name of the owning method.
func (a *StepUpAccount) Method() string { return a.method }

// ChallengePending reports whether a challenge was issued and not yet consumed.
func (a *StepUpAccount) ChallengePending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued
}

func (a *StepUpAccount) mutate(apply func()) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.editable {
		return ErrAccountNotEditable
	}
	apply()
	return nil
}

// SetName renames the account. Non-editable accounts refuse with ErrAccountNotEditable.
func (a *StepUpAccount) SetName(name string) error {
	return a.mutate(func() { a.name = name })
}

// SetTarget changes the delivery address or shared secret.
func (a *StepUpAccount) SetTarget(target string) error {
	return a.mutate(func() { a.target = target })
}

func (a *StepUpAccount) SetEnabled(enabled bool) error {
	return a.mutate(func() { a.enabled = enabled })
}

// SetEditable(false) locks the account for the lifetime of this instance;
// only a fresh load from storage can make it editable again.
func (a *StepUpAccount) SetEditable(editable bool) error {
	return a.mutate(func() { a.editable = editable })
}

// Lock is SetEditable(false).
func (a *StepUpAccount) Lock() error {
	return a.SetEditable(false)
}

func (a *StepUpAccount) restrictionKey() string {
	return a.method + ":" + a.key
}

func (a *StepUpAccount) recordEvent(ctx context.Context, t restrictor.EventType) error {
	r := a.engine.restrictor
	if r == nil {
		return nil
	}
	return r.Record(ctx, a.restrictionKey(), t)
}

// SendChallenge clears any pending challenge, counts the attempt, generates a
// fresh challenge and hands it to the kind's sender. When the attempt cap is
// reached nothing is generated or delivered and a *restrictor.LimitError is
// returned. Delivery runs outside every lock.
func (a *StepUpAccount) SendChallenge(ctx context.Context) error {
	a.mu.Lock()
	if !a.enabled {
		a.mu.Unlock()
		return ErrAccountDisabled
	}
	a.challenge, a.issued = "", false
	target := a.target
	a.mu.Unlock()

	gen := a.kind.Generator
	if gen == nil && !challenge.IsStandalone(a.kind.Verifier) {
		return ErrGeneratorNotConfigured
	}

	if err := a.recordEvent(ctx, restrictor.EventAttempt); err != nil {
		if le, ok := restrictor.AsLimitError(err); ok {
			a.engine.limitReached(ctx, a, le)
		}
		return err
	}

	if gen == nil {
		// Standalone kinds derive the code from the target; nothing to deliver.
		a.engine.accountEvent(ctx, AuditChallengeSent, a, nil)
		return nil
	}

	value, err := gen.Generate(target)
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	a.mu.Lock()
	a.challenge, a.issued = value, true
	a.mu.Unlock()

	if sender := a.kind.Sender; sender != nil {
		if err := sender.Send(ctx, target, value); err != nil {
			err = fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
			a.engine.accountEvent(ctx, AuditChallengeSendFailed, a, err)
			return err
		}
	}
	a.engine.accountEvent(ctx, AuditChallengeSent, a, nil)
	return nil
}

// VerifyResponse compares response with the pending challenge and records the
// outcome. Once a failure cap is reached every call reports
// OutcomeLimitReached, whether or not the response matches. The error is
// reserved for configuration, consistency and backend failures.
func (a *StepUpAccount) VerifyResponse(ctx context.Context, response string) (Result, error) {
	start := time.Now()
	defer func() { a.engine.observeVerify(time.Since(start)) }()

	a.mu.Lock()
	enabled, issued, pending, target := a.enabled, a.issued, a.challenge, a.target
	a.mu.Unlock()

	if !enabled {
		return Result{}, ErrAccountDisabled
	}
	verifier := a.kind.Verifier
	if verifier == nil {
		return Result{}, ErrVerifierNotConfigured
	}
	if !issued && !challenge.IsStandalone(verifier) {
		return Result{}, ErrNoPendingChallenge
	}

	if r := a.engine.restrictor; r != nil {
		if err := r.Allow(ctx, a.restrictionKey(), restrictor.EventFailure); err != nil {
			return a.limitResult(ctx, err)
		}
	}

	matched := verifier.Verify(pending, response, target)
	event := restrictor.EventFailure
	if matched {
		event = restrictor.EventSuccess
	}
	if err := a.recordEvent(ctx, event); err != nil {
		return a.limitResult(ctx, err)
	}

	if !matched {
		a.engine.accountEvent(ctx, AuditResponseMismatch, a, nil)
		return Result{Outcome: OutcomeMismatch}, nil
	}

	a.mu.Lock()
	if a.issued && a.challenge == pending {
		a.challenge, a.issued = "", false
	}
	a.mu.Unlock()

	a.engine.accountEvent(ctx, AuditResponseVerified, a, nil)
	return Result{Outcome: OutcomeVerified}, nil
}

func (a *StepUpAccount) limitResult(ctx context.Context, err error) (Result, error) {
	le, ok := restrictor.AsLimitError(err)
	if !ok {
		return Result{}, err
	}
	a.engine.limitReached(ctx, a, le)
	return Result{Outcome: OutcomeLimitReached, Limit: le}, nil
}
