package goStepUp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goStepUp/challenge"
	"github.com/MrEthical07/goStepUp/restrictor"
)

func emailAccount(t *testing.T, te testEngine, sub, email string) *StepUpAccount {
	t.Helper()
	m, err := te.NewPassThroughMethod(MethodConfig{
		Name:        "email",
		AccountKind: KindEmail,
		KeyClaim:    "sub",
		TargetClaim: "email",
	})
	if err != nil {
		t.Fatalf("NewPassThroughMethod failed: %v", err)
	}
	ok, err := m.Initialize(context.Background(), Claims{"sub": sub, "email": email})
	if err != nil || !ok {
		t.Fatalf("Initialize = %v, %v", ok, err)
	}
	return m.Account()
}

func TestSendAndVerifyChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}
	if !account.ChallengePending() {
		t.Fatal("expected pending challenge after send")
	}
	code := te.sender.last(t, "u1@example.com")

	res, err := account.VerifyResponse(ctx, code)
	if err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if !res.Verified() {
		t.Fatalf("expected verified, got %v", res.Outcome)
	}
	if account.ChallengePending() {
		t.Fatal("expected challenge consumed after success")
	}

	if _, err := account.VerifyResponse(ctx, code); !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected consumed challenge to be rejected, got %v", err)
	}
}

func TestVerifyBeforeSend(t *testing.T) {
	te := newTestEngine(t, testConfig())
	account := emailAccount(t, te, "u1", "u1@example.com")

	_, err := account.VerifyResponse(context.Background(), "123456")
	if !errors.Is(err, ErrNoPendingChallenge) {
		t.Fatalf("expected ErrNoPendingChallenge, got %v", err)
	}
	if KindOf(err) != KindConsistency {
		t.Fatalf("expected consistency kind, got %v", KindOf(err))
	}
}

func TestVerifyMismatchKeepsChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}
	res, err := account.VerifyResponse(ctx, "definitely-wrong")
	if err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if res.Outcome != OutcomeMismatch {
		t.Fatalf("expected mismatch, got %v", res.Outcome)
	}
	if !account.ChallengePending() {
		t.Fatal("mismatch must not consume the challenge")
	}
}

func TestResendReplacesChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}
	first := te.sender.last(t, "u1@example.com")
	te.clock.Advance(time.Second)
	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("second SendChallenge failed: %v", err)
	}
	second := te.sender.last(t, "u1@example.com")
	if first == second {
		t.Fatal("expected a fresh challenge on resend")
	}

	res, err := account.VerifyResponse(ctx, first)
	if err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if res.Outcome != OutcomeMismatch {
		t.Fatalf("superseded challenge must not verify, got %v", res.Outcome)
	}
}

func TestAttemptLimitRefusesSend(t *testing.T) {
	cfg := testConfig()
	cfg.Restrictor.Total = map[string]int{"60000": 2}
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	for i := 0; i < 2; i++ {
		if err := account.SendChallenge(ctx); err != nil {
			t.Fatalf("SendChallenge %d failed: %v", i, err)
		}
	}
	delivered := te.sender.n

	err := account.SendChallenge(ctx)
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
	le, ok := restrictor.AsLimitError(err)
	if !ok || le.Kind != restrictor.LimitTotal || le.Window != time.Minute || le.Max != 2 {
		t.Fatalf("unexpected limit error: %#v", le)
	}
	if te.sender.n != delivered {
		t.Fatal("refused send must not deliver")
	}
	if account.ChallengePending() {
		t.Fatal("refused send must leave no pending challenge")
	}

	te.clock.Advance(time.Minute + time.Millisecond)
	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("expected send after window to succeed: %v", err)
	}
}

func TestFailureLimitOverridesCorrectResponse(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}
	code := te.sender.last(t, "u1@example.com")

	for i := 0; i < 3; i++ {
		res, err := account.VerifyResponse(ctx, "wrong")
		if err != nil {
			t.Fatalf("VerifyResponse %d failed: %v", i, err)
		}
		if res.Outcome != OutcomeMismatch {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, res.Outcome)
		}
	}

	res, err := account.VerifyResponse(ctx, code)
	if err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if res.Outcome != OutcomeLimitReached {
		t.Fatalf("expected limit reached, got %v", res.Outcome)
	}
	if res.Limit == nil || res.Limit.Kind != restrictor.LimitFailure || res.Limit.Max != 3 {
		t.Fatalf("unexpected limit: %#v", res.Limit)
	}

	te.clock.Advance(5*time.Minute + time.Millisecond)
	res, err = account.VerifyResponse(ctx, code)
	if err != nil {
		t.Fatalf("VerifyResponse failed: %v", err)
	}
	if !res.Verified() {
		t.Fatalf("expected verified once the failure window passed, got %v", res.Outcome)
	}
}

func TestSuccessesDoNotCountAsFailures(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	for i := 0; i < 5; i++ {
		if err := account.SendChallenge(ctx); err != nil {
			t.Fatalf("SendChallenge failed: %v", err)
		}
		res, err := account.VerifyResponse(ctx, te.sender.last(t, "u1@example.com"))
		if err != nil || !res.Verified() {
			t.Fatalf("round %d: %v, %v", i, res.Outcome, err)
		}
		te.clock.Advance(time.Second)
	}
}

func TestRestrictionIsPerMethodAndKey(t *testing.T) {
	cfg := testConfig()
	cfg.Restrictor.Total = map[string]int{"60000": 1}
	te := newTestEngine(t, cfg)
	ctx := context.Background()

	a := emailAccount(t, te, "u1", "u1@example.com")
	b := emailAccount(t, te, "u2", "u2@example.com")

	if err := a.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge a failed: %v", err)
	}
	if err := b.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge b failed: %v", err)
	}
	if err := a.SendChallenge(ctx); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected a to be limited, got %v", err)
	}
}

func TestTOTPAccountNeedsNoChallenge(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()

	key, err := te.NewTOTPKey("u1")
	if err != nil {
		t.Fatalf("NewTOTPKey failed: %v", err)
	}
	m, err := te.NewPassThroughMethod(MethodConfig{
		Name:        "totp",
		AccountKind: KindTOTP,
		KeyClaim:    "sub",
		TargetClaim: "totp_secret",
	})
	if err != nil {
		t.Fatalf("NewPassThroughMethod failed: %v", err)
	}
	if _, err := m.Initialize(ctx, Claims{"sub": "u1", "totp_secret": key.Secret()}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	account := m.Account()

	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}
	if account.ChallengePending() {
		t.Fatal("standalone kinds never hold a challenge")
	}

	cfg := te.Config()
	v, err := challenge.NewTOTPVerifier(cfg.totpConfig(), te.clock)
	if err != nil {
		t.Fatalf("NewTOTPVerifier failed: %v", err)
	}
	code, err := v.Code(key.Secret(), te.clock.Now())
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	res, err := account.VerifyResponse(ctx, code)
	if err != nil || !res.Verified() {
		t.Fatalf("expected TOTP code to verify: %v, %v", res.Outcome, err)
	}
}

func TestDeliveryFailureIsStorageKind(t *testing.T) {
	te := newTestEngine(t, testConfig())
	te.sender.err = errors.New("smtp: 451 try again")
	account := emailAccount(t, te, "u1", "u1@example.com")

	err := account.SendChallenge(context.Background())
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if KindOf(err) != KindStorage {
		t.Fatalf("expected storage kind, got %v", KindOf(err))
	}
}

func TestNonEditableAccountRefusesSetters(t *testing.T) {
	te := newTestEngine(t, testConfig())
	account := emailAccount(t, te, "u1", "u1@example.com")

	setters := map[string]func() error{
		"name":     func() error { return account.SetName("work") },
		"target":   func() error { return account.SetTarget("x@example.com") },
		"enabled":  func() error { return account.SetEnabled(false) },
		"editable": func() error { return account.SetEditable(true) },
	}
	for name, set := range setters {
		if err := set(); !errors.Is(err, ErrAccountNotEditable) {
			t.Fatalf("%s: expected ErrAccountNotEditable, got %v", name, err)
		}
	}
	if account.Target() != "u1@example.com" || !account.Enabled() {
		t.Fatal("refused setters must not change the account")
	}
}

func TestDisabledAccountRefusesOperations(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	m, err := te.NewKeyedMethod(MethodConfig{Name: "email", AccountKind: KindEmail, KeyClaim: "sub"})
	if err != nil {
		t.Fatalf("NewKeyedMethod failed: %v", err)
	}
	if _, err := m.Initialize(ctx, Claims{"sub": "u1"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	account, err := m.AddAccount(ctx)
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	if err := account.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	if err := account.SendChallenge(ctx); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := account.VerifyResponse(ctx, "x"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}

func TestLockIsOneWay(t *testing.T) {
	te := newTestEngine(t, testConfig())
	ctx := context.Background()
	m, err := te.NewKeyedMethod(MethodConfig{Name: "email", AccountKind: KindEmail, KeyClaim: "sub"})
	if err != nil {
		t.Fatalf("NewKeyedMethod failed: %v", err)
	}
	if _, err := m.Initialize(ctx, Claims{"sub": "u1"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	account, err := m.AddAccount(ctx)
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}

	if err := account.Lock(); err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if err := account.SetEditable(true); !errors.Is(err, ErrAccountNotEditable) {
		t.Fatalf("expected locked account to stay locked, got %v", err)
	}
}

func TestMissingVerifierAndGenerator(t *testing.T) {
	te := newTestEngine(t, testConfig())
	account := emailAccount(t, te, "u1", "u1@example.com")

	account.kind.Generator = nil
	if err := account.SendChallenge(context.Background()); !errors.Is(err, ErrGeneratorNotConfigured) {
		t.Fatalf("expected ErrGeneratorNotConfigured, got %v", err)
	}
	account.kind.Verifier = nil
	if _, err := account.VerifyResponse(context.Background(), "x"); !errors.Is(err, ErrVerifierNotConfigured) {
		t.Fatalf("expected ErrVerifierNotConfigured, got %v", err)
	}
}

func TestRestrictorDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Restrictor.Enabled = false
	te := newTestEngine(t, cfg)
	ctx := context.Background()
	account := emailAccount(t, te, "u1", "u1@example.com")

	for i := 0; i < 20; i++ {
		if err := account.SendChallenge(ctx); err != nil {
			t.Fatalf("SendChallenge %d failed: %v", i, err)
		}
	}
	if te.Restrictor() != nil {
		t.Fatal("expected nil restrictor when disabled")
	}
}
