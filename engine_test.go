package goStepUp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/delivery"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testStart = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// captureSender records the last challenge per target.
type captureSender struct {
	mu   sync.Mutex
	sent map[string]string
	n    int
	err  error
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(map[string]string)}
}

func (s *captureSender) Send(_ context.Context, target, challenge string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent[target] = challenge
	s.n++
	return nil
}

func (s *captureSender) last(t *testing.T, target string) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.sent[target]
	if !ok {
		t.Fatalf("no challenge delivered to %q", target)
	}
	return v
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Restrictor.Total = map[string]int{"60000": 100}
	cfg.Restrictor.Failures = map[string]int{"300000": 3}
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	*Engine
	clock  *clock.Fake
	sender *captureSender
}

func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) testEngine {
	t.Helper()
	fake := clock.NewFake(testStart)
	sender := newCaptureSender()

	b := New().
		WithConfig(cfg).
		WithLogger(discardLogger()).
		WithClock(fake).
		WithSender(KindEmail, sender)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return testEngine{Engine: engine, clock: fake, sender: sender}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithLogger(discardLogger())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRequiresBackendClients(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Restrictor.Backend = BackendRedis
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected redis restrictor without client to fail")
	}

	cfg = DefaultConfig()
	cfg.Storage.Backend = BackendSQL
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected sql storage without database to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Restrictor.Total = map[string]int{"soon": 1}
	if _, err := New().WithConfig(cfg).Build(); err == nil {
		t.Fatal("expected invalid window key to fail Build")
	}
}

func TestBuilderRejectsInvalidAccountKind(t *testing.T) {
	_, err := New().WithAccountKind(AccountKind{Name: "push"}).Build()
	if !errors.Is(err, ErrVerifierNotConfigured) {
		t.Fatalf("expected ErrVerifierNotConfigured, got %v", err)
	}
}

func TestEngineAccountKinds(t *testing.T) {
	te := newTestEngine(t, testConfig())
	got := te.AccountKinds()
	want := []string{KindEmail, KindLog, KindTOTP}
	if !slices.Equal(got, want) {
		t.Fatalf("AccountKinds = %v, want %v", got, want)
	}
}

func TestEngineRedisBackends(t *testing.T) {
	mr, rdb := newTestRedis(t)

	cfg := testConfig()
	cfg.Restrictor.Backend = BackendRedis
	cfg.Replay.Backend = BackendRedis
	cfg.Storage.Backend = BackendRedis
	te := newTestEngine(t, cfg, func(b *Builder) { b.WithRedis(rdb) })

	m, err := te.NewKeyedMethod(MethodConfig{Name: "email", AccountKind: KindEmail, KeyClaim: "sub"})
	if err != nil {
		t.Fatalf("NewKeyedMethod failed: %v", err)
	}
	ctx := context.Background()
	if _, err := m.Initialize(ctx, Claims{"sub": "u1"}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	account, err := m.AddAccount(ctx)
	if err != nil {
		t.Fatalf("AddAccount failed: %v", err)
	}
	if err := account.SetTarget("u1@example.com"); err != nil {
		t.Fatalf("SetTarget failed: %v", err)
	}
	if err := m.UpdateAccount(ctx, account); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if err := account.SendChallenge(ctx); err != nil {
		t.Fatalf("SendChallenge failed: %v", err)
	}

	if !mr.Exists("sta:email:u1") {
		t.Fatalf("expected account key in redis, have %v", mr.Keys())
	}
	if err := te.CheckReplay(ctx, "state-1", te.clock.Now()); err != nil {
		t.Fatalf("CheckReplay failed: %v", err)
	}
	if err := te.CheckReplay(ctx, "state-1", te.clock.Now()); !errors.Is(err, ErrReplayed) {
		t.Fatalf("expected ErrReplayed, got %v", err)
	}
}

func TestEngineNilSafety(t *testing.T) {
	var e *Engine
	if _, err := e.NewPassThroughMethod(MethodConfig{Name: "x"}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := e.CheckReplay(context.Background(), "v", time.Now()); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.AccountKinds() != nil || e.AuditDropped() != 0 {
		t.Fatal("expected zero values from nil engine")
	}
	e.Close()
}

func TestEngineFeatureDisabledErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Replay.Enabled = false
	te := newTestEngine(t, cfg)

	if err := te.CheckReplay(context.Background(), "v", te.clock.Now()); !errors.Is(err, ErrReplayDisabled) {
		t.Fatalf("expected ErrReplayDisabled, got %v", err)
	}
	if _, err := te.ValidateRequestObject(context.Background(), "x.y.z"); !errors.Is(err, ErrRequestObjectsDisabled) {
		t.Fatalf("expected ErrRequestObjectsDisabled, got %v", err)
	}
}

func TestSecurityReport(t *testing.T) {
	cfg := testConfig()
	cfg.Encryption.EncryptTarget = true
	cfg.Encryption.Secret = []byte("0123456789abcdef0123456789abcdef")
	te := newTestEngine(t, cfg)

	report := te.SecurityReport()
	if !report.RestrictorActive || !report.ReplayActive {
		t.Fatalf("expected restrictor and replay active: %+v", report)
	}
	if report.RequestObjectsActive {
		t.Fatal("request objects are disabled by default")
	}
	if !report.EncryptedFields.Target || report.EncryptedFields.Name {
		t.Fatalf("unexpected encrypted fields: %+v", report.EncryptedFields)
	}
	if !slices.Equal(report.StandaloneKinds, []string{KindTOTP}) {
		t.Fatalf("StandaloneKinds = %v", report.StandaloneKinds)
	}
}

func TestNewTOTPKey(t *testing.T) {
	cfg := testConfig()
	cfg.TOTP.Issuer = "goStepUp"
	te := newTestEngine(t, cfg)

	key, err := te.NewTOTPKey("alice@example.com")
	if err != nil {
		t.Fatalf("NewTOTPKey failed: %v", err)
	}
	if key.Secret() == "" || key.Issuer() != "goStepUp" {
		t.Fatalf("unexpected key: issuer=%q", key.Issuer())
	}
}

var _ delivery.Sender = (*captureSender)(nil)
