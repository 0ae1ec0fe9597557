package goStepUp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goStepUp/challenge"
	"github.com/MrEthical07/goStepUp/clock"
	"github.com/MrEthical07/goStepUp/fieldcrypt"
	internalaudit "github.com/MrEthical07/goStepUp/internal/audit"
	"github.com/MrEthical07/goStepUp/replay"
	"github.com/MrEthical07/goStepUp/requestobject"
	"github.com/MrEthical07/goStepUp/restrictor"
	"github.com/MrEthical07/goStepUp/storage"
	"github.com/pquerna/otp"
)

// Engine owns the shared step-up components: the restrictor, the replay
// guard, account storage and the account-kind registry. It is built once by
// Builder and is safe for concurrent use; Methods are created per request.
type Engine struct {
	config     Config
	logger     *slog.Logger
	clock      clock.Clock
	kinds      kindRegistry
	storage    storage.Storage
	restrictor *restrictor.Restrictor
	replay     *replay.Guard
	requests   *requestobject.Validator
	encryptor  *fieldcrypt.Encryptor
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
}

// Close drains the audit dispatcher. It does not close caller-owned
// Redis clients or databases.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped returns the number of audit events dropped by a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Restrictor returns the shared restrictor, or nil when disabled.
func (e *Engine) Restrictor() *restrictor.Restrictor {
	if e == nil {
		return nil
	}
	return e.restrictor
}

// Storage returns the account storage.
func (e *Engine) Storage() storage.Storage {
	if e == nil {
		return nil
	}
	return e.storage
}

// AccountKinds lists the registered kind names in sorted order.
func (e *Engine) AccountKinds() []string {
	if e == nil {
		return nil
	}
	return e.kinds.names()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// NewTOTPKey creates a shared secret for accountName using the TOTP
// configuration. Store key.Secret() as the target of a "totp" account and
// present key.URL() to the user.
func (e *Engine) NewTOTPKey(accountName string) (*otp.Key, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	return challenge.GenerateTOTPKey(e.config.totpConfig(), accountName)
}

// ValidateRequestObject verifies a signed authentication request, then applies
// the freshness gate and the replay cache to its jti, state or nonce.
func (e *Engine) ValidateRequestObject(ctx context.Context, token string) (*requestobject.Claims, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.requests == nil {
		return nil, ErrRequestObjectsDisabled
	}

	claims, err := e.requests.Validate(ctx, token)
	if err != nil {
		e.replayRejected(ctx, err, nil)
		return nil, err
	}
	e.emitAudit(ctx, AuditEvent{
		EventType: AuditRequestAccepted,
		Subject:   claims.ClientID,
		Success:   true,
	})
	return claims, nil
}

// CheckReplay accepts value issued at issuedAt at most once within the
// replay window.
func (e *Engine) CheckReplay(ctx context.Context, value string, issuedAt time.Time) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if e.replay == nil {
		return ErrReplayDisabled
	}
	if err := e.replay.Accept(ctx, value, issuedAt); err != nil {
		e.replayRejected(ctx, err, map[string]string{"issued_at": issuedAt.UTC().Format(time.RFC3339)})
		return err
	}
	return nil
}

func (e *Engine) replayRejected(ctx context.Context, err error, metadata map[string]string) {
	eventType := ""
	switch {
	case errors.Is(err, ErrReplayed):
		eventType = AuditReplayRejected
	case errors.Is(err, ErrStaleRequest):
		eventType = AuditStaleRequest
	default:
		e.logger.DebugContext(ctx, "request object rejected", slog.String("error", err.Error()))
		return
	}
	e.logger.WarnContext(ctx, eventType, slog.String("error", err.Error()))
	e.emitAudit(ctx, AuditEvent{
		EventType: eventType,
		Error:     err.Error(),
		Metadata:  metadata,
	})
}
