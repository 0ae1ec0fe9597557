package goStepUp

import (
	"context"
	"io"
	"log/slog"
	"strconv"

	internalaudit "github.com/MrEthical07/goStepUp/internal/audit"
	"github.com/MrEthical07/goStepUp/restrictor"
)

// Audit event types.
const (
	AuditChallengeSent       = "challenge_sent"
	AuditChallengeSendFailed = "challenge_send_failed"
	AuditResponseVerified    = "response_verified"
	AuditResponseMismatch    = "response_mismatch"
	AuditLimitReached        = "limit_reached"
	AuditReplayRejected      = "replay_rejected"
	AuditStaleRequest        = "stale_request_rejected"
	AuditRequestAccepted     = "request_object_accepted"
	AuditAccountAdded        = "account_added"
	AuditAccountRemoved      = "account_removed"
	AuditAccountUpdated      = "account_updated"
	AuditAccountEvicted      = "account_evicted"
)

// AuditEvent is one audited operation. Targets, challenges and responses are
// never included.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = internalaudit.Sink

type NoOpSink = internalaudit.NoOpSink

type ChannelSink = internalaudit.ChannelSink

type JSONWriterSink = internalaudit.JSONWriterSink

type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

var auditMetrics = map[string]MetricID{
	AuditChallengeSent:       MetricChallengeSent,
	AuditChallengeSendFailed: MetricChallengeSendFailed,
	AuditResponseVerified:    MetricResponseVerified,
	AuditResponseMismatch:    MetricResponseMismatch,
	AuditReplayRejected:      MetricReplayRejected,
	AuditStaleRequest:        MetricStaleRequestRejected,
	AuditRequestAccepted:     MetricRequestObjectAccepted,
	AuditAccountAdded:        MetricAccountAdded,
	AuditAccountRemoved:      MetricAccountRemoved,
	AuditAccountUpdated:      MetricAccountUpdated,
	AuditAccountEvicted:      MetricAccountEvicted,
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if id, ok := auditMetrics[event.EventType]; ok {
		e.metricInc(id)
	}
	if e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.clock.Now()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) accountEvent(ctx context.Context, eventType string, a *StepUpAccount, err error) {
	event := AuditEvent{
		EventType:   eventType,
		Method:      a.method,
		AccountKind: a.kind.Name,
		AccountID:   a.ID(),
		Subject:     a.key,
		Success:     err == nil && eventType != AuditResponseMismatch,
	}
	attrs := []any{
		slog.String("method", a.method),
		slog.String("account_kind", a.kind.Name),
		slog.Int64("account_id", event.AccountID),
	}
	if err != nil {
		event.Error = err.Error()
		e.logger.WarnContext(ctx, eventType, append(attrs, slog.String("error", err.Error()))...)
	} else {
		e.logger.DebugContext(ctx, eventType, attrs...)
	}
	e.emitAudit(ctx, event)
}

func (e *Engine) limitReached(ctx context.Context, a *StepUpAccount, le *restrictor.LimitError) {
	if le.Kind == restrictor.LimitFailure {
		e.metricInc(MetricFailureLimitReached)
	} else {
		e.metricInc(MetricAttemptLimitReached)
	}
	e.logger.InfoContext(ctx, AuditLimitReached,
		slog.String("method", a.method),
		slog.String("account_kind", a.kind.Name),
		slog.String("limit_kind", le.Kind.String()),
		slog.Duration("window", le.Window),
		slog.Int("max", le.Max),
	)
	e.emitAudit(ctx, AuditEvent{
		EventType:   AuditLimitReached,
		Method:      a.method,
		AccountKind: a.kind.Name,
		AccountID:   a.ID(),
		Subject:     a.key,
		Error:       le.Error(),
		Metadata: map[string]string{
			"limit_kind": le.Kind.String(),
			"window_ms":  strconv.FormatInt(le.Window.Milliseconds(), 10),
			"max":        strconv.Itoa(le.Max),
		},
	})
}
