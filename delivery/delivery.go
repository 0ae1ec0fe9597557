// Package delivery sends issued challenges to account targets.
//
// Senders are invoked after the challenge is generated and the attempt has
// been counted, never while a restrictor lock is held.
package delivery

import (
	"context"
	"errors"
	"log/slog"
)

var (
	// ErrNoTarget is returned when the account has no delivery address.
	ErrNoTarget = errors.New("delivery: target required")
	// ErrNotConfigured is returned when a transport is missing required settings.
	ErrNotConfigured = errors.New("delivery: sender not configured")
)

// Sender delivers one challenge to one target.
type Sender interface {
	Send(ctx context.Context, target, challenge string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, target, challenge string) error

func (f SenderFunc) Send(ctx context.Context, target, challenge string) error {
	return f(ctx, target, challenge)
}

// NoopSender discards challenges. TOTP accounts use it.
type NoopSender struct{}

func (NoopSender) Send(context.Context, string, string) error { return nil }

// LogSender writes the challenge to a logger. It is meant for development
// deployments where no transport is wired.
type LogSender struct {
	Logger *slog.Logger
	Level  slog.Level
}

// NewLogSender logs at info level; nil uses slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{Logger: logger, Level: slog.LevelInfo}
}

func (s *LogSender) Send(ctx context.Context, target, challenge string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, s.Level, "step-up challenge issued",
		slog.String("target", target),
		slog.String("challenge", challenge),
	)
	return nil
}
