package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSenderWritesChallenge(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), "a@example.org", "123456"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "a@example.org", rec["target"])
	assert.Equal(t, "123456", rec["challenge"])
}

func TestSenderFunc(t *testing.T) {
	var got string
	var s Sender = SenderFunc(func(_ context.Context, target, challenge string) error {
		got = target + ":" + challenge
		return nil
	})
	require.NoError(t, s.Send(context.Background(), "t", "c"))
	assert.Equal(t, "t:c", got)
	assert.NoError(t, NoopSender{}.Send(context.Background(), "", ""))
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{
		Host:    "mail.example.org",
		Port:    587,
		From:    "noreply@example.org",
		Subject: "Your code",
		Body:    "code={{.Challenge}} for {{.Target}}",
	})
	require.NoError(t, err)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), " user@example.org ", "424242"))
	assert.Equal(t, "mail.example.org:587", gotAddr)
	assert.Equal(t, "noreply@example.org", gotFrom)
	assert.Equal(t, []string{"user@example.org"}, gotTo)
	assert.Contains(t, string(gotMsg), "Subject: Your code\r\n")
	assert.True(t, strings.HasSuffix(string(gotMsg), "code=424242 for user@example.org"))
}

func TestSMTPSenderRejectsBadTargets(t *testing.T) {
	s, err := NewSMTPSender(SMTPConfig{Host: "h", Port: 25, From: "f@h"})
	require.NoError(t, err)
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}

	assert.ErrorIs(t, s.Send(context.Background(), "  ", "1"), ErrNoTarget)
	assert.Error(t, s.Send(context.Background(), "a@b\r\nBcc: x@y", "1"))

	_, err = NewSMTPSender(SMTPConfig{Host: "h"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSMSSenderPostsJSON(t *testing.T) {
	var got smsRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewSMSSender(SMSConfig{Endpoint: srv.URL, APIKey: "key-1", SenderID: "IDP"})
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), "+15550100", "987654"))

	assert.Equal(t, "key-1", auth)
	assert.Equal(t, "+15550100", got.To)
	assert.Equal(t, "IDP", got.From)
	assert.Contains(t, got.Message, "987654")
}

func TestSMSSenderSurfacesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s, err := NewSMSSender(SMSConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)
	err = s.Send(context.Background(), "+15550100", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=429")

	_, err = NewSMSSender(SMSConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
