package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSMSTimeout = 15 * time.Second

// SMSConfig configures a JSON-over-HTTP SMS gateway.
type SMSConfig struct {
	Endpoint string
	APIKey   string
	SenderID string
	Timeout  time.Duration
}

// SMSSender posts {"to","from","message"} to the gateway endpoint with the
// API key in the Authorization header.
type SMSSender struct {
	endpoint string
	apiKey   string
	senderID string
	client   *http.Client
}

// NewSMSSender requires an endpoint and API key.
func NewSMSSender(cfg SMSConfig) (*SMSSender, error) {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: sms endpoint and api key are required", ErrNotConfigured)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSMSTimeout
	}
	return &SMSSender{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		senderID: cfg.SenderID,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

func (s *SMSSender) Send(ctx context.Context, target, challenge string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNoTarget
	}
	raw, err := json.Marshal(smsRequest{
		To:      target,
		From:    s.senderID,
		Message: "Your verification code is " + challenge,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}
