package delivery

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

// SMTPConfig configures the mail sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Subject  string
	// Body is a text/template executed with .Challenge and .Target.
	Body string
}

// DefaultSMTPBody is used when SMTPConfig.Body is empty.
const DefaultSMTPBody = "Your verification code is {{.Challenge}}\r\n"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPSender mails the challenge to the target address.
type SMTPSender struct {
	addr     string
	from     string
	subject  string
	body     *template.Template
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPSender validates cfg and parses the body template.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.From == "" {
		return nil, fmt.Errorf("%w: smtp host, port and from are required", ErrNotConfigured)
	}
	body := cfg.Body
	if body == "" {
		body = DefaultSMTPBody
	}
	tmpl, err := template.New("body").Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse smtp body: %w", err)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "Verification code"
	}

	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		subject:  subject,
		body:     tmpl,
		auth:     auth,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, target, challenge string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNoTarget
	}
	if strings.ContainsAny(target, "\r\n") {
		return fmt.Errorf("delivery: invalid mail target")
	}

	var body bytes.Buffer
	data := struct{ Challenge, Target string }{challenge, target}
	if err := s.body.Execute(&body, data); err != nil {
		return fmt.Errorf("render smtp body: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", target)
	fmt.Fprintf(&msg, "Subject: %s\r\n", s.subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	msg.Write(body.Bytes())

	if err := s.sendMail(s.addr, s.auth, s.from, []string{target}, msg.Bytes()); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
