// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers one-time codes to account holders.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"gopkg.in/gomail.v2"

	"github.com/holomush/identity/internal/auth"
)

// SMTP delivery defaults.
const (
	DefaultSMTPPort     = 587
	DefaultSendAttempts = 3
	DefaultSendBackoff  = 500 * time.Millisecond
)

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Validate checks that the relay and sender are set.
func (c SMTPConfig) Validate() error {
	if c.Host == "" {
		return oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return oops.Code("NOTIFY_INVALID_CONFIG").With("port", c.Port).Errorf("smtp port out of range")
	}
	if c.From == "" {
		return oops.Code("NOTIFY_INVALID_CONFIG").Errorf("sender address is required")
	}
	return nil
}

// sender is satisfied by *gomail.Dialer.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPOption configures an SMTPNotifier.
type SMTPOption func(*SMTPNotifier)

// WithSendRetry bounds delivery attempts. Backoff doubles after each failure.
func WithSendRetry(attempts uint64, backoff time.Duration) SMTPOption {
	return func(n *SMTPNotifier) {
		if attempts > 0 {
			n.attempts = attempts
		}
		if backoff > 0 {
			n.backoff = backoff
		}
	}
}

// WithSMTPLogger sets the logger used for retry warnings.
func WithSMTPLogger(logger *slog.Logger) SMTPOption {
	return func(n *SMTPNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// withSender replaces the dialer.
func withSender(s sender) SMTPOption {
	return func(n *SMTPNotifier) { n.sender = s }
}

// SMTPNotifier sends codes by email through an SMTP relay.
type SMTPNotifier struct {
	sender   sender
	from     string
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
}

// NewSMTPNotifier creates an SMTPNotifier for cfg.
func NewSMTPNotifier(cfg SMTPConfig, opts ...SMTPOption) (*SMTPNotifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &SMTPNotifier{
		sender:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		attempts: DefaultSendAttempts,
		backoff:  DefaultSendBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// SendVerificationCode emails an account verification code.
func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	return n.send(ctx, email, "Verify your email address", fmt.Sprintf(
		"Your verification code is %s.\n\nIf you did not create an account, ignore this message.\n",
		code))
}

// SendResetCode emails a password reset code.
func (n *SMTPNotifier) SendResetCode(ctx context.Context, email, code string) error {
	return n.send(ctx, email, "Reset your password", fmt.Sprintf(
		"Your password reset code is %s.\n\nIf you did not ask to reset your password, ignore this message.\n",
		code))
}

func (n *SMTPNotifier) send(ctx context.Context, to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	attempt := 0
	backoff := retry.WithMaxRetries(n.attempts-1, retry.NewExponential(n.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := n.sender.DialAndSend(m); err != nil {
			n.logger.WarnContext(ctx, "smtp send failed",
				"attempt", attempt,
				"error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("channel", "smtp").
			With("subject", subject).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*SMTPNotifier)(nil)
