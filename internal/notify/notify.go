// Package notify delivers alert messages to users.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SendError is a failed delivery. The alert ledger treats it as retryable.
type SendError struct {
	To  string
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.To, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// New returns an SMTP sender, or a LogSender when SMTP is not configured.
func New(cfg SMTPConfig, logger *zap.Logger) Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Configured() {
		logger.Warn("notify: SMTP not configured, alerts will only be logged")
		return &LogSender{logger: logger}
	}
	return NewSMTPSender(cfg, logger)
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, to, subject, body string) error {
	l.logger.Info("notify: email skipped",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("body", body),
	)
	return nil
}
