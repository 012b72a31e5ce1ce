// Package notify delivers short messages (OTP codes) to patients.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Notifier dispatches one message. Callers treat delivery as best effort.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogNotifier only logs the dispatch. Used when no SMTP relay is configured.
// The body is not logged since it carries the OTP.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, to, subject, body string) error {
	n.logger.Info("notification dispatched",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)))
	return nil
}
