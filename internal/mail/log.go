package mail

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the log instead of sending them. It is the
// sender used when no SendGrid key is configured, so links can be copied
// from the console in development.
type LogSender struct {
	logger *slog.Logger
}

var _ Sender = (*LogSender)(nil)

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, subject, recipient, htmlBody string) error {
	s.logger.Info("mail (not sent)",
		slog.String("to", recipient),
		slog.String("subject", subject),
		slog.String("body", htmlBody),
	)
	return nil
}
