package mailer

import (
	"context"
	"log/slog"
)

// LogSender writes messages to the logger instead of delivering them. Bodies
// are logged at debug level only.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (l *LogSender) Send(ctx context.Context, msg Message) error {
	l.logger.InfoContext(ctx, "mail suppressed", "to", msg.To, "subject", msg.Subject)
	l.logger.DebugContext(ctx, "mail body", "to", msg.To, "html", msg.HTML)
	return nil
}
