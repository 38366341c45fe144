package email

import (
	"context"
	"log/slog"
)

// LogSender renders and logs the recipient instead of delivering. Links are
// not logged because they carry single-use tokens.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendTemplated(ctx context.Context, templateID string, to string, substitutions map[string]string) error {
	msg, err := Render(templateID, to, substitutions)
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "email suppressed", "template", msg.TemplateID, "to", msg.To, "subject", msg.Subject)
	return nil
}
