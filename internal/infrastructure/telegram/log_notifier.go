package telegram

import (
	"context"
	"log/slog"

	"BillWatch/internal/domain"
	"BillWatch/internal/ports"
)

// LogNotifier writes alerts to the log when no chat is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*LogNotifier)(nil)

// NewLogNotifier falls back to slog.Default when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier.log")}
}

// Notify logs the alert and never fails.
func (l *LogNotifier) Notify(_ context.Context, note domain.Notification) error {
	l.logger.Info("notification", "kind", note.Kind, "record", note.RecordID, "subject", note.Subject, "text", note.Text)
	return nil
}
