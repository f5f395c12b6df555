package logging

import (
	"context"
	"log/slog"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ports"
)

// Notifier writes user notices to a logger, at a level matching their severity.
type Notifier struct {
	logger *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier on top of logger.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = NewNop()
	}
	return &Notifier{logger: logger}
}

// Notify logs message with its severity.
func (n *Notifier) Notify(message string, severity domain.Severity) {
	level := slog.LevelInfo
	switch severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityError:
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, message, "severity", string(severity))
}
