package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter_RenamesErrorKey(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, slog.LevelDebug)
	logger.Debug("boom", "error", "bad")
	assert.Contains(t, buf.String(), "err=bad")
	assert.NotContains(t, buf.String(), "error=bad")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNotifier_LevelsBySeverity(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(NewWithWriter(&buf, slog.LevelWarn))

	n.Notify("offer sent", domain.SeveritySuccess)
	assert.Empty(t, buf.String(), "success notices log at info")

	n.Notify("trade failed", domain.SeverityWarning)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="trade failed"`)
	assert.Contains(t, buf.String(), "severity=warning")
}
