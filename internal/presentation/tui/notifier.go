package tui

import (
	"fmt"
	"io"
	"sync"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/muesli/termenv"
)

// Notifier prints notices as coloured lines, one per notice.
type Notifier struct {
	mu      sync.Mutex
	out     *termenv.Output
	profile termenv.Profile
}

// NewNotifier writes to w. Colour is only used when w is a terminal.
func NewNotifier(w io.Writer) *Notifier {
	profile := termenv.Ascii
	if IsTerminal(w) {
		profile = termenv.ColorProfile()
	}
	return &Notifier{
		out:     termenv.NewOutput(w, termenv.WithProfile(profile)),
		profile: profile,
	}
}

// Notify implements ports.Notifier.
func (n *Notifier) Notify(message string, severity domain.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prefix := "•"
	color := "#94a3b8"
	switch severity {
	case domain.SeveritySuccess:
		prefix, color = "✓", "#34d399"
	case domain.SeverityWarning:
		prefix, color = "!", "#fbbf24"
	case domain.SeverityError:
		prefix, color = "✗", "#f87171"
	}
	styled := n.out.String(prefix + " " + message).Foreground(n.profile.Color(color))
	fmt.Fprintln(n.out, styled)
}
