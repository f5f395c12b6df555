package tui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ResourceLine is one row of the resource table.
type ResourceLine struct {
	Key    string  `json:"key"`
	Amount float64 `json:"amount"`
	Cap    float64 `json:"cap,omitempty"`
}

// View is everything the status screen shows.
type View struct {
	State     session.State  `json:"state"`
	Label     string         `json:"label"`
	Resources []ResourceLine `json:"resources"`
	Incoming  []domain.Offer `json:"incoming"`
	Outgoing  []domain.Offer `json:"outgoing"`
}

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	paired  lipgloss.Style
	waiting lipgloss.Style
	offline lipgloss.Style
	key     lipgloss.Style
	detail  lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		paired:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		waiting: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		key:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
	}
}

// RenderStatus draws the status screen.
func RenderStatus(v View) string {
	s := newStyles()

	label := s.offline
	switch {
	case v.State.Connected:
		label = s.paired
	case v.State.InSession:
		label = s.waiting
	}

	code := v.State.Code
	if code == "" {
		code = "-"
	}
	lines := []string{
		s.title.Render("citylink"),
		s.header.Render(fmt.Sprintf("client: %s  code: %s", v.State.ClientID, code)),
		label.Render(v.Label),
	}

	if len(v.Resources) > 0 {
		rows := make([]string, 0, len(v.Resources))
		for _, r := range v.Resources {
			rows = append(rows, s.key.Render(fmt.Sprintf("%-10s", r.Key))+" "+
				s.detail.Render(formatAmount(r.Amount)+" / "+formatCap(r.Cap)))
		}
		lines = append(lines, s.section.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	}

	lines = append(lines, s.section.Render(renderOffers("incoming", v.Incoming, s)))
	lines = append(lines, renderOffers("sent", v.Outgoing, s))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderOffers(title string, offers []domain.Offer, s styles) string {
	if len(offers) == 0 {
		return s.empty.Render(fmt.Sprintf("%s: none", title))
	}
	rows := []string{s.header.Render(title + ":")}
	for _, o := range offers {
		rows = append(rows, s.detail.Render(fmt.Sprintf("  %s  %s  [%s]", o.ID, o.Label(), o.Status)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func writeOffers(b *strings.Builder, title string, offers []domain.Offer) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if len(offers) == 0 {
		b.WriteString("_none_\n\n")
		return
	}
	for _, o := range offers {
		fmt.Fprintf(b, "- `%s` %s (%s)\n", o.ID, o.Label(), o.Status)
	}
	b.WriteString("\n")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCap(v float64) string {
	if v <= 0 {
		return "∞"
	}
	return formatAmount(v)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
