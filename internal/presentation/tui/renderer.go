package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// If the renderer cannot be built the markdown is returned unchanged.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}
	return r.Render
}

// ReportMarkdown renders a session report as markdown.
func ReportMarkdown(v View) string {
	var b strings.Builder

	code := v.State.Code
	if code == "" {
		code = "none"
	}
	fmt.Fprintf(&b, "# Session %s\n\n", code)
	fmt.Fprintf(&b, "**%s** (%s)\n\n", v.Label, v.State.Phase)

	if len(v.Resources) > 0 {
		b.WriteString("## Resources\n\n| Resource | Amount | Cap |\n|---|---:|---:|\n")
		for _, r := range v.Resources {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Key, formatAmount(r.Amount), formatCap(r.Cap))
		}
		b.WriteString("\n")
	}

	writeOffers(&b, "Incoming offers", v.Incoming)
	writeOffers(&b, "Sent offers", v.Outgoing)
	return b.String()
}
