package tui

import (
	"bytes"
	"testing"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/session"
	"github.com/stretchr/testify/assert"
)

func sampleView() View {
	return View{
		State: session.State{
			ClientID:  "H",
			Code:      "483920",
			Phase:     domain.PhasePaired,
			InSession: true,
			Connected: true,
		},
		Label:     "Connected to G",
		Resources: []ResourceLine{{Key: "wood", Amount: 400, Cap: 1000}, {Key: "stone", Amount: 60}},
		Incoming: []domain.Offer{{
			ID:      "offer-1-aaaa",
			Status:  domain.OfferPending,
			Give:    domain.Resource{Key: "food", Amount: 5},
			Receive: domain.Resource{Key: "wood", Amount: 10},
		}},
	}
}

func TestNotifier_PlainWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	n := NewNotifier(&buf)

	n.Notify("Trade offer sent.", domain.SeveritySuccess)
	n.Notify("Trade failed.", domain.SeverityWarning)

	assert.Equal(t, "✓ Trade offer sent.\n! Trade failed.\n", buf.String())
}

func TestRenderStatus(t *testing.T) {
	out := RenderStatus(sampleView())
	assert.Contains(t, out, "483920")
	assert.Contains(t, out, "Connected to G")
	assert.Contains(t, out, "400 / 1000")
	assert.Contains(t, out, "60 / ∞")
	assert.Contains(t, out, "5 food for 10 wood")
	assert.Contains(t, out, "sent: none")
}

func TestReportMarkdown(t *testing.T) {
	md := ReportMarkdown(sampleView())
	assert.Contains(t, md, "# Session 483920")
	assert.Contains(t, md, "| wood | 400 | 1000 |")
	assert.Contains(t, md, "- `offer-1-aaaa` 5 food for 10 wood (pending)")
	assert.Contains(t, md, "## Sent offers\n\n_none_")

	rendered, err := NewRenderer()(md)
	assert.NoError(t, err)
	assert.Contains(t, rendered, "483920")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf)
	assert.Contains(t, buf.String(), "___")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
