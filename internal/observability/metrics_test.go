package observability

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/status", 200, 12*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/status", "200")))
}

func TestHooksRecordEvents(t *testing.T) {
	hooks := Hooks()
	ctx := context.Background()

	hooks.OnSessionJoined(ctx, &domain.SessionEvent{
		EventBase: domain.NewEventBase(domain.EventSessionJoined, "H", "AB12"),
		Phase:     domain.PhaseHosting,
		Role:      "host",
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionEvents.WithLabelValues("session_joined", "host")))
	assert.Equal(t, 1.0, testutil.ToFloat64(phase.WithLabelValues("hosting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(phase.WithLabelValues("paired")))

	hooks.OnOfferApplied(ctx, &domain.OfferEvent{
		EventBase: domain.NewEventBase(domain.EventOfferApplied, "H", "AB12"),
		Offer:     domain.Offer{Status: domain.OfferAccepted},
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(offerEvents.WithLabelValues("offer_applied", "accepted", "true")))
}
