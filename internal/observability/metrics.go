package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citylink",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Session lifecycle events seen by the local client.",
		},
		[]string{"type", "role"},
	)
	offerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citylink",
			Subsystem: "offer",
			Name:      "events_total",
			Help:      "Offer events seen by the local client.",
		},
		[]string{"type", "status", "success"},
	)
	phase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "citylink",
			Subsystem: "session",
			Name:      "phase",
			Help:      "1 for the local client's current connection phase, 0 otherwise.",
		},
		[]string{"phase"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "citylink",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "citylink",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var phases = []domain.Phase{
	domain.PhaseDisconnected,
	domain.PhaseHosting,
	domain.PhaseGuesting,
	domain.PhasePaired,
}

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionEvents, offerEvents, phase, httpRequests, httpDuration)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordPhase(p domain.Phase) {
	RegisterMetrics()
	for _, candidate := range phases {
		v := 0.0
		if candidate == p {
			v = 1
		}
		phase.WithLabelValues(string(candidate)).Set(v)
	}
}

// Hooks records every lifecycle event as a metric.
func Hooks() domain.LifecycleHooks {
	RegisterMetrics()
	session := func(ctx context.Context, e *domain.SessionEvent) {
		sessionEvents.WithLabelValues(string(e.Type), e.Role).Inc()
		if e.Type != domain.EventConflict {
			RecordPhase(e.Phase)
		}
	}
	offer := func(ctx context.Context, e *domain.OfferEvent) {
		offerEvents.WithLabelValues(string(e.Type), string(e.Offer.Status), strconv.FormatBool(!e.IsError)).Inc()
	}
	return domain.LifecycleHooks{
		OnSessionJoined: session,
		OnSessionLeft:   session,
		OnResync:        session,
		OnConflict:      session,
		OnOfferSent:     offer,
		OnOfferSettled:  offer,
		OnOfferApplied:  offer,
	}
}
