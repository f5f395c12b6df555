package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/citylink/pkg/domain"
)

// Aggregator combines multiple hook sets into a single one.
type Aggregator struct {
	hooks []domain.LifecycleHooks
}

// NewAggregator creates a new aggregator.
func NewAggregator(hooks ...domain.LifecycleHooks) *Aggregator {
	return &Aggregator{hooks: hooks}
}

// Add registers another hook set. Hooks run in registration order.
func (a *Aggregator) Add(h domain.LifecycleHooks) {
	a.hooks = append(a.hooks, h)
}

// Hooks returns hooks that fan every event out to all registered sets.
func (a *Aggregator) Hooks() domain.LifecycleHooks {
	hooks := append([]domain.LifecycleHooks(nil), a.hooks...)
	session := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.SessionEvent)) func(context.Context, *domain.SessionEvent) {
		return func(ctx context.Context, e *domain.SessionEvent) {
			for _, h := range hooks {
				if fn := pick(h); fn != nil {
					fn(ctx, e)
				}
			}
		}
	}
	offer := func(pick func(domain.LifecycleHooks) func(context.Context, *domain.OfferEvent)) func(context.Context, *domain.OfferEvent) {
		return func(ctx context.Context, e *domain.OfferEvent) {
			for _, h := range hooks {
				if fn := pick(h); fn != nil {
					fn(ctx, e)
				}
			}
		}
	}
	return domain.LifecycleHooks{
		OnSessionJoined: session(func(h domain.LifecycleHooks) func(context.Context, *domain.SessionEvent) { return h.OnSessionJoined }),
		OnSessionLeft:   session(func(h domain.LifecycleHooks) func(context.Context, *domain.SessionEvent) { return h.OnSessionLeft }),
		OnResync:        session(func(h domain.LifecycleHooks) func(context.Context, *domain.SessionEvent) { return h.OnResync }),
		OnConflict:      session(func(h domain.LifecycleHooks) func(context.Context, *domain.SessionEvent) { return h.OnConflict }),
		OnOfferSent:     offer(func(h domain.LifecycleHooks) func(context.Context, *domain.OfferEvent) { return h.OnOfferSent }),
		OnOfferSettled:  offer(func(h domain.LifecycleHooks) func(context.Context, *domain.OfferEvent) { return h.OnOfferSettled }),
		OnOfferApplied:  offer(func(h domain.LifecycleHooks) func(context.Context, *domain.OfferEvent) { return h.OnOfferApplied }),
	}
}

// LoggingHooks logs every lifecycle event. Resyncs are logged at debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnSessionJoined: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_joined", "code", e.Code, "role", e.Role, "phase", e.Phase)
		},
		OnSessionLeft: func(ctx context.Context, e *domain.SessionEvent) {
			logger.InfoContext(ctx, "session_left", "code", e.Code, "role", e.Role)
		},
		OnResync: func(ctx context.Context, e *domain.SessionEvent) {
			logger.DebugContext(ctx, "resync", "code", e.Code, "phase", e.Phase)
		},
		OnConflict: func(ctx context.Context, e *domain.SessionEvent) {
			logger.WarnContext(ctx, "conflict", "code", e.Code)
		},
		OnOfferSent: func(ctx context.Context, e *domain.OfferEvent) {
			logger.InfoContext(ctx, "offer_sent", "code", e.Code, "offer_id", e.Offer.ID, "offer", e.Offer.Label())
		},
		OnOfferSettled: func(ctx context.Context, e *domain.OfferEvent) {
			logger.InfoContext(ctx, "offer_settled", "code", e.Code, "offer_id", e.Offer.ID, "status", e.Offer.Status)
		},
		OnOfferApplied: func(ctx context.Context, e *domain.OfferEvent) {
			if e.IsError {
				logger.WarnContext(ctx, "offer_apply_failed", "code", e.Code, "err", e.Err)
				return
			}
			logger.InfoContext(ctx, "offer_applied", "code", e.Code, "offer_id", e.Offer.ID, "offer", e.Offer.Label())
		},
	}
}
