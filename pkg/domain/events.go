package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventSessionJoined EventType = "session_joined"
	EventSessionLeft   EventType = "session_left"
	EventResync        EventType = "resync"
	EventOfferSent     EventType = "offer_sent"
	EventOfferSettled  EventType = "offer_settled"
	EventOfferApplied  EventType = "offer_applied"
	EventConflict      EventType = "conflict"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ClientID  string    `json:"client_id"`
	Code      string    `json:"code"`
}

// SessionEvent reports a role change or a resync of the local client.
type SessionEvent struct {
	EventBase
	Phase Phase  `json:"phase"`
	Role  string `json:"role,omitempty"` // "host" or "guest" on join/leave
}

// OfferEvent reports a change to one offer.
type OfferEvent struct {
	EventBase
	Offer   Offer `json:"offer"`
	IsError bool  `json:"is_error,omitempty"`
	Err     error `json:"-"`
}

// LifecycleHooks defines callbacks for session observability.
type LifecycleHooks struct {
	OnSessionJoined func(context.Context, *SessionEvent)
	OnSessionLeft   func(context.Context, *SessionEvent)
	OnResync        func(context.Context, *SessionEvent)
	OnOfferSent     func(context.Context, *OfferEvent)
	OnOfferSettled  func(context.Context, *OfferEvent)
	OnOfferApplied  func(context.Context, *OfferEvent)
	OnConflict      func(context.Context, *SessionEvent)
}

// NewEventBase stamps an event header.
func NewEventBase(t EventType, clientID, code string) EventBase {
	return EventBase{
		Timestamp: time.Now(),
		Type:      t,
		ClientID:  clientID,
		Code:      code,
	}
}
