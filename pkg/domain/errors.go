package domain

import "errors"

// ErrSessionNotFound is returned when a code has no session in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrInvalidCode is returned when a session code is empty after normalization
// or does not resolve to a session.
var ErrInvalidCode = errors.New("invalid session code")

// ErrSessionFull is returned when both roles of a session are held by other clients.
var ErrSessionFull = errors.New("session is full")

// ErrNotConnected is returned by trade operations while the local client is not paired.
var ErrNotConnected = errors.New("not connected to a partner")

// ErrOfferNotFound is returned when an offer id is not present in the session.
var ErrOfferNotFound = errors.New("offer not found")

// ErrOfferNotPending is returned when accepting or rejecting an offer that already settled.
var ErrOfferNotPending = errors.New("offer is not pending")

// ErrInvalidOffer is returned for malformed amounts, unknown resources or a missing counterparty.
var ErrInvalidOffer = errors.New("invalid offer")

// ErrInsufficient is returned when the local ledger cannot cover a trade.
var ErrInsufficient = errors.New("insufficient resources")

// ErrApplyFailed is returned when an accepted offer could not be applied to the local ledger.
var ErrApplyFailed = errors.New("failed to apply trade")

// ErrConflict is returned by a store running with optimistic concurrency when the
// session changed since it was loaded. The operation may be retried after a resync.
var ErrConflict = errors.New("session changed concurrently")
