/*
Package session implements one participant's side of a citylink pairing.

A Client is the explicit context object for a local participant: it owns the client
identifier, the bound session code, the cached session snapshot and the trade draft, and it
drives the host/join/disconnect state machine and the offer operations against a shared store.

Every operation follows the same cycle: mutate a snapshot, persist it, then Resync. Resync is
the single point where the peer's writes become visible: it reloads the record, recomputes the
local phase and applies any newly accepted offers to the local resource ledger. A Notifier
subscribed to the store triggers the same Resync whenever the peer writes, so no polling is
needed.

Operations on one Client are serialized; a notification arriving mid-operation waits for it.
*/
package session
