/*
Package ledger implements the trade-offer half of a session: creating offers, settling them,
and applying accepted offers to each participant's own resource ledger.

Application is idempotent per client. Every participant applies its own half of an accepted
offer once, the first time it observes the accepted status, and records itself in the offer's
applied set. Which client accepted does not matter.
*/
package ledger
