/*
Package domain contains the core models of a citylink trading pairing.

It defines the shared Session record that two clients read and write through a key-value
store, the Offers exchanged inside it, and the locally derived connection state of one
participant. This package is kept pure and free of I/O; stores, ledgers and transports live
behind the interfaces in package ports.

# Key Entities

  - Session: the shared record pairing a host and a guest under one normalized code.
  - Offer: a proposed two-resource exchange with lifecycle pending -> accepted/rejected.
  - Resource: a resource key and a positive amount.
  - Phase: the local connection phase derived from a reloaded Session.
  - Draft: the trade offer a participant is composing before sending it.
*/
package domain
