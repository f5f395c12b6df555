/*
Package ports defines the driven ports (interfaces) of citylink.

These interfaces decouple the session and offer logic from the surrounding system, so the
shared store, the host's resource ledger and the notice sink can be swapped for tests.

# Key Interfaces

  - KeyValueChannel: the shared store used as transport, with change subscriptions.
  - ResourceLedger: the host application's resources (check amount, apply a signed delta).
  - Notifier: fire-and-forget user notices.
  - DistributedLocker: optional cross-process lock around session read-modify-write.
*/
package ports
