/*
Package citylink links two players of a city-building game through a shared
key-value store so they can trade resources.

One participant hosts a session under a short numeric code, the other joins it
with that code, and from then on both exchange trade offers that are written to
the same session record. Each side applies an accepted offer to its own
resource ledger exactly once.

# Layout

  - pkg/domain: session, offer and event types.
  - pkg/ports: the KeyValueChannel, ResourceLedger, Notifier and DistributedLocker contracts.
  - pkg/store: versioned session records on top of any KeyValueChannel.
  - pkg/ledger: offer validation, settlement and application policies.
  - pkg/session: the Client tying the above together, plus a change Notifier.
  - pkg/adapters: memory, file and Redis channels, and the HTTP and MCP surfaces.

# Usage

	bus := memory.NewBus()
	host := session.NewClient(store.New(bus.View("host")), memory.NewLedgerFromAmounts(map[string]float64{"wood": 500}))
	code, err := host.Host(ctx, "")

The citylink command in cmd/citylink wires the same pieces to a config file,
a local profile and a terminal UI.
*/
package citylink
