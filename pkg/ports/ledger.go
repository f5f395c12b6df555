package ports

import "github.com/aretw0/citylink/pkg/domain"

// ResourceLedger is the host application's view of one participant's resources.
type ResourceLedger interface {
	// Known reports whether key names a resource the ledger tracks.
	Known(key string) bool

	// Amount returns the current amount held of key.
	Amount(key string) float64

	// ApplyDelta adds delta (negative to debit) to key. bypassCap lets a credit
	// exceed the resource's storage cap. It returns false, with no effect, when
	// the change cannot be applied.
	ApplyDelta(key string, delta float64, bypassCap bool) bool
}

// Notifier receives user-visible notices. It is fire-and-forget.
type Notifier interface {
	Notify(message string, severity domain.Severity)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string, severity domain.Severity)

// Notify calls f.
func (f NotifierFunc) Notify(message string, severity domain.Severity) { f(message, severity) }

// ResourceCatalog is optionally implemented by ledgers that can enumerate their resources.
type ResourceCatalog interface {
	Keys() []string
}
