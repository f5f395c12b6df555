package memory

import (
	"sort"
	"sync"

	"github.com/aretw0/citylink/pkg/ports"
)

// Stock is one resource held by a Ledger. A zero Cap means uncapped.
type Stock struct {
	Amount float64 `json:"amount" yaml:"amount"`
	Cap    float64 `json:"cap,omitempty" yaml:"cap,omitempty"`
}

// Ledger implements ports.ResourceLedger in memory.
// Safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	stocks map[string]Stock
}

var _ ports.ResourceLedger = (*Ledger)(nil)

// NewLedger creates a ledger holding a copy of stocks.
func NewLedger(stocks map[string]Stock) *Ledger {
	l := &Ledger{stocks: make(map[string]Stock, len(stocks))}
	for k, v := range stocks {
		l.stocks[k] = v
	}
	return l
}

// NewLedgerFromAmounts creates an uncapped ledger from plain amounts.
func NewLedgerFromAmounts(amounts map[string]float64) *Ledger {
	stocks := make(map[string]Stock, len(amounts))
	for k, v := range amounts {
		stocks[k] = Stock{Amount: v}
	}
	return NewLedger(stocks)
}

// Known reports whether key is tracked.
func (l *Ledger) Known(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.stocks[key]
	return ok
}

// Amount returns the amount held of key, 0 when unknown.
func (l *Ledger) Amount(key string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stocks[key].Amount
}

// ApplyDelta adds delta to key. Debits below zero and credits above the cap
// (unless bypassCap) are refused without effect.
func (l *Ledger) ApplyDelta(key string, delta float64, bypassCap bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.stocks[key]
	if !ok {
		return false
	}
	next := s.Amount + delta
	if next < 0 {
		return false
	}
	if delta > 0 && !bypassCap && s.Cap > 0 && next > s.Cap {
		return false
	}
	s.Amount = next
	l.stocks[key] = s
	return true
}

// Keys returns the tracked resource keys, sorted.
func (l *Ledger) Keys() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	keys := make([]string, 0, len(l.stocks))
	for k := range l.stocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stocks returns a copy of every tracked resource.
func (l *Ledger) Stocks() map[string]Stock {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Stock, len(l.stocks))
	for k, v := range l.stocks {
		out[k] = v
	}
	return out
}
