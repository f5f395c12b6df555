package ledger

import (
	"fmt"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ports"
)

// Policy decides what happens when one half of a transfer fails.
type Policy string

const (
	// Atomic applies both halves or neither. A failed credit rolls back the debit
	// and the client is not marked applied, so the next resync retries.
	Atomic Policy = "atomic"

	// BestEffort attempts both halves independently and marks the client applied
	// regardless of the outcome.
	BestEffort Policy = "best-effort"
)

// ParsePolicy maps a configuration string onto a Policy, defaulting to Atomic.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", Atomic:
		return Atomic, nil
	case BestEffort:
		return BestEffort, nil
	}
	return "", fmt.Errorf("unknown apply policy %q", s)
}

// Apply moves resources for an accepted offer on clientID's ledger, at most once per client.
// The proposer debits give and credits receive; the counterparty does the opposite.
// It reports whether the offer was newly marked applied for clientID.
func Apply(o *domain.Offer, clientID string, resources ports.ResourceLedger, policy Policy) (bool, error) {
	if o == nil || o.Status != domain.OfferAccepted || clientID == "" {
		return false, nil
	}
	if o.IsApplied(clientID) {
		return false, nil
	}

	var debit, credit domain.Resource
	switch clientID {
	case o.From:
		debit, credit = o.Give, o.Receive
	case o.To:
		debit, credit = o.Receive, o.Give
	default:
		return false, nil
	}

	// Unknown resources or an uncovered debit leave the offer unapplied for a later pass.
	if !resources.Known(debit.Key) || !resources.Known(credit.Key) {
		return false, fmt.Errorf("%w: offer %s: unknown resource", domain.ErrApplyFailed, o.ID)
	}
	if resources.Amount(debit.Key) < debit.Amount {
		return false, fmt.Errorf("%w: offer %s: need %s", domain.ErrInsufficient, o.ID, debit)
	}

	if policy == BestEffort {
		okDebit := resources.ApplyDelta(debit.Key, -debit.Amount, true)
		okCredit := okDebit && resources.ApplyDelta(credit.Key, credit.Amount, true)
		o.MarkApplied(clientID)
		if !okDebit || !okCredit {
			return true, fmt.Errorf("%w: offer %s (debit ok: %t, credit ok: %t)", domain.ErrApplyFailed, o.ID, okDebit, okCredit)
		}
		return true, nil
	}

	if !resources.ApplyDelta(debit.Key, -debit.Amount, true) {
		return false, fmt.Errorf("%w: offer %s: cannot debit %s", domain.ErrApplyFailed, o.ID, debit)
	}
	if !resources.ApplyDelta(credit.Key, credit.Amount, true) {
		if !resources.ApplyDelta(debit.Key, debit.Amount, true) {
			return false, fmt.Errorf("%w: offer %s: cannot credit %s and rollback of %s failed", domain.ErrApplyFailed, o.ID, credit, debit)
		}
		return false, fmt.Errorf("%w: offer %s: cannot credit %s", domain.ErrApplyFailed, o.ID, credit)
	}
	o.MarkApplied(clientID)
	return true, nil
}

// ApplyAll applies every accepted offer in s for clientID. It returns the offers newly
// marked applied and the errors met along the way; one failure does not stop the pass.
func ApplyAll(s *domain.Session, clientID string, resources ports.ResourceLedger, policy Policy) ([]domain.Offer, []error) {
	if s == nil {
		return nil, nil
	}
	var applied []domain.Offer
	var errs []error
	for i := range s.Offers {
		o := &s.Offers[i]
		if o.Status != domain.OfferAccepted {
			continue
		}
		marked, err := Apply(o, clientID, resources, policy)
		if err != nil {
			errs = append(errs, err)
		}
		if marked {
			applied = append(applied, o.Clone())
		}
	}
	return applied, errs
}
