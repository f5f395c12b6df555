package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ports"
)

// IDFunc generates offer identifiers.
type IDFunc func() string

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewOfferID returns "offer-<unix millis>-<4 base36 chars>". Unique enough within one session.
func NewOfferID() string {
	suffix := make([]byte, 4)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(idAlphabet))))
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % int64(len(idAlphabet)))
		}
		suffix[i] = idAlphabet[n.Int64()]
	}
	return "offer-" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + string(suffix)
}

// ValidateDraft checks a draft against the proposer's ledger: both amounts strictly
// positive, both resources known, and enough of the give resource held.
func ValidateDraft(d domain.Draft, resources ports.ResourceLedger) error {
	if d.GiveRes == "" || d.ReceiveRes == "" {
		return fmt.Errorf("%w: missing resource", domain.ErrInvalidOffer)
	}
	if !(d.GiveAmount > 0) || !(d.ReceiveAmount > 0) {
		return fmt.Errorf("%w: amounts must be positive", domain.ErrInvalidOffer)
	}
	if !resources.Known(d.GiveRes) || !resources.Known(d.ReceiveRes) {
		return fmt.Errorf("%w: unknown resource", domain.ErrInvalidOffer)
	}
	if resources.Amount(d.GiveRes) < d.GiveAmount {
		return fmt.Errorf("%w: need %s", domain.ErrInsufficient, d.Give())
	}
	return nil
}

// NewOffer builds a pending offer from one client to the other.
func NewOffer(from, to string, d domain.Draft, ids IDFunc) (domain.Offer, error) {
	if from == "" || to == "" || from == to {
		return domain.Offer{}, fmt.Errorf("%w: no counterparty", domain.ErrInvalidOffer)
	}
	if ids == nil {
		ids = NewOfferID
	}
	return domain.Offer{
		ID:        ids(),
		From:      from,
		To:        to,
		Status:    domain.OfferPending,
		Give:      d.Give(),
		Receive:   d.Receive(),
		Applied:   map[string]bool{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Accept settles a pending offer as accepted. The accepting client must currently
// hold the receive side, which it will hand over when the offer is applied.
// No resources move here.
func Accept(o *domain.Offer, resources ports.ResourceLedger) error {
	if o == nil {
		return domain.ErrOfferNotFound
	}
	if o.Status != domain.OfferPending {
		return domain.ErrOfferNotPending
	}
	if resources.Amount(o.Receive.Key) < o.Receive.Amount {
		return fmt.Errorf("%w: need %s", domain.ErrInsufficient, o.Receive)
	}
	o.Status = domain.OfferAccepted
	return nil
}

// Reject settles a pending offer as rejected.
func Reject(o *domain.Offer) error {
	if o == nil {
		return domain.ErrOfferNotFound
	}
	if o.Status != domain.OfferPending {
		return domain.ErrOfferNotPending
	}
	o.Status = domain.OfferRejected
	return nil
}

// Incoming lists pending offers addressed to clientID, oldest first.
func Incoming(s *domain.Session, clientID string) []domain.Offer {
	if s == nil {
		return nil
	}
	var out []domain.Offer
	for _, o := range s.Offers {
		if o.To == clientID && o.Status == domain.OfferPending {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Outgoing lists every offer proposed by clientID, in any status, oldest first.
func Outgoing(s *domain.Session, clientID string) []domain.Offer {
	if s == nil {
		return nil
	}
	var out []domain.Offer
	for _, o := range s.Offers {
		if o.From == clientID {
			out = append(out, o.Clone())
		}
	}
	return out
}
