package domain

import (
	"fmt"
	"strconv"
	"time"
)

// OfferStatus is the lifecycle position of an offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// Terminal reports whether the status can no longer change.
func (s OfferStatus) Terminal() bool {
	return s == OfferAccepted || s == OfferRejected
}

// Resource is an amount of one resource key.
type Resource struct {
	Key    string  `json:"res"`
	Amount float64 `json:"amount"`
}

func (r Resource) String() string {
	return strconv.FormatFloat(r.Amount, 'f', -1, 64) + " " + r.Key
}

// Offer is one proposed exchange. Give is what From surrenders, Receive is what From gains.
type Offer struct {
	ID      string          `json:"id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Status  OfferStatus     `json:"status"`
	Give    Resource        `json:"give"`
	Receive Resource        `json:"receive"`
	Applied map[string]bool `json:"applied"`

	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// IsApplied reports whether clientID already applied this offer to its ledger.
func (o *Offer) IsApplied(clientID string) bool {
	return o.Applied[clientID]
}

// MarkApplied records clientID in the applied set. The set only grows.
func (o *Offer) MarkApplied(clientID string) {
	if o.Applied == nil {
		o.Applied = make(map[string]bool)
	}
	o.Applied[clientID] = true
}

// Label renders the offer as "<give> for <receive>".
func (o *Offer) Label() string {
	return fmt.Sprintf("%s for %s", o.Give, o.Receive)
}

// Clone returns a copy with its own applied set.
func (o Offer) Clone() Offer {
	c := o
	if o.Applied != nil {
		c.Applied = make(map[string]bool, len(o.Applied))
		for k, v := range o.Applied {
			c.Applied[k] = v
		}
	}
	return c
}

// Draft is the offer a participant is composing before sending it.
type Draft struct {
	GiveRes       string  `json:"giveRes"`
	GiveAmount    float64 `json:"giveAmount"`
	ReceiveRes    string  `json:"receiveRes"`
	ReceiveAmount float64 `json:"receiveAmount"`
}

// Give returns the give side as a Resource.
func (d Draft) Give() Resource { return Resource{Key: d.GiveRes, Amount: d.GiveAmount} }

// Receive returns the receive side as a Resource.
func (d Draft) Receive() Resource { return Resource{Key: d.ReceiveRes, Amount: d.ReceiveAmount} }
