package session

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ledger"
	"github.com/aretw0/citylink/pkg/ports"
)

// Option configures a Client.
type Option func(*Client)

// WithClientID sets a stable client identifier. Without it a fresh one is generated.
func WithClientID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.id = id
		}
	}
}

// WithLogger configures a logger for the Client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier sets the sink for user-visible notices.
func WithNotifier(n ports.Notifier) Option {
	return func(c *Client) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMessages overrides notice texts.
func WithMessages(messages map[Message]string) Option {
	return func(c *Client) {
		for k, v := range messages {
			c.messages[k] = v
		}
	}
}

// WithApplyPolicy chooses how partial transfer failures are handled.
func WithApplyPolicy(p ledger.Policy) Option {
	return func(c *Client) {
		if p != "" {
			c.policy = p
		}
	}
}

// WithCodeGenerator replaces the random session code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(c *Client) {
		if gen != nil {
			c.codes = gen
		}
	}
}

// WithOfferIDs replaces the offer id generator.
func WithOfferIDs(ids ledger.IDFunc) Option {
	return func(c *Client) {
		if ids != nil {
			c.offerIDs = ids
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *Client) {
		c.hooks = hooks
	}
}

// WithBinding restores a previously bound code, e.g. from a local profile.
func WithBinding(code, joinCode string) Option {
	return func(c *Client) {
		c.code = code
		c.joinCode = joinCode
	}
}

// WithAppliedOffers restores the ids of offers this client already applied.
func WithAppliedOffers(ids []string) Option {
	return func(c *Client) {
		for _, id := range ids {
			c.applied[id] = true
		}
	}
}

// RandomCode returns a numeric code in [domain.CodeMin, domain.CodeMax].
func RandomCode() string {
	span := big.NewInt(domain.CodeMax - domain.CodeMin + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return strconv.Itoa(domain.CodeMin)
	}
	return strconv.FormatInt(n.Int64()+domain.CodeMin, 10)
}
