package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/citylink/internal/logging"
	"github.com/aretw0/citylink/pkg/ports"
)

// ErrNotifierStarted is returned by Start when the notifier is already running.
var ErrNotifierStarted = errors.New("notifier already started")

// ChangeFunc handles a change signal for one session key.
type ChangeFunc func(ctx context.Context, key string)

// Notifier turns store change signals under a key prefix into callbacks. Whether a
// client's own writes come back as signals depends on the channel.
type Notifier struct {
	channel ports.KeyValueChannel
	prefix  string
	logger  *slog.Logger

	mu       sync.Mutex
	handlers []handler
	nextID   int
	unsub    ports.Unsubscribe
}

type handler struct {
	id int
	fn ChangeFunc
}

// NewNotifier creates a notifier for keys beginning with prefix.
func NewNotifier(channel ports.KeyValueChannel, prefix string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Notifier{
		channel: channel,
		prefix:  prefix,
		logger:  logger,
	}
}

// Register adds a handler and returns a function removing it. Handlers run in
// registration order.
func (n *Notifier) Register(fn ChangeFunc) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.handlers = append(n.handlers, handler{id: id, fn: fn})
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, h := range n.handlers {
			if h.id == id {
				n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
				return
			}
		}
	}
}

// Start subscribes to the channel. Signals stop when ctx ends or Stop is called.
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.unsub != nil {
		return ErrNotifierStarted
	}
	unsub, err := n.channel.Subscribe(ctx, n.prefix, func(key string) {
		n.dispatch(ctx, key)
	})
	if err != nil {
		return err
	}
	n.unsub = unsub
	n.logger.Debug("Change notifier started", "prefix", n.prefix)
	return nil
}

// Stop cancels the subscription. It is safe to call more than once.
func (n *Notifier) Stop() {
	n.mu.Lock()
	unsub := n.unsub
	n.unsub = nil
	n.mu.Unlock()
	if unsub != nil {
		unsub()
		n.logger.Debug("Change notifier stopped", "prefix", n.prefix)
	}
}

func (n *Notifier) dispatch(ctx context.Context, key string) {
	if !strings.HasPrefix(key, n.prefix) {
		return
	}
	n.mu.Lock()
	handlers := make([]handler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.Unlock()

	n.logger.Debug("Session key changed", "key", key)
	for _, h := range handlers {
		h.fn(ctx, key)
	}
}

// Attach resyncs c on every session change signal from n and returns a detach function.
// Any session key triggers a resync, not only the bound one.
func (c *Client) Attach(n *Notifier) func() {
	return n.Register(func(ctx context.Context, _ string) {
		c.Resync(ctx)
	})
}

// Watch resyncs c on every change under the store prefix until ctx ends.
func (c *Client) Watch(ctx context.Context) error {
	n := NewNotifier(c.store.Channel(), c.store.Prefix(), c.logger)
	detach := c.Attach(n)
	defer detach()
	if err := n.Start(ctx); err != nil {
		return err
	}
	defer n.Stop()
	<-ctx.Done()
	return nil
}
