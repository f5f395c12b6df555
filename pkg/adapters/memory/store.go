package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/citylink/pkg/ports"
)

// Bus is an in-memory key-value store shared by several clients in one process.
// Each client talks to it through its own Channel view. Like a browser's storage
// event, a write is signalled to every subscriber except those on the writing view.
// Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	data   map[string][]byte
	subs   map[uint64]*subscription
	nextID uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		data: make(map[string][]byte),
		subs: make(map[uint64]*subscription),
	}
}

// View returns a Channel onto the bus identified by origin. Subscribers on a view
// are not signalled for writes made through a view with the same origin.
func (b *Bus) View(origin string) *Channel {
	return &Channel{bus: b, origin: origin}
}

// Channel implements ports.KeyValueChannel on top of a Bus.
type Channel struct {
	bus    *Bus
	origin string
}

var _ ports.KeyValueChannel = (*Channel)(nil)

// NewChannel creates a Channel on a private bus. Handy when only one client is involved.
func NewChannel() *Channel {
	return NewBus().View("")
}

// Origin returns the identity this view writes with.
func (c *Channel) Origin() string { return c.origin }

// Get returns a copy of the stored value.
func (c *Channel) Get(ctx context.Context, key string) ([]byte, error) {
	c.bus.mu.RLock()
	defer c.bus.mu.RUnlock()

	v, ok := c.bus.data[key]
	if !ok {
		return nil, ports.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value and signals other views.
func (c *Channel) Put(ctx context.Context, key string, value []byte) error {
	c.bus.mu.Lock()
	c.bus.data[key] = append([]byte(nil), value...)
	c.bus.mu.Unlock()

	c.bus.signal(c.origin, key)
	return nil
}

// Delete removes key and signals other views.
func (c *Channel) Delete(ctx context.Context, key string) error {
	c.bus.mu.Lock()
	_, existed := c.bus.data[key]
	delete(c.bus.data, key)
	c.bus.mu.Unlock()

	if existed {
		c.bus.signal(c.origin, key)
	}
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (c *Channel) Keys(ctx context.Context, prefix string) ([]string, error) {
	c.bus.mu.RLock()
	defer c.bus.mu.RUnlock()

	keys := make([]string, 0, len(c.bus.data))
	for k := range c.bus.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Subscribe registers fn for writes by other views under prefix. The subscription
// ends when the returned func is called or ctx is done.
func (c *Channel) Subscribe(ctx context.Context, prefix string, fn func(key string)) (ports.Unsubscribe, error) {
	sub := newSubscription(c.origin, prefix, fn)

	c.bus.mu.Lock()
	id := c.bus.nextID
	c.bus.nextID++
	c.bus.subs[id] = sub
	c.bus.mu.Unlock()

	go sub.run()

	unsubscribe := func() {
		c.bus.mu.Lock()
		delete(c.bus.subs, id)
		c.bus.mu.Unlock()
		sub.close()
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return unsubscribe, nil
}

func (b *Bus) signal(origin, key string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.origin == origin && origin != "" {
			continue
		}
		if strings.HasPrefix(key, sub.prefix) {
			sub.enqueue(key)
		}
	}
}
