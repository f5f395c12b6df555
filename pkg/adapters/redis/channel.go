package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/citylink/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// DefaultEventsChannel is the pub/sub channel change signals are published on.
const DefaultEventsChannel = "citylink:events"

// change is the payload published for every write or delete.
type change struct {
	Key    string `json:"key"`
	Origin string `json:"origin"`
}

// Channel implements ports.KeyValueChannel on Redis. Values are plain string keys;
// every write is announced on a pub/sub channel tagged with the writer's origin,
// and subscribers drop announcements carrying their own origin.
type Channel struct {
	client *backend.Client
	origin string
	events string
	ttl    time.Duration
}

var _ ports.KeyValueChannel = (*Channel)(nil)

type Option func(*Channel)

// WithTTL sets the expiration for stored values.
func WithTTL(ttl time.Duration) Option {
	return func(c *Channel) {
		c.ttl = ttl
	}
}

// WithOrigin sets the identity writes are announced with. Defaults to a random one.
func WithOrigin(origin string) Option {
	return func(c *Channel) {
		if origin != "" {
			c.origin = origin
		}
	}
}

// WithEventsChannel sets the pub/sub channel used for change signals.
func WithEventsChannel(name string) Option {
	return func(c *Channel) {
		if name != "" {
			c.events = name
		}
	}
}

// New creates a Redis channel with options.
func New(address, password string, db int, opts ...Option) *Channel {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis channel from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Channel {
	c := &Channel{
		client: client,
		origin: uuid.NewString(),
		events: DefaultEventsChannel,
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Client exposes the underlying client, e.g. to build a Locker on it.
func (c *Channel) Client() *backend.Client { return c.client }

// Origin returns the identity this channel writes with.
func (c *Channel) Origin() string { return c.origin }

// Get returns the raw value under key.
func (c *Channel) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ports.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return val, nil
}

// Put stores value and announces the change.
func (c *Channel) Put(ctx context.Context, key string, value []byte) error {
	msg, err := c.announcement(key)
	if err != nil {
		return err
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, value, c.ttl)
	pipe.Publish(ctx, c.events, msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes key, announcing the change only if something was removed.
func (c *Channel) Delete(ctx context.Context, key string) error {
	n, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	if n == 0 {
		return nil
	}
	msg, err := c.announcement(key)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.events, msg).Err()
}

// Keys scans for keys starting with prefix.
func (c *Channel) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, escapePattern(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan redis keys: %w", err)
	}
	return keys, nil
}

// Subscribe listens on the events channel for changes under prefix made by other
// origins. It returns once the subscription is confirmed by the server.
func (c *Channel) Subscribe(ctx context.Context, prefix string, fn func(key string)) (ports.Unsubscribe, error) {
	pubsub := c.client.Subscribe(ctx, c.events)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.events, err)
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var ev change
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				if ev.Origin == c.origin || !strings.HasPrefix(ev.Key, prefix) {
					continue
				}
				fn(ev.Key)
			}
		}
	}()

	return unsubscribe, nil
}

// Close closes the redis client.
func (c *Channel) Close() error {
	return c.client.Close()
}

func (c *Channel) announcement(key string) ([]byte, error) {
	msg, err := json.Marshal(change{Key: key, Origin: c.origin})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change: %w", err)
	}
	return msg, nil
}

// escapePattern quotes glob metacharacters for SCAN MATCH.
func escapePattern(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
