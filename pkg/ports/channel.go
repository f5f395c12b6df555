package ports

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by KeyValueChannel.Get when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Unsubscribe cancels a subscription. It is safe to call more than once.
type Unsubscribe func()

// KeyValueChannel is a shared key-value store used as a low-bandwidth transport
// between clients that have no direct link. Writes made by one client become
// change signals for the others.
type KeyValueChannel interface {
	// Get returns the raw value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists the stored keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Subscribe registers fn to be called with the key of every write or delete
	// whose key starts with prefix. Implementations deliver asynchronously, so fn
	// may call back into the channel. Whether a subscriber observes writes made
	// through its own channel is implementation specific.
	Subscribe(ctx context.Context, prefix string, fn func(key string)) (Unsubscribe, error)
}
