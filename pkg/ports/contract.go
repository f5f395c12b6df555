package ports

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKeyValueChannelContract runs a suite of tests to verify that a KeyValueChannel
// implementation adheres to the defined interface contract.
//
// writer and watcher must share the same backing store, as two clients would.
func RunKeyValueChannelContract(t *testing.T, writer, watcher KeyValueChannel) {
	ctx := context.Background()
	prefix := "contract:" + time.Now().Format("20060102150405") + ":"

	t.Run("Put and Get", func(t *testing.T) {
		key := prefix + "roundtrip"
		require.NoError(t, writer.Put(ctx, key, []byte(`{"code":"A"}`)))

		val, err := watcher.Get(ctx, key)
		require.NoError(t, err, "Get should see the other client's write")
		assert.Equal(t, `{"code":"A"}`, string(val))

		require.NoError(t, writer.Put(ctx, key, []byte(`{"code":"B"}`)))
		val, err = writer.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, `{"code":"B"}`, string(val), "Put should replace the previous value")
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := writer.Get(ctx, prefix+"missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		key := prefix + "delete"
		require.NoError(t, writer.Put(ctx, key, []byte("x")))
		require.NoError(t, writer.Delete(ctx, key))

		_, err := watcher.Get(ctx, key)
		assert.ErrorIs(t, err, ErrKeyNotFound, "Get after Delete should return ErrKeyNotFound")

		assert.NoError(t, writer.Delete(ctx, key), "deleting an absent key is not an error")
	})

	t.Run("Keys", func(t *testing.T) {
		k1 := prefix + "keys-1"
		k2 := prefix + "keys-2"
		require.NoError(t, writer.Put(ctx, k1, []byte("1")))
		require.NoError(t, writer.Put(ctx, k2, []byte("2")))
		require.NoError(t, writer.Put(ctx, "elsewhere:"+prefix, []byte("3")))
		defer func() {
			_ = writer.Delete(ctx, k1)
			_ = writer.Delete(ctx, k2)
			_ = writer.Delete(ctx, "elsewhere:"+prefix)
		}()

		keys, err := watcher.Keys(ctx, prefix+"keys-")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{k1, k2}, keys)
	})

	t.Run("Subscribe", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var mu sync.Mutex
		seen := map[string]int{}
		unsubscribe, err := watcher.Subscribe(subCtx, prefix+"signal", func(key string) {
			mu.Lock()
			defer mu.Unlock()
			seen[key]++
		})
		require.NoError(t, err)
		defer unsubscribe()

		put := prefix + "signal-put"
		del := prefix + "signal-del"
		require.NoError(t, writer.Put(ctx, prefix+"unrelated", []byte("u")))
		require.NoError(t, writer.Put(ctx, put, []byte("p")))
		require.NoError(t, writer.Put(ctx, del, []byte("d")))
		require.NoError(t, writer.Delete(ctx, del))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return seen[put] > 0 && seen[del] > 0
		}, 3*time.Second, 20*time.Millisecond, "writes and deletes should be signalled")

		mu.Lock()
		assert.Zero(t, seen[prefix+"unrelated"], "keys outside the prefix must not be signalled")
		mu.Unlock()

		unsubscribe()
		unsubscribe()
	})
}
