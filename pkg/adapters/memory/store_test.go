package memory_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryChannel_Contract(t *testing.T) {
	bus := memory.NewBus()
	ports.RunKeyValueChannelContract(t, bus.View("writer"), bus.View("watcher"))
}

func TestMemoryChannel_OwnWritesNotSignalled(t *testing.T) {
	bus := memory.NewBus()
	self := bus.View("self")
	peer := bus.View("peer")
	ctx := context.Background()

	var own, remote atomic.Int32
	unsubscribe, err := self.Subscribe(ctx, "k:", func(key string) {
		if key == "k:own" {
			own.Add(1)
		} else {
			remote.Add(1)
		}
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, self.Put(ctx, "k:own", []byte("1")))
	require.NoError(t, peer.Put(ctx, "k:remote", []byte("2")))

	assert.Eventually(t, func() bool { return remote.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Zero(t, own.Load())
}

func TestMemoryChannel_SubscriptionEndsWithContext(t *testing.T) {
	bus := memory.NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	_, err := bus.View("a").Subscribe(ctx, "", func(string) { calls.Add(1) })
	require.NoError(t, err)

	cancel()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, bus.View("b").Put(context.Background(), "x", []byte("1")))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestMemoryChannel_IsolatesValues(t *testing.T) {
	ch := memory.NewChannel()
	ctx := context.Background()

	val := []byte("abc")
	require.NoError(t, ch.Put(ctx, "k", val))
	val[0] = 'z'

	got, err := ch.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestLedger_ApplyDelta(t *testing.T) {
	l := memory.NewLedger(map[string]memory.Stock{
		"wood":  {Amount: 100, Cap: 150},
		"stone": {Amount: 10},
	})

	assert.True(t, l.Known("wood"))
	assert.False(t, l.Known("gold"))

	assert.False(t, l.ApplyDelta("stone", -11, false), "cannot debit below zero")
	assert.Equal(t, 10.0, l.Amount("stone"))

	assert.False(t, l.ApplyDelta("wood", 60, false), "cap applies without bypass")
	assert.True(t, l.ApplyDelta("wood", 60, true), "bypass lets a credit exceed the cap")
	assert.Equal(t, 160.0, l.Amount("wood"))

	assert.False(t, l.ApplyDelta("gold", 1, true), "unknown resources are refused")
	assert.Equal(t, []string{"stone", "wood"}, l.Keys())
}
