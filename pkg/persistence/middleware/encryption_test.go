package middleware_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/aretw0/citylink/pkg/adapters/memory"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/persistence/middleware"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/aretw0/citylink/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewChannel()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	require.NoError(t, secure.Put(ctx, "k", []byte(`{"secret":"wood"}`)))

	raw, err := underlying.Get(ctx, "k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "wood", "payload must be sealed at rest")
	assert.Contains(t, string(raw), `"cipher"`)

	plain, err := secure.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"secret":"wood"}`, string(plain))

	keys, err := secure.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	bus := memory.NewBus()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey: middleware.KeyFromPassphrase("open sesame", "test"),
	})
	ports.RunKeyValueChannelContract(t, mw(bus.View("a")), mw(bus.View("b")))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewChannel()
	oldKey, newKey := generateKey(t), generateKey(t)

	secureOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	require.NoError(t, secureOld.Put(ctx, "k", []byte("old")))

	secureNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	plain, err := secureNew.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "old", string(plain))

	require.NoError(t, secureNew.Put(ctx, "k", []byte("new")))
	_, err = secureOld.Get(ctx, "k")
	assert.ErrorIs(t, err, middleware.ErrUndecryptable)
}

func TestEncryptionMiddleware_RejectsTamperedAndPlainValues(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewChannel()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)

	require.NoError(t, underlying.Put(ctx, "plain", []byte(`{"code":"AB12"}`)))
	_, err := secure.Get(ctx, "plain")
	assert.ErrorIs(t, err, middleware.ErrUndecryptable)

	// A sealed value moved under another key does not open.
	require.NoError(t, secure.Put(ctx, "a", []byte("x")))
	raw, err := underlying.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, underlying.Put(ctx, "b", raw))
	_, err = secure.Get(ctx, "b")
	assert.ErrorIs(t, err, middleware.ErrUndecryptable)

	_, err = secure.Get(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrKeyNotFound)
}

func TestEncryptionMiddleware_UndecryptableSessionReadsAsAbsent(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewChannel()
	mine := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	theirs := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	require.NoError(t, store.New(mine(underlying)).Save(ctx, "AB12", domain.NewSession("AB12", "H")))

	_, ok := store.New(mine(underlying)).Load(ctx, "AB12")
	assert.True(t, ok)
	_, ok = store.New(theirs(underlying)).Load(ctx, "AB12")
	assert.False(t, ok)
}

func TestKeyFromPassphrase(t *testing.T) {
	a := middleware.KeyFromPassphrase("pw", "ns")
	assert.Len(t, a, 32)
	assert.Equal(t, a, middleware.KeyFromPassphrase("pw", "ns"))
	assert.NotEqual(t, a, middleware.KeyFromPassphrase("pw", "other"))
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	underlying := memory.NewChannel()
	k1, k2 := generateKey(t), generateKey(t)
	ch := middleware.Chain(underlying,
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: k1}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: k2}),
	)
	require.NoError(t, ch.Put(ctx, "k", []byte("v")))
	v, err := ch.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}
