package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/citylink/pkg/ports"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const envelopeVersion = 1

// ErrUndecryptable is returned by Get when a value is not an envelope or no key opens it.
var ErrUndecryptable = errors.New("value cannot be decrypted")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be chacha20poly1305.KeySize (32) bytes.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a value,
	// so peers can rotate keys one at a time.
	FallbackKeys [][]byte
}

// envelope is the stored shape of an encrypted value.
type envelope struct {
	V      int    `json:"v"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

type encryptionMiddleware struct {
	next   ports.KeyValueChannel
	config EncryptionConfig
}

// KeyFromPassphrase derives a 32-byte key with Argon2id. Every participant using
// the same passphrase and namespace derives the same key, so the salt is fixed
// per namespace rather than random.
func KeyFromPassphrase(passphrase, namespace string) []byte {
	salt := []byte("citylink/v1/" + namespace)
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

// NewEncryptionMiddleware creates a middleware that seals every value with
// ChaCha20-Poly1305. The key name is bound as additional data, so a value copied
// under another key fails to open. Keys and change signals pass through in clear.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != chacha20poly1305.KeySize {
		panic(fmt.Sprintf("active key must be %d bytes", chacha20poly1305.KeySize))
	}
	return func(next ports.KeyValueChannel) ports.KeyValueChannel {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := m.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.V == 0 || len(env.Cipher) == 0 {
		// Plain values are refused rather than passed through.
		return nil, fmt.Errorf("%w: %s is not an encrypted envelope", ErrUndecryptable, key)
	}
	if env.V > envelopeVersion {
		return nil, fmt.Errorf("%w: unsupported envelope version %d", ErrUndecryptable, env.V)
	}

	plain, err := openWithRotation(env, []byte(key), m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUndecryptable, key)
	}
	return plain, nil
}

func (m *encryptionMiddleware) Put(ctx context.Context, key string, value []byte) error {
	sealed, err := seal(value, []byte(key), m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	return m.next.Put(ctx, key, sealed)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, key string) error {
	return m.next.Delete(ctx, key)
}

func (m *encryptionMiddleware) Keys(ctx context.Context, prefix string) ([]string, error) {
	return m.next.Keys(ctx, prefix)
}

func (m *encryptionMiddleware) Subscribe(ctx context.Context, prefix string, fn func(key string)) (ports.Unsubscribe, error) {
	return m.next.Subscribe(ctx, prefix, fn)
}

// Helpers

func seal(plaintext, ad, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(envelope{
		V:      envelopeVersion,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plaintext, ad),
	})
}

func openWithRotation(env envelope, ad, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := open(env, ad, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := open(env, ad, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func open(env envelope, ad, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, errors.New("bad nonce size")
	}
	return aead.Open(nil, env.Nonce, env.Cipher, ad)
}
