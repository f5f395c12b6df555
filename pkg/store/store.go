package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/citylink/internal/logging"
	"github.com/aretw0/citylink/pkg/domain"
	"github.com/aretw0/citylink/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 5 * time.Second

// Store reads and writes session records keyed by normalized code.
type Store struct {
	channel ports.KeyValueChannel
	prefix  string

	optimistic bool
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	logger     *slog.Logger

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active per-key locks
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix sets the fixed key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithOptimisticConcurrency rejects saves whose base version is stale.
func WithOptimisticConcurrency() Option {
	return func(s *Store) {
		s.optimistic = true
	}
}

// WithLocker serializes saves of one code across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(s *Store) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Store on top of channel.
func New(channel ports.KeyValueChannel, opts ...Option) *Store {
	s := &Store{
		channel: channel,
		prefix:  domain.DefaultKeyPrefix,
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		locks:   make(map[string]*lockEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeCode trims surrounding whitespace and upper-cases a user-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Prefix returns the fixed key prefix.
func (s *Store) Prefix() string { return s.prefix }

// Optimistic reports whether stale saves are rejected.
func (s *Store) Optimistic() bool { return s.optimistic }

// Channel returns the underlying channel.
func (s *Store) Channel() ports.KeyValueChannel { return s.channel }

// Key derives the record key of a code.
func (s *Store) Key(code string) string {
	return s.prefix + NormalizeCode(code)
}

// IsSessionKey reports whether key names a session record.
func (s *Store) IsSessionKey(key string) bool {
	return strings.HasPrefix(key, s.prefix)
}

// CodeFromKey returns the normalized code a record key was derived from.
func (s *Store) CodeFromKey(key string) string {
	return strings.TrimPrefix(key, s.prefix)
}

// Load returns the session stored under code. A missing key, a transport error,
// a malformed payload or a record whose code does not match all yield (nil, false).
func (s *Store) Load(ctx context.Context, code string) (*domain.Session, bool) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, false
	}
	raw, err := s.channel.Get(ctx, s.prefix+normalized)
	if err != nil {
		if !errors.Is(err, ports.ErrKeyNotFound) {
			s.logger.Warn("Session read failed, treating as absent", "code", normalized, "err", err)
		}
		return nil, false
	}
	return s.decode(normalized, raw)
}

func (s *Store) decode(normalized string, raw []byte) (*domain.Session, bool) {
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		s.logger.Warn("Corrupt session record, treating as absent", "code", normalized, "err", err)
		return nil, false
	}
	if sess.Code != normalized {
		s.logger.Warn("Session record code mismatch, treating as absent",
			"code", normalized,
			"record_code", sess.Code,
		)
		return nil, false
	}
	return &sess, true
}

// Save persists sess under code. A session with neither host nor guest is
// deleted instead. With optimistic concurrency the stored version must match
// sess.Version, which is then incremented.
func (s *Store) Save(ctx context.Context, code string, sess *domain.Session) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return domain.ErrInvalidCode
	}
	if sess == nil {
		return fmt.Errorf("save %s: nil session", normalized)
	}
	if sess.Code != normalized {
		return fmt.Errorf("save %s: record carries code %q: %w", normalized, sess.Code, domain.ErrInvalidCode)
	}

	return s.withLock(ctx, normalized, func(ctx context.Context) error {
		key := s.prefix + normalized
		if s.optimistic {
			if err := s.checkVersion(ctx, normalized, sess.Version); err != nil {
				return err
			}
		}

		if sess.Empty() {
			if err := s.channel.Delete(ctx, key); err != nil {
				return fmt.Errorf("failed to delete empty session %s: %w", normalized, err)
			}
			return nil
		}

		next := *sess
		if s.optimistic {
			next.Version++
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		if err := s.channel.Put(ctx, key, data); err != nil {
			return fmt.Errorf("failed to save session %s: %w", normalized, err)
		}
		sess.Version = next.Version
		return nil
	})
}

func (s *Store) checkVersion(ctx context.Context, normalized string, base int64) error {
	current, ok := s.Load(ctx, normalized)
	stored := int64(0)
	if ok {
		stored = current.Version
	}
	if (!ok && base != 0) || stored != base {
		s.logger.Debug("Stale session save rejected",
			"code", normalized,
			"base_version", base,
			"stored_version", stored,
		)
		return domain.ErrConflict
	}
	return nil
}

// Delete removes the session stored under code, regardless of its version.
func (s *Store) Delete(ctx context.Context, code string) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return domain.ErrInvalidCode
	}
	return s.withLock(ctx, normalized, func(ctx context.Context) error {
		return s.channel.Delete(ctx, s.prefix+normalized)
	})
}

// List returns the normalized codes of all stored sessions.
func (s *Store) List(ctx context.Context) ([]string, error) {
	keys, err := s.channel.Keys(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		codes = append(codes, s.CodeFromKey(k))
	}
	return codes, nil
}

// withLock executes fn while holding the in-process lock for code and, when
// configured, the distributed lock.
func (s *Store) withLock(ctx context.Context, code string, fn func(context.Context) error) error {
	entry := s.acquire(code)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		s.release(code)
	}()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, code, s.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				s.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"code", code,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
