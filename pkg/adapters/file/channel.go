package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aretw0/citylink/internal/logging"
	"github.com/aretw0/citylink/pkg/ports"
	"github.com/fsnotify/fsnotify"
)

const (
	ext       = ".json"
	tmpPrefix = ".tmp-"
)

// Channel implements ports.KeyValueChannel on a local directory, one file per key.
// Several processes on one machine can share a directory; changes are observed
// with fsnotify, so a subscriber also sees its own writes.
type Channel struct {
	BasePath string
	logger   *slog.Logger
}

var _ ports.KeyValueChannel = (*Channel)(nil)

// Option configures a Channel.
type Option func(*Channel)

// WithLogger configures a logger for the Channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Channel rooted at basePath.
// If basePath is empty, it defaults to ".citylink/sessions".
func New(basePath string, opts ...Option) *Channel {
	if basePath == "" {
		basePath = filepath.Join(".citylink", "sessions")
	}
	c := &Channel{BasePath: basePath, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) path(key string) string {
	return filepath.Join(c.BasePath, url.QueryEscape(key)+ext)
}

// keyOf maps a file name back to its key. Temp and foreign files yield false.
func keyOf(name string) (string, bool) {
	if strings.HasPrefix(name, tmpPrefix) || filepath.Ext(name) != ext {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, ext))
	if err != nil {
		return "", false
	}
	return key, true
}

// Get reads the file for key.
func (c *Channel) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ports.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes the value atomically: temp file, fsync, rename.
func (c *Channel) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if err := os.MkdirAll(c.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure store directory: %w", err)
	}

	// Same directory, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(c.BasePath, tmpPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(value); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Rename replaces the destination atomically, so readers never see the key missing.
	if err := os.Rename(tmpPath, c.path(key)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Delete removes the file for key.
func (c *Channel) Delete(ctx context.Context, key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys starting with prefix.
func (c *Channel) Keys(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(c.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list store directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if key, ok := keyOf(entry.Name()); ok && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Subscribe watches the directory and calls fn for every created, rewritten or
// removed key under prefix.
func (c *Channel) Subscribe(ctx context.Context, prefix string, fn func(key string)) (ports.Unsubscribe, error) {
	if err := os.MkdirAll(c.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure store directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(c.BasePath); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.BasePath, err)
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = watcher.Close()
		})
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				key, ok := keyOf(filepath.Base(event.Name))
				if !ok || !strings.HasPrefix(key, prefix) {
					continue
				}
				fn(key)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.logger.Warn("File watcher error", "dir", c.BasePath, "err", err)
			}
		}
	}()

	return unsubscribe, nil
}
