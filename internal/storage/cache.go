package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/dustin/go-humanize"
)

// DefaultExtension is appended to every key to form its file name.
const DefaultExtension = ".opus"

const tempPattern = ".insert-*.tmp"

// Entry describes one cached object.
type Entry struct {
	Key        string
	Path       string
	Size       int64
	LastAccess time.Time
}

// Stats holds cache accounting and counters.
type Stats struct {
	Capacity        int64
	Size            int64
	Items           int
	Hits            int64
	Misses          int64
	Evictions       int64
	FailedEvictions int64
	LastEvict       time.Time
}

// Option configures a [Cache].
type Option func(*Cache)

// WithExtension sets the file extension used for cached objects, e.g. ".flac".
func WithExtension(ext string) Option {
	return func(c *Cache) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.ext = ext
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Cache is a bounded LRU directory cache.
type Cache struct {
	dir      string
	ext      string
	capacity int64
	logger   *log.Logger
	now      func() time.Time
	remove   func(string) error

	mu    sync.RWMutex
	index map[string]*Entry
	size  int64
	stats Stats
}

// Open creates dir if needed and rebuilds the recency index from its contents.
//
// Leftover temp files from interrupted inserts are removed. If the directory already exceeds capacity
// it is trimmed before Open returns.
func Open(dir string, capacity int64, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: cache capacity must be positive, got %d", shared.ErrInvalidConfig, capacity)
	}

	c := &Cache{
		dir:      dir,
		ext:      DefaultExtension,
		capacity: capacity,
		now:      time.Now,
		remove:   os.Remove,
		index:    make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = shared.NewLogger(nil)
	}
	c.logger = shared.WithLogger(c.logger, "component", "cache")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %v", shared.ErrStorageIO, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeTempFiles()
	if err := c.rescan(); err != nil {
		return nil, err
	}
	c.evict("")

	c.logger.Debug("cache opened", "dir", dir, "items", len(c.index), "size", humanize.Bytes(uint64(c.size)), "capacity", humanize.Bytes(uint64(capacity)))
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Capacity returns the byte budget.
func (c *Cache) Capacity() int64 { return c.capacity }

// Exists reports whether key is cached. It does not affect recency.
func (c *Cache) Exists(key string) bool {
	if validKey(key) != nil {
		return false
	}

	c.mu.RLock()
	e, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	_, err := os.Stat(e.Path)
	return err == nil
}

// Path returns the file path for key and marks the entry as used.
func (c *Cache) Path(key string) (string, bool) {
	if validKey(key) != nil {
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return "", false
	}
	if _, err := os.Stat(e.Path); err != nil {
		c.drop(key)
		c.stats.Misses++
		return "", false
	}

	c.touch(e)
	c.stats.Hits++
	return e.Path, true
}

// Insert stores data under key. See [Cache.InsertFrom].
func (c *Cache) Insert(key string, data []byte) error {
	return c.InsertFrom(key, bytes.NewReader(data))
}

// InsertFrom streams r into the cache under key, replacing any previous object, then evicts least
// recently used entries until the directory fits the capacity.
//
// The object is written to a temp file before the lock is taken, so a slow reader never blocks other
// callers. An object larger than the whole capacity is rejected with [shared.ErrItemTooLarge] and
// nothing is written or evicted.
func (c *Cache) InsertFrom(key string, r io.Reader) error {
	if err := validKey(key); err != nil {
		return err
	}

	tmpPath, n, err := c.writeTemp(key, r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(key)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to store %s: %v", shared.ErrStorageIO, key, err)
	}

	if err := c.rescan(); err != nil {
		return err
	}

	e, ok := c.index[key]
	if !ok {
		return fmt.Errorf("%w: %s vanished after write", shared.ErrStorageIO, key)
	}
	c.touch(e)

	c.logger.Debug("inserted", "key", key, "size", humanize.Bytes(uint64(n)))
	c.evict(key)
	return nil
}

// writeTemp copies at most capacity+1 bytes of r into a temp file in the cache directory.
// Temp files are dot-prefixed, so rescan never indexes them.
func (c *Cache) writeTemp(key string, r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(c.dir, tempPattern)
	if err != nil {
		return "", 0, fmt.Errorf("%w: failed to create temp file: %v", shared.ErrStorageIO, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(r, c.capacity+1))
	closeErr := tmp.Close()
	switch {
	case err != nil:
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: failed to write %s: %v", shared.ErrStorageIO, key, err)
	case closeErr != nil:
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: failed to close %s: %v", shared.ErrStorageIO, key, closeErr)
	case n > c.capacity:
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("%w: %s exceeds capacity %s", shared.ErrItemTooLarge, key, humanize.Bytes(uint64(c.capacity)))
	}
	return tmpPath, n, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (c *Cache) Remove(key string) error {
	if err := validKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.remove(c.pathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove %s: %v", shared.ErrStorageIO, key, err)
	}
	c.drop(key)
	return nil
}

// Clear removes every cached object. Files that cannot be removed stay indexed.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, e := range c.index {
		if err := c.remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		c.drop(key)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: failed to clear cache: %w", shared.ErrStorageIO, errors.Join(errs...))
	}
	return nil
}

// Entries returns the cached objects, least recently used first.
func (c *Cache) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.index))
	for _, e := range c.byRecency() {
		out = append(out, *e)
	}
	return out
}

// Size returns the total size in bytes of the cached objects.
func (c *Cache) Size() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}

// Stats returns a snapshot of the cache accounting.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Capacity = c.capacity
	s.Size = c.size
	s.Items = len(c.index)
	return s
}

// rescan rebuilds the index from the directory. Known entries keep their recency; new files are seeded
// from their mtime. Requires the write lock.
func (c *Cache) rescan() error {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("%w: failed to scan cache directory: %v", shared.ErrStorageIO, err)
	}

	next := make(map[string]*Entry, len(dirEntries))
	var size int64

	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, c.ext) {
			continue
		}
		key := strings.TrimSuffix(name, c.ext)
		if key == "" {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}

		e := &Entry{Key: key, Path: filepath.Join(c.dir, name), Size: info.Size(), LastAccess: info.ModTime()}
		if prev, ok := c.index[key]; ok && prev.LastAccess.After(e.LastAccess) {
			e.LastAccess = prev.LastAccess
		}

		next[key] = e
		size += e.Size
	}

	c.index = next
	c.size = size
	return nil
}

// evict removes least recently used entries until size fits capacity. keep is never evicted.
// Requires the write lock.
func (c *Cache) evict(keep string) {
	if c.size <= c.capacity {
		return
	}

	for _, e := range c.byRecency() {
		if c.size <= c.capacity {
			return
		}
		if e.Key == keep {
			continue
		}

		if err := c.remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.stats.FailedEvictions++
			c.logger.Warn("failed to evict, skipping", "key", e.Key, "error", err)
			continue
		}

		c.drop(e.Key)
		c.stats.Evictions++
		c.stats.LastEvict = c.now()
		c.logger.Debug("evicted", "key", e.Key, "size", humanize.Bytes(uint64(e.Size)))
	}

	if c.size > c.capacity {
		c.logger.Warn("cache still over capacity after eviction", "size", humanize.Bytes(uint64(c.size)), "capacity", humanize.Bytes(uint64(c.capacity)))
	}
}

// byRecency orders entries oldest first, ties broken by key.
func (c *Cache) byRecency() []*Entry {
	entries := make([]*Entry, 0, len(c.index))
	for _, e := range c.index {
		entries = append(entries, e)
	}

	slices.SortFunc(entries, func(a, b *Entry) int {
		if cmp := a.LastAccess.Compare(b.LastAccess); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Key, b.Key)
	})
	return entries
}

// touch records an access and carries it to the file mtime so recency survives a restart.
func (c *Cache) touch(e *Entry) {
	now := c.now()
	e.LastAccess = now

	if err := os.Chtimes(e.Path, now, now); err != nil {
		c.logger.Debug("failed to update mtime", "key", e.Key, "error", err)
	}
}

func (c *Cache) drop(key string) {
	if e, ok := c.index[key]; ok {
		c.size -= e.Size
		delete(c.index, key)
	}
}

func (c *Cache) removeTempFiles() {
	matches, _ := filepath.Glob(filepath.Join(c.dir, tempPattern))
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			c.logger.Debug("removed stale temp file", "path", m)
		}
	}
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, key+c.ext)
}

// validKey rejects keys that would escape the cache directory or collide with temp files.
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: invalid cache key %q", shared.ErrInvalidInput, key)
	}
	return nil
}
