package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tdx/internal/shared"
	tu "github.com/desertthunder/tdx/internal/testing"
)

// tick returns a clock that advances one second per call.
func tick() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openCache(t *testing.T, dir string, capacity int64) *Cache {
	t.Helper()
	c, err := Open(dir, capacity, WithLogger(shared.NewLogger(io.Discard)))
	if err != nil {
		t.Fatalf("failed to open cache: %v", err)
	}
	c.now = tick()
	return c
}

func mustInsert(t *testing.T, c *Cache, key string, size int) {
	t.Helper()
	if err := c.Insert(key, bytes.Repeat([]byte{'x'}, size)); err != nil {
		t.Fatalf("insert %s failed: %v", key, err)
	}
}

func keys(c *Cache) []string {
	var out []string
	for _, e := range c.Entries() {
		out = append(out, e.Key)
	}
	return out
}

func dirSize(t *testing.T, dir string) int64 {
	t.Helper()
	var total int64
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		info, _ := e.Info()
		total += info.Size()
	}
	return total
}

func TestCache(t *testing.T) {
	t.Run("Open", func(t *testing.T) {
		t.Run("creates the directory", func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", "cache")
			c := openCache(t, dir, 100)

			tu.AssertDirExists(t, dir)
			if c.Size() != 0 || len(c.Entries()) != 0 {
				t.Errorf("expected empty cache, got %d bytes", c.Size())
			}
		})

		t.Run("rejects non-positive capacity", func(t *testing.T) {
			if _, err := Open(t.TempDir(), 0); !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})

		t.Run("rebuilds index from directory", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "1", 10)
			mustInsert(t, c, "2", 20)

			os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)
			os.WriteFile(filepath.Join(dir, ".insert-123.tmp"), []byte("partial"), 0644)

			reopened := openCache(t, dir, 100)
			if !reopened.Exists("1") || !reopened.Exists("2") {
				t.Error("expected both entries after reopen")
			}
			if reopened.Size() != 30 {
				t.Errorf("expected size 30, got %d", reopened.Size())
			}
			if _, err := os.Stat(filepath.Join(dir, ".insert-123.tmp")); !os.IsNotExist(err) {
				t.Error("expected stale temp file to be removed")
			}
		})

		t.Run("recency survives reopen", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "old", 40)
			mustInsert(t, c, "new", 40)
			if _, ok := c.Path("old"); !ok {
				t.Fatal("expected hit")
			}

			reopened := openCache(t, dir, 100)
			if got := keys(reopened); strings.Join(got, ",") != "new,old" {
				t.Errorf("expected new,old order, got %v", got)
			}
		})

		t.Run("trims an oversized directory", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 1000)
			mustInsert(t, c, "a", 40)
			mustInsert(t, c, "b", 40)
			mustInsert(t, c, "c", 40)

			reopened := openCache(t, dir, 50)
			if reopened.Size() > 50 {
				t.Errorf("expected size <= 50, got %d", reopened.Size())
			}
			if got := keys(reopened); len(got) != 1 || got[0] != "c" {
				t.Errorf("expected only c to survive, got %v", got)
			}
		})
	})

	t.Run("Insert", func(t *testing.T) {
		t.Run("total size never exceeds capacity", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)

			for i, size := range []int{30, 50, 10, 40, 70, 20, 100, 5} {
				mustInsert(t, c, string(rune('a'+i)), size)
				if got := dirSize(t, dir); got > 100 {
					t.Fatalf("after insert %d directory holds %d bytes", i, got)
				}
				if c.Size() != dirSize(t, dir) {
					t.Fatalf("accounting drifted: %d vs %d", c.Size(), dirSize(t, dir))
				}
			}
		})

		t.Run("evicts least recently used first", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 30)
			mustInsert(t, c, "b", 30)
			mustInsert(t, c, "c", 30)

			if _, ok := c.Path("a"); !ok {
				t.Fatal("expected a to be cached")
			}
			mustInsert(t, c, "d", 30)

			if c.Exists("b") {
				t.Error("expected b to be evicted")
			}
			for _, k := range []string{"a", "c", "d"} {
				if !c.Exists(k) {
					t.Errorf("expected %s to remain", k)
				}
			}
			if s := c.Stats(); s.Evictions != 1 {
				t.Errorf("expected 1 eviction, got %d", s.Evictions)
			}
		})

		t.Run("evicts whole entries only", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "a", 60)
			mustInsert(t, c, "b", 60)

			if c.Exists("a") {
				t.Error("expected a to be evicted")
			}
			info, err := os.Stat(filepath.Join(dir, "b.opus"))
			if err != nil || info.Size() != 60 {
				t.Errorf("expected b intact at 60 bytes, got %v %v", info, err)
			}
		})

		t.Run("ties break by key", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			c.now = func() time.Time { return fixed }

			mustInsert(t, c, "b", 40)
			mustInsert(t, c, "a", 40)
			mustInsert(t, c, "c", 40)

			if got := keys(c); strings.Join(got, ",") != "b,c" {
				t.Errorf("expected a evicted first on tie, got %v", got)
			}
		})

		t.Run("object larger than capacity is rejected", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "a", 50)

			err := c.Insert("huge", make([]byte, 101))
			if !errors.Is(err, shared.ErrItemTooLarge) {
				t.Fatalf("expected ErrItemTooLarge, got %v", err)
			}
			if c.Exists("huge") || !c.Exists("a") {
				t.Error("expected nothing written and nothing evicted")
			}
			if entries, _ := os.ReadDir(dir); len(entries) != 1 {
				t.Errorf("expected one file in cache dir, got %d", len(entries))
			}
		})

		t.Run("object equal to capacity evicts everything else", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 10)
			mustInsert(t, c, "full", 100)

			if got := keys(c); len(got) != 1 || got[0] != "full" {
				t.Errorf("expected only full, got %v", got)
			}
		})

		t.Run("replaces an existing key", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 10)
			mustInsert(t, c, "a", 25)

			if c.Size() != 25 || len(c.Entries()) != 1 {
				t.Errorf("expected one entry of 25 bytes, got %d bytes", c.Size())
			}
		})

		t.Run("failed deletion is skipped", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 40)
			mustInsert(t, c, "b", 40)

			stuck := c.pathFor("a")
			c.remove = func(path string) error {
				if path == stuck {
					return os.ErrPermission
				}
				return os.Remove(path)
			}

			if err := c.Insert("c", make([]byte, 40)); err != nil {
				t.Fatalf("insert should succeed despite failed eviction, got %v", err)
			}
			if !c.Exists("a") || c.Exists("b") || !c.Exists("c") {
				t.Errorf("expected a kept, b evicted, c inserted; got %v", keys(c))
			}
			if s := c.Stats(); s.FailedEvictions != 1 || s.Evictions != 1 {
				t.Errorf("expected 1 failed and 1 successful eviction, got %+v", s)
			}
		})

		t.Run("streams from a reader", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			if err := c.InsertFrom("r", strings.NewReader("opus-bytes")); err != nil {
				t.Fatal(err)
			}
			path, ok := c.Path("r")
			if !ok {
				t.Fatal("expected entry")
			}
			if got := tu.MustReadFile(t, path); got != "opus-bytes" {
				t.Errorf("got %q", got)
			}
		})

		t.Run("slow reader does not block other callers", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 10)

			pr, pw := io.Pipe()
			inserted := make(chan error, 1)
			go func() { inserted <- c.InsertFrom("slow", pr) }()

			done := make(chan struct{})
			go func() {
				defer close(done)
				if !c.Exists("a") {
					t.Error("expected a to exist")
				}
				if err := c.Insert("b", []byte("bbb")); err != nil {
					t.Errorf("insert b failed: %v", err)
				}
				if _, ok := c.Path("b"); !ok {
					t.Error("expected b to be cached")
				}
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("other callers blocked behind a pending read")
			}

			if c.Exists("slow") {
				t.Error("expected slow to be invisible until its read completes")
			}

			pw.Write([]byte("late"))
			pw.Close()
			if err := <-inserted; err != nil {
				t.Fatal(err)
			}
			if !c.Exists("slow") {
				t.Error("expected slow to be cached once written")
			}
		})

		t.Run("failed read leaves no temp file", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)

			pr, pw := io.Pipe()
			pw.CloseWithError(errors.New("connection reset"))
			if err := c.InsertFrom("broken", pr); !errors.Is(err, shared.ErrStorageIO) {
				t.Errorf("expected ErrStorageIO, got %v", err)
			}
			if matches, _ := filepath.Glob(filepath.Join(dir, tempPattern)); len(matches) != 0 {
				t.Errorf("expected temp file cleanup, found %v", matches)
			}
		})

		t.Run("ignores files without the cache extension", func(t *testing.T) {
			dir := t.TempDir()
			os.WriteFile(filepath.Join(dir, "notes.txt"), make([]byte, 500), 0644)
			c := openCache(t, dir, 100)
			mustInsert(t, c, "a", 10)

			if c.Size() != 10 || len(keys(c)) != 1 {
				t.Errorf("expected only cache objects to be accounted, got %d bytes %v", c.Size(), keys(c))
			}
			tu.AssertFileExists(t, filepath.Join(dir, "notes.txt"))
		})

		t.Run("picks up external changes on rescan", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "a", 10)

			os.Remove(filepath.Join(dir, "a.opus"))
			os.WriteFile(filepath.Join(dir, "ext.opus"), make([]byte, 15), 0644)
			mustInsert(t, c, "b", 10)

			if c.Exists("a") || !c.Exists("ext") {
				t.Errorf("expected rescan to reflect directory, got %v", keys(c))
			}
			if c.Size() != 25 {
				t.Errorf("expected 25 bytes, got %d", c.Size())
			}
		})

		t.Run("invalid keys", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			for _, key := range []string{"", "..", "../escape", "a/b", ".hidden"} {
				if err := c.Insert(key, []byte("x")); !errors.Is(err, shared.ErrInvalidInput) {
					t.Errorf("key %q: expected ErrInvalidInput, got %v", key, err)
				}
			}
		})
	})

	t.Run("Exists", func(t *testing.T) {
		t.Run("does not affect recency", func(t *testing.T) {
			c := openCache(t, t.TempDir(), 100)
			mustInsert(t, c, "a", 30)
			mustInsert(t, c, "b", 30)
			mustInsert(t, c, "c", 30)

			for range 3 {
				c.Exists("a")
			}
			mustInsert(t, c, "d", 30)

			if c.Exists("a") {
				t.Error("expected a to be evicted despite Exists calls")
			}
			if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
				t.Errorf("expected Exists to leave counters alone, got %+v", s)
			}
		})

		t.Run("missing file", func(t *testing.T) {
			dir := t.TempDir()
			c := openCache(t, dir, 100)
			mustInsert(t, c, "a", 10)
			os.Remove(filepath.Join(dir, "a.opus"))

			if c.Exists("a") {
				t.Error("expected false once the file is gone")
			}
		})
	})

	t.Run("Path", func(t *testing.T) {
		c := openCache(t, t.TempDir(), 100)
		mustInsert(t, c, "123", 10)

		path, ok := c.Path("123")
		if !ok || filepath.Base(path) != "123.opus" {
			t.Errorf("expected 123.opus, got %q %v", path, ok)
		}
		if _, ok := c.Path("404"); ok {
			t.Error("expected miss")
		}
		if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %+v", s)
		}
	})

	t.Run("Remove and Clear", func(t *testing.T) {
		dir := t.TempDir()
		c := openCache(t, dir, 100)
		mustInsert(t, c, "a", 10)
		mustInsert(t, c, "b", 10)
		mustInsert(t, c, "c", 10)

		if err := c.Remove("a"); err != nil {
			t.Fatal(err)
		}
		if err := c.Remove("a"); err != nil {
			t.Errorf("removing missing key should succeed, got %v", err)
		}
		if c.Exists("a") || c.Size() != 20 {
			t.Errorf("expected a removed, size 20, got %d", c.Size())
		}

		if err := c.Clear(); err != nil {
			t.Fatal(err)
		}
		if c.Size() != 0 || dirSize(t, dir) != 0 {
			t.Errorf("expected empty cache after clear")
		}
	})

	t.Run("custom extension", func(t *testing.T) {
		dir := t.TempDir()
		c, err := Open(dir, 100, WithExtension("flac"), WithLogger(shared.NewLogger(io.Discard)))
		if err != nil {
			t.Fatal(err)
		}
		mustInsert(t, c, "7", 5)
		tu.AssertFileExists(t, filepath.Join(dir, "7.flac"))
	})
}
