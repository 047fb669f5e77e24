// Package history persists per-assertion decision records between runs, so
// the prompt can show what a reviewer decided for the same call site before.
// Records live under the user cache directory and are best-effort: a broken
// or missing cache never fails a run.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when Record format changes
const historySchemaVersion uint16 = 1

// Record is one remembered decision for an assertion key.
type Record struct {
	Decision    string // accept | reject | skip
	PatternHash [32]byte
	When        time.Time
}

// entry is the on-disk payload for one assertion key.
type entry struct {
	Schema  uint16
	Key     string
	Records []Record
}

// Cache stores decision records keyed by assertion identity.
// Thread-safe for concurrent access.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes the cache at the standard location
// ($XDG_CACHE_HOME/<app>/decisions or ~/.cache/<app>/decisions).
func Open(app string) (*Cache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenAt(filepath.Join(base, app, "decisions"))
}

// OpenAt initializes the cache rooted at an explicit directory.
func OpenAt(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *Cache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".mp")
}

// Append adds a record for key, keeping at most keep most recent entries.
func (c *Cache) Append(key string, rec Record, keep int) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var e entry
	_, _ = c.read(key, &e) // отсутствие записи — не ошибка
	if e.Schema != historySchemaVersion {
		e = entry{Schema: historySchemaVersion, Key: key}
	}
	e.Records = append(e.Records, rec)
	if keep > 0 && len(e.Records) > keep {
		e.Records = e.Records[len(e.Records)-keep:]
	}

	p := c.pathFor(key)
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name())
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&e); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// Атомарная замена
	return os.Rename(f.Name(), p)
}

// Lookup returns the stored records for key, oldest first.
func (c *Cache) Lookup(key string) []Record {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var e entry
	ok, err := c.read(key, &e)
	if err != nil || !ok || e.Schema != historySchemaVersion {
		return nil
	}
	return e.Records
}

// Labels renders Lookup results into display strings for the prompt.
func (c *Cache) Labels(key string) []string {
	records := c.Lookup(key)
	if len(records) == 0 {
		return nil
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = fmt.Sprintf("%s (%s)", r.Decision, r.When.Format("2006-01-02 15:04"))
	}
	return out
}

func (c *Cache) read(key string, out *entry) (bool, error) {
	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
