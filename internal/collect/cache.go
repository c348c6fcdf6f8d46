package collect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one persisted cache record. Staleness depends only on
// fetched_at + ttl, never on content.
type Entry struct {
	Key        string          `json:"key"`
	Body       json.RawMessage `json:"body"`
	FetchedAt  time.Time       `json:"fetched_at"`
	TTLSeconds int64           `json:"ttl"`
}

// Cache is a content-addressed store on disk, one file per key. Writes go
// through a temp file and rename so concurrent readers never see a partial
// entry; concurrent writers for the same key race safely (last writer wins).
type Cache struct {
	dir string
	ttl time.Duration
}

func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

// Key derives the stable cache key from the fetch parameters.
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the entry for key if it exists and is still live.
func (c *Cache) Get(key string, now time.Time) (Entry, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupted entries are treated as misses, not failures.
		return Entry{}, false
	}
	if e.FetchedAt.Add(time.Duration(e.TTLSeconds) * time.Second).Before(now) {
		return Entry{}, false
	}
	return e, true
}

func (c *Cache) Put(key string, body any, fetchedAt time.Time) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	e := Entry{
		Key:        key,
		Body:       raw,
		FetchedAt:  fetchedAt,
		TTLSeconds: int64(c.ttl / time.Second),
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(c.dir, key+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}
