// internal/hashcache/hashcache.go
//
// Content hashing for the diff engine, with an optional persistent cache.
// Diff classification hashes every file in three trees; re-hashing unchanged
// trees on every operation is the dominant cost, so hashes are memoized by
// (path, size, mtime) in badger with an LRU in front. A nil *Cache hashes
// directly, so the cache is never required for correctness.
package hashcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	Size    int64  `json:"size"`
	ModTime int64  `json:"mod_time_ns"`
	Hash    string `json:"hash"`
}

type Cache struct {
	db  *badger.DB
	lru *lru.Cache[string, entry]
}

// Open creates a cache backed by a badger database at dir. cacheSize bounds
// the in-memory LRU.
func Open(dir string, cacheSize int) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening hash cache: %w", err)
	}

	mem, err := lru.New[string, entry](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Cache{db: db, lru: mem}, nil
}

// OpenInMemory is Open without an on-disk database. Used by tests.
func OpenInMemory(cacheSize int) (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening hash cache: %w", err)
	}

	mem, err := lru.New[string, entry](cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Cache{db: db, lru: mem}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// FileHash returns the sha256 hex digest of the file at path. Cached results
// are reused only while the file's size and mtime are unchanged.
func (c *Cache) FileHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if c == nil {
		return hashFile(path)
	}

	want := entry{Size: info.Size(), ModTime: info.ModTime().UnixNano()}

	if got, ok := c.lru.Get(path); ok {
		if got.Size == want.Size && got.ModTime == want.ModTime {
			return got.Hash, nil
		}
	}

	if got, ok := c.lookup(path); ok {
		if got.Size == want.Size && got.ModTime == want.ModTime {
			c.lru.Add(path, got)
			return got.Hash, nil
		}
	}

	hash, err := hashFile(path)
	if err != nil {
		return "", err
	}

	want.Hash = hash
	c.lru.Add(path, want)
	if err := c.store(path, want); err != nil {
		// Cache write failures are not diff failures.
		return hash, nil
	}

	return hash, nil
}

func (c *Cache) lookup(path string) (entry, bool) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(path))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	return e, err == nil
}

func (c *Cache) store(path string, e entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(path), data)
	})
}

func key(path string) []byte {
	return []byte("hash:" + path)
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes hashes in-memory content the same way FileHash hashes files.
func HashBytes(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
