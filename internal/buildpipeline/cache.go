package buildpipeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"kestrel/internal/version"
)

// Bump when cachePayload changes.
const cacheSchemaVersion uint16 = 1

// Digest is a SHA-256 cache key.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Cache stores generated C keyed by the input bytes, the target and the
// compiler version. It is safe for concurrent use; a nil *Cache is a
// cache that never hits.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

type cachePayload struct {
	Schema  uint16 `msgpack:"v"`
	Target  string `msgpack:"target"`
	Version string `msgpack:"version"`
	Code    string `msgpack:"code"`
}

// DefaultCacheDir is $XDG_CACHE_HOME/kestrel or the OS cache directory.
func DefaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		var err error
		if base, err = os.UserCacheDir(); err != nil {
			return "", err
		}
	}
	return filepath.Join(base, "kestrel"), nil
}

// OpenCache creates dir if needed and returns a cache in it.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Key derives the cache key of an input.
func Key(input []byte, target string) Digest {
	h := sha256.New()
	var schema [2]byte
	binary.LittleEndian.PutUint16(schema[:], cacheSchemaVersion)
	h.Write(schema[:])
	for _, s := range []string{version.Version, target} {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	h.Write(input)
	var d Digest
	h.Sum(d[:0])
	return d
}

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "out", key.String()+".mp")
}

// Get returns the cached output for key. Entries from another schema,
// version or target are misses.
func (c *Cache) Get(key Digest, target string) (string, bool, error) {
	if c == nil {
		return "", false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	var p cachePayload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return "", false, fmt.Errorf("cache entry %s: %w", key, err)
	}
	if p.Schema != cacheSchemaVersion || p.Version != version.Version || p.Target != target {
		return "", false, nil
	}
	return p.Code, true, nil
}

// Put stores code under key, replacing the entry atomically.
func (c *Cache) Put(key Digest, target, code string) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()
	payload := cachePayload{Schema: cacheSchemaVersion, Target: target, Version: version.Version, Code: code}
	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Clear drops every entry.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "out"))
}
