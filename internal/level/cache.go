package level

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache errors. Both mean "recompile from source".
var (
	ErrCacheMiss    = errors.New("level cache miss")
	ErrCacheCorrupt = errors.New("level cache corrupt")
)

// cacheVersion changes whenever Compiled or the compiler output changes shape.
const cacheVersion = 1

type cacheEnvelope struct {
	Version int       `msgpack:"v"`
	Key     string    `msgpack:"k"`
	Level   *Compiled `msgpack:"l"`
}

// Cache stores compiled levels as msgpack files, one per level id. An entry
// is only valid for the source hash it was written with.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir. An empty dir disables caching.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Enabled reports whether the cache has a directory.
func (c *Cache) Enabled() bool { return c != nil && c.dir != "" }

func (c *Cache) path(levelID string) string {
	return filepath.Join(c.dir, filepath.Base(levelID)+".msgpack")
}

// Get returns the compiled level for levelID if it was written for key.
func (c *Cache) Get(levelID, key string) (*Compiled, error) {
	if !c.Enabled() {
		return nil, ErrCacheMiss
	}
	data, err := os.ReadFile(c.path(levelID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var env cacheEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	}
	if env.Version != cacheVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCacheCorrupt, env.Version)
	}
	if env.Key != key {
		return nil, ErrCacheMiss
	}
	if env.Level == nil {
		return nil, fmt.Errorf("%w: empty entry", ErrCacheCorrupt)
	}
	return env.Level, nil
}

// Put writes the compiled level under its id. The write goes through a
// temporary file so readers never see a partial entry.
func (c *Cache) Put(lvl *Compiled) error {
	if !c.Enabled() {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := msgpack.Marshal(&cacheEnvelope{Version: cacheVersion, Key: lvl.Hash, Level: lvl})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".level-*")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), c.path(lvl.ID))
}

// LoadCompiled returns the compiled form of src, from the cache when the
// entry matches src.Hash, otherwise by compiling and refreshing the cache.
// fromCache reports which path was taken.
func LoadCompiled(src *Source, cache *Cache, opts CompileOptions) (lvl *Compiled, fromCache bool) {
	lvl, err := cache.Get(src.ID, src.Hash)
	switch {
	case err == nil:
		log.Printf("🧱 Level %s loaded from cache (%d polygons)", src.ID, lvl.PolygonCount())
		return lvl, true
	case errors.Is(err, ErrCacheMiss):
	default:
		log.Printf("⚠️ Level cache for %s unusable, recompiling: %v", src.ID, err)
	}

	lvl = Compile(src, opts)
	log.Printf("🧱 Level %s compiled: %d polygons, %d errors", src.ID, lvl.PolygonCount(), lvl.ErrorCount)
	if err := cache.Put(lvl); err != nil {
		log.Printf("⚠️ Failed to write level cache for %s: %v", src.ID, err)
	}
	return lvl, false
}
