package raster

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	path  string
	size  int64
	mtime int64
}

// Cache keeps recently decoded rasters in memory, keyed by path, size and
// modification time, so the running mosaic is not decoded again on every
// batch. A nil *Cache decodes on every call.
type Cache struct {
	entries *lru.Cache[cacheKey, *pixels]
}

// NewCache creates a cache holding up to size rasters. size <= 0 disables caching.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[cacheKey, *pixels](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create raster cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Open returns a read-only dataset for path, decoding it only if the file
// changed since it was cached.
func (c *Cache) Open(path string) (*Dataset, error) {
	if c == nil {
		return Open(path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		// Let Open produce the coded error
		return Open(path)
	}
	key := cacheKey{path: abs, size: info.Size(), mtime: info.ModTime().UnixNano()}
	if px, ok := c.entries.Get(key); ok {
		return &Dataset{path: path, px: px}, nil
	}

	px, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	c.Invalidate(abs)
	c.entries.Add(key, px)
	return &Dataset{path: path, px: px}, nil
}

// Invalidate drops every cached version of path.
func (c *Cache) Invalidate(path string) {
	if c == nil {
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	for _, k := range c.entries.Keys() {
		if k.path == abs {
			c.entries.Remove(k)
		}
	}
}

// Len returns the number of cached rasters.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
