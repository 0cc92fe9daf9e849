// Package localcache holds the images of a locally picked folder for one
// viewer session. The cache owns every entry: Replace releases the previous
// set before adopting the new one and ReleaseAll drops everything.
package localcache

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
)

// Scheme prefixes references handed out by the cache.
const Scheme = "blob:local/"

// Cache maps filenames to session-local references and their bytes.
type Cache struct {
	mu     sync.RWMutex
	gen    int
	byName map[string]string
	byRef  map[string][]byte
	onFree func(n int)
}

// New creates an empty cache. onFree, if non-nil, is called with the number
// of entries released on every Replace or ReleaseAll.
func New(onFree func(n int)) *Cache {
	return &Cache{
		byName: make(map[string]string),
		byRef:  make(map[string][]byte),
		onFree: onFree,
	}
}

// Replace releases the current entries and adopts files.
func (c *Cache) Replace(files map[string][]byte) {
	c.mu.Lock()
	released := c.releaseLocked()
	c.gen++
	for name, data := range files {
		ref := fmt.Sprintf("%s%d/%s", Scheme, c.gen, url.PathEscape(name))
		c.byName[name] = ref
		c.byRef[ref] = data
	}
	c.mu.Unlock()
	c.notify(released)
}

// Load reads names from fs and replaces the cache with them. On a read
// error the cache is left untouched.
func (c *Cache) Load(fs billy.Filesystem, names []string) error {
	files := make(map[string][]byte, len(names))
	for _, name := range names {
		f, err := fs.Open(name)
		if err != nil {
			return err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return err
		}
		files[name] = data
	}
	c.Replace(files)
	return nil
}

// Lookup returns the reference for filename.
func (c *Cache) Lookup(filename string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.byName[filename]
	return ref, ok
}

// Open returns the bytes behind a reference from the current generation.
func (c *Cache) Open(ref string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.byRef[ref]
	return data, ok
}

// IsRef reports whether src is a cache reference.
func IsRef(src string) bool {
	return strings.HasPrefix(src, Scheme)
}

// Len returns the number of held entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// ReleaseAll drops every entry and returns how many were held.
func (c *Cache) ReleaseAll() int {
	c.mu.Lock()
	n := c.releaseLocked()
	c.mu.Unlock()
	c.notify(n)
	return n
}

func (c *Cache) releaseLocked() int {
	n := len(c.byName)
	c.byName = make(map[string]string)
	c.byRef = make(map[string][]byte)
	return n
}

func (c *Cache) notify(n int) {
	if c.onFree != nil && n > 0 {
		c.onFree(n)
	}
}
