package resolve

import (
	"encoding/json"
	"os"
	"sync"
)

type entryKind int

const (
	// zero value means lookup was never attempted
	kindUnknown entryKind = iota
	kindAbsent
	kindFile
	kindDir
)

// Cache memoizes file system probes and parsed package manifests. It is safe
// for concurrent use and is expected to live as long as a single build.
type Cache struct {
	mu    sync.Mutex
	stats map[string]entryKind
	// nil value marks known absent or broken manifest
	pkgs map[string]*manifest
}

// NewCache creates empty cache.
func NewCache() *Cache {
	return &Cache{
		stats: make(map[string]entryKind),
		pkgs:  make(map[string]*manifest),
	}
}

func (c *Cache) kind(path string) entryKind {
	if c != nil {
		c.mu.Lock()
		k := c.stats[path]
		c.mu.Unlock()
		if k != kindUnknown {
			return k
		}
	}

	k := kindAbsent
	if fi, err := os.Stat(path); err == nil {
		if fi.IsDir() {
			k = kindDir
		} else {
			k = kindFile
		}
	}

	if c != nil {
		c.mu.Lock()
		c.stats[path] = k
		c.mu.Unlock()
	}
	return k
}

func (c *Cache) isFile(path string) bool {
	return c.kind(path) == kindFile
}

func (c *Cache) isDir(path string) bool {
	return c.kind(path) == kindDir
}

// manifest loads package.json from dir, nil is returned when there is none
// or it could not be parsed.
func (c *Cache) manifest(dir string) *manifest {
	if c != nil {
		c.mu.Lock()
		m, ok := c.pkgs[dir]
		c.mu.Unlock()
		if ok {
			return m
		}
	}

	var m *manifest
	file := dir + "/package.json"
	if c.isFile(file) {
		if data, err := os.ReadFile(file); err == nil {
			parsed := &manifest{}
			if err := json.Unmarshal(data, parsed); err == nil {
				m = parsed
			}
		}
	}

	if c != nil {
		c.mu.Lock()
		c.pkgs[dir] = m
		c.mu.Unlock()
	}
	return m
}
