package loaders

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"styles/sourcemap"
	"styles/utils/paths"
)

// Warning is non fatal message reported by a stage.
type Warning struct {
	Plugin string
	Text   string
	File   string
	Line   int
	Column int
}

func (w Warning) String() string {
	switch {
	case len(w.File) == 0:
		return w.Text
	case w.Line == 0:
		return fmt.Sprintf("%s: %s", w.File, w.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s", w.File, w.Line, w.Column, w.Text)
}

// SourceMapOptions describe requested source maps. Nil options disable
// maps.
type SourceMapOptions struct {
	// Inline embeds map into code as base64 comment.
	Inline bool
	// Content keeps sourcesContent.
	Content bool
	// Transform is called with final map before its sources are made
	// relative to the output. name is the file map belongs to, empty for
	// inlined maps.
	Transform func(m *sourcemap.Map, name string)
}

// Asset is file queued for emission.
type Asset struct {
	Name   string
	Source []byte
}

// Context is per call state shared by all stages processing single file.
type Context struct {
	// ID is absolute path of the file.
	ID        string
	SourceMap *SourceMapOptions
	Log       *zap.Logger

	warn func(Warning)

	mu     sync.Mutex
	deps   []string
	seen   map[string]bool
	assets []Asset
	names  map[string]int
}

// NewContext creates context for file id. warn may be nil.
func NewContext(id string, sm *SourceMapOptions, warn func(Warning), log *zap.Logger) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	if warn == nil {
		warn = func(Warning) {}
	}
	return &Context{
		ID:        id,
		SourceMap: sm,
		Log:       log,
		warn:      warn,
		seen:      make(map[string]bool),
		names:     make(map[string]int),
	}
}

// Warn forwards warning to the host.
func (c *Context) Warn(w Warning) {
	c.warn(w)
}

// AddDependency records file to be watched. Duplicates are ignored.
func (c *Context) AddDependency(file string) {
	file = paths.Normalize(file)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[file] {
		return
	}
	c.seen[file] = true
	c.deps = append(c.deps, file)
}

// Dependencies returns recorded files in discovery order.
func (c *Context) Dependencies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deps...)
}

// EmitAsset queues asset, later asset with the same name replaces earlier
// one.
func (c *Context) EmitAsset(name string, source []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.names[name]; ok {
		c.assets[i].Source = source
		return
	}
	c.names[name] = len(c.assets)
	c.assets = append(c.assets, Asset{Name: name, Source: source})
}

// Assets returns queued assets in emission order.
func (c *Context) Assets() []Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Asset(nil), c.assets...)
}
