// Package loaders runs stylesheet through an ordered chain of named
// transformation stages.
package loaders

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Names of loaders always present in the chain.
const (
	PostCSS   = "postcss"
	SourceMap = "sourcemap"
)

// ErrMissingDependency is returned when external compiler required by the
// loader is not available.
var ErrMissingDependency = errors.New("missing dependency")

// MissingDependency reports absent package or executable.
func MissingDependency(name string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s is not installed", ErrMissingDependency, name)
	}
	return fmt.Errorf("%w: %s is not available: %w", ErrMissingDependency, name, err)
}

// Extracted is CSS diverted from the JS module to be emitted as separate
// asset.
type Extracted struct {
	ID  string
	CSS string
	Map string
}

// Payload flows through the chain. Code is always in the dialect expected
// by the next stage, Map is JSON source map or empty.
type Payload struct {
	Code      string
	Map       string
	Extracted *Extracted
}

// ProcessFunc transforms payload.
type ProcessFunc func(ctx context.Context, lc *Context, p Payload) (Payload, error)

// Loader is named transformation stage.
type Loader struct {
	Name string
	// Test selects files loader applies to.
	Test func(id string) bool
	// AlwaysProcess runs loader regardless of Test.
	AlwaysProcess bool
	Process       ProcessFunc
}

func (l *Loader) applies(id string) bool {
	return l.AlwaysProcess || (l.Test != nil && l.Test(id))
}

// ExtensionTest creates Test matching files with one of the extensions.
func ExtensionTest(exts ...string) func(string) bool {
	return func(id string) bool {
		ext := strings.ToLower(path.Ext(stripQuery(id)))
		return slices.Contains(exts, ext)
	}
}

func stripQuery(id string) string {
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		return id[:i]
	}
	return id
}

// Options of the loader chain.
type Options struct {
	// Use lists user loaders by name, the last one runs first.
	Use []string
	// Extensions are always treated as stylesheets.
	Extensions []string
	// Loaders are registered before Use is validated.
	Loaders []*Loader
	// Workers limits number of concurrently executing stages, defaults to
	// one less than GOMAXPROCS but at least one.
	Workers int
	Log     *zap.Logger
}

// DefaultExtensions are extensions handled out of the box.
var DefaultExtensions = []string{".css", ".pcss", ".postcss", ".sss"}

// DefaultWorkers returns size of the work queue.
func DefaultWorkers() int {
	return max(1, runtime.GOMAXPROCS(0)-1)
}

// Loaders is a chain of stages shared by all transformations of a build.
type Loaders struct {
	log        *zap.Logger
	sem        *semaphore.Weighted
	extensions []string

	mu      sync.RWMutex
	use     []string
	loaders map[string]*Loader
}

// New creates chain. Effective order is postcss, user loaders, sourcemap;
// stages run from the last to the first.
func New(opts Options) (*Loaders, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers()
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	l := &Loaders{
		log:        opts.Log.Named("loaders"),
		sem:        semaphore.NewWeighted(int64(opts.Workers)),
		extensions: make([]string, 0, len(exts)),
		loaders:    make(map[string]*Loader),
	}
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		l.extensions = append(l.extensions, ext)
	}

	l.Add(sourceMapLoader())
	for _, ld := range opts.Loaders {
		l.Add(ld)
	}

	use := []string{PostCSS}
	for _, name := range opts.Use {
		if name == PostCSS || name == SourceMap || slices.Contains(use, name) {
			continue
		}
		use = append(use, name)
	}
	use = append(use, SourceMap)
	for _, name := range use {
		if _, ok := l.loaders[name]; !ok {
			return nil, fmt.Errorf("unknown loader %q", name)
		}
	}
	l.use = use

	l.log.Debug("Loader chain", zap.Strings("use", use), zap.Int("workers", opts.Workers))
	return l, nil
}

// Add registers loader replacing the one with the same name.
func (l *Loaders) Add(ld *Loader) {
	if ld == nil || len(ld.Name) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaders[ld.Name] = ld
}

// Remove unregisters loader.
func (l *Loaders) Remove(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.loaders, name)
}

// Get returns registered loader.
func (l *Loaders) Get(name string) (*Loader, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ld, ok := l.loaders[name]
	return ld, ok
}

// Use returns effective chain in declaration order.
func (l *Loaders) Use() []string {
	return slices.Clone(l.use)
}

// IsSupported reports whether id has one of the stylesheet extensions or
// is selected by any loader of the chain.
func (l *Loaders) IsSupported(id string) bool {
	ext := strings.ToLower(path.Ext(stripQuery(id)))
	if slices.Contains(l.extensions, ext) {
		return true
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, name := range l.use {
		if ld, ok := l.loaders[name]; ok && !ld.AlwaysProcess && ld.Test != nil && ld.Test(id) {
			return true
		}
	}
	return false
}

// Process runs payload through the chain. Stages not applicable to the
// file pass payload through, executed stages hold a slot of the shared
// work queue.
func (l *Loaders) Process(ctx context.Context, lc *Context, p Payload) (Payload, error) {
	for i := len(l.use) - 1; i >= 0; i-- {
		name := l.use[i]
		ld, ok := l.Get(name)
		if !ok {
			return p, fmt.Errorf("loader %q was removed", name)
		}
		if !ld.applies(lc.ID) {
			continue
		}
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return p, err
		}
		out, err := ld.Process(ctx, lc, p)
		l.sem.Release(1)
		if err != nil {
			return p, fmt.Errorf("%s loader: %w", name, err)
		}
		l.log.Debug("Stage done", zap.String("loader", name), zap.String("id", lc.ID))
		p = out
	}
	return p, nil
}
