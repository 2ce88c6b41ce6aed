package host

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"styles/utils/naming"
	"styles/utils/paths"
)

// DefaultAssetFileNames is used by Local when output options do not specify
// template.
const DefaultAssetFileNames = "assets/[name]-[hash][extname]"

type emitted struct {
	ref  string
	name string
	file File
}

// Local is a host keeping emitted files in memory until written into output
// directory. It is used by command line builds and tests.
type Local struct {
	log    *zap.Logger
	output OutputOptions

	mu       sync.Mutex
	files    []*emitted
	refs     map[string]*emitted
	names    map[string]*emitted
	watch    []string
	watched  map[string]bool
	warnings []Warning
}

// NewLocal creates host writing into output directory.
func NewLocal(output OutputOptions, log *zap.Logger) *Local {
	if log == nil {
		log = zap.NewNop()
	}
	if len(output.AssetFileNames) == 0 {
		output.AssetFileNames = DefaultAssetFileNames
	}
	return &Local{
		log:     log.Named("host"),
		output:  output,
		refs:    make(map[string]*emitted),
		names:   make(map[string]*emitted),
		watched: make(map[string]bool),
	}
}

// Output returns output options host was created with.
func (h *Local) Output() OutputOptions {
	return h.output
}

func (h *Local) Warn(w Warning) {
	h.mu.Lock()
	h.warnings = append(h.warnings, w)
	h.mu.Unlock()

	fields := []zap.Field{zap.String("plugin", w.Plugin)}
	if len(w.File) > 0 {
		fields = append(fields, zap.String("file", paths.Humanize(w.File)))
	}
	if w.Line > 0 {
		fields = append(fields, zap.Int("line", w.Line), zap.Int("column", w.Column))
	}
	h.log.Warn(w.Text, fields...)
}

// Warnings returns everything reported so far.
func (h *Local) Warnings() []Warning {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Warning(nil), h.warnings...)
}

func (h *Local) AddWatchFile(file string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.watched[file] {
		return
	}
	h.watched[file] = true
	h.watch = append(h.watch, file)
}

// WatchFiles returns watched files in order they were added.
func (h *Local) WatchFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.watch...)
}

// EmitFile queues file. Files emitted with the same output name replace
// each other keeping original reference.
func (h *Local) EmitFile(f File) string {
	name := f.FileName
	if len(name) == 0 {
		name = naming.Interpolate(h.output.AssetFileNames, naming.Values{
			File: f.Name,
			Hash: naming.Hash(f.Source),
		})
	}
	name = filepath.ToSlash(filepath.Clean(name))

	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.names[name]; ok {
		e.file = f
		return e.ref
	}
	e := &emitted{ref: uuid.NewString(), name: name, file: f}
	h.files = append(h.files, e)
	h.refs[e.ref] = e
	h.names[name] = e
	h.log.Debug("Emitted", zap.String("name", name), zap.Int("size", len(f.Source)))
	return e.ref
}

func (h *Local) FileName(ref string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.refs[ref]; ok {
		return e.name
	}
	return ""
}

// Source returns content of emitted file by its output name.
func (h *Local) Source(name string) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.names[name]
	if !ok {
		return nil, false
	}
	return e.file.Source, true
}

// SetSource replaces content of emitted file.
func (h *Local) SetSource(name string, source []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.names[name]
	if ok {
		e.file.Source = source
	}
	return ok
}

// Files returns output names of emitted files in emission order.
func (h *Local) Files() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.files))
	for _, e := range h.files {
		out = append(out, e.name)
	}
	return out
}

// Write stores emitted files in output directory.
func (h *Local) Write() (err error) {
	dir := h.output.OutputDir()
	if len(dir) == 0 {
		return fmt.Errorf("output directory is not specified")
	}

	h.mu.Lock()
	files := append([]*emitted(nil), h.files...)
	h.mu.Unlock()

	for _, e := range files {
		target := filepath.Join(dir, filepath.FromSlash(e.name))
		if merr := os.MkdirAll(filepath.Dir(target), 0o755); merr != nil {
			err = multierr.Append(err, fmt.Errorf("unable to create directory for %s: %w", e.name, merr))
			continue
		}
		if werr := os.WriteFile(target, e.file.Source, 0o644); werr != nil {
			err = multierr.Append(err, fmt.Errorf("unable to write %s: %w", e.name, werr))
			continue
		}
		h.log.Debug("Written", zap.String("file", target))
	}
	return err
}
