// Package host describes the bundler side of the plugin: hook contexts,
// chunks and emitted files.
package host

import (
	"fmt"
	"path/filepath"
)

// Warning is non fatal problem reported by the plugin.
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

// File is asset queued for emission.
type File struct {
	// Name is used to derive output name through asset name template.
	Name string
	// FileName is exact output path relative to output directory, it takes
	// precedence over Name.
	FileName string
	Source   []byte
}

// Context is available to every plugin hook.
type Context interface {
	Warn(w Warning)
	// AddWatchFile makes host rebuild module when file changes.
	AddWatchFile(file string)
	// EmitFile queues asset and returns its reference.
	EmitFile(f File) string
	// FileName returns output path of emitted file.
	FileName(ref string) string
}

// Chunk is a piece of generated bundle.
type Chunk struct {
	// Name of the chunk, used for extracted stylesheet naming.
	Name     string
	FileName string
	IsEntry  bool
	// Modules are ids of modules belonging to the chunk, including
	// stylesheets they (transitively) import, in execution order.
	Modules []string
}

// TransformResult is the plugin output for single module.
type TransformResult struct {
	Code string
	Map  string
	// NoTreeshake marks modules with side effects which must be kept even
	// when nothing imports their exports.
	NoTreeshake bool
}

// OutputOptions of the bundle being generated.
type OutputOptions struct {
	// Dir is output directory.
	Dir string
	// File is single output file, Dir is derived from it when empty.
	File string
	// AssetFileNames is template for assets emitted by name, relative to
	// Dir.
	AssetFileNames string
	SourceMap      bool
}

// OutputDir returns directory bundle is written to, empty when unknown.
func (o OutputOptions) OutputDir() string {
	if len(o.Dir) > 0 {
		return o.Dir
	}
	if len(o.File) > 0 {
		return filepath.Dir(o.File)
	}
	return ""
}
