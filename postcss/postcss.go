// Package postcss runs ordered tree transforming plugins over stylesheets and
// collects their side results (warnings, dependencies, assets, ICSS exports).
package postcss

import (
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"styles/css"
	"styles/sourcemap"
)

// Plugin transforms stylesheet tree in place.
type Plugin interface {
	Name() string
	Process(ctx context.Context, root *css.Node, res *Result) error
}

// ProcessFunc is the body of a plugin.
type ProcessFunc func(ctx context.Context, root *css.Node, res *Result) error

type funcPlugin struct {
	name string
	fn   ProcessFunc
}

func (p *funcPlugin) Name() string { return p.name }

func (p *funcPlugin) Process(ctx context.Context, root *css.Node, res *Result) error {
	return p.fn(ctx, root, res)
}

// NewPlugin wraps function into a Plugin.
func NewPlugin(name string, fn ProcessFunc) Plugin {
	return &funcPlugin{name: name, fn: fn}
}

// ProcessOptions describe single invocation.
type ProcessOptions struct {
	// From is absolute path of the processed file.
	From string
	// To is output path, its base name is recorded in generated map.
	To string
	// PrevMap describes how the input was generated.
	PrevMap *sourcemap.Map
	// Map requests source map generation.
	Map bool
	// Importers is a chain of files which (transitively) imported From.
	Importers []string
}

// Processor holds ordered list of plugins.
type Processor struct {
	log     *zap.Logger
	parser  *css.Parser
	plugins []Plugin
}

// New creates processor with the given plugins.
func New(log *zap.Logger, plugins ...Plugin) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		log:     log.Named("postcss"),
		parser:  css.NewParser(log),
		plugins: plugins,
	}
}

// Derive creates processor sharing logger and parser with p but using
// different plugins.
func (p *Processor) Derive(plugins ...Plugin) *Processor {
	return &Processor{log: p.log, parser: p.parser, plugins: plugins}
}

// Plugins returns configured plugins.
func (p *Processor) Plugins() []Plugin {
	return p.plugins
}

// Parse parses code without running plugins.
func (p *Processor) Parse(code string, opts ProcessOptions) *Result {
	id := opts.From
	if len(id) == 0 {
		id = "<input css>"
	}
	root, errs := p.parser.Parse(&css.Input{ID: id, CSS: code, Map: opts.PrevMap})
	res := &Result{Processor: p, Opts: opts, Root: root}
	for _, e := range errs {
		res.Messages = append(res.Messages, Message{
			Type:   MessageWarning,
			Plugin: "css-parser",
			Text:   e.Message,
			File:   id,
			Line:   e.Pos.Line,
			Column: e.Pos.Column,
		})
	}
	return res
}

// Run parses code and runs all plugins in order. Result carries the
// transformed tree only, CSS and Map are left empty.
func (p *Processor) Run(ctx context.Context, code string, opts ProcessOptions) (*Result, error) {
	res := p.Parse(code, opts)
	for _, pl := range p.plugins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := pl.Process(ctx, res.Root, res); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", pl.Name(), err)
		}
	}
	return res, nil
}

// Process is Run followed by printing of the resulting tree.
func (p *Processor) Process(ctx context.Context, code string, opts ProcessOptions) (*Result, error) {
	res, err := p.Run(ctx, code, opts)
	if err != nil {
		return nil, err
	}

	var file string
	if len(opts.To) > 0 {
		file = path.Base(opts.To)
	}
	res.CSS, res.Map = css.Stringify(res.Root, css.StringifyOptions{Map: opts.Map, File: file, SourcesContent: true})

	p.log.Debug("Processed",
		zap.String("from", opts.From),
		zap.Int("plugins", len(p.plugins)),
		zap.Int("messages", len(res.Messages)))
	return res, nil
}
