// Package icss implements Interoperable CSS: ":import" blocks pulling symbols
// from other stylesheets and ":export" blocks publishing symbols to
// JavaScript.
package icss

import (
	"context"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"

	cssparse "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/resolve"
	"styles/utils/paths"
)

// Name of the plugin as reported in messages.
const Name = "styles-icss"

// DefaultExtensions are tried when imported path has none.
var DefaultExtensions = []string{".css", ".pcss", ".postcss", ".sss"}

var (
	importRe = regexp.MustCompile(`^:import\(\s*(.*?)\s*\)$`)
	detectRe = regexp.MustCompile(`(?m)^\s*:(?:import\(|export\b)`)
)

// Import is a single ":import" block.
type Import struct {
	Path string
	// Aliases map local names (Name) to names exported by Path (Value).
	Aliases []postcss.Export
}

// Detect reports if code looks like it contains ICSS blocks.
func Detect(code string) bool {
	return detectRe.MatchString(code)
}

// Extract collects top level ":import" and ":export" blocks, removing them
// from root when requested. Blocks importing the same path are merged, later
// exports override earlier ones keeping their first position.
func Extract(root *css.Node, remove bool) ([]Import, []postcss.Export) {
	var (
		imports  []Import
		exports  []postcss.Export
		byPath   = make(map[string]int)
		byExport = make(map[string]int)
	)
	for _, n := range append([]*css.Node(nil), root.Nodes...) {
		if n.Kind != css.KindRule {
			continue
		}
		switch {
		case n.Selector == ":export":
			for _, d := range n.Nodes {
				if d.Kind != css.KindDecl {
					continue
				}
				if i, ok := byExport[d.Name]; ok {
					exports[i].Value = d.Value
					continue
				}
				byExport[d.Name] = len(exports)
				exports = append(exports, postcss.Export{Name: d.Name, Value: d.Value})
			}
		case importRe.MatchString(n.Selector):
			p, _ := css.Unquote(importRe.FindStringSubmatch(n.Selector)[1])
			i, ok := byPath[p]
			if !ok {
				i = len(imports)
				byPath[p] = i
				imports = append(imports, Import{Path: p})
			}
			for _, d := range n.Nodes {
				if d.Kind == css.KindDecl {
					imports[i].Aliases = append(imports[i].Aliases, postcss.Export{Name: d.Name, Value: d.Value})
				}
			}
		default:
			continue
		}
		if remove {
			n.Remove()
		}
	}
	return imports, exports
}

// CreateImports builds ":import" rules.
func CreateImports(imports []Import) []*css.Node {
	out := make([]*css.Node, 0, len(imports))
	for _, imp := range imports {
		rule := css.NewRule(":import(" + css.Quote(imp.Path, '"') + ")")
		for _, a := range imp.Aliases {
			rule.Append(css.NewDecl(a.Name, a.Value))
		}
		out = append(out, rule)
	}
	return out
}

// CreateExports builds ":export" rule.
func CreateExports(exports []postcss.Export) *css.Node {
	rule := css.NewRule(":export")
	for _, e := range exports {
		rule.Append(css.NewDecl(e.Name, e.Value))
	}
	return rule
}

// ReplaceValueSymbols substitutes identifiers found in replacements.
func ReplaceValueSymbols(value string, replacements map[string]string) string {
	if len(replacements) == 0 {
		return value
	}
	tokens := css.Tokenize(value)
	changed := false
	for i, t := range tokens {
		if t.Type != cssparse.IdentToken {
			continue
		}
		if r, ok := replacements[t.Data]; ok {
			tokens[i].Data = r
			changed = true
		}
	}
	if !changed {
		return value
	}
	return css.Join(tokens)
}

// ReplaceSymbols substitutes identifiers in declaration values, selectors and
// parameters of conditional at-rules.
func ReplaceSymbols(root *css.Node, replacements map[string]string) {
	if len(replacements) == 0 {
		return
	}
	_ = root.Walk(func(n *css.Node) error {
		switch n.Kind {
		case css.KindDecl:
			n.Value = ReplaceValueSymbols(n.Value, replacements)
		case css.KindRule:
			n.Selector = ReplaceValueSymbols(n.Selector, replacements)
		case css.KindAtRule:
			if name := strings.ToLower(n.Name); name == "media" || name == "supports" || name == "custom-media" {
				n.Params = ReplaceValueSymbols(n.Params, replacements)
			}
		}
		return nil
	})
}

// ResolveFunc locates imported stylesheet, it returns absolute path.
type ResolveFunc func(ctx context.Context, url, basedir string, extensions []string) (string, error)

// Options of the plugin.
type Options struct {
	Resolve    ResolveFunc
	Extensions []string
	Alias      []paths.Alias
	Cache      *resolve.Cache
	Log        *zap.Logger
}

type plugin struct {
	opts Options
	log  *zap.Logger
}

// New creates plugin which loads imported symbols, substitutes them and
// reports exports through a MessageICSS message.
func New(opts Options) postcss.Plugin {
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &plugin{opts: opts, log: log.Named("icss")}
	if p.opts.Resolve == nil {
		p.opts.Resolve = p.resolveDefault
	}
	return p
}

func (p *plugin) Name() string { return Name }

func (p *plugin) resolveDefault(ctx context.Context, url, basedir string, extensions []string) (string, error) {
	return resolve.Resolve(ctx, []string{url, "./" + url}, resolve.Options{
		Caller:     "ICSS resolver",
		BaseDirs:   []string{basedir},
		Extensions: extensions,
		Cache:      p.opts.Cache,
		Log:        p.log,
	})
}

func (p *plugin) Process(ctx context.Context, root *css.Node, res *postcss.Result) error {
	imports, exports := Extract(root, true)

	basedir := "."
	if len(res.Opts.From) > 0 {
		basedir = path.Dir(paths.Resolve(res.Opts.From))
	}

	replacements := make(map[string]string)
	for _, imp := range imports {
		tokens, err := p.load(ctx, res, imp.Path, basedir)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			res.Warn(Name, err.Error(), nil)
			continue
		}
		for _, a := range imp.Aliases {
			v, ok := tokens[a.Value]
			if !ok {
				res.Warn(Name, fmt.Sprintf("`%s` is not exported from `%s`", a.Value, imp.Path), nil)
				continue
			}
			replacements[a.Name] = v
		}
	}

	ReplaceSymbols(root, replacements)
	for i := range exports {
		exports[i].Value = ReplaceValueSymbols(exports[i].Value, replacements)
	}
	res.Messages = append(res.Messages, postcss.Message{Type: postcss.MessageICSS, Plugin: Name, Exports: exports})
	return nil
}

// load processes imported stylesheet with the same processor and returns its
// exports.
func (p *plugin) load(ctx context.Context, res *postcss.Result, url, basedir string) (map[string]string, error) {
	url = paths.ApplyAlias(url, p.opts.Alias)
	file, err := p.opts.Resolve(ctx, url, basedir, p.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("unresolved ICSS import `%s`: %w", url, err)
	}
	file = paths.Resolve(file)

	chain := append(append([]string{}, res.Opts.Importers...), res.Opts.From)
	for _, f := range chain {
		if len(f) > 0 && paths.Resolve(f) == file {
			return nil, fmt.Errorf("ICSS import loop in `%s`", paths.Humanize(file))
		}
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read `%s`: %w", paths.Humanize(file), err)
	}
	nested, err := res.Processor.Process(ctx, string(data), postcss.ProcessOptions{
		From:      file,
		To:        file,
		Importers: chain,
	})
	if err != nil {
		return nil, err
	}
	res.AddDependency(Name, file)
	for _, d := range nested.Dependencies() {
		res.AddDependency(Name, d)
	}

	p.log.Debug("Loaded ICSS import", zap.String("from", res.Opts.From), zap.String("file", file))

	tokens := make(map[string]string)
	for _, m := range nested.Messages {
		if m.Type == postcss.MessageICSS {
			for _, e := range m.Exports {
				tokens[e.Name] = e.Value
			}
		}
	}
	return tokens, nil
}
