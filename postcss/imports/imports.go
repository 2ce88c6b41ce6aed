// Package imports inlines "@import" rules replacing them with content of the
// referenced stylesheets.
package imports

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	cssparse "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/resolve"
	"styles/utils/paths"
)

// Name of the plugin as reported in messages.
const Name = "styles-import"

// DefaultExtensions are tried when imported url has none.
var DefaultExtensions = []string{".css", ".pcss", ".postcss", ".sss"}

// ResolveFunc locates imported file, it returns absolute path.
type ResolveFunc func(ctx context.Context, url, basedir string, extensions []string) (string, error)

// Options of the plugin.
type Options struct {
	// Resolve replaces default resolver.
	Resolve ResolveFunc
	// Alias rewrites url prefixes before resolving.
	Alias      []paths.Alias
	Extensions []string
	// OnImport is called for every inlined file.
	OnImport func(code, file string)
	// Cache is used by default resolver.
	Cache *resolve.Cache
	Log   *zap.Logger
}

type plugin struct {
	opts Options
	log  *zap.Logger
}

// New creates "@import" inlining plugin.
func New(opts Options) postcss.Plugin {
	if opts.Extensions == nil {
		opts.Extensions = DefaultExtensions
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &plugin{opts: opts, log: log.Named("import")}
	if p.opts.Resolve == nil {
		p.opts.Resolve = p.resolveDefault
	}
	return p
}

func (p *plugin) Name() string { return Name }

func (p *plugin) resolveDefault(ctx context.Context, url, basedir string, extensions []string) (string, error) {
	return resolve.Resolve(ctx, []string{url, "./" + url}, resolve.Options{
		Caller:     "@import resolver",
		BaseDirs:   []string{basedir},
		Extensions: extensions,
		Cache:      p.opts.Cache,
		Log:        p.log,
	})
}

type importEntry struct {
	rule  *css.Node
	url   string
	media string
}

func (p *plugin) Process(ctx context.Context, root *css.Node, res *postcss.Result) error {
	from := res.Opts.From
	basedir := "."
	if len(from) > 0 {
		basedir = path.Dir(paths.Normalize(from))
	}

	var queue []importEntry
	err := root.WalkAtRules("import", func(rule *css.Node) error {
		if rule.Parent() != root {
			res.Warn(Name, "`@import` should be top level", rule)
			return nil
		}
		if rule.Nodes != nil {
			res.Warn(Name, "`@import` was not terminated correctly", rule)
			return nil
		}

		url, media, problem := parseParams(rule.Params)
		if len(problem) > 0 {
			res.Warn(Name, fmt.Sprintf("%s `%s`", problem, rule), rule)
			return nil
		}
		url = paths.ApplyAlias(strings.TrimSpace(url), p.opts.Alias)
		if len(url) == 0 {
			res.Warn(Name, fmt.Sprintf("Empty URL in `%s`", rule), rule)
			return nil
		}
		if paths.IsRemoteURL(url) || paths.IsDataURI(url) {
			return nil
		}
		queue = append(queue, importEntry{rule: rule, url: url, media: media})
		return nil
	})
	if err != nil {
		return err
	}

	for _, entry := range queue {
		if err := p.inline(ctx, res, basedir, entry); err != nil {
			return err
		}
	}
	return nil
}

func (p *plugin) inline(ctx context.Context, res *postcss.Result, basedir string, entry importEntry) error {
	file, err := p.opts.Resolve(ctx, entry.url, basedir, p.opts.Extensions)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res.Warn(Name, fmt.Sprintf("Unresolved `@import` in `%s`", entry.rule), entry.rule)
		return nil
	}
	file = paths.Resolve(file)

	if p.isLoop(file, res.Opts) {
		res.Warn(Name, fmt.Sprintf("`@import` loop in `%s`", entry.rule), entry.rule)
		return nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		res.Warn(Name, fmt.Sprintf("Unable to read `%s`: %v", paths.Humanize(file), err), entry.rule)
		return nil
	}
	code := string(data)
	if p.opts.OnImport != nil {
		p.opts.OnImport(code, file)
	}

	importers := append(append([]string{}, res.Opts.Importers...), res.Opts.From)
	nested, err := res.Processor.Derive(p).Run(ctx, code, postcss.ProcessOptions{
		From:      file,
		To:        file,
		Importers: importers,
	})
	if err != nil {
		return err
	}
	res.Messages = append(res.Messages, nested.Messages...)
	res.AddDependency(Name, file)

	p.log.Debug("Inlining", zap.String("from", res.Opts.From), zap.String("file", file), zap.Int("nodes", len(nested.Root.Nodes)))

	if len(nested.Root.Nodes) == 0 {
		entry.rule.Remove()
		return nil
	}
	if len(entry.media) > 0 {
		media := css.NewAtRule("media", entry.media)
		media.Source = entry.rule.Source
		media.Append(nested.Root)
		entry.rule.ReplaceWith(media)
		return nil
	}
	entry.rule.ReplaceWith(nested.Root)
	return nil
}

func (p *plugin) isLoop(file string, opts postcss.ProcessOptions) bool {
	if len(opts.From) > 0 && paths.Resolve(opts.From) == file {
		return true
	}
	for _, imp := range opts.Importers {
		if len(imp) > 0 && paths.Resolve(imp) == file {
			return true
		}
	}
	return false
}

const (
	problemNoURL      = "No URL in"
	problemInvalidURL = "Invalid `url` function in"
)

// parseParams extracts url and trailing media query list from "@import"
// parameters. The first meaningful token must be a string or url(), problem
// is not empty otherwise.
func parseParams(params string) (url, media, problem string) {
	tokens := css.Tokenize(params)
	i := 0
	for i < len(tokens) && (tokens[i].Type == cssparse.WhitespaceToken || tokens[i].Type == cssparse.CommentToken) {
		i++
	}
	if i >= len(tokens) {
		return "", "", problemNoURL
	}

	switch t := tokens[i]; t.Type {
	case cssparse.StringToken:
		url, _ = css.Unquote(t.Data)
	case cssparse.URLToken:
		url, _ = css.URLFunc(t.Data)
	case cssparse.BadURLToken:
		return "", "", problemInvalidURL
	default:
		return "", "", problemNoURL
	}
	return url, strings.TrimSpace(css.Join(tokens[i+1:])), ""
}
