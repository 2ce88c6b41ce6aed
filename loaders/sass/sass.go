// Package sass compiles Sass and SCSS with Dart Sass running in embedded
// mode.
package sass

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	"go.uber.org/zap"

	"styles/loaders"
	"styles/resolve"
	"styles/sourcemap"
	"styles/utils/paths"
)

// Name of the loader.
const Name = "sass"

// Extensions handled by the loader, dialect is chosen by extension.
var Extensions = []string{".scss", ".sass"}

// Options of the Sass loader.
type Options struct {
	// Binary is Dart Sass executable, "sass" from PATH when empty.
	Binary string `yaml:"binary"`
	// Data is prepended to every compiled file.
	Data         string        `yaml:"data"`
	IncludePaths []string      `yaml:"include_paths"`
	OutputStyle  string        `yaml:"output_style" validate:"omitempty,oneof=expanded compressed"`
	Timeout      time.Duration `yaml:"timeout"`
	// SilenceDeprecations lists deprecation ids not to report.
	SilenceDeprecations []string `yaml:"silence_deprecations"`

	Cache *resolve.Cache `yaml:"-"`
	Log   *zap.Logger    `yaml:"-"`
}

// Compiler owns Dart Sass process started on first use.
type Compiler struct {
	opts Options
	log  *zap.Logger

	mu sync.Mutex
	tr *godartsass.Transpiler
}

// New creates compiler, Dart Sass is not started until the first file is
// processed.
func New(opts Options) *Compiler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Compiler{opts: opts, log: opts.Log.Named(Name)}
}

// Loader returns chain stage backed by c.
func (c *Compiler) Loader() *loaders.Loader {
	return &loaders.Loader{
		Name:    Name,
		Test:    loaders.ExtensionTest(Extensions...),
		Process: c.process,
	}
}

// Close stops Dart Sass if it was started.
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr == nil || c.tr.IsShutDown() {
		return nil
	}
	err := c.tr.Close()
	c.tr = nil
	if errors.Is(err, godartsass.ErrShutdown) {
		return nil
	}
	return err
}

func (c *Compiler) transpiler() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tr != nil && !c.tr.IsShutDown() {
		return c.tr, nil
	}
	tr, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: c.opts.Binary,
		Timeout:                  c.opts.Timeout,
		LogEventHandler:          c.logEvent,
	})
	if err != nil {
		var ee *exec.Error
		if errors.As(err, &ee) {
			return nil, loaders.MissingDependency("sass", err)
		}
		return nil, fmt.Errorf("unable to start dart sass: %w", err)
	}
	c.tr = tr
	return tr, nil
}

func (c *Compiler) logEvent(e godartsass.LogEvent) {
	switch e.Type {
	case godartsass.LogEventTypeDebug:
		c.log.Debug("Sass", zap.String("message", e.Message))
	case godartsass.LogEventTypeDeprecated:
		c.log.Warn("Sass deprecation", zap.String("type", e.DeprecationType), zap.String("message", e.Message))
	default:
		c.log.Warn("Sass", zap.String("message", e.Message))
	}
}

func syntax(id string) godartsass.SourceSyntax {
	switch strings.ToLower(path.Ext(id)) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	}
	return godartsass.SourceSyntaxSCSS
}

func (c *Compiler) process(ctx context.Context, lc *loaders.Context, p loaders.Payload) (loaders.Payload, error) {
	tr, err := c.transpiler()
	if err != nil {
		return p, err
	}

	source := p.Code
	if len(c.opts.Data) > 0 {
		source = c.opts.Data + "\n" + source
	}
	args := godartsass.Args{
		Source:                  source,
		URL:                     fileURL(lc.ID),
		SourceSyntax:            syntax(lc.ID),
		OutputStyle:             godartsass.ParseOutputStyle(c.opts.OutputStyle),
		EnableSourceMap:         true,
		SourceMapIncludeSources: true,
		ImportResolver:          newImporter(ctx, lc, c.opts),
		IncludePaths:            c.opts.IncludePaths,
		SilenceDeprecations:     c.opts.SilenceDeprecations,
	}

	res, err := loaders.Await(ctx, func(done func(godartsass.Result, error)) {
		go func() { done(tr.Execute(args)) }()
	})
	if err != nil {
		var se godartsass.SassError
		if errors.As(err, &se) {
			return p, fmt.Errorf("%s: %s", paths.Humanize(filePath(se.Span.Url, lc.ID)), se.Message)
		}
		return p, err
	}

	m := NormalizeMap(res.SourceMap, lc.ID)
	if parsed := sourcemap.Parse(m); parsed != nil {
		for _, s := range parsed.Sources {
			if s != lc.ID && paths.IsAbsolute(s) {
				lc.AddDependency(s)
			}
		}
	}
	return loaders.Payload{Code: res.CSS, Map: m}, nil
}

// NormalizeMap converts Dart Sass map sources from URLs to absolute paths,
// sources without file reference are attributed to id.
func NormalizeMap(data, id string) string {
	return sourcemap.NewModifier(data).ModifySources(func(s string) string {
		return filePath(s, id)
	}).String()
}

func fileURL(file string) string {
	p := paths.Resolve(file)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// filePath converts file URL to path, other references are replaced with
// fallback.
func filePath(u, fallback string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme != "file" {
		if len(u) > 0 && paths.IsAbsolute(u) {
			return paths.Normalize(u)
		}
		return paths.Normalize(fallback)
	}
	p := parsed.Path
	// "/C:/dir" on windows
	if len(p) > 2 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return paths.Normalize(filepath.FromSlash(p))
}

// importer resolves "~" prefixed and bare package requests through node
// style resolution and records loaded files as dependencies.
type importer struct {
	ctx  context.Context
	lc   *loaders.Context
	opts resolve.Options
}

func newImporter(ctx context.Context, lc *loaders.Context, opts Options) *importer {
	return &importer{
		ctx: ctx,
		lc:  lc,
		opts: resolve.Options{
			Caller:     "Sass importer",
			BaseDirs:   append([]string{path.Dir(paths.Normalize(lc.ID))}, opts.IncludePaths...),
			Extensions: []string{".scss", ".sass", ".css"},
			Partials:   true,
			Cache:      opts.Cache,
			Log:        opts.Log,
		},
	}
}

// CanonicalizeURL returns file URL of the resolved stylesheet or empty
// string to let Dart Sass continue with other importers.
func (im *importer) CanonicalizeURL(u string) (string, error) {
	var candidates []string
	switch {
	case strings.HasPrefix(u, "file:"):
		candidates = []string{filePath(u, "")}
	case resolve.IsModule(u):
		candidates = []string{resolve.NormalizeModule(u)}
	case len(u) == 0, paths.IsRelative(u), paths.IsAbsolute(u), strings.Contains(u, ":"):
		return "", nil
	default:
		candidates = []string{u, "./" + u}
	}

	file, err := resolve.Resolve(im.ctx, candidates, im.opts)
	if err != nil {
		var re *resolve.Error
		if errors.As(err, &re) {
			return "", nil
		}
		return "", err
	}
	return fileURL(file), nil
}

// Load reads canonicalized file.
func (im *importer) Load(canonical string) (godartsass.Import, error) {
	file := filePath(canonical, "")
	data, err := os.ReadFile(filepath.FromSlash(file))
	if err != nil {
		return godartsass.Import{}, err
	}
	im.lc.AddDependency(file)
	return godartsass.Import{Content: string(data), SourceSyntax: syntax(file)}, nil
}
