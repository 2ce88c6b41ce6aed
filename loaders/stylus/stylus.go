// Package stylus compiles Stylus stylesheets with the stylus executable.
package stylus

import (
	"context"
	"path"
	"regexp"

	"go.uber.org/zap"

	"styles/loaders"
	"styles/resolve"
	"styles/sourcemap"
	"styles/utils/paths"
)

// Name of the loader.
const Name = "stylus"

var importRe = regexp.MustCompile(`@(?:import|require)\s+(?:url\(\s*)?["'](?P<url>[^"']+)["']`)

// Options of the Stylus loader.
type Options struct {
	// Binary is stylus executable, "stylus" from PATH when empty.
	Binary       string   `yaml:"binary"`
	IncludePaths []string `yaml:"include_paths"`
	// IncludeCSS inlines imported plain CSS files.
	IncludeCSS bool `yaml:"include_css"`
	// ResolveURL rewrites relative url() of imported files.
	ResolveURL bool `yaml:"resolve_url"`

	Cache *resolve.Cache `yaml:"-"`
	Log   *zap.Logger    `yaml:"-"`
}

// Loader returns chain stage compiling .styl and .stylus files.
func Loader(opts Options) *loaders.Loader {
	if len(opts.Binary) == 0 {
		opts.Binary = "stylus"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	log := opts.Log.Named(Name)

	return &loaders.Loader{
		Name: Name,
		Test: loaders.ExtensionTest(".styl", ".stylus"),
		Process: func(ctx context.Context, lc *loaders.Context, p loaders.Payload) (loaders.Payload, error) {
			dir := path.Dir(paths.Normalize(lc.ID))
			code, err := loaders.ResolveModuleImports(ctx, p.Code, importRe, resolve.Options{
				Caller:     "Stylus importer",
				BaseDirs:   append([]string{dir}, opts.IncludePaths...),
				Extensions: []string{".styl", ".stylus", ".css"},
				Cache:      opts.Cache,
				Log:        opts.Log,
			})
			if err != nil {
				return p, err
			}

			out, err := loaders.Exec(ctx, "stylus", opts.Binary, Args(opts, lc.ID), dir, code)
			if err != nil {
				return p, err
			}
			css, m := loaders.ExtractInlineMap(out, lc.ID)
			m = loaders.NormalizeSources(m, lc.ID, "stdin", "-")
			if parsed := sourcemap.Parse(m); parsed != nil {
				for _, s := range parsed.Sources {
					if s != lc.ID && paths.IsAbsolute(s) {
						lc.AddDependency(s)
					}
				}
			}
			log.Debug("Compiled", zap.String("id", lc.ID), zap.Int("size", len(css)))
			return loaders.Payload{Code: css, Map: m}, nil
		},
	}
}

// Args builds stylus command line reading source from stdin.
func Args(opts Options, id string) []string {
	args := []string{"--sourcemap-inline", "--include", path.Dir(paths.Normalize(id))}
	for _, dir := range opts.IncludePaths {
		args = append(args, "--include", dir)
	}
	if opts.IncludeCSS {
		args = append(args, "--include-css")
	}
	if opts.ResolveURL {
		args = append(args, "--resolve-url")
	}
	return args
}
