// Package less compiles Less stylesheets with the lessc executable.
package less

import (
	"context"
	"path"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"styles/loaders"
	"styles/resolve"
	"styles/sourcemap"
	"styles/utils/paths"
)

// Name of the loader.
const Name = "less"

var importRe = regexp.MustCompile(`@import\s*(?:\([^)]*\)\s*)?(?:url\(\s*)?["'](?P<url>[^"']+)["']`)

// Options of the Less loader.
type Options struct {
	// Binary is lessc executable, "lessc" from PATH when empty.
	Binary       string            `yaml:"binary"`
	IncludePaths []string          `yaml:"include_paths"`
	GlobalVars   map[string]string `yaml:"global_vars"`
	ModifyVars   map[string]string `yaml:"modify_vars"`
	// Math is lessc math mode.
	Math string `yaml:"math" validate:"omitempty,oneof=always parens-division parens strict"`

	Cache *resolve.Cache `yaml:"-"`
	Log   *zap.Logger    `yaml:"-"`
}

// Loader returns chain stage compiling .less files.
func Loader(opts Options) *loaders.Loader {
	if len(opts.Binary) == 0 {
		opts.Binary = "lessc"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	log := opts.Log.Named(Name)

	return &loaders.Loader{
		Name: Name,
		Test: loaders.ExtensionTest(".less"),
		Process: func(ctx context.Context, lc *loaders.Context, p loaders.Payload) (loaders.Payload, error) {
			dir := path.Dir(paths.Normalize(lc.ID))
			code, err := loaders.ResolveImports(ctx, p.Code, importRe, resolve.Options{
				Caller:     "Less importer",
				BaseDirs:   append([]string{dir}, opts.IncludePaths...),
				Extensions: []string{".less", ".css"},
				Partials:   true,
				Cache:      opts.Cache,
				Log:        opts.Log,
			}, request)
			if err != nil {
				return p, err
			}

			out, err := loaders.Exec(ctx, "less", opts.Binary, Args(opts, lc.ID), dir, code)
			if err != nil {
				return p, err
			}
			css, m := loaders.ExtractInlineMap(out, lc.ID)
			m = loaders.NormalizeSources(m, lc.ID, "-", "input")
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

// request returns resolver candidate for imported url. Less treats bare names
// as relative to importing file, so they go through partial lookup as well.
func request(u string) (string, bool) {
	switch {
	case paths.IsRemoteURL(u), paths.IsDataURI(u), paths.IsAbsolute(u):
		return "", false
	case resolve.IsModule(u), paths.IsRelative(u):
		return u, true
	}
	return "./" + u, true
}

// Args builds lessc command line reading source from stdin.
func Args(opts Options, id string) []string {
	includes := append([]string{path.Dir(paths.Normalize(id))}, opts.IncludePaths...)
	args := []string{
		"--no-color",
		"--include-path=" + joinList(includes),
		"--source-map-map-inline",
		"--source-map-include-source",
	}
	if len(opts.Math) > 0 {
		args = append(args, "--math="+opts.Math)
	}
	args = append(args, vars("--global-var=", opts.GlobalVars)...)
	args = append(args, vars("--modify-var=", opts.ModifyVars)...)
	return append(args, "-")
}

func vars(flag string, m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, flag+k+"="+m[k])
	}
	return out
}
