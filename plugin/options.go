package plugin

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"styles/loaders"
	lp "styles/loaders/postcss"
	"styles/loaders/less"
	"styles/loaders/sass"
	"styles/loaders/stylus"
	"styles/minify"
	"styles/postcss"
	"styles/postcss/modules"
	"styles/utils/paths"
)

// ErrConfig is returned for invalid plugin options.
var ErrConfig = errors.New("invalid plugin configuration")

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// DefaultUse lists syntax loaders enabled by default.
var DefaultUse = []string{sass.Name, less.Name, stylus.Name}

// Extract is stylesheet about to be written at the end of a build.
type Extract struct {
	// Name is output path relative to output directory.
	Name string
	CSS  string
	// Map is JSON source map, empty when maps are disabled.
	Map string
}

// Options of the plugin.
type Options struct {
	// Include and Exclude are regular expressions matched against module
	// ids. Empty Include accepts everything.
	Include []string
	Exclude []string
	// Extensions always treated as stylesheets.
	Extensions []string
	// Use lists syntax loaders, DefaultUse when nil.
	Use []string
	// Loaders are custom stages which may be referenced from Use.
	Loaders []*loaders.Loader
	Workers int

	Mode       lp.Mode
	Inject     lp.InjectOptions
	InjectFunc lp.InjectFunc
	// Extract is single output path for all extracted stylesheets, one file
	// per entry chunk is produced when empty.
	Extract string
	// Dir is output relative directory of per entry stylesheets.
	Dir string
	// OnExtract may veto writing of extracted stylesheet.
	OnExtract func(e Extract) bool

	Modules        bool
	ModulesOptions modules.Options
	// AutoModules enables modules for "*.module.*" files when
	// AutoModulesFunc is nil.
	AutoModules     bool
	AutoModulesFunc func(id string) bool

	NamedExports    bool
	NamedExportFunc func(name string) string

	Minimize bool
	Minify   minify.Options

	// SourceMap enables source maps when not nil.
	SourceMap *loaders.SourceMapOptions

	Import  lp.ImportOptions
	URL     lp.URLOptions
	Plugins []postcss.Plugin
	Config  lp.ConfigOptions

	OnImport func(code, file string)
	Alias    []paths.Alias

	Sass   sass.Options
	Less   less.Options
	Stylus stylus.Options

	Log *zap.Logger
}

type filter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func compile(kind string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, configError("%s pattern %q: %v", kind, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func newFilter(include, exclude []string) (*filter, error) {
	in, err := compile("include", include)
	if err != nil {
		return nil, err
	}
	ex, err := compile("exclude", exclude)
	if err != nil {
		return nil, err
	}
	return &filter{include: in, exclude: ex}, nil
}

func (f *filter) match(id string) bool {
	id = paths.Normalize(id)
	for _, re := range f.exclude {
		if re.MatchString(id) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}

// checkOutputName validates extracted stylesheet path against output
// directory.
func checkOutputName(name string) (string, error) {
	if paths.IsAbsolute(name) {
		return "", configError("extracted file name %q must be relative", name)
	}
	name = strings.TrimPrefix(path.Clean(paths.Normalize(name)), "./")
	if name == ".." || strings.HasPrefix(name, "../") {
		return "", configError("extracted file name %q is outside of output directory", name)
	}
	return name, nil
}

func (o *Options) normalize() error {
	if len(o.Mode) == 0 {
		o.Mode = lp.ModeInject
	}
	switch o.Mode {
	case lp.ModeInject, lp.ModeExtract, lp.ModeEmit:
	default:
		return configError("unknown mode %q", o.Mode)
	}
	if o.Use == nil {
		o.Use = DefaultUse
	}
	if o.Minimize && o.Minify == (minify.Options{}) {
		o.Minify = minify.Defaults()
	}
	if o.Inject.Treeshakeable && o.NamedExports && o.Mode == lp.ModeInject {
		return configError("treeshakeable injection is incompatible with named exports")
	}
	if len(o.Extract) > 0 {
		if o.Mode != lp.ModeExtract {
			return configError("extract path is set but mode is %q", o.Mode)
		}
		name, err := checkOutputName(o.Extract)
		if err != nil {
			return err
		}
		o.Extract = name
	}
	if len(o.Dir) > 0 {
		dir, err := checkOutputName(o.Dir)
		if err != nil {
			return err
		}
		o.Dir = dir
	}
	if len(o.ModulesOptions.Mode) > 0 {
		mode, err := modules.ParseMode(string(o.ModulesOptions.Mode))
		if err != nil {
			return configError("%v", err)
		}
		o.ModulesOptions.Mode = mode
	}
	if o.AutoModules && o.AutoModulesFunc == nil {
		o.AutoModulesFunc = lp.DefaultAutoModules
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	return nil
}
