// Package postcss is the final loader stage. It runs tree plugins over
// plain CSS and turns result into JavaScript module, extracted stylesheet or
// emitted CSS.
package postcss

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"styles/loaders"
	"styles/minify"
	engine "styles/postcss"
	"styles/postcss/icss"
	"styles/postcss/imports"
	"styles/postcss/modules"
	"styles/postcss/urls"
	"styles/resolve"
	"styles/runtime"
	"styles/sourcemap"
	"styles/utils/paths"
)

// Name of the loader.
const Name = loaders.PostCSS

// Mode selects what happens with processed CSS.
type Mode string

const (
	// ModeInject generates module injecting CSS into the document at runtime.
	ModeInject Mode = "inject"
	// ModeExtract hands CSS to the bundle level extraction.
	ModeExtract Mode = "extract"
	// ModeEmit returns CSS itself as stage output.
	ModeEmit Mode = "emit"
)

// InjectOptions are passed to runtime helper.
type InjectOptions struct {
	// Container is a selector of element styles are appended to, "head"
	// when empty.
	Container  string
	Prepend    bool
	SingleTag  bool
	Attributes map[string]string
	// Treeshakeable defers injection until default export inject() is
	// called.
	Treeshakeable bool
}

// InjectFunc generates custom injection code for variable holding CSS.
type InjectFunc func(varname, id string) string

// ImportOptions configure "@import" inlining.
type ImportOptions struct {
	Disabled   bool
	Resolve    imports.ResolveFunc
	Extensions []string
}

// URLOptions configure url() handling.
type URLOptions struct {
	Disabled       bool
	Inline         bool
	CompactSVG     bool
	PublicPath     string
	PublicPathFunc urls.PublicPathFunc
	AssetDir       string
	Hash           string
	NoHash         bool
	Resolve        urls.ResolveFunc
}

// ConfigOptions control project configuration discovery.
type ConfigOptions struct {
	Disabled bool
	// Path is explicit configuration file or directory, configuration is
	// searched from processed file directory up when empty.
	Path string
}

var autoModulesRe = regexp.MustCompile(`\.module\.[A-Za-z]+$`)

// DefaultAutoModules enables modules for files named like "x.module.css".
func DefaultAutoModules(id string) bool {
	file, _ := paths.SplitQuery(id)
	return autoModulesRe.MatchString(file)
}

// Options of the stage.
type Options struct {
	Mode   Mode
	Inject InjectOptions
	// InjectFunc replaces runtime helper call.
	InjectFunc InjectFunc
	// InjectorID is module specifier of the runtime helper.
	InjectorID string

	Modules        bool
	ModulesOptions modules.Options
	// AutoModules enables modules per file when Modules is off.
	AutoModules func(id string) bool

	NamedExports bool
	// NamedExportFunc converts class names to export names, ClassName when
	// nil.
	NamedExportFunc func(name string) string

	Minimize bool
	Minify   minify.Options

	Import  ImportOptions
	URL     URLOptions
	Plugins []engine.Plugin
	Config  ConfigOptions
	// ConfigLoader is shared between builds, private when nil.
	ConfigLoader *engine.ConfigLoader

	OnImport func(code, file string)
	Alias    []paths.Alias

	Cache *resolve.Cache
	Names *urls.Names
	Log   *zap.Logger
}

type stage struct {
	opts    Options
	log     *zap.Logger
	base    *engine.Processor
	project func() (*engine.ProjectConfig, error)
}

// Loader returns the postcss stage. It processes every file regardless of
// its extension.
func Loader(opts Options) *loaders.Loader {
	if len(opts.Mode) == 0 {
		opts.Mode = ModeInject
	}
	if len(opts.InjectorID) == 0 {
		opts.InjectorID = runtime.ID
	}
	if opts.NamedExportFunc == nil {
		opts.NamedExportFunc = ClassName
	}
	if opts.Minimize && opts.Minify == (minify.Options{}) {
		opts.Minify = minify.Defaults()
	}
	if opts.Names == nil {
		opts.Names = urls.NewNames()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.ConfigLoader == nil {
		opts.ConfigLoader = engine.NewConfigLoader(opts.Log, opts.Cache)
	}

	s := &stage{
		opts: opts,
		log:  opts.Log.Named(Name),
		base: engine.New(opts.Log),
	}
	if len(opts.Config.Path) > 0 {
		s.project = sync.OnceValues(func() (*engine.ProjectConfig, error) {
			return opts.ConfigLoader.Load(opts.Config.Path)
		})
	}

	return &loaders.Loader{
		Name:          Name,
		Test:          func(string) bool { return true },
		AlwaysProcess: true,
		Process:       s.process,
	}
}

func (s *stage) config(dir string) (*engine.ProjectConfig, error) {
	if s.opts.Config.Disabled {
		return nil, nil
	}
	if s.project != nil {
		return s.project()
	}
	return s.opts.ConfigLoader.Find(dir)
}

func (s *stage) modulesOn(id string) bool {
	return s.opts.Modules || (s.opts.AutoModules != nil && s.opts.AutoModules(id))
}

// plugins returns ordered plugin list for the file.
func (s *stage) plugins(lc *loaders.Context, code string) ([]engine.Plugin, error) {
	var list []engine.Plugin

	if !s.opts.Import.Disabled {
		list = append(list, imports.New(imports.Options{
			Resolve:    s.opts.Import.Resolve,
			Alias:      s.opts.Alias,
			Extensions: s.opts.Import.Extensions,
			OnImport:   s.opts.OnImport,
			Cache:      s.opts.Cache,
			Log:        s.opts.Log,
		}))
	}
	if !s.opts.URL.Disabled {
		list = append(list, urls.New(urls.Options{
			Inline:         s.opts.URL.Inline,
			CompactSVG:     s.opts.URL.CompactSVG,
			PublicPath:     s.opts.URL.PublicPath,
			PublicPathFunc: s.opts.URL.PublicPathFunc,
			AssetDir:       s.opts.URL.AssetDir,
			Hash:           s.opts.URL.Hash,
			NoHash:         s.opts.URL.NoHash,
			Alias:          s.opts.Alias,
			Resolve:        s.opts.URL.Resolve,
			Names:          s.opts.Names,
			Cache:          s.opts.Cache,
			Log:            s.opts.Log,
		}))
	}

	list = append(list, s.opts.Plugins...)
	cfg, err := s.config(path.Dir(paths.Normalize(lc.ID)))
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		configured, err := cfg.Instantiate(s.opts.Log)
		if err != nil {
			return nil, err
		}
		list = append(list, configured...)
	}

	on := s.modulesOn(lc.ID)
	if on {
		mo := s.opts.ModulesOptions
		if mo.Log == nil {
			mo.Log = s.opts.Log
		}
		list = append(list, modules.Plugins(mo)...)
	}
	if on || icss.Detect(code) {
		list = append(list, icss.New(icss.Options{
			Alias: s.opts.Alias,
			Cache: s.opts.Cache,
			Log:   s.opts.Log,
		}))
	}

	if len(list) == 0 {
		list = append(list, engine.Noop())
	}
	return list, nil
}

func (s *stage) process(ctx context.Context, lc *loaders.Context, p loaders.Payload) (loaders.Payload, error) {
	id := paths.Normalize(lc.ID)
	dir := path.Dir(id)

	list, err := s.plugins(lc, p.Code)
	if err != nil {
		return p, err
	}

	po := engine.ProcessOptions{
		From: id,
		To:   id,
		Map:  lc.SourceMap != nil,
	}
	if len(p.Map) > 0 {
		po.PrevMap = sourcemap.Parse(sourcemap.NewModifier(p.Map).Relative(dir).String())
	}

	res, err := s.base.Derive(list...).Process(ctx, p.Code, po)
	if err != nil {
		return p, err
	}

	var exports []engine.Export
	for _, msg := range res.Messages {
		switch msg.Type {
		case engine.MessageWarning:
			lc.Warn(loaders.Warning{Plugin: msg.Plugin, Text: msg.Text, File: msg.File, Line: msg.Line, Column: msg.Column})
		case engine.MessageDependency:
			lc.AddDependency(msg.File)
		case engine.MessageAsset:
			lc.EmitAsset(msg.Name, msg.Source)
		case engine.MessageICSS:
			exports = append(exports, msg.Exports...)
		}
	}
	exports = mergeExports(exports)

	code := res.CSS
	var m *sourcemap.Map
	if res.Map != nil {
		m = sourcemap.FromMap(res.Map).Resolve(dir).Map()
	}

	if s.opts.Minimize && s.opts.Mode != ModeExtract {
		out, err := minify.CSS(minify.Input{Code: code, File: path.Base(id), Map: m, SourceMap: m != nil}, s.opts.Minify)
		if err != nil {
			return p, err
		}
		for _, w := range out.Warnings {
			lc.Warn(loaders.Warning{Plugin: "minify", Text: w, File: id})
		}
		code, m = out.Code, out.Map
	}
	if m != nil && lc.SourceMap != nil && !lc.SourceMap.Content {
		m.SourcesContent = nil
	}

	mod := &module{id: id, css: code, exports: exports, modules: s.modulesOn(id)}
	s.log.Debug("Processed",
		zap.String("id", id),
		zap.String("mode", string(s.opts.Mode)),
		zap.Int("exports", len(exports)))

	switch s.opts.Mode {
	case ModeExtract:
		ex := &loaders.Extracted{ID: id, CSS: code}
		if m != nil {
			ex.Map = m.String()
		}
		return loaders.Payload{Code: s.generate(lc, mod), Extracted: ex}, nil
	case ModeEmit:
		out := loaders.Payload{Code: code}
		if m != nil {
			out.Map = m.String()
		}
		return out, nil
	}

	if m != nil {
		mod.css += s.mapComment(lc, m, id)
	}
	return loaders.Payload{Code: s.generate(lc, mod)}, nil
}

// mapComment renders source map reference appended to injected CSS. For
// file maps the map is queued as asset.
func (s *stage) mapComment(lc *loaders.Context, m *sourcemap.Map, id string) string {
	var name string
	if !lc.SourceMap.Inline {
		base := path.Base(id)
		name = s.opts.Names.Claim(strings.TrimSuffix(base, path.Ext(base))+".css.map", id)
	}
	mm := sourcemap.FromMap(m).Modify(func(m *sourcemap.Map) { m.File = "" })
	if lc.SourceMap.Transform != nil {
		mm.Modify(func(m *sourcemap.Map) { lc.SourceMap.Transform(m, name) })
	}
	mm.Relative(paths.Resolve("."))

	if lc.SourceMap.Inline {
		return mm.ToCommentData()
	}
	lc.EmitAsset(name, []byte(mm.String()))
	return mm.ToCommentFile(name)
}

// generate renders JavaScript module for processed file.
func (s *stage) generate(lc *loaders.Context, m *module) string {
	var (
		out        []string
		cssVar     = safeID("css", m.id)
		modulesVar = safeID("modules", m.id)
		extract    = s.opts.Mode == ModeExtract
		inject     = !extract && s.opts.InjectFunc == nil
	)

	if inject {
		out = append(out, fmt.Sprintf("import %s from %s;", safeID("injector", m.id), jsString(s.opts.InjectorID)))
	}
	if !extract {
		out = append(out, fmt.Sprintf("var %s = %s;", cssVar, jsString(m.css)))
	}

	if s.opts.NamedExports {
		transform := func(name string) string {
			name = s.opts.NamedExportFunc(name)
			if name == "stylesheet" && !extract {
				name = "_" + name
			}
			return name
		}
		out = append(out, m.namedExports(transform, func(text string) {
			lc.Warn(loaders.Warning{Plugin: Name, Text: text, File: m.id})
		})...)
	}

	treeshake := inject && s.opts.Inject.Treeshakeable
	switch {
	case treeshake:
		injected := safeID("injected", m.id)
		table := strings.TrimSuffix(jsObject(m.exports), "}")
		if len(m.exports) > 0 {
			table += ","
		}
		out = append(out,
			fmt.Sprintf("var %s = false;", injected),
			fmt.Sprintf("var %s = %sinject: function inject() { if (!%s) { %s = true; %s(%s, %s); } }};",
				modulesVar, table, injected, injected, safeID("injector", m.id), cssVar, injectorOptions(s.opts.Inject)))
	case m.modules:
		out = append(out, fmt.Sprintf("var %s = %s;", modulesVar, jsObject(m.exports)))
	}

	switch {
	case treeshake || m.modules:
		out = append(out, fmt.Sprintf("export default %s;", modulesVar))
	case !extract:
		out = append(out, fmt.Sprintf("export default %s;", cssVar))
	}
	if !extract {
		out = append(out, fmt.Sprintf("export var stylesheet = %s;", cssVar))
	}

	switch {
	case extract || treeshake:
	case s.opts.InjectFunc != nil:
		out = append(out, s.opts.InjectFunc(cssVar, m.id))
	default:
		out = append(out, fmt.Sprintf("%s(%s, %s);", safeID("injector", m.id), cssVar, injectorOptions(s.opts.Inject)))
	}
	return strings.Join(out, "\n")
}
