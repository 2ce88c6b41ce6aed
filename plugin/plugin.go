// Package plugin turns stylesheets met during module graph traversal into
// JavaScript modules and, at the end of a build, into extracted stylesheet
// assets.
package plugin

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/maruel/natural"
	"go.uber.org/zap"

	"styles/host"
	"styles/loaders"
	lp "styles/loaders/postcss"
	"styles/loaders/less"
	"styles/loaders/sass"
	"styles/loaders/stylus"
	"styles/postcss"
	"styles/postcss/urls"
	"styles/resolve"
	"styles/runtime"
	"styles/utils/naming"
	"styles/utils/paths"
)

// Name of the plugin as reported in warnings.
const Name = "styles"

// Plugin is a stylesheet plugin instance. It is safe to call Transform from
// many goroutines, GenerateBundle runs after all transformations are done.
type Plugin struct {
	opts   Options
	log    *zap.Logger
	filter *filter

	cache     *resolve.Cache
	names     *urls.Names
	sass      *sass.Compiler
	loaders   *loaders.Loaders
	extracted *extractedStore
}

// New validates options and creates plugin.
func New(opts Options) (*Plugin, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	f, err := newFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		opts:      opts,
		log:       opts.Log.Named(Name),
		filter:    f,
		cache:     resolve.NewCache(),
		names:     urls.NewNames(),
		extracted: newExtractedStore(),
	}

	so := opts.Sass
	so.Cache, so.Log = p.cache, opts.Log
	p.sass = sass.New(so)

	lo := opts.Less
	lo.Cache, lo.Log = p.cache, opts.Log
	sto := opts.Stylus
	sto.Cache, sto.Log = p.cache, opts.Log

	stage := lp.Loader(lp.Options{
		Mode:            opts.Mode,
		Inject:          opts.Inject,
		InjectFunc:      opts.InjectFunc,
		Modules:         opts.Modules,
		ModulesOptions:  opts.ModulesOptions,
		AutoModules:     opts.AutoModulesFunc,
		NamedExports:    opts.NamedExports,
		NamedExportFunc: opts.NamedExportFunc,
		Minimize:        opts.Minimize,
		Minify:          opts.Minify,
		Import:          opts.Import,
		URL:             opts.URL,
		Plugins:         opts.Plugins,
		Config:          opts.Config,
		ConfigLoader:    postcss.NewConfigLoader(opts.Log, p.cache),
		OnImport:        opts.OnImport,
		Alias:           opts.Alias,
		Cache:           p.cache,
		Names:           p.names,
		Log:             opts.Log,
	})

	registered := append([]*loaders.Loader{stage, p.sass.Loader(), less.Loader(lo), stylus.Loader(sto)}, opts.Loaders...)
	p.loaders, err = loaders.New(loaders.Options{
		Use:        opts.Use,
		Extensions: opts.Extensions,
		Loaders:    registered,
		Workers:    opts.Workers,
		Log:        opts.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	p.log.Debug("Created",
		zap.String("mode", string(opts.Mode)),
		zap.Strings("use", p.loaders.Use()),
		zap.Bool("modules", opts.Modules),
		zap.Bool("minimize", opts.Minimize))
	return p, nil
}

// Close releases external compilers.
func (p *Plugin) Close() error {
	return p.sass.Close()
}

// Loaders returns loader chain so custom stages may be added or removed.
func (p *Plugin) Loaders() *loaders.Loaders {
	return p.loaders
}

// ResolveID claims runtime helper specifier.
func (p *Plugin) ResolveID(source string) (string, bool) {
	if source == runtime.ID {
		return runtime.ID, true
	}
	return "", false
}

// Load returns runtime helper source.
func (p *Plugin) Load(id string) (string, bool) {
	if id == runtime.ID {
		return runtime.Source(), true
	}
	return "", false
}

// Supported reports if Transform processes id.
func (p *Plugin) Supported(id string) bool {
	return id != runtime.ID && p.filter.match(id) && p.loaders.IsSupported(id)
}

// Transform processes single stylesheet. Nil result is returned for modules
// plugin does not handle.
func (p *Plugin) Transform(ctx context.Context, hc host.Context, code, id string) (*host.TransformResult, error) {
	if !p.Supported(id) {
		return nil, nil
	}

	lc := loaders.NewContext(paths.Normalize(id), p.opts.SourceMap, func(w loaders.Warning) {
		if len(w.Plugin) == 0 {
			w.Plugin = Name
		}
		hc.Warn(host.Warning(w))
	}, p.log)

	out, err := p.loaders.Process(ctx, lc, loaders.Payload{Code: code})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", paths.Humanize(id), err)
	}

	for _, dep := range lc.Dependencies() {
		hc.AddWatchFile(dep)
	}
	for _, a := range lc.Assets() {
		hc.EmitFile(host.File{FileName: a.Name, Source: a.Source})
	}
	if out.Extracted != nil {
		p.extracted.set(*out.Extracted)
	}

	res := &host.TransformResult{
		Code:        out.Code,
		NoTreeshake: p.opts.Mode == lp.ModeInject && !p.opts.Inject.Treeshakeable,
	}
	if p.opts.Mode == lp.ModeEmit {
		res.Map = out.Map
	}
	p.log.Debug("Transformed",
		zap.String("id", id),
		zap.Int("dependencies", len(lc.Dependencies())),
		zap.Int("assets", len(lc.Assets())))
	return res, nil
}

// AugmentChunkHash returns value host mixes into chunk hash so chunk names
// change together with extracted stylesheets. Empty string means nothing to
// add.
func (p *Plugin) AugmentChunkHash(chunk *host.Chunk) string {
	if p.opts.Mode != lp.ModeExtract {
		return ""
	}
	var ids []string
	for _, id := range chunk.Modules {
		if _, ok := p.extracted.get(paths.Normalize(id)); ok {
			ids = append(ids, paths.Normalize(id))
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Sort(natural.StringSlice(ids))

	chunks := make([][]byte, 0, 2*len(ids))
	for _, id := range ids {
		e, _ := p.extracted.get(id)
		chunks = append(chunks, []byte(path.Base(id)), []byte(e.CSS))
	}
	return naming.Hash(chunks...)
}
