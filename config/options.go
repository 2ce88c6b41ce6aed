package config

import (
	"fmt"

	"go.uber.org/zap"

	"styles/loaders"
	lp "styles/loaders/postcss"
	"styles/plugin"
	"styles/postcss"
	"styles/postcss/modules"
)

var pluginModes = map[Mode]lp.Mode{
	ModeInject:  lp.ModeInject,
	ModeExtract: lp.ModeExtract,
	ModeEmit:    lp.ModeEmit,
}

// SourceMapOptions converts source map configuration, nil means no maps.
func (c *SourceMapConfig) SourceMapOptions() *loaders.SourceMapOptions {
	switch c.Mode {
	case SourceMapModeInline:
		return &loaders.SourceMapOptions{Inline: true, Content: c.Content}
	case SourceMapModeFile:
		return &loaders.SourceMapOptions{Content: c.Content}
	default:
		return nil
	}
}

// PluginOptions translates build configuration into plugin options.
// Plugins listed in configuration are instantiated from postcss registry.
func (c *BuildConfig) PluginOptions(log *zap.Logger) (plugin.Options, error) {
	mode, ok := pluginModes[c.Mode]
	if !ok {
		return plugin.Options{}, fmt.Errorf("unsupported build mode %s", c.Mode)
	}

	project := postcss.ProjectConfig{File: "configuration", Plugins: c.Plugins}
	plugins, err := project.Instantiate(log)
	if err != nil {
		return plugin.Options{}, err
	}

	opts := plugin.Options{
		Include:    c.Include,
		Exclude:    c.Exclude,
		Extensions: c.Extensions,
		Use:        c.Use,
		Workers:    c.Workers,
		Mode:       mode,
		Inject: lp.InjectOptions{
			Container:     c.Inject.Container,
			Prepend:       c.Inject.Prepend,
			SingleTag:     c.Inject.SingleTag,
			Attributes:    c.Inject.Attributes,
			Treeshakeable: c.Inject.Treeshakeable,
		},
		Extract: c.Extract,
		Dir:     c.Dir,
		Modules: c.Modules.Enable,
		ModulesOptions: modules.Options{
			Mode:       modules.Mode(c.Modules.Mode),
			ScopedName: c.Modules.ScopedName,
		},
		AutoModules:  c.Modules.Auto,
		NamedExports: c.NamedExports,
		Minimize:     c.Minimize,
		Minify:       c.Minify,
		SourceMap:    c.SourceMap.SourceMapOptions(),
		Import: lp.ImportOptions{
			Disabled:   !c.Import.Enable,
			Extensions: c.Import.Extensions,
		},
		URL: lp.URLOptions{
			Disabled:   !c.URL.Enable,
			Inline:     c.URL.Inline,
			CompactSVG: c.URL.CompactSVG,
			PublicPath: c.URL.PublicPath,
			AssetDir:   c.URL.AssetDir,
			Hash:       c.URL.Hash,
			NoHash:     c.URL.NoHash,
		},
		Plugins: plugins,
		Config: lp.ConfigOptions{
			Disabled: !c.Project.Enable,
			Path:     c.Project.Path,
		},
		Alias:  c.Alias,
		Sass:   c.Sass,
		Less:   c.Less,
		Stylus: c.Stylus,
		Log:    log,
	}
	if opts.Modules {
		// explicit modules switch wins over file name detection
		opts.AutoModules = false
	}
	return opts, nil
}
