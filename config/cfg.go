package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"styles/loaders/less"
	"styles/loaders/sass"
	"styles/loaders/stylus"
	"styles/minify"
	"styles/postcss"
	"styles/utils/paths"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	InjectConfig struct {
		Container     string            `yaml:"container"`
		Prepend       bool              `yaml:"prepend"`
		SingleTag     bool              `yaml:"single_tag"`
		Attributes    map[string]string `yaml:"attributes,omitempty"`
		Treeshakeable bool              `yaml:"treeshakeable"`
	}

	ModulesConfig struct {
		Enable bool `yaml:"enable"`
		// Auto enables modules for "*.module.*" files only.
		Auto       bool   `yaml:"auto"`
		Mode       string `yaml:"mode" validate:"omitempty,oneof=local global pure"`
		ScopedName string `yaml:"scoped_name"`
	}

	SourceMapConfig struct {
		Mode    SourceMapMode `yaml:"mode" validate:"gte=0"`
		Content bool          `yaml:"content"`
	}

	ImportConfig struct {
		Enable     bool     `yaml:"enable"`
		Extensions []string `yaml:"extensions,omitempty" validate:"dive,startswith=."`
	}

	URLConfig struct {
		Enable     bool   `yaml:"enable"`
		Inline     bool   `yaml:"inline"`
		CompactSVG bool   `yaml:"compact_svg"`
		PublicPath string `yaml:"public_path"`
		AssetDir   string `yaml:"asset_dir"`
		Hash       string `yaml:"hash"`
		NoHash     bool   `yaml:"no_hash"`
	}

	ProjectConfig struct {
		Enable bool `yaml:"enable"`
		// Path to configuration file or directory, searched for when empty.
		Path string `yaml:"path,omitempty" sanitize:"path_clean"`
	}

	BuildConfig struct {
		Mode         Mode                   `yaml:"mode" validate:"gte=0"`
		Extract      string                 `yaml:"extract,omitempty"`
		Dir          string                 `yaml:"dir,omitempty"`
		Include      []string               `yaml:"include,omitempty"`
		Exclude      []string               `yaml:"exclude,omitempty"`
		Extensions   []string               `yaml:"extensions" validate:"dive,startswith=."`
		Use          []string               `yaml:"use"`
		Workers      int                    `yaml:"workers" validate:"gte=0"`
		Inject       InjectConfig           `yaml:"inject"`
		Modules      ModulesConfig          `yaml:"modules"`
		NamedExports bool                   `yaml:"named_exports"`
		Minimize     bool                   `yaml:"minimize"`
		Minify       minify.Options         `yaml:"minify"`
		SourceMap    SourceMapConfig        `yaml:"source_map"`
		Import       ImportConfig           `yaml:"import"`
		URL          URLConfig              `yaml:"url"`
		Plugins      []postcss.PluginConfig `yaml:"plugins,omitempty"`
		Project      ProjectConfig          `yaml:"project_config"`
		Alias        []paths.Alias          `yaml:"alias,omitempty"`
		Sass         sass.Options           `yaml:"sass"`
		Less         less.Options           `yaml:"less"`
		Stylus       stylus.Options         `yaml:"stylus"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Build     BuildConfig    `yaml:"build"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above, placeholders in these are
	// expanded by the plugin, not by configuration template
	ScopedNameFieldName TemplateFieldName = "scoped_name"
	HashFieldName       TemplateFieldName = "hash"
	SassDataFieldName   TemplateFieldName = "data"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(ScopedNameFieldName)),
	gencfg.WithDoNotExpandField(string(HashFieldName)),
	gencfg.WithDoNotExpandField(string(SassDataFieldName)),
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration tamplate to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
