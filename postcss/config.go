package postcss

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"styles/resolve"
	"styles/utils/paths"
)

// ConfigFiles are project configuration file names looked up in every
// directory starting from processed file location up to the file system root.
var ConfigFiles = []string{".postcssrc.yaml", ".postcssrc.yml", "postcss.config.yaml"}

// Factory creates plugin from options decoded from project configuration.
// Options may be nil when configuration does not specify any.
type Factory func(options *yaml.Node, log *zap.Logger) (Plugin, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes plugin available to project configuration files under the
// given name. Registering the same name twice replaces previous factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Registered returns sorted names of known plugins.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// PluginConfig references registered plugin by name.
type PluginConfig struct {
	Name    string    `yaml:"name"`
	Options yaml.Node `yaml:"options,omitempty"`
}

// ProjectConfig is on-disk processing configuration.
type ProjectConfig struct {
	// File configuration was loaded from.
	File    string         `yaml:"-"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// Instantiate creates plugins listed in configuration, in order.
func (c *ProjectConfig) Instantiate(log *zap.Logger) ([]Plugin, error) {
	out := make([]Plugin, 0, len(c.Plugins))
	for _, pc := range c.Plugins {
		f, ok := lookup(pc.Name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown plugin %q", c.File, pc.Name)
		}
		var opts *yaml.Node
		if pc.Options.Kind != 0 {
			opts = &pc.Options
		}
		pl, err := f(opts, log)
		if err != nil {
			return nil, fmt.Errorf("%s: plugin %q: %w", c.File, pc.Name, err)
		}
		out = append(out, pl)
	}
	return out, nil
}

// ErrNoConfig is returned by ConfigLoader.Load when explicit location has
// no configuration.
var ErrNoConfig = errors.New("no project configuration found")

// ConfigLoader discovers project configuration and caches results per
// directory, including directories known to have none.
type ConfigLoader struct {
	log   *zap.Logger
	cache *resolve.Cache

	mu   sync.Mutex
	dirs map[string]*ProjectConfig
}

// NewConfigLoader creates loader, cache may be shared with resolver.
func NewConfigLoader(log *zap.Logger, cache *resolve.Cache) *ConfigLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfigLoader{
		log:   log.Named("postcss-config"),
		cache: cache,
		dirs:  make(map[string]*ProjectConfig),
	}
}

// Find returns configuration closest to dir or nil if there is none.
func (l *ConfigLoader) Find(dir string) (*ProjectConfig, error) {
	dir = paths.Resolve(dir)

	l.mu.Lock()
	cfg, ok := l.dirs[dir]
	l.mu.Unlock()
	if ok {
		return cfg, nil
	}

	file, found := l.locate(dir)
	switch {
	case found:
		c, err := readConfig(file)
		if err != nil {
			return nil, err
		}
		cfg = c
		l.log.Debug("Project configuration found", zap.String("dir", dir), zap.String("file", file))
	case path.Dir(dir) != dir:
		c, err := l.Find(path.Dir(dir))
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	l.mu.Lock()
	l.dirs[dir] = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Load reads configuration from explicit location which is either a file or
// a directory holding one of ConfigFiles.
func (l *ConfigLoader) Load(location string) (*ProjectConfig, error) {
	if fi, err := os.Stat(location); err == nil && fi.IsDir() {
		file, found := l.locate(paths.Resolve(location))
		if !found {
			return nil, fmt.Errorf("%s: %w", location, ErrNoConfig)
		}
		return readConfig(file)
	}

	file, err := resolve.ResolveSync([]string{location, "./" + location}, resolve.Options{
		Caller:     "Config loader",
		Extensions: []string{".yaml", ".yml"},
		Cache:      l.cache,
		Log:        l.log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoConfig, err)
	}
	return readConfig(file)
}

func (l *ConfigLoader) locate(dir string) (string, bool) {
	candidates := make([]string, 0, len(ConfigFiles))
	for _, name := range ConfigFiles {
		candidates = append(candidates, "./"+name)
	}
	file, err := resolve.ResolveSync(candidates, resolve.Options{
		Caller:   "Config loader",
		BaseDirs: []string{dir},
		Cache:    l.cache,
	})
	if err != nil {
		return "", false
	}
	return file, true
}

func readConfig(file string) (*ProjectConfig, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("unable to read project configuration: %w", err)
	}
	cfg := &ProjectConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to decode project configuration %s: %w", file, err)
	}
	cfg.File = file
	return cfg, nil
}
