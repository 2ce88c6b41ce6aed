package postcss

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	yaml "gopkg.in/yaml.v3"

	"styles/css"
	"styles/sourcemap"
)

func TestProcess_PluginOrder(t *testing.T) {
	var order []string
	mk := func(name string) Plugin {
		return NewPlugin(name, func(_ context.Context, root *css.Node, res *Result) error {
			order = append(order, name)
			root.Append(css.NewComment(name))
			return nil
		})
	}

	p := New(zaptest.NewLogger(t), mk("first"), mk("second"))
	res, err := p.Process(context.Background(), "a{b:c}", ProcessOptions{From: "/src/in.css"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(order, ",") != "first,second" {
		t.Errorf("order = %v", order)
	}
	if want := "a {\n  b: c;\n}\n/*first*/\n/*second*/"; res.CSS != want {
		t.Errorf("CSS = %q, want %q", res.CSS, want)
	}
	if res.Map != nil {
		t.Error("map was not requested")
	}
}

func TestRun_TreeOnly(t *testing.T) {
	p := New(zaptest.NewLogger(t), NewPlugin("mark", func(_ context.Context, root *css.Node, res *Result) error {
		root.Append(css.NewComment("mark"))
		res.AddDependency("mark", "/src/dep.css")
		return nil
	}))
	res, err := p.Run(context.Background(), "a{b:c}", ProcessOptions{From: "/src/in.css", Map: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.CSS) != 0 || res.Map != nil {
		t.Errorf("Run() printed tree: %q %v", res.CSS, res.Map)
	}
	if n := len(res.Root.Nodes); n != 2 || res.Root.Nodes[1].Kind != css.KindComment {
		t.Errorf("Run() tree has %d nodes", n)
	}
	if len(res.Messages) != 1 {
		t.Errorf("Messages = %+v", res.Messages)
	}
}

func TestProcess_Errors(t *testing.T) {
	boom := errors.New("boom")
	p := New(nil, NewPlugin("broken", func(context.Context, *css.Node, *Result) error { return boom }))
	if _, err := p.Process(context.Background(), "", ProcessOptions{}); !errors.Is(err, boom) || !strings.Contains(err.Error(), "broken") {
		t.Errorf("Process() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Process(ctx, "", ProcessOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v, want context.Canceled", err)
	}
}

func TestProcess_SyntaxWarnings(t *testing.T) {
	res, err := New(nil, Noop()).Process(context.Background(), ".a{:x}\n.b{c:d}", ProcessOptions{From: "/src/x.css"})
	if err != nil {
		t.Fatal(err)
	}
	w := res.Warnings()
	if len(w) != 1 || w[0].Plugin != "css-parser" || w[0].File != "/src/x.css" || w[0].Line != 1 {
		t.Errorf("Warnings() = %+v", w)
	}
	if !strings.Contains(res.CSS, ".b {") {
		t.Errorf("CSS = %q", res.CSS)
	}
}

func TestProcess_Map(t *testing.T) {
	prev := sourcemap.NewGenerator("in.css")
	prev.AddMapping(sourcemap.Mapping{GeneratedLine: 1, Source: "/src/in.scss", OriginalLine: 3})
	prev.SetSourceContent("/src/in.scss", "$x: 1;\n\na{b:c}")

	res, err := New(nil, Noop()).Process(context.Background(), "a{b:c}", ProcessOptions{
		From:    "/src/in.css",
		To:      "/out/in.css",
		PrevMap: prev.Map(),
		Map:     true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Map == nil || res.Map.File != "in.css" {
		t.Fatalf("Map = %+v", res.Map)
	}
	if len(res.Map.Sources) != 1 || res.Map.Sources[0] != "/src/in.scss" {
		t.Errorf("Sources = %v", res.Map.Sources)
	}
	if content, ok := res.Map.SourceContentFor("/src/in.scss"); !ok || !strings.HasPrefix(content, "$x") {
		t.Error("previous sources content lost")
	}
}

func TestResult_Messages(t *testing.T) {
	res := &Result{Opts: ProcessOptions{From: "/src/a.css"}}
	root, _ := css.NewParser(nil).Parse(&css.Input{ID: "/src/b.css", CSS: "\n  .x{}"})

	res.Warn("test", "first", nil)
	res.Warn("test", "second", root.Nodes[0])
	res.AddDependency("test", "/src/b.css")
	res.AddDependency("test", "/src/b.css")
	res.AddDependency("test", "/src/c.css")

	w := res.Warnings()
	if len(w) != 2 {
		t.Fatalf("Warnings() = %+v", w)
	}
	if got := w[0].String(); got != "/src/a.css: test: first" {
		t.Errorf("String() = %q", got)
	}
	if got := w[1].String(); got != "/src/b.css:2:3: test: second" {
		t.Errorf("String() = %q", got)
	}
	if deps := res.Dependencies(); len(deps) != 2 || deps[0] != "/src/b.css" || deps[1] != "/src/c.css" {
		t.Errorf("Dependencies() = %v", deps)
	}
	if !res.HasDependency("/src/c.css") || res.HasDependency("/src/a.css") {
		t.Error("HasDependency() is wrong")
	}
}

func TestDiscardComments(t *testing.T) {
	tests := []struct {
		name string
		opts DiscardCommentsOptions
		want string
	}{
		{"keep important", DiscardCommentsOptions{}, "/*! license */\na {}"},
		{"remove all", DiscardCommentsOptions{RemoveAll: true}, "a {}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(nil, DiscardComments(tt.opts)).Process(context.Background(), "/*! license */ /* x */ a{}", ProcessOptions{})
			if err != nil {
				t.Fatal(err)
			}
			if res.CSS != tt.want {
				t.Errorf("CSS = %q, want %q", res.CSS, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigLoader_Find(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "project", ".postcssrc.yaml"), `
plugins:
  - name: discard-comments
    options:
      removeAll: true
  - name: noop
`)
	writeFile(t, filepath.Join(root, "project", "src", "deep", "a.css"), "")
	writeFile(t, filepath.Join(root, "other", "b.css"), "")

	l := NewConfigLoader(zaptest.NewLogger(t), nil)

	cfg, err := l.Find(filepath.Join(root, "project", "src", "deep"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg == nil || len(cfg.Plugins) != 2 || filepath.Base(cfg.File) != ".postcssrc.yaml" {
		t.Fatalf("Find() = %+v", cfg)
	}

	plugins, err := cfg.Instantiate(zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	res, err := New(nil, plugins...).Process(context.Background(), "/*! x */a{}", ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.CSS != "a {}" {
		t.Errorf("options were not applied, CSS = %q", res.CSS)
	}

	if cfg, err := l.Find(filepath.Join(root, "other")); err != nil || cfg != nil {
		t.Errorf("Find() for directory without configuration = %+v, %v", cfg, err)
	}
}

func TestConfigLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "conf", "postcss.config.yaml"), "plugins:\n  - name: noop\n")
	writeFile(t, filepath.Join(root, "bad.yaml"), "plugins:\n  - name: nonexistent\n")
	writeFile(t, filepath.Join(root, "unknown.yaml"), "plugin: []\n")
	l := NewConfigLoader(nil, nil)

	cfg, err := l.Load(filepath.Join(root, "conf"))
	if err != nil || len(cfg.Plugins) != 1 {
		t.Fatalf("Load(dir) = %+v, %v", cfg, err)
	}
	if cfg, err = l.Load(filepath.Join(root, "conf", "postcss.config")); err != nil || len(cfg.Plugins) != 1 {
		t.Fatalf("Load(file without extension) = %+v, %v", cfg, err)
	}
	if _, err := l.Load(root); !errors.Is(err, ErrNoConfig) {
		t.Errorf("Load(empty dir) error = %v", err)
	}
	if _, err := l.Load(filepath.Join(root, "unknown.yaml")); err == nil {
		t.Error("unknown fields must be rejected")
	}

	cfg, err = l.Load(filepath.Join(root, "bad.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cfg.Instantiate(nil); err == nil || !strings.Contains(err.Error(), "nonexistent") {
		t.Errorf("Instantiate() error = %v", err)
	}
}

func TestRegister(t *testing.T) {
	Register("test-plugin", func(node *yaml.Node, _ *zap.Logger) (Plugin, error) {
		return Noop(), nil
	})
	found := false
	for _, n := range Registered() {
		found = found || n == "test-plugin"
	}
	if !found {
		t.Errorf("Registered() = %v", Registered())
	}
}
