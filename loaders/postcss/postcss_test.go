package postcss

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"styles/loaders"
	engine "styles/postcss"
	"styles/runtime"
	"styles/sourcemap"
)

func TestClassName(t *testing.T) {
	tests := map[string]string{
		"foo-bar":   "fooBar",
		"a_b":       "aB",
		"x.y":       "xY",
		"trailing-": "trailing",
		"1x":        "_1x",
		"default":   "_default",
		"plain":     "plain",
	}
	for in, want := range tests {
		if got := ClassName(in); got != want {
			t.Errorf("ClassName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLegalIdentifier(t *testing.T) {
	tests := map[string]string{
		"a-b":   "a_b",
		"class": "_class",
		"9a":    "_9a",
		"":      "_",
		"$ok_1": "$ok_1",
	}
	for in, want := range tests {
		if got := LegalIdentifier(in); got != want {
			t.Errorf("LegalIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJSString(t *testing.T) {
	if got, want := jsString("a\"b</style>\n"), `"a\"b</style>\n"`; got != want {
		t.Errorf("jsString() = %s, want %s", got, want)
	}
}

func TestMergeExports(t *testing.T) {
	got := mergeExports([]engine.Export{{Name: "a", Value: "1"}, {Name: "b", Value: "2"}, {Name: "a", Value: "3"}})
	if len(got) != 2 || got[0] != (engine.Export{Name: "a", Value: "3"}) || got[1].Name != "b" {
		t.Errorf("mergeExports() = %v", got)
	}
	if s := jsObject(got); s != `{"a":"3","b":"2"}` {
		t.Errorf("jsObject() = %s", s)
	}
}

func TestDefaultAutoModules(t *testing.T) {
	tests := map[string]bool{
		"/a/b.module.css":      true,
		"/a/b.module.scss?x=1": true,
		"/a/b.css":             false,
		"/a/module.css":        false,
	}
	for id, want := range tests {
		if got := DefaultAutoModules(id); got != want {
			t.Errorf("DefaultAutoModules(%q) = %v", id, got)
		}
	}
}

type fixture struct {
	dir      string
	warnings []loaders.Warning
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	f := &fixture{dir: filepath.ToSlash(t.TempDir())}
	for name, content := range files {
		file := filepath.Join(f.dir, name)
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func (f *fixture) run(t *testing.T, opts Options, name string, sm *loaders.SourceMapOptions) (loaders.Payload, *loaders.Context) {
	t.Helper()
	if opts.Log == nil {
		opts.Log = zaptest.NewLogger(t)
	}
	id := f.dir + "/" + name
	data, err := os.ReadFile(id)
	if err != nil {
		t.Fatal(err)
	}
	lc := loaders.NewContext(id, sm, func(w loaders.Warning) { f.warnings = append(f.warnings, w) }, opts.Log)
	out, err := Loader(opts).Process(context.Background(), lc, loaders.Payload{Code: string(data)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	return out, lc
}

func TestProcess_Inject(t *testing.T) {
	f := newFixture(t, map[string]string{"a.css": ".a { color: red; }"})
	out, _ := f.run(t, Options{Config: ConfigOptions{Disabled: true}}, "a.css", nil)

	for _, want := range []string{
		"from \"" + runtime.ID + "\";",
		"var css_",
		"export default css_",
		"export var stylesheet = css_",
		"color: red",
	} {
		if !strings.Contains(out.Code, want) {
			t.Errorf("generated code has no %q:\n%s", want, out.Code)
		}
	}
	if out.Extracted != nil {
		t.Error("inject mode must not extract")
	}
	if strings.Contains(out.Code, "var modules_") {
		t.Error("modules table generated for plain file")
	}
}

func TestProcess_InjectOptions(t *testing.T) {
	f := newFixture(t, map[string]string{"a.css": ".a { color: red; }"})

	out, _ := f.run(t, Options{
		Config: ConfigOptions{Disabled: true},
		Inject: InjectOptions{Container: "#root", Prepend: true, Attributes: map[string]string{"id": "x"}},
	}, "a.css", nil)
	if !strings.Contains(out.Code, `{"attributes":{"id":"x"},"container":"#root","prepend":true});`) {
		t.Errorf("unexpected injector call:\n%s", out.Code)
	}

	out, _ = f.run(t, Options{
		Config:     ConfigOptions{Disabled: true},
		InjectFunc: func(varname, id string) string { return "console.log(" + varname + ");" },
	}, "a.css", nil)
	if strings.Contains(out.Code, runtime.ID) || !strings.Contains(out.Code, "console.log(css_") {
		t.Errorf("custom injector not used:\n%s", out.Code)
	}

	out, _ = f.run(t, Options{
		Config: ConfigOptions{Disabled: true},
		Inject: InjectOptions{Treeshakeable: true},
	}, "a.css", nil)
	if !strings.Contains(out.Code, "inject: function inject()") || !strings.Contains(out.Code, "export default modules_") {
		t.Errorf("treeshakeable module expected:\n%s", out.Code)
	}
}

func TestProcess_Modules(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.module.css": ".title { color: red; }\n.foo-bar { color: blue; }",
		"b.css":        ".title { color: red; }",
	})
	opts := Options{Config: ConfigOptions{Disabled: true}, AutoModules: DefaultAutoModules, NamedExports: true}

	out, _ := f.run(t, opts, "a.module.css", nil)
	for _, want := range []string{
		`"title":"a_title__`,
		"export default modules_",
		"export var title = \"a_title__",
		"export var fooBar = \"a_foo-bar__",
	} {
		if !strings.Contains(out.Code, want) {
			t.Errorf("generated code has no %q:\n%s", want, out.Code)
		}
	}
	var renamed bool
	for _, w := range f.warnings {
		if strings.Contains(w.Text, "Exported `foo-bar` as `fooBar`") {
			renamed = true
		}
	}
	if !renamed {
		t.Errorf("rename warning expected, got %v", f.warnings)
	}

	out, _ = f.run(t, opts, "b.css", nil)
	if strings.Contains(out.Code, "var modules_") || !strings.Contains(out.Code, ".title") {
		t.Errorf("file must not be scoped:\n%s", out.Code)
	}
}

func TestProcess_ICSS(t *testing.T) {
	f := newFixture(t, map[string]string{"a.css": ":export { primary: red; }\n.a { color: red; }"})
	out, _ := f.run(t, Options{Config: ConfigOptions{Disabled: true}, NamedExports: true}, "a.css", nil)
	if !strings.Contains(out.Code, `export var primary = "red";`) {
		t.Errorf("icss export expected:\n%s", out.Code)
	}
	if strings.Contains(out.Code, ":export") {
		t.Errorf("icss block must be removed:\n%s", out.Code)
	}
}

func TestProcess_Extract(t *testing.T) {
	f := newFixture(t, map[string]string{"a.module.css": ".a { color: red; }"})
	out, _ := f.run(t, Options{
		Mode:        ModeExtract,
		Config:      ConfigOptions{Disabled: true},
		AutoModules: DefaultAutoModules,
		Minimize:    true,
	}, "a.module.css", &loaders.SourceMapOptions{})

	if out.Extracted == nil {
		t.Fatal("extracted stylesheet expected")
	}
	if out.Extracted.ID != f.dir+"/a.module.css" || !strings.Contains(out.Extracted.CSS, "color: red") {
		t.Errorf("Extracted = %+v", out.Extracted)
	}
	if m := sourcemap.Parse(out.Extracted.Map); m == nil || len(m.Sources) == 0 {
		t.Errorf("extracted map expected, got %q", out.Extracted.Map)
	}
	if strings.Contains(out.Code, "stylesheet") || strings.Contains(out.Code, runtime.ID) {
		t.Errorf("extracted module must only export classes:\n%s", out.Code)
	}
	if !strings.Contains(out.Code, "export default modules_") {
		t.Errorf("class table expected:\n%s", out.Code)
	}
}

func TestProcess_EmitMinimize(t *testing.T) {
	f := newFixture(t, map[string]string{"a.css": ".a { color: #ff0000; }"})
	out, _ := f.run(t, Options{Mode: ModeEmit, Config: ConfigOptions{Disabled: true}, Minimize: true}, "a.css", nil)
	if out.Code != ".a{color:red}" {
		t.Errorf("Code = %q", out.Code)
	}
	if len(out.Map) != 0 {
		t.Error("map was not requested")
	}
}

func TestProcess_Import(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.css":       "@import \"./sub/b.css\";\n.a { color: red; }",
		"sub/b.css":   ".b { color: blue; }",
		"missing.css": "@import \"./none.css\";",
	})
	var imported []string
	opts := Options{
		Mode:     ModeEmit,
		Config:   ConfigOptions{Disabled: true},
		OnImport: func(_, file string) { imported = append(imported, file) },
	}

	out, lc := f.run(t, opts, "a.css", nil)
	if !strings.Contains(out.Code, ".b") || strings.Contains(out.Code, "@import") {
		t.Errorf("import not inlined:\n%s", out.Code)
	}
	deps := lc.Dependencies()
	if len(deps) != 1 || !strings.HasSuffix(deps[0], "/sub/b.css") {
		t.Errorf("Dependencies() = %v", deps)
	}
	if len(imported) != 1 {
		t.Errorf("OnImport called %d times", len(imported))
	}

	out, _ = f.run(t, opts, "missing.css", nil)
	if !strings.Contains(out.Code, "@import") {
		t.Errorf("unresolved import must be kept:\n%s", out.Code)
	}
	var unresolved bool
	for _, w := range f.warnings {
		unresolved = unresolved || strings.Contains(w.Text, "Unresolved")
	}
	if !unresolved {
		t.Errorf("warning expected, got %v", f.warnings)
	}
}

func TestProcess_SourceMap(t *testing.T) {
	f := newFixture(t, map[string]string{"a.css": ".a { color: red; }"})

	out, _ := f.run(t, Options{Config: ConfigOptions{Disabled: true}}, "a.css", &loaders.SourceMapOptions{Inline: true})
	if !strings.Contains(out.Code, "sourceMappingURL=data:application/json;base64,") {
		t.Errorf("inline map expected:\n%s", out.Code)
	}

	var transformed string
	out, lc := f.run(t, Options{Config: ConfigOptions{Disabled: true}}, "a.css", &loaders.SourceMapOptions{
		Transform: func(m *sourcemap.Map, name string) { transformed = name },
	})
	if !strings.Contains(out.Code, "sourceMappingURL=a.css.map") {
		t.Errorf("map reference expected:\n%s", out.Code)
	}
	if transformed != "a.css.map" {
		t.Errorf("Transform called with %q", transformed)
	}
	assets := lc.Assets()
	if len(assets) != 1 || assets[0].Name != "a.css.map" || sourcemap.Parse(string(assets[0].Source)) == nil {
		t.Errorf("Assets() = %v", assets)
	}
}

func TestProcess_ProjectConfig(t *testing.T) {
	f := newFixture(t, map[string]string{
		".postcssrc.yaml": "plugins:\n  - name: discard-comments\n",
		"a.css":           "/* note */\n.a { color: red; }",
		"conf/p.yaml":     "plugins:\n  - name: noop\n",
	})

	out, _ := f.run(t, Options{Mode: ModeEmit}, "a.css", nil)
	if strings.Contains(out.Code, "note") {
		t.Errorf("comment must be discarded:\n%s", out.Code)
	}

	out, _ = f.run(t, Options{Mode: ModeEmit, Config: ConfigOptions{Path: f.dir + "/conf/p.yaml"}}, "a.css", nil)
	if !strings.Contains(out.Code, "note") {
		t.Errorf("explicit configuration must replace discovered one:\n%s", out.Code)
	}

	out, _ = f.run(t, Options{Mode: ModeEmit, Config: ConfigOptions{Disabled: true}}, "a.css", nil)
	if !strings.Contains(out.Code, "note") {
		t.Errorf("configuration must be ignored:\n%s", out.Code)
	}
}
