package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"styles/config"
	"styles/loaders"
	lp "styles/loaders/postcss"
	"styles/plugin"
	rt "styles/runtime"
	"styles/sourcemap"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		file := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	return string(data)
}

func options(mode lp.Mode) plugin.Options {
	return plugin.Options{
		Mode:   mode,
		Use:    []string{},
		Config: lp.ConfigOptions{Disabled: true},
	}
}

func TestProcess_Inject(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{
		"a.css":       ".a { color: red; }",
		"sub/b.css":   ".b { color: green; }",
		"readme.txt":  "not a stylesheet",
		"sub/c.sass":  ".c\n  color: blue",
		"sub/d.other": "",
	})
	log := zaptest.NewLogger(t)

	err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{src}, Out: out}, nil, log)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	a := readFile(t, filepath.Join(out, "a.css.js"))
	if !strings.Contains(a, `from "./`+rt.FileName+`"`) || strings.Contains(a, rt.ID) {
		t.Errorf("runtime import must be relative:\n%s", a)
	}
	b := readFile(t, filepath.Join(out, "sub", "b.css.js"))
	if !strings.Contains(b, `from "../`+rt.FileName+`"`) {
		t.Errorf("nested runtime import:\n%s", b)
	}
	if got := readFile(t, filepath.Join(out, rt.FileName)); got != rt.Source() {
		t.Error("runtime helper was not written")
	}
	if got := readFile(t, filepath.Join(out, "main.js")); got != "import \"./a.css.js\";\nimport \"./sub/b.css.js\";\n" {
		t.Errorf("entry module =\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(out, "sub", "c.sass.js")); err == nil {
		t.Error("sass is not in use and must be skipped")
	}
}

func TestProcess_Extract(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{
		"a10.css": ".a10 { color: red; }",
		"a9.css":  ".a9 { color: red; }",
	})
	opts := options(lp.ModeExtract)
	opts.SourceMap = &loaders.SourceMapOptions{Content: true}

	err := Process(context.Background(), opts, Target{Sources: []string{src}, Out: out, Entry: "bundle"}, nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	code := readFile(t, filepath.Join(out, "bundle.css"))
	if a9, a10 := strings.Index(code, ".a9"), strings.Index(code, ".a10"); a9 < 0 || a10 < a9 {
		t.Errorf("stylesheets must follow natural order:\n%s", code)
	}
	if !strings.HasSuffix(code, "/*# sourceMappingURL=bundle.css.map */") {
		t.Errorf("map reference expected:\n%s", code)
	}
	m := sourcemap.Parse(readFile(t, filepath.Join(out, "bundle.css.map")))
	if m == nil || strings.Join(m.Sources, ",") != "../src/a9.css,../src/a10.css" {
		t.Errorf("map = %+v", m)
	}
	if js := readFile(t, filepath.Join(out, "a9.css.js")); strings.Contains(js, rt.FileName) {
		t.Errorf("extracted module must not inject:\n%s", js)
	}
	if _, err := os.Stat(filepath.Join(out, rt.FileName)); err == nil {
		t.Error("runtime helper is not needed")
	}
}

func TestProcess_Emit(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{"a.pcss": ".a { color: red; }"})

	for _, tt := range []struct {
		name   string
		inline bool
	}{{"file", false}, {"inline", true}} {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(lp.ModeEmit)
			opts.SourceMap = &loaders.SourceMapOptions{Inline: tt.inline}
			err := Process(context.Background(), opts, Target{Sources: []string{filepath.Join(src, "a.pcss")}, Out: out, Overwrite: true}, nil, zaptest.NewLogger(t))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			code := readFile(t, filepath.Join(out, "a.css"))
			if !strings.HasPrefix(code, ".a") {
				t.Errorf("stylesheet =\n%s", code)
			}
			if tt.inline {
				if !strings.Contains(code, "sourceMappingURL=data:application/json;base64,") {
					t.Errorf("inline map expected:\n%s", code)
				}
				return
			}
			if !strings.HasSuffix(code, "/*# sourceMappingURL=a.css.map */") {
				t.Errorf("map reference expected:\n%s", code)
			}
			m := sourcemap.Parse(readFile(t, filepath.Join(out, "a.css.map")))
			if m == nil || m.File != "a.css" || len(m.Sources) != 1 || m.Sources[0] != "../src/a.pcss" {
				t.Errorf("map = %+v", m)
			}
			if _, err := os.Stat(filepath.Join(out, "main.js")); err == nil {
				t.Error("emit mode does not produce entry module")
			}
		})
	}
}

func TestProcess_Overwrite(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{"a.css": ".a { color: red; }"})
	writeFiles(t, out, map[string]string{"a.css.js": "old"})
	log := zaptest.NewLogger(t)

	err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{src}, Out: out}, nil, log)
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("Process() error = %v, want destination conflict", err)
	}
	if got := readFile(t, filepath.Join(out, "a.css.js")); got != "old" {
		t.Error("existing file must be kept")
	}

	if err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{src}, Out: out, Overwrite: true}, nil, log); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(out, "a.css.js")); got == "old" {
		t.Error("existing file must be replaced")
	}
}

func TestProcess_Failures(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{
		"good.css": ".a { color: red; }",
		"bad.css":  "@charset \"no-such-charset\";\n.b {}",
	})
	log := zaptest.NewLogger(t)

	err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{src}, Out: out}, nil, log)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("Process() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "good.css.js")); err != nil {
		t.Error("good stylesheet must be written despite failures")
	}

	if err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{filepath.Join(root, "absent")}, Out: out}, nil, log); err == nil {
		t.Error("absent source must fail")
	}
	if err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{filepath.Join(src, "good.css"), filepath.Join(root, "x.txt")}, Out: out}, nil, log); err == nil {
		t.Error("absent file must fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Process(ctx, options(lp.ModeInject), Target{Sources: []string{src}, Out: out}, nil, log); err == nil {
		t.Error("canceled build must fail")
	}
}

func TestProcess_Report(t *testing.T) {
	root := t.TempDir()
	src, out := filepath.Join(root, "src"), filepath.Join(root, "out")
	writeFiles(t, src, map[string]string{"a.css": ".a { color: red; }"})

	rpt, err := (&config.ReporterConfig{Destination: filepath.Join(root, "report.zip")}).Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if err := Process(context.Background(), options(lp.ModeInject), Target{Sources: []string{src}, Out: out}, rpt, zaptest.NewLogger(t)); err != nil {
		t.Fatal(err)
	}
	if err := rpt.Close(); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(rpt.Name())
	if err != nil || info.Size() == 0 {
		t.Errorf("report was not written: %v", err)
	}
}

func TestDecodeSource(t *testing.T) {
	cp1251, err := charmap.Windows1251.NewEncoder().String(".a::after { content: \"привет\"; }")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    string
		forced  encoding.Encoding
		want    string
		wantErr bool
	}{
		{"plain", ".a {}", nil, ".a {}", false},
		{"utf-8 bom", "\xEF\xBB\xBF.a {}", nil, ".a {}", false},
		{"utf-16 bom", "\xFF\xFE.\x00a\x00", nil, ".a", false},
		{"utf-8 charset", "@charset \"utf-8\";.a {}", nil, "@charset \"utf-8\";.a {}", false},
		{"declared", "@charset \"windows-1251\";" + cp1251, nil, ".a::after { content: \"привет\"; }", false},
		{"forced", cp1251, charmap.Windows1251, ".a::after { content: \"привет\"; }", false},
		{"unknown", "@charset \"klingon\";.a {}", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSource([]byte(tt.data), tt.forced)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeSource() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decodeSource() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestImportPath(t *testing.T) {
	tests := []struct{ from, to, want string }{
		{"a.css.js", "styles-inject.js", "./styles-inject.js"},
		{"sub/a.css.js", "styles-inject.js", "../styles-inject.js"},
		{"main.js", "sub/deep/b.css.js", "./sub/deep/b.css.js"},
	}
	for _, tt := range tests {
		if got := importPath(tt.from, tt.to); got != tt.want {
			t.Errorf("importPath(%q, %q) = %q, want %q", tt.from, tt.to, got, tt.want)
		}
	}
}
