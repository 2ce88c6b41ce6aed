package resolve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func slash(elem ...string) string {
	return filepath.ToSlash(filepath.Join(elem...))
}

func TestResolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"src/a.css":                               "",
		"src/b.scss":                              "",
		"src/_b.scss":                             "",
		"src/c.scss":                              "",
		"src/dir/index.css":                       "",
		"src/deep/er/x.txt":                       "",
		"src/assets/logo.png":                     "",
		"node_modules/pkg/_b.scss":                "",
		"node_modules/pkg/b.scss":                 "",
		"node_modules/pkg/c.scss":                 "",
		"node_modules/legacy/package.json":        `{"main": "index.js", "style": "css/main.css"}`,
		"node_modules/legacy/css/main.css":        "",
		"node_modules/legacy/index.js":            "",
		"node_modules/cond/package.json":          `{"exports": {".": {"sass": "./x.scss", "style": "./dist/cond.css", "default": "./index.js"}}}`,
		"node_modules/cond/dist/cond.css":         "",
		"node_modules/cond/x.scss":                "",
		"node_modules/cond/index.js":              "",
		"node_modules/themes/package.json":        `{"exports": {"./themes/*": "./src/themes/*.css", "./package.json": "./package.json"}}`,
		"node_modules/themes/src/themes/dark.css": "",
		"node_modules/sugar/package.json":         `{"exports": "./sugar.css"}`,
		"node_modules/sugar/sugar.css":            "",
		"node_modules/@scope/pkg/index.css":       "",
	})
	src := filepath.Join(root, "src")

	tests := []struct {
		name       string
		candidates []string
		opts       Options
		want       string
	}{
		{"relative with extension", []string{"./a"}, Options{Extensions: []string{".css"}}, slash(src, "a.css")},
		{"relative exact", []string{"./a.css"}, Options{Extensions: []string{".css"}}, slash(src, "a.css")},
		{"exact with disallowed extension", []string{"./b.scss", "./a"}, Options{Extensions: []string{".css"}}, slash(src, "a.css")},
		{"relative partial first", []string{"./b"}, Options{Extensions: []string{".scss"}, Partials: true}, slash(src, "_b.scss")},
		{"relative no partial", []string{"./b"}, Options{Extensions: []string{".scss"}}, slash(src, "b.scss")},
		{"relative partial falls back to literal", []string{"./c"}, Options{Extensions: []string{".scss"}, Partials: true}, slash(src, "c.scss")},
		{"module partial first", []string{"~pkg/b"}, Options{Extensions: []string{".scss"}, Partials: true}, slash(root, "node_modules/pkg/_b.scss")},
		{"module partial falls back to literal", []string{"~pkg/c"}, Options{Extensions: []string{".scss"}, Partials: true}, slash(root, "node_modules/pkg/c.scss")},
		{"directory index", []string{"./dir"}, Options{Extensions: []string{".css"}}, slash(src, "dir/index.css")},
		{"absolute", []string{slash(src, "a.css")}, Options{}, slash(src, "a.css")},
		{"legacy style field", []string{"~legacy"}, Options{Extensions: []string{".css"}}, slash(root, "node_modules/legacy/css/main.css")},
		{"legacy main field", []string{"legacy"}, Options{Fields: []string{"main"}}, slash(root, "node_modules/legacy/index.js")},
		{"exports conditions", []string{"~cond"}, Options{Extensions: []string{".css"}}, slash(root, "node_modules/cond/dist/cond.css")},
		{"exports condition order", []string{"~cond"}, Options{Extensions: []string{".scss", ".css"}, Conditions: []string{"sass", "style"}}, slash(root, "node_modules/cond/x.scss")},
		{"exports pattern", []string{"~themes/themes/dark"}, Options{Extensions: []string{".css"}}, slash(root, "node_modules/themes/src/themes/dark.css")},
		{"exports sugar", []string{"sugar"}, Options{}, slash(root, "node_modules/sugar/sugar.css")},
		{"scoped package", []string{"~@scope/pkg"}, Options{Extensions: []string{".css"}}, slash(root, "node_modules/@scope/pkg/index.css")},
		{"bare falls back to relative candidate", []string{"assets/logo.png", "./assets/logo.png"}, Options{}, slash(src, "assets/logo.png")},
		{"node_modules from nested dir", []string{"~pkg/c.scss"}, Options{BaseDirs: []string{filepath.Join(src, "deep", "er")}}, slash(root, "node_modules/pkg/c.scss")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			if opts.BaseDirs == nil {
				opts.BaseDirs = []string{src}
			}
			opts.Log = zaptest.NewLogger(t)
			got, err := Resolve(context.Background(), tt.candidates, opts)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolve_BaseDirOrder(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"one/y.css": "",
		"two/x.css": "",
	})
	opts := Options{
		BaseDirs:   []string{filepath.Join(root, "one"), filepath.Join(root, "two")},
		Extensions: []string{".css"},
	}
	got, err := ResolveSync([]string{"./x", "./y"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if want := slash(root, "one/y.css"); got != want {
		t.Errorf("ResolveSync() = %q, want %q", got, want)
	}
}

func TestResolve_Error(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveSync([]string{"./missing", "~nope"}, Options{Caller: "Test", BaseDirs: []string{root}, Extensions: []string{".css"}})

	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if rerr.Caller != "Test" || len(rerr.Candidates) != 2 || len(rerr.BaseDirs) != 1 {
		t.Errorf("unexpected error %+v", rerr)
	}
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Resolve(ctx, []string{"./a"}, Options{BaseDirs: []string{t.TempDir()}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestCache_KnownAbsent(t *testing.T) {
	root := t.TempDir()
	cache := NewCache()
	opts := Options{BaseDirs: []string{root}, Extensions: []string{".css"}, Cache: cache}

	if _, err := ResolveSync([]string{"./late"}, opts); err == nil {
		t.Fatal("expected failure")
	}
	writeFiles(t, root, map[string]string{"late.css": ""})

	if _, err := ResolveSync([]string{"./late"}, opts); err == nil {
		t.Error("cached absence was not honored")
	}

	opts.Cache = NewCache()
	if _, err := ResolveSync([]string{"./late"}, opts); err != nil {
		t.Errorf("fresh cache: %v", err)
	}
}

func TestPartial(t *testing.T) {
	tests := map[string]string{
		"a/b":         "a/_b",
		"b.scss":      "_b.scss",
		"a/_b":        "",
		"./":          "",
		"../x/y.sass": "../x/_y.sass",
	}
	for in, want := range tests {
		if got := Partial(in); got != want {
			t.Errorf("Partial(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeModule(t *testing.T) {
	tests := []struct {
		in     string
		module bool
		want   string
	}{
		{"~bootstrap/scss/x", true, "bootstrap/scss/x"},
		{"~@scope/pkg", true, "@scope/pkg"},
		{"~/home", false, "~/home"},
		{"./x", false, "./x"},
	}
	for _, tt := range tests {
		if IsModule(tt.in) != tt.module || NormalizeModule(tt.in) != tt.want {
			t.Errorf("%q: IsModule = %v, NormalizeModule = %q", tt.in, IsModule(tt.in), NormalizeModule(tt.in))
		}
	}
}
