package loaders

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"styles/sourcemap"
)

func appender(name string, test func(string) bool) *Loader {
	return &Loader{
		Name: name,
		Test: test,
		Process: func(_ context.Context, _ *Context, p Payload) (Payload, error) {
			p.Code += "|" + name
			return p, nil
		},
	}
}

func always(name string) *Loader {
	l := appender(name, nil)
	l.AlwaysProcess = true
	return l
}

func TestNew(t *testing.T) {
	_, err := New(Options{Use: []string{"sass"}, Loaders: []*Loader{always(PostCSS)}})
	if err == nil || !strings.Contains(err.Error(), `unknown loader "sass"`) {
		t.Fatalf("New() error = %v", err)
	}
	// central stage must always be registered
	if _, err := New(Options{}); err == nil || !strings.Contains(err.Error(), `unknown loader "postcss"`) {
		t.Fatalf("New() without postcss error = %v", err)
	}

	l, err := New(Options{
		Use:     []string{"sass", "postcss", "less", "sass"},
		Loaders: []*Loader{always(PostCSS), appender("sass", nil), appender("less", nil)},
		Log:     zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(l.Use(), ","); got != "postcss,sass,less,sourcemap" {
		t.Errorf("Use() = %s", got)
	}
}

func TestProcess_Order(t *testing.T) {
	l, err := New(Options{
		Use: []string{"a", "b", "c"},
		Loaders: []*Loader{
			always(PostCSS),
			always("a"),
			appender("b", ExtensionTest(".scss")),
			appender("c", ExtensionTest(".css")),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"/src/x.css":        "in|c|a|postcss",
		"/src/x.scss":       "in|b|a|postcss",
		"/src/x.SCSS?query": "in|b|a|postcss",
		"/src/x.less":       "in|a|postcss",
	}
	for id, want := range tests {
		p, err := l.Process(context.Background(), NewContext(id, nil, nil, nil), Payload{Code: "in"})
		if err != nil {
			t.Fatal(err)
		}
		if p.Code != want {
			t.Errorf("Process(%s) = %q, want %q", id, p.Code, want)
		}
	}
}

func TestProcess_Error(t *testing.T) {
	boom := errors.New("boom")
	var after atomic.Bool
	l, err := New(Options{
		Use: []string{"broken"},
		Loaders: []*Loader{
			{Name: PostCSS, AlwaysProcess: true, Process: func(_ context.Context, _ *Context, p Payload) (Payload, error) {
				after.Store(true)
				return p, nil
			}},
			{Name: "broken", AlwaysProcess: true, Process: func(context.Context, *Context, Payload) (Payload, error) {
				return Payload{}, boom
			}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Process(context.Background(), NewContext("/a.css", nil, nil, nil), Payload{})
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "broken loader") {
		t.Errorf("Process() error = %v", err)
	}
	if after.Load() {
		t.Error("stages after failed one must not run")
	}
}

func TestAddRemove(t *testing.T) {
	l, err := New(Options{Loaders: []*Loader{always(PostCSS)}})
	if err != nil {
		t.Fatal(err)
	}
	l.Add(appender(PostCSS, ExtensionTest(".x")))
	if ld, _ := l.Get(PostCSS); ld.AlwaysProcess {
		t.Error("duplicate name must replace loader")
	}
	l.Remove(PostCSS)
	if _, ok := l.Get(PostCSS); ok {
		t.Error("loader was not removed")
	}
	if _, err := l.Process(context.Background(), NewContext("/a.x", nil, nil, nil), Payload{}); err == nil {
		t.Error("removed loader must fail the chain")
	}
}

func TestIsSupported(t *testing.T) {
	l, err := New(Options{
		Use:     []string{"sass"},
		Loaders: []*Loader{always(PostCSS), appender("sass", ExtensionTest(".scss", ".sass"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]bool{
		"/a.css":       true,
		"/a.PCSS":      true,
		"/a.scss":      true,
		"/a.sass?x=1":  true,
		"/a.less":      false,
		"/a.js":        false,
		"/a.css.js":    false,
		"/dir.css/a.y": false,
	}
	for id, want := range tests {
		if got := l.IsSupported(id); got != want {
			t.Errorf("IsSupported(%s) = %v", id, got)
		}
	}
}

func TestProcess_Concurrency(t *testing.T) {
	var cur, peak atomic.Int32
	slow := &Loader{Name: PostCSS, AlwaysProcess: true, Process: func(_ context.Context, _ *Context, p Payload) (Payload, error) {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return p, nil
	}}
	l, err := New(Options{Loaders: []*Loader{slow}, Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if _, err := l.Process(context.Background(), NewContext("/a.css", nil, nil, nil), Payload{}); err != nil {
				t.Error(err)
			}
		})
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Errorf("%d stages ran concurrently, limit is 2", p)
	}
}

func TestProcess_Cancelled(t *testing.T) {
	l, err := New(Options{Loaders: []*Loader{always(PostCSS)}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Process(ctx, NewContext("/a.css", nil, nil, nil), Payload{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Process() error = %v", err)
	}
}

func TestContext(t *testing.T) {
	var warnings []Warning
	lc := NewContext("/a.css", nil, func(w Warning) { warnings = append(warnings, w) }, zaptest.NewLogger(t))
	lc.AddDependency("/b.css")
	lc.AddDependency("/c.css")
	lc.AddDependency("/b.css")
	if got := strings.Join(lc.Dependencies(), ","); got != "/b.css,/c.css" {
		t.Errorf("Dependencies() = %s", got)
	}

	lc.EmitAsset("a.png", []byte("1"))
	lc.EmitAsset("b.png", []byte("2"))
	lc.EmitAsset("a.png", []byte("3"))
	assets := lc.Assets()
	if len(assets) != 2 || assets[0].Name != "a.png" || string(assets[0].Source) != "3" {
		t.Errorf("Assets() = %+v", assets)
	}

	lc.Warn(Warning{Text: "careful", File: "/a.css", Line: 2, Column: 3})
	if len(warnings) != 1 || warnings[0].String() != "/a.css:2:3: careful" {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestAwait(t *testing.T) {
	v, err := Await(context.Background(), func(done func(int, error)) {
		go func() {
			done(42, nil)
			done(1, errors.New("ignored"))
		}()
	})
	if v != 42 || err != nil {
		t.Errorf("Await() = %d, %v", v, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = Await(ctx, func(func(string, error)) {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await() error = %v", err)
	}
}

func TestSourceMapLoader(t *testing.T) {
	dir := t.TempDir()
	m := `{"version":3,"sources":["a.scss","/abs/b.scss","<no source>"],"names":[],"mappings":"AAAA"}`

	t.Run("inline", func(t *testing.T) {
		code := "\ufeff.a{}\n/*# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(m)) + " */"
		p, err := sourceMapLoader().Process(context.Background(), NewContext(filepath.Join(dir, "a.css"), nil, nil, nil), Payload{Code: code})
		if err != nil {
			t.Fatal(err)
		}
		if p.Code != ".a{}" {
			t.Errorf("Code = %q", p.Code)
		}
		got := sourcemap.Parse(p.Map)
		if got == nil {
			t.Fatalf("Map = %q", p.Map)
		}
		want := []string{filepath.ToSlash(filepath.Join(dir, "a.scss")), "/abs/b.scss", sourcemap.NoSource}
		if strings.Join(got.Sources, ",") != strings.Join(want, ",") {
			t.Errorf("Sources = %v, want %v", got.Sources, want)
		}
	})

	t.Run("file", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(dir, "b.css.map"), []byte(m), 0o644); err != nil {
			t.Fatal(err)
		}
		p, err := sourceMapLoader().Process(context.Background(), NewContext(filepath.Join(dir, "b.css"), nil, nil, nil),
			Payload{Code: ".b{}\n/*# sourceMappingURL=b.css.map */", Map: "previous"})
		if err != nil {
			t.Fatal(err)
		}
		if p.Code != ".b{}" || sourcemap.Parse(p.Map) == nil {
			t.Errorf("Payload = %+v", p)
		}
	})

	t.Run("absent", func(t *testing.T) {
		p, err := sourceMapLoader().Process(context.Background(), NewContext("/c.css", nil, nil, nil), Payload{Code: ".c{}", Map: "previous"})
		if err != nil {
			t.Fatal(err)
		}
		if p.Code != ".c{}" || p.Map != "previous" {
			t.Errorf("Payload = %+v", p)
		}
	})
}

func TestDecodeText(t *testing.T) {
	tests := map[string]string{
		"\xef\xbb\xbf.a{}":  ".a{}",
		"\xff\xfe.\x00a\x00": ".a",
		"\xfe\xff\x00.\x00a": ".a",
		".a{}":             ".a{}",
		"":                 "",
	}
	for in, want := range tests {
		if got := decodeText(in); got != want {
			t.Errorf("decodeText(%q) = %q, want %q", in, got, want)
		}
	}
}
