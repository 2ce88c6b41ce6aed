package modules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"styles/postcss"
	"styles/postcss/icss"
	"styles/utils/naming"
)

func TestLocalizeSelector(t *testing.T) {
	tests := []struct {
		selector string
		local    bool
		want     string
		pure     bool
	}{
		{".a", true, ":local(.a)", true},
		{".a .b", true, ":local(.a) :local(.b)", true},
		{".a :global .b .c", true, ":local(.a) .b .c", true},
		{":global(.a) .b", true, ".a :local(.b)", true},
		{":global(.a)", true, ".a", false},
		{"#id>a", true, ":local(#id)>a", true},
		{".a:not(.b)", true, ":local(.a):not(:local(.b))", true},
		{".a::before", true, ":local(.a)::before", true},
		{".a,:global .b", true, ":local(.a),.b", false},
		{`a[href="#x"]`, true, `a[href="#x"]`, false},
		{".a :local(.b)", false, ".a :local(.b)", true},
		{":local .a .b", false, ":local(.a) :local(.b)", true},
	}
	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			got, pure := localizeSelector(tt.selector, tt.local)
			if got != tt.want || pure != tt.pure {
				t.Errorf("localizeSelector(%q) = %q, %v, want %q, %v", tt.selector, got, pure, tt.want, tt.pure)
			}
		})
	}
}

func TestLocalizeAnimation(t *testing.T) {
	tests := []struct {
		value     string
		shorthand bool
		want      string
	}{
		{"fade 1s ease-in", true, ":local(fade) 1s ease-in"},
		{"1s fade,2s :global(spin)", true, "1s :local(fade),2s spin"},
		{"steps(4,end) infinite slide", true, "steps(4,end) infinite :local(slide)"},
		{"a,b", false, ":local(a),:local(b)"},
		{"none", false, "none"},
	}
	for _, tt := range tests {
		if got := localizeAnimation(tt.value, true, tt.shorthand); got != tt.want {
			t.Errorf("localizeAnimation(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
	if got := localizeAnimation("fade 1s", false, true); got != "fade 1s" {
		t.Errorf("global mode changed value: %q", got)
	}
}

func TestValues(t *testing.T) {
	code := `@value primary: #BF4040;
@value small: (max-width: 599px);
@value a, b as c from "./colors.css";
.x { color: primary; border-color: c }
@media small { .y { color: a } }`

	res, err := postcss.New(zaptest.NewLogger(t), Values(zaptest.NewLogger(t))).Process(context.Background(), code, postcss.ProcessOptions{From: "/src/x.css"})
	if err != nil {
		t.Fatal(err)
	}
	want := `:import("./colors.css") {
  i__value_a_0: a;
  i__value_b_1: b;
}
.x {
  color: #BF4040;
  border-color: i__value_b_1;
}
@media (max-width:599px) {
  .y {
    color: i__value_a_0;
  }
}
:export {
  primary: #BF4040;
  small: (max-width:599px);
  a: i__value_a_0;
  c: i__value_b_1;
}`
	if res.CSS != want {
		t.Errorf("CSS =\n%s\nwant\n%s", res.CSS, want)
	}
}

func TestExtractImports(t *testing.T) {
	code := `.a { composes: b c from "./x.css" }
.d { composes: b from './x.css' }
.e { composes: f g from global }`

	res, err := postcss.New(nil, ExtractImports()).Process(context.Background(), code, postcss.ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := `:import("./x.css") {
  i__imported_b_0: b;
  i__imported_c_1: c;
}
.a {
  composes: i__imported_b_0 i__imported_c_1;
}
.d {
  composes: i__imported_b_0;
}
.e {
  composes: global(f) global(g);
}`
	if res.CSS != want {
		t.Errorf("CSS =\n%s\nwant\n%s", res.CSS, want)
	}
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(name, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestPipeline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "colors.css"), `@value brand: red; .base { font-weight: bold }`)
	code := `@value brand from "./colors.css";
.button { composes: base from "./colors.css"; color: brand }
.primary { composes: button; animation: pulse 1s }
@keyframes pulse { from { opacity: 0 } }
:global(.reset) .icon {}`

	log := zaptest.NewLogger(t)
	plugins := append(Plugins(Options{ScopedName: "[name]_[local]", Log: log}), icss.New(icss.Options{Log: log}))
	res, err := postcss.New(log, plugins...).Process(context.Background(), code, postcss.ProcessOptions{
		From: filepath.Join(dir, "button.module.css"),
	})
	if err != nil {
		t.Fatal(err)
	}

	want := `.button_button {
  color: red;
}
.button_primary {
  animation: button_pulse 1s;
}
@keyframes button_pulse {
  from {
    opacity: 0;
  }
}
.reset .button_icon {}`
	if res.CSS != want {
		t.Errorf("CSS =\n%s\nwant\n%s", res.CSS, want)
	}
	if w := res.Warnings(); len(w) != 0 {
		t.Errorf("Warnings() = %+v", w)
	}

	var exports []string
	for _, m := range res.Messages {
		if m.Type == postcss.MessageICSS {
			for _, e := range m.Exports {
				exports = append(exports, e.Name+"="+e.Value)
			}
		}
	}
	wantExports := []string{
		"brand=red",
		"button=button_button colors_base",
		"primary=button_primary button_button colors_base",
		"pulse=button_pulse",
		"icon=button_icon",
	}
	if strings.Join(exports, "|") != strings.Join(wantExports, "|") {
		t.Errorf("exports = %v\nwant %v", exports, wantExports)
	}
	if deps := res.Dependencies(); len(deps) != 1 || !strings.HasSuffix(deps[0], "/colors.css") {
		t.Errorf("Dependencies() = %v", deps)
	}
}

func TestScope_Errors(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		code string
		want string
	}{
		{"unknown composed class", ModeLocal, ".a { composes: nope }", `referenced class name "nope" in composes not found`},
		{"composes in compound selector", ModeLocal, ".a .b { composes: c from global }", "composition is only allowed"},
		{"impure selector", ModePure, ".a {} div {}", "is not pure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := postcss.New(nil, Plugins(Options{Mode: tt.mode})...)
			_, err := p.Process(context.Background(), tt.code, postcss.ProcessOptions{From: "/src/a.css"})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Process() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestScopedNameGenerator(t *testing.T) {
	const code = ".title{}"
	hash := naming.HashString("My Button.module.css:" + code)

	tests := []struct {
		template string
		local    string
		want     string
	}{
		{"", "title", "my-button_title__" + hash[:8]},
		{"[local]", "1x", "_1x"},
		{"[dir]-[local]-[hash:4]", "title", "src-title-" + hash[:4]},
		{"[name].[local]", "title", "my-button_title"},
	}
	for _, tt := range tests {
		if got := ScopedNameGenerator(tt.template)(tt.local, "/src/My Button.module.css", code); got != tt.want {
			t.Errorf("ScopedNameGenerator(%q) = %q, want %q", tt.template, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeLocal, "GLOBAL": ModeGlobal, "pure": ModePure} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("scoped"); err == nil {
		t.Error("unknown mode must be rejected")
	}
}
