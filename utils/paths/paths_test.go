package paths

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"a/b/../c"}, "a/c"},
		{[]string{"./a", "b"}, "./a/b"},
		{[]string{"../a"}, "../a"},
		{[]string{"/x", "y", "z.css"}, "/x/y/z.css"},
		{[]string{"./"}, "."},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in...); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		in       string
		absolute bool
		relative bool
	}{
		{"/usr/x.css", true, false},
		{`C:\x.css`, true, false},
		{"C:/x.css", true, false},
		{"./x.css", false, true},
		{"../x.css", false, true},
		{"x.css", false, false},
		{"~pkg/x.css", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsAbsolute(tt.in); got != tt.absolute {
				t.Errorf("IsAbsolute() = %v, want %v", got, tt.absolute)
			}
			if got := IsRelative(tt.in); got != tt.relative {
				t.Errorf("IsRelative() = %v, want %v", got, tt.relative)
			}
		})
	}
}

func TestURLKinds(t *testing.T) {
	tests := []struct {
		in     string
		data   bool
		remote bool
	}{
		{"data:image/png;base64,AAAA", true, true},
		{"https://example.com/a.png", false, true},
		{"//cdn.example.com/a.png", false, true},
		{"C:/images/a.png", false, false},
		{"images/a.png", false, false},
		{"../a.png?v=1#x", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := IsDataURI(tt.in); got != tt.data {
				t.Errorf("IsDataURI() = %v, want %v", got, tt.data)
			}
			if got := IsRemoteURL(tt.in); got != tt.remote {
				t.Errorf("IsRemoteURL() = %v, want %v", got, tt.remote)
			}
		})
	}
}

func TestSplitQuery(t *testing.T) {
	p, q := SplitQuery("font.woff?v=1#iefix")
	if p != "font.woff" || q != "?v=1#iefix" {
		t.Errorf("SplitQuery() = %q, %q", p, q)
	}
	p, q = SplitQuery("font.woff")
	if p != "font.woff" || q != "" {
		t.Errorf("SplitQuery() = %q, %q", p, q)
	}
}

func TestApplyAlias_FirstMatchWins(t *testing.T) {
	aliases := []Alias{
		{From: "@", To: "/src"},
		{From: "@styles", To: "/styles"},
	}
	// "@styles" is longer but declared later, first textual prefix match is used
	if got := ApplyAlias("@styles/a.css", aliases); got != "/srcstyles/a.css" {
		t.Errorf("ApplyAlias() = %q", got)
	}

	aliases[0], aliases[1] = aliases[1], aliases[0]
	if got := ApplyAlias("@styles/a.css", aliases); got != "/styles/a.css" {
		t.Errorf("ApplyAlias() = %q", got)
	}
	if got := ApplyAlias("plain.css", aliases); got != "plain.css" {
		t.Errorf("ApplyAlias() = %q", got)
	}
}

func TestStripExt(t *testing.T) {
	if got := StripExt("/a/b/index.module.css"); got != "index.module" {
		t.Errorf("StripExt() = %q", got)
	}
}
