// Package paths contains path and url helpers shared by resolvers and
// source map handling. All returned paths use forward slashes.
package paths

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	absPathRe = regexp.MustCompile(`^(?:/|(?:[A-Za-z]:)?[/\\|])`)
	relPathRe = regexp.MustCompile(`^\.?\.[/\\]`)
	dataURIRe = regexp.MustCompile(`(?i)^data:`)
)

// Normalize joins elements, cleans the result and converts separators to
// forward slashes. Leading "./" of the first element is preserved.
func Normalize(elem ...string) string {
	if len(elem) == 0 {
		return ""
	}
	joined := filepath.ToSlash(filepath.Join(elem...))
	if joined != "." && (strings.HasPrefix(elem[0], "./") || strings.HasPrefix(elem[0], `.\`)) {
		return "./" + joined
	}
	return joined
}

// Resolve returns absolute normalized path.
func Resolve(elem ...string) string {
	p := filepath.Join(elem...)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return filepath.ToSlash(p)
}

// Relative returns normalized path of target relative to base.
func Relative(base, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(base), filepath.FromSlash(target))
	if err != nil {
		return filepath.ToSlash(target)
	}
	return filepath.ToSlash(rel)
}

// Humanize returns path relative to current working directory, suitable for
// messages.
func Humanize(p string) string {
	wd, err := os.Getwd()
	if err != nil {
		return filepath.ToSlash(p)
	}
	return Relative(wd, p)
}

// IsAbsolute reports if p is absolute on any supported platform.
func IsAbsolute(p string) bool {
	return absPathRe.MatchString(p)
}

// IsRelative reports if p starts with "./" or "../".
func IsRelative(p string) bool {
	return relPathRe.MatchString(p)
}

// IsDataURI reports if u is a data uri.
func IsDataURI(u string) bool {
	return dataURIRe.MatchString(strings.TrimSpace(u))
}

// IsRemoteURL reports if u parses as an absolute url with a scheme. Single
// letter schemes are Windows drive letters and do not count.
func IsRemoteURL(u string) bool {
	if strings.HasPrefix(u, "//") {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return len(parsed.Scheme) > 1
}

// SplitQuery splits u into path and its "?query#fragment" suffix.
func SplitQuery(u string) (string, string) {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i], u[i:]
	}
	return u, ""
}

// Alias is a single path prefix rewriting rule.
type Alias struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ApplyAlias replaces the prefix of u with the target of the first alias
// whose From is a textual prefix of u. Aliases are consulted in order and
// only the first match is applied.
func ApplyAlias(u string, aliases []Alias) string {
	for _, a := range aliases {
		if len(a.From) == 0 || !strings.HasPrefix(u, a.From) {
			continue
		}
		return filepath.ToSlash(a.To) + u[len(a.From):]
	}
	return u
}

// StripExt returns base name of p without extension.
func StripExt(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}
