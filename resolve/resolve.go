// Package resolve implements Node style module resolution for stylesheets:
// relative and absolute paths, "~" prefixed package requests, node_modules
// lookup with package.json exports, legacy entry fields and index files.
package resolve

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"styles/utils/paths"
)

var (
	// DefaultConditions are package exports conditions matched by default.
	DefaultConditions = []string{"style", "import", "require", "default"}
	// DefaultFields are package.json entry fields consulted when package has
	// no exports.
	DefaultFields = []string{"style", "module", "main"}

	moduleRe = regexp.MustCompile(`^~[\d@A-Za-z]`)
)

// Options control single resolution request.
type Options struct {
	// Caller is used in error messages.
	Caller string
	// BaseDirs are tried in order, current directory when empty.
	BaseDirs []string
	// Extensions are appended to candidates (with leading dot). When empty any
	// existing file matches.
	Extensions []string
	Conditions []string
	Fields     []string
	// Partials makes resolver try "dir/_name" before "dir/name" for every
	// candidate.
	Partials bool
	// Cache is shared between requests of a single build, may be nil.
	Cache *Cache
	Log   *zap.Logger
}

// Error is returned when none of the candidates could be resolved.
type Error struct {
	Caller     string
	Candidates []string
	BaseDirs   []string
}

func (e *Error) Error() string {
	caller := e.Caller
	if len(caller) == 0 {
		caller = "Resolver"
	}
	quoted := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		quoted = append(quoted, fmt.Sprintf("%q", c))
	}
	return fmt.Sprintf("%s could not resolve %s from %s", caller, strings.Join(quoted, ", "), strings.Join(e.BaseDirs, ", "))
}

// IsModule reports if u is a "~" prefixed package request.
func IsModule(u string) bool {
	return moduleRe.MatchString(u)
}

// NormalizeModule strips "~" from package requests.
func NormalizeModule(u string) string {
	if IsModule(u) {
		return u[1:]
	}
	return u
}

// Partial returns name of the partial file for u ("a/b" -> "a/_b") or empty
// string if u cannot have one.
func Partial(u string) string {
	dir, base := path.Split(u)
	if len(base) == 0 || base == "." || base == ".." || strings.HasPrefix(base, "_") {
		return ""
	}
	return dir + "_" + base
}

// Resolve returns absolute path of the first candidate resolvable in the
// first base directory. Candidates are tried for every base directory before
// moving to the next one.
func Resolve(ctx context.Context, candidates []string, opts Options) (string, error) {
	r := newResolver(opts)
	for _, dir := range r.baseDirs {
		for _, c := range candidates {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if p, ok := r.resolveCandidate(dir, c); ok {
				r.log.Debug("Resolved", zap.String("request", c), zap.String("basedir", dir), zap.String("path", p))
				return p, nil
			}
		}
	}
	r.log.Debug("Unable to resolve", zap.Strings("candidates", candidates), zap.Strings("basedirs", r.baseDirs))
	return "", &Error{Caller: opts.Caller, Candidates: candidates, BaseDirs: r.baseDirs}
}

// ResolveSync is Resolve for callers which have no context to honor.
func ResolveSync(candidates []string, opts Options) (string, error) {
	return Resolve(context.Background(), candidates, opts)
}

type resolver struct {
	opts     Options
	baseDirs []string
	cache    *Cache
	log      *zap.Logger
}

func newResolver(opts Options) *resolver {
	if opts.Conditions == nil {
		opts.Conditions = DefaultConditions
	}
	if opts.Fields == nil {
		opts.Fields = DefaultFields
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &resolver{opts: opts, cache: opts.Cache, log: log.Named("resolve")}

	dirs := opts.BaseDirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	seen := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		abs := paths.Resolve(d)
		if !seen[abs] {
			seen[abs] = true
			r.baseDirs = append(r.baseDirs, abs)
		}
	}
	return r
}

func (r *resolver) resolveCandidate(dir, candidate string) (string, bool) {
	module := IsModule(candidate)
	spec := NormalizeModule(strings.TrimSpace(candidate))
	if len(spec) == 0 {
		return "", false
	}

	variants := []string{spec}
	if r.opts.Partials {
		if partial := Partial(spec); len(partial) > 0 {
			variants = []string{partial, spec}
		}
	}

	for _, v := range variants {
		var (
			p  string
			ok bool
		)
		switch {
		case paths.IsAbsolute(v):
			p, ok = r.loadAsFileOrDir(path.Clean(v))
		case !module && (paths.IsRelative(v) || v == "." || v == ".."):
			p, ok = r.loadAsFileOrDir(path.Join(dir, v))
		default:
			p, ok = r.loadNodeModules(dir, v)
		}
		if ok {
			return p, true
		}
	}
	return "", false
}

func (r *resolver) extensionAllowed(p string) bool {
	if len(r.opts.Extensions) == 0 {
		return true
	}
	ext := path.Ext(p)
	for _, e := range r.opts.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func (r *resolver) loadAsFile(p string) (string, bool) {
	if r.cache.isFile(p) && r.extensionAllowed(p) {
		return p, true
	}
	for _, ext := range r.opts.Extensions {
		if r.cache.isFile(p + ext) {
			return p + ext, true
		}
	}
	return "", false
}

func (r *resolver) loadIndex(dir string) (string, bool) {
	for _, ext := range r.opts.Extensions {
		if p := path.Join(dir, "index"+ext); r.cache.isFile(p) {
			return p, true
		}
	}
	return "", false
}

func (r *resolver) loadAsFileOrDir(p string) (string, bool) {
	if res, ok := r.loadAsFile(p); ok {
		return res, true
	}
	if !r.cache.isDir(p) {
		return "", false
	}

	if m := r.cache.manifest(p); m != nil {
		if m.exports != nil {
			if res, ok := r.resolveExports(p, m.exports, "."); ok {
				return res, true
			}
		}
		for _, f := range r.opts.Fields {
			entry := m.field(f)
			if len(entry) == 0 {
				continue
			}
			target := path.Join(p, entry)
			if res, ok := r.loadAsFile(target); ok {
				return res, true
			}
			if res, ok := r.loadIndex(target); ok {
				return res, true
			}
		}
	}
	return r.loadIndex(p)
}

// splitPackage splits bare request into package name and "./sub" path.
func splitPackage(spec string) (string, string) {
	parts := strings.SplitN(spec, "/", 3)
	n := 1
	if strings.HasPrefix(spec, "@") && len(parts) > 1 {
		n = 2
	}
	if len(parts) <= n {
		return spec, "."
	}
	name := strings.Join(parts[:n], "/")
	return name, "." + spec[len(name):]
}

func (r *resolver) loadNodeModules(dir, spec string) (string, bool) {
	name, subpath := splitPackage(spec)
	for d := dir; ; {
		if path.Base(d) != "node_modules" {
			pkgDir := path.Join(d, "node_modules", name)
			if r.cache.isDir(pkgDir) {
				if m := r.cache.manifest(pkgDir); m != nil && m.exports != nil {
					if res, ok := r.resolveExports(pkgDir, m.exports, subpath); ok {
						return res, true
					}
				}
				if res, ok := r.loadAsFileOrDir(path.Join(pkgDir, subpath)); ok {
					return res, true
				}
			}
		}
		parent := path.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return "", false
}
