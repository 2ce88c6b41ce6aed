package loaders

import (
	"context"
	"errors"
	"path"
	"regexp"
	"strings"

	"styles/resolve"
	"styles/sourcemap"
	"styles/utils/paths"
)

// ResolveModuleImports replaces "~" prefixed package requests captured by
// the "url" group of re with absolute paths, so compilers without package
// awareness can load them. Unresolvable requests are left for the compiler
// to report.
func ResolveModuleImports(ctx context.Context, code string, re *regexp.Regexp, opts resolve.Options) (string, error) {
	return ResolveImports(ctx, code, re, opts, func(u string) (string, bool) {
		return u, resolve.IsModule(u)
	})
}

// ResolveImports is ResolveModuleImports with caller deciding which urls are
// resolved and what candidate is passed to resolver for each of them.
func ResolveImports(ctx context.Context, code string, re *regexp.Regexp, opts resolve.Options, request func(u string) (string, bool)) (string, error) {
	group := re.SubexpIndex("url")
	if group < 0 {
		return code, nil
	}

	var (
		sb   strings.Builder
		last int
	)
	for _, m := range re.FindAllStringSubmatchIndex(code, -1) {
		start, end := m[2*group], m[2*group+1]
		if start < 0 {
			continue
		}
		candidate, ok := request(code[start:end])
		if !ok {
			continue
		}
		file, err := resolve.Resolve(ctx, []string{candidate}, opts)
		if err != nil {
			var rerr *resolve.Error
			if errors.As(err, &rerr) {
				continue
			}
			return code, err
		}
		sb.WriteString(code[last:start])
		sb.WriteString(file)
		last = end
	}
	if last == 0 {
		return code, nil
	}
	sb.WriteString(code[last:])
	return sb.String(), nil
}

// NormalizeSources makes compiler map sources absolute: entries matching
// one of stdin names are attributed to id, relative entries are resolved
// against directory of id.
func NormalizeSources(data, id string, stdin ...string) string {
	dir := path.Dir(paths.Normalize(id))
	return sourcemap.NewModifier(data).ModifySources(func(s string) string {
		if len(s) == 0 {
			return paths.Normalize(id)
		}
		for _, name := range stdin {
			if s == name {
				return paths.Normalize(id)
			}
		}
		if paths.IsAbsolute(s) {
			return paths.Normalize(s)
		}
		return paths.Resolve(dir, s)
	}).String()
}

// ExtractInlineMap splits compiler output into code and its inline map.
func ExtractInlineMap(out, id string) (string, string) {
	data, err := sourcemap.Load(out, id)
	if err != nil {
		data = ""
	}
	return sourcemap.StripComment(out), data
}
