// Package naming expands file name templates used for emitted assets and
// scoped class names.
package naming

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashLen is used for [hash] placeholder without explicit length.
const DefaultHashLen = 8

var hashRe = regexp.MustCompile(`\[hash(?::(\d+))?\]`)

// Hash returns hex encoded 64 bit xxhash of concatenated chunks.
func Hash(chunks ...[]byte) string {
	d := xxhash.New()
	for _, c := range chunks {
		_, _ = d.Write(c)
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// HashString is a convenience wrapper around Hash.
func HashString(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// Values holds replacements for supported placeholders.
type Values struct {
	// File is used to derive [dir], [name], [ext] and [extname].
	File string
	// Name overrides base name derived from File when not empty.
	Name string
	// Local is used for [local].
	Local string
	// Hash is the full hash string, [hash:N] takes first N characters.
	Hash string
}

// Interpolate replaces placeholders in template. Supported placeholders are
// [dir] (base name of containing directory), [name], [ext] (no dot),
// [extname] (with dot), [local], [hash] and [hash:N].
func Interpolate(template string, v Values) string {
	file := filepath.ToSlash(v.File)
	ext := path.Ext(file)
	name := v.Name
	if len(name) == 0 {
		name = strings.TrimSuffix(path.Base(file), ext)
	}

	out := strings.NewReplacer(
		"[dir]", path.Base(path.Dir(file)),
		"[name]", name,
		"[extname]", ext,
		".[ext]", ext,
		"[ext]", strings.TrimPrefix(ext, "."),
		"[local]", v.Local,
	).Replace(template)

	return hashRe.ReplaceAllStringFunc(out, func(m string) string {
		n := DefaultHashLen
		if sub := hashRe.FindStringSubmatch(m); len(sub[1]) > 0 {
			if l, err := strconv.Atoi(sub[1]); err == nil && l > 0 {
				n = l
			}
		}
		if n > len(v.Hash) {
			n = len(v.Hash)
		}
		return v.Hash[:n]
	})
}

// HashLen returns requested hash length from template or 0 when template
// does not contain hash placeholder.
func HashLen(template string) int {
	sub := hashRe.FindStringSubmatch(template)
	if sub == nil {
		return 0
	}
	if l, err := strconv.Atoi(sub[1]); err == nil && l > 0 {
		return l
	}
	return DefaultHashLen
}

// Unique returns name if taken reports it is free, otherwise appends numeric
// suffix before extension incrementing it until taken reports false.
func Unique(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s-%d%s", base, counter, ext)
		if !taken(candidate) {
			return candidate
		}
	}
}
