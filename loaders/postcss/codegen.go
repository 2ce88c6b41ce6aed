package postcss

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode"

	engine "styles/postcss"
	"styles/utils/naming"
)

var reservedWords = []string{
	"break", "case", "class", "catch", "const", "continue", "debugger", "default", "delete", "do",
	"else", "export", "extends", "finally", "for", "function", "if", "import", "in", "instanceof",
	"let", "new", "return", "super", "switch", "this", "throw", "try", "typeof", "var", "void",
	"while", "with", "yield", "enum", "await", "implements", "package", "protected", "static",
	"interface", "private", "public", "arguments", "Infinity", "NaN", "undefined", "null", "true",
	"false", "eval", "uneval", "isFinite", "isNaN", "parseFloat", "parseInt", "decodeURI",
	"decodeURIComponent", "encodeURI", "encodeURIComponent", "escape", "unescape", "Object",
	"Function", "Boolean", "Symbol", "Error", "Number", "Math", "Date", "String", "RegExp", "Array",
	"Map", "Set", "JSON", "Promise", "Reflect", "Proxy", "Intl", "globalThis",
}

var (
	illegalRe  = regexp.MustCompile(`[^$_\pL\pN]`)
	separateRe = regexp.MustCompile(`[-_\s.]+(.)?`)
)

// LegalIdentifier converts s into valid JavaScript identifier.
func LegalIdentifier(s string) string {
	s = illegalRe.ReplaceAllString(s, "_")
	if len(s) == 0 {
		return "_"
	}
	if r := []rune(s)[0]; unicode.IsDigit(r) || slices.Contains(reservedWords, s) {
		s = "_" + s
	}
	return s
}

// ClassName is default named export transform: name is converted to camel
// case and made a legal identifier.
func ClassName(name string) string {
	camel := separateRe.ReplaceAllStringFunc(name, func(m string) string {
		sm := separateRe.FindStringSubmatch(m)
		return strings.ToUpper(sm[1])
	})
	if len(camel) == 0 {
		camel = name
	}
	return LegalIdentifier(camel)
}

// safeID produces identifier unlikely to clash with names exported from
// the module.
func safeID(id, file string) string {
	return LegalIdentifier(id + "_" + naming.HashString(path.Base(file))[:8])
}

// jsString renders JavaScript string literal.
func jsString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// jsObject renders exports as object literal keeping their order.
func jsObject(exports []engine.Export) string {
	if len(exports) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(exports))
	for _, e := range exports {
		parts = append(parts, jsString(e.Name)+":"+jsString(e.Value))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// mergeExports collapses repeated names, the last value wins and the first
// position is kept.
func mergeExports(exports []engine.Export) []engine.Export {
	out := make([]engine.Export, 0, len(exports))
	index := make(map[string]int, len(exports))
	for _, e := range exports {
		if i, ok := index[e.Name]; ok {
			out[i].Value = e.Value
			continue
		}
		index[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}

func lookupExport(exports []engine.Export, name string) bool {
	for _, e := range exports {
		if e.Name == name {
			return true
		}
	}
	return false
}

// injectorOptions renders runtime options object.
func injectorOptions(opts InjectOptions) string {
	obj := make(map[string]any)
	if len(opts.Container) > 0 {
		obj["container"] = opts.Container
	}
	if opts.Prepend {
		obj["prepend"] = true
	}
	if opts.SingleTag {
		obj["singleTag"] = true
	}
	if len(opts.Attributes) > 0 {
		obj["attributes"] = opts.Attributes
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return "{}"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

type module struct {
	id      string
	css     string
	exports []engine.Export
	modules bool
}

// namedExports renders "export var" declarations and reports renamed
// exports through warn. exports may be extended with renamed entries, names
// colliding after transformation are exported once.
func (m *module) namedExports(transform func(string) string, warn func(string)) []string {
	var out []string
	emitted := make(map[string]bool)
	current := slices.Clone(m.exports)
	for _, e := range current {
		name := transform(e.Name)
		if emitted[name] {
			continue
		}
		emitted[name] = true
		if name != e.Name {
			warn(fmt.Sprintf("Exported `%s` as `%s`", e.Name, name))
			if !lookupExport(m.exports, name) {
				m.exports = append(m.exports, engine.Export{Name: name, Value: e.Value})
			}
		}
		out = append(out, fmt.Sprintf("export var %s = %s;", name, jsString(e.Value)))
	}
	return out
}
