package resolve

import (
	"bytes"
	"encoding/json"
	"path"
	"strings"
)

// manifest is a subset of package.json we care about.
type manifest struct {
	fields  map[string]json.RawMessage
	exports json.RawMessage
}

func (m *manifest) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &m.fields); err != nil {
		return err
	}
	if raw, ok := m.fields["exports"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		m.exports = raw
	}
	return nil
}

// field returns string value of top level field or empty string.
func (m *manifest) field(name string) string {
	var s string
	if raw, ok := m.fields[name]; ok && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

type member struct {
	key   string
	value json.RawMessage
}

// object decodes JSON object keeping order of its keys. Condition maps of
// package exports are order sensitive so map decoding cannot be used.
func object(raw json.RawMessage) ([]member, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, false
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, false
		}
		out = append(out, member{key: key, value: v})
	}
	return out, true
}

// resolveExports maps subpath ("." or "./sub") through package exports.
func (r *resolver) resolveExports(pkgDir string, exports json.RawMessage, subpath string) (string, bool) {
	members, isObject := object(exports)

	subpathKeys := isObject && len(members) > 0 && strings.HasPrefix(members[0].key, ".")
	if !subpathKeys {
		// sugar: exports describes "." only
		if subpath != "." {
			return "", false
		}
		return r.resolveTarget(pkgDir, exports, "")
	}

	for _, m := range members {
		if m.key == subpath {
			return r.resolveTarget(pkgDir, m.value, "")
		}
	}

	// longest matching pattern wins
	var (
		best       *member
		bestStar   string
		bestPrefix int
	)
	for i := range members {
		key := members[i].key
		star := strings.IndexByte(key, '*')
		if star < 0 {
			continue
		}
		prefix, suffix := key[:star], key[star+1:]
		if !strings.HasPrefix(subpath, prefix) || !strings.HasSuffix(subpath, suffix) ||
			len(subpath) < len(prefix)+len(suffix) {
			continue
		}
		if best == nil || len(prefix) > bestPrefix {
			best = &members[i]
			bestPrefix = len(prefix)
			bestStar = subpath[len(prefix) : len(subpath)-len(suffix)]
		}
	}
	if best == nil {
		return "", false
	}
	return r.resolveTarget(pkgDir, best.value, bestStar)
}

func (r *resolver) resolveTarget(pkgDir string, target json.RawMessage, star string) (string, bool) {
	target = bytes.TrimSpace(target)
	if len(target) == 0 {
		return "", false
	}

	switch target[0] {
	case '"':
		var s string
		if json.Unmarshal(target, &s) != nil || !strings.HasPrefix(s, "./") {
			return "", false
		}
		s = strings.ReplaceAll(s, "*", star)
		return r.loadAsFile(path.Join(pkgDir, s))

	case '[':
		var list []json.RawMessage
		if json.Unmarshal(target, &list) != nil {
			return "", false
		}
		for _, t := range list {
			if p, ok := r.resolveTarget(pkgDir, t, star); ok {
				return p, true
			}
		}

	case '{':
		members, _ := object(target)
		for _, m := range members {
			if !r.condition(m.key) {
				continue
			}
			if p, ok := r.resolveTarget(pkgDir, m.value, star); ok {
				return p, true
			}
		}
	}
	return "", false
}

func (r *resolver) condition(name string) bool {
	for _, c := range r.opts.Conditions {
		if c == name {
			return true
		}
	}
	return false
}
