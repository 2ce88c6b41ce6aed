package sourcemap

import (
	"encoding/base64"
	"path/filepath"

	"styles/utils/paths"
)

// Modifier wraps a map and provides chainable source list rewrites. All
// operations work on a private copy, absent map makes every operation a
// no-op.
type Modifier struct {
	m *Map
}

// NewModifier parses data leniently, unparsable input produces modifier
// without map.
func NewModifier(data string) *Modifier {
	return &Modifier{m: Parse(data)}
}

// FromMap wraps copy of m.
func FromMap(m *Map) *Modifier {
	return &Modifier{m: m.Clone()}
}

// Map returns current map or nil.
func (mm *Modifier) Map() *Map {
	return mm.m
}

// Modify calls fn with the map if it is present.
func (mm *Modifier) Modify(fn func(m *Map)) *Modifier {
	if mm.m != nil {
		fn(mm.m)
	}
	return mm
}

// ModifySources rewrites every source entry except NoSource.
func (mm *Modifier) ModifySources(fn func(source string) string) *Modifier {
	return mm.Modify(func(m *Map) {
		for i, s := range m.Sources {
			if s == NoSource {
				continue
			}
			m.Sources[i] = fn(s)
		}
	})
}

// Resolve makes every source absolute against dir.
func (mm *Modifier) Resolve(dir string) *Modifier {
	return mm.ModifySources(func(source string) string {
		if paths.IsAbsolute(source) {
			return paths.Normalize(source)
		}
		return paths.Resolve(dir, filepath.FromSlash(source))
	})
}

// Relative makes absolute sources relative to dir. Already relative entries
// are only normalized and not re-based.
func (mm *Modifier) Relative(dir string) *Modifier {
	return mm.ModifySources(func(source string) string {
		if paths.IsAbsolute(source) {
			return paths.Relative(dir, source)
		}
		return paths.Normalize(source)
	})
}

// String returns JSON form of the map or empty string.
func (mm *Modifier) String() string {
	return mm.m.String()
}

// ToCommentData renders inline base64 source map comment.
func (mm *Modifier) ToCommentData() string {
	data := mm.String()
	if len(data) == 0 {
		return ""
	}
	return "\n/*# sourceMappingURL=data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(data)) + " */"
}

// ToCommentFile renders comment referencing map by file name.
func (mm *Modifier) ToCommentFile(name string) string {
	if mm.m == nil {
		return ""
	}
	return "\n/*# sourceMappingURL=" + name + " */"
}
