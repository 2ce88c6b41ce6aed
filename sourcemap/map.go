// Package sourcemap reads, writes and combines version 3 source maps.
package sourcemap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NoSource is used by some tools for generated content without an
// underlying file. It is never resolved or relativized.
const NoSource = "<no source>"

// Map is a version 3 source map.
type Map struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	SourceRoot     string   `json:"sourceRoot,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// Mapping connects generated position with original one. Lines are 1-based,
// columns are 0-based. Empty Source means the generated segment has no
// original.
type Mapping struct {
	GeneratedLine   int
	GeneratedColumn int
	Source          string
	OriginalLine    int
	OriginalColumn  int
	Name            string
}

// Parse decodes source map from JSON. Any malformed input results in nil.
func Parse(data string) *Map {
	data = strings.TrimSpace(data)
	// XSSI protection prefix
	data = strings.TrimPrefix(data, ")]}'")
	if len(data) == 0 {
		return nil
	}
	m := &Map{}
	if err := json.Unmarshal([]byte(data), m); err != nil {
		return nil
	}
	if m.Version == 0 {
		m.Version = 3
	}
	if m.Version != 3 {
		return nil
	}
	if _, err := decodeMappings(m.Mappings, len(m.Sources), len(m.Names)); err != nil {
		return nil
	}
	return m
}

// String returns JSON representation of the map, empty string for nil map.
func (m *Map) String() string {
	if m == nil {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

// Clone returns deep copy of the map.
func (m *Map) Clone() *Map {
	if m == nil {
		return nil
	}
	c := *m
	c.Sources = append([]string(nil), m.Sources...)
	c.Names = append([]string(nil), m.Names...)
	if m.SourcesContent != nil {
		c.SourcesContent = append([]string(nil), m.SourcesContent...)
	}
	return &c
}

// SourceContentFor returns embedded content for source if present.
func (m *Map) SourceContentFor(source string) (string, bool) {
	for i, s := range m.Sources {
		if s == source && i < len(m.SourcesContent) {
			return m.SourcesContent[i], true
		}
	}
	return "", false
}

// DecodedMappings decodes all segments of the map in generated order.
func (m *Map) DecodedMappings() ([]Mapping, error) {
	raw, err := decodeMappings(m.Mappings, len(m.Sources), len(m.Names))
	if err != nil {
		return nil, err
	}
	out := make([]Mapping, 0, len(raw))
	for _, r := range raw {
		mp := Mapping{GeneratedLine: r.genLine + 1, GeneratedColumn: r.genCol}
		if r.source >= 0 {
			mp.Source = m.sourceAt(r.source)
			mp.OriginalLine = r.origLine + 1
			mp.OriginalColumn = r.origCol
		}
		if r.name >= 0 {
			mp.Name = m.Names[r.name]
		}
		out = append(out, mp)
	}
	return out, nil
}

func (m *Map) sourceAt(i int) string {
	s := m.Sources[i]
	if len(m.SourceRoot) > 0 && s != NoSource {
		return strings.TrimSuffix(m.SourceRoot, "/") + "/" + s
	}
	return s
}

type rawMapping struct {
	genLine, genCol   int
	source            int
	origLine, origCol int
	name              int
}

func decodeMappings(mappings string, sources, names int) ([]rawMapping, error) {
	var (
		out                                  []rawMapping
		genLine, genCol                      int
		source, origLine, origCol, nameIndex int
	)

	i := 0
	for i < len(mappings) {
		switch mappings[i] {
		case ';':
			genLine++
			genCol = 0
			i++
			continue
		case ',':
			i++
			continue
		}

		var (
			v  int
			ok bool
		)
		if v, i, ok = decodeVLQ(mappings, i); !ok {
			return nil, fmt.Errorf("invalid generated column at offset %d", i)
		}
		genCol += v
		if genCol < 0 {
			return nil, fmt.Errorf("negative generated column at offset %d", i)
		}
		r := rawMapping{genLine: genLine, genCol: genCol, source: -1, name: -1}

		if i < len(mappings) && mappings[i] != ',' && mappings[i] != ';' {
			var d [3]int
			for k := range d {
				if d[k], i, ok = decodeVLQ(mappings, i); !ok {
					return nil, fmt.Errorf("truncated segment at offset %d", i)
				}
			}
			source += d[0]
			origLine += d[1]
			origCol += d[2]
			if source < 0 || source >= sources || origLine < 0 || origCol < 0 {
				return nil, fmt.Errorf("segment out of range at offset %d", i)
			}
			r.source, r.origLine, r.origCol = source, origLine, origCol

			if i < len(mappings) && mappings[i] != ',' && mappings[i] != ';' {
				if v, i, ok = decodeVLQ(mappings, i); !ok {
					return nil, fmt.Errorf("invalid name index at offset %d", i)
				}
				nameIndex += v
				if nameIndex < 0 || nameIndex >= names {
					return nil, fmt.Errorf("name index out of range at offset %d", i)
				}
				r.name = nameIndex
			}
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].genLine != out[b].genLine {
			return out[a].genLine < out[b].genLine
		}
		return out[a].genCol < out[b].genCol
	})
	return out, nil
}

func encodeMappings(raw []rawMapping) string {
	var (
		buf                                  []byte
		prevLine, prevCol                    int
		source, origLine, origCol, nameIndex int
	)
	for i, r := range raw {
		if r.genLine != prevLine {
			for prevLine < r.genLine {
				buf = append(buf, ';')
				prevLine++
			}
			prevCol = 0
		} else if i > 0 {
			buf = append(buf, ',')
		}

		buf = appendVLQ(buf, r.genCol-prevCol)
		prevCol = r.genCol

		if r.source < 0 {
			continue
		}
		buf = appendVLQ(buf, r.source-source)
		source = r.source
		buf = appendVLQ(buf, r.origLine-origLine)
		origLine = r.origLine
		buf = appendVLQ(buf, r.origCol-origCol)
		origCol = r.origCol

		if r.name >= 0 {
			buf = appendVLQ(buf, r.name-nameIndex)
			nameIndex = r.name
		}
	}
	return string(buf)
}
