package sourcemap

import "sort"

// Generator accumulates mappings and produces a source map.
type Generator struct {
	file     string
	sources  []string
	srcIndex map[string]int
	names    []string
	nameIdx  map[string]int
	contents map[string]string
	mappings []rawMapping
}

// NewGenerator creates empty generator for the given output file name.
func NewGenerator(file string) *Generator {
	return &Generator{
		file:     file,
		srcIndex: make(map[string]int),
		nameIdx:  make(map[string]int),
		contents: make(map[string]string),
	}
}

// GeneratorFromMap creates generator holding all mappings of m.
func GeneratorFromMap(m *Map) *Generator {
	g := NewGenerator(m.File)
	mappings, err := m.DecodedMappings()
	if err != nil {
		return g
	}
	for _, mp := range mappings {
		g.AddMapping(mp)
	}
	for i := range m.Sources {
		if i < len(m.SourcesContent) && len(m.SourcesContent[i]) > 0 {
			g.SetSourceContent(m.sourceAt(i), m.SourcesContent[i])
		}
	}
	return g
}

func (g *Generator) source(s string) int {
	if i, ok := g.srcIndex[s]; ok {
		return i
	}
	g.srcIndex[s] = len(g.sources)
	g.sources = append(g.sources, s)
	return g.srcIndex[s]
}

func (g *Generator) name(n string) int {
	if len(n) == 0 {
		return -1
	}
	if i, ok := g.nameIdx[n]; ok {
		return i
	}
	g.nameIdx[n] = len(g.names)
	g.names = append(g.names, n)
	return g.nameIdx[n]
}

// AddMapping records a single mapping.
func (g *Generator) AddMapping(m Mapping) {
	r := rawMapping{
		genLine: m.GeneratedLine - 1,
		genCol:  m.GeneratedColumn,
		source:  -1,
		name:    -1,
	}
	if r.genLine < 0 || r.genCol < 0 {
		return
	}
	if len(m.Source) > 0 {
		r.source = g.source(m.Source)
		r.origLine = max(m.OriginalLine-1, 0)
		r.origCol = max(m.OriginalColumn, 0)
		r.name = g.name(m.Name)
	}
	g.mappings = append(g.mappings, r)
}

// SetSourceContent embeds original content for source.
func (g *Generator) SetSourceContent(source, content string) {
	g.source(source)
	g.contents[source] = content
}

// ApplyPrevious replaces every mapping pointing into source with position
// looked up in prev, which describes how source itself was generated.
// Mappings which cannot be traced through prev are kept as is.
func (g *Generator) ApplyPrevious(prev *Map, source string) {
	if prev == nil {
		return
	}
	consumer := NewConsumer(prev)
	if consumer == nil {
		return
	}
	idx, ok := g.srcIndex[source]
	if !ok {
		return
	}

	old := g.mappings
	oldSources, oldNames := g.sources, g.names
	g.mappings = nil
	g.sources, g.names = nil, nil
	g.srcIndex, g.nameIdx = make(map[string]int), make(map[string]int)

	for _, r := range old {
		mp := Mapping{GeneratedLine: r.genLine + 1, GeneratedColumn: r.genCol}
		if r.source >= 0 {
			mp.Source = oldSources[r.source]
			mp.OriginalLine = r.origLine + 1
			mp.OriginalColumn = r.origCol
			if r.name >= 0 {
				mp.Name = oldNames[r.name]
			}
			if r.source == idx {
				if orig, found := consumer.OriginalPositionFor(mp.OriginalLine, mp.OriginalColumn); found {
					mp.Source = orig.Source
					mp.OriginalLine = orig.OriginalLine
					mp.OriginalColumn = orig.OriginalColumn
					if len(orig.Name) > 0 {
						mp.Name = orig.Name
					}
				}
			}
		}
		g.AddMapping(mp)
	}

	delete(g.contents, source)
	for i := range prev.Sources {
		if i < len(prev.SourcesContent) && len(prev.SourcesContent[i]) > 0 {
			g.SetSourceContent(prev.sourceAt(i), prev.SourcesContent[i])
		}
	}
}

// Map produces resulting source map.
func (g *Generator) Map() *Map {
	mappings := append([]rawMapping(nil), g.mappings...)
	sort.SliceStable(mappings, func(a, b int) bool {
		if mappings[a].genLine != mappings[b].genLine {
			return mappings[a].genLine < mappings[b].genLine
		}
		return mappings[a].genCol < mappings[b].genCol
	})

	m := &Map{
		Version:  3,
		File:     g.file,
		Sources:  append([]string{}, g.sources...),
		Names:    append([]string{}, g.names...),
		Mappings: encodeMappings(mappings),
	}
	if len(g.contents) > 0 {
		m.SourcesContent = make([]string, len(g.sources))
		for i, s := range g.sources {
			m.SourcesContent[i] = g.contents[s]
		}
	}
	return m
}

// Apply chains m with prev, where prev describes how source referenced by m
// was generated. Neither argument is modified.
func Apply(m, prev *Map, source string) *Map {
	if m == nil {
		return nil
	}
	if prev == nil {
		return m.Clone()
	}
	g := GeneratorFromMap(m)
	g.ApplyPrevious(prev, source)
	out := g.Map()
	out.File = m.File
	return out
}
