package sourcemap

import "strings"

// Chunk is a piece of generated code with its optional map.
type Chunk struct {
	Code string
	Map  *Map
}

// Concat joins chunks with new lines. Mappings of every chunk are shifted by
// the number of lines generated so far, embedded sources content is carried
// over.
func Concat(file string, chunks []Chunk) (string, *Map) {
	g := NewGenerator(file)
	content := make([]string, 0, len(chunks))

	offset := 0
	for _, c := range chunks {
		content = append(content, c.Code)
		lines := strings.Count(c.Code, "\n") + 1
		if c.Map == nil {
			offset += lines
			continue
		}
		consumer := NewConsumer(c.Map)
		if consumer == nil {
			offset += lines
			continue
		}
		consumer.EachMapping(func(mp Mapping) {
			mp.GeneratedLine += offset
			g.AddMapping(mp)
		})
		for i := range c.Map.Sources {
			if i < len(c.Map.SourcesContent) && len(c.Map.SourcesContent[i]) > 0 {
				g.SetSourceContent(c.Map.sourceAt(i), c.Map.SourcesContent[i])
			}
		}
		offset += lines
	}
	return strings.Join(content, "\n"), g.Map()
}
