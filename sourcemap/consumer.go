package sourcemap

// Consumer answers position queries against decoded map.
type Consumer struct {
	m        *Map
	mappings []Mapping
}

// NewConsumer decodes m, nil is returned for nil or broken maps.
func NewConsumer(m *Map) *Consumer {
	if m == nil {
		return nil
	}
	mappings, err := m.DecodedMappings()
	if err != nil {
		return nil
	}
	return &Consumer{m: m, mappings: mappings}
}

// OriginalPositionFor finds closest mapping at or before the given generated
// position on the same line. Line is 1-based, column is 0-based.
func (c *Consumer) OriginalPositionFor(line, column int) (Mapping, bool) {
	mappings := c.mappings

	// binary search for the first mapping after position
	count := len(mappings)
	index := 0
	for count > 0 {
		step := count / 2
		i := index + step
		mp := mappings[i]
		if mp.GeneratedLine < line || (mp.GeneratedLine == line && mp.GeneratedColumn <= column) {
			index = i + 1
			count -= step + 1
		} else {
			count = step
		}
	}

	if index > 0 {
		mp := mappings[index-1]
		if mp.GeneratedLine == line && len(mp.Source) > 0 {
			return mp, true
		}
	}
	return Mapping{}, false
}

// EachMapping calls fn for every mapping in generated order.
func (c *Consumer) EachMapping(fn func(Mapping)) {
	for _, mp := range c.mappings {
		fn(mp)
	}
}

// Map returns underlying map.
func (c *Consumer) Map() *Map {
	return c.m
}
