package css

import (
	"strings"

	"styles/sourcemap"
)

// StringifyOptions controls printing.
type StringifyOptions struct {
	// Map requests source map generation.
	Map bool
	// File is recorded in generated map.
	File string
	// SourcesContent embeds original inputs into generated map.
	SourcesContent bool
}

// Stringify prints tree. When map is requested every node start is mapped
// to its source and previous maps of inputs are applied, so resulting map
// points to the earliest known origin.
func Stringify(root *Node, opts StringifyOptions) (string, *sourcemap.Map) {
	p := &printer{line: 1}
	if opts.Map {
		p.gen = sourcemap.NewGenerator(opts.File)
		p.seen = make(map[*Input]bool)
	}

	if root.Kind == KindRoot {
		for i, child := range root.Nodes {
			if i > 0 {
				p.write("\n")
			}
			p.node(child, 0)
		}
	} else {
		p.node(root, 0)
	}

	if p.gen == nil {
		return p.sb.String(), nil
	}
	for _, in := range p.inputs {
		if opts.SourcesContent {
			p.gen.SetSourceContent(in.ID, in.CSS)
		}
	}
	for _, in := range p.inputs {
		if in.Map != nil {
			p.gen.ApplyPrevious(in.Map, in.ID)
		}
	}
	return p.sb.String(), p.gen.Map()
}

type printer struct {
	sb     strings.Builder
	line   int
	col    int
	gen    *sourcemap.Generator
	inputs []*Input
	seen   map[*Input]bool
}

func (p *printer) write(s string) {
	p.sb.WriteString(s)
	if p.gen == nil {
		return
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		p.line += strings.Count(s, "\n")
		p.col = utf16Len(s[i+1:])
		return
	}
	p.col += utf16Len(s)
}

func (p *printer) mark(n *Node) {
	if p.gen == nil || n.Source == nil || n.Source.Input == nil {
		return
	}
	in := n.Source.Input
	if !p.seen[in] {
		p.seen[in] = true
		p.inputs = append(p.inputs, in)
	}
	p.gen.AddMapping(sourcemap.Mapping{
		GeneratedLine:   p.line,
		GeneratedColumn: p.col,
		Source:          in.ID,
		OriginalLine:    n.Source.Start.Line,
		OriginalColumn:  n.Source.Start.Column - 1,
	})
}

func (p *printer) node(n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	p.write(indent)
	p.mark(n)

	switch n.Kind {
	case KindRule:
		p.write(n.Selector + " {")
		p.block(n, indent, depth)
	case KindAtRule:
		p.write("@" + n.Name)
		if len(n.Params) > 0 {
			p.write(" " + n.Params)
		}
		if n.Nodes == nil {
			p.write(";")
			return
		}
		p.write(" {")
		p.block(n, indent, depth)
	case KindDecl:
		p.write(n.Name + ": " + n.Value)
		if n.Important {
			p.write(" !important")
		}
		p.write(";")
	case KindComment:
		p.write("/*" + n.Value + "*/")
	case KindRaw:
		p.write(strings.TrimSpace(n.Value))
	case KindRoot:
		for i, child := range n.Nodes {
			if i > 0 {
				p.write("\n")
			}
			p.node(child, depth)
		}
	}
}

func (p *printer) block(n *Node, indent string, depth int) {
	if len(n.Nodes) == 0 {
		p.write("}")
		return
	}
	for _, child := range n.Nodes {
		p.write("\n")
		p.node(child, depth+1)
	}
	p.write("\n" + indent + "}")
}
