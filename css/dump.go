package css

import (
	"strconv"

	"styles/utils/debug"
)

// Dump renders tree structure for debug reports.
func Dump(root *Node) string {
	tw := debug.NewTreeWriter()
	dumpNode(tw, root, 0)
	return tw.String()
}

func dumpNode(tw *debug.TreeWriter, n *Node, depth int) {
	var pos, file string
	if n.Source != nil {
		pos = strconv.Itoa(n.Source.Start.Line) + ":" + strconv.Itoa(n.Source.Start.Column)
		if n.Source.Input != nil {
			file = n.Source.Input.ID
		}
	}
	switch n.Kind {
	case KindRoot:
		tw.Entry(depth, "root", "file", file)
	case KindRule:
		tw.Entry(depth, "rule", "selector", n.Selector, "pos", pos)
	case KindAtRule:
		tw.Entry(depth, "atrule", "name", n.Name, "params", n.Params, "pos", pos)
	case KindDecl:
		imp := ""
		if n.Important {
			imp = "true"
		}
		tw.Entry(depth, "decl", "prop", n.Name, "value", n.Value, "important", imp, "pos", pos)
	case KindComment:
		tw.TextBlock(depth, "comment", n.Value)
	case KindRaw:
		tw.TextBlock(depth, "raw", n.Value)
	}
	for _, c := range n.Nodes {
		dumpNode(tw, c, depth+1)
	}
}
