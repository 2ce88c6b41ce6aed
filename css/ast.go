// Package css provides a mutable stylesheet tree with source positions,
// parser built on top of tdewolff/parse and printer producing source maps.
package css

import (
	"errors"
	"sort"
	"unicode/utf8"

	"styles/sourcemap"
)

// ErrStop may be returned from walk callbacks to terminate walking early.
var ErrStop = errors.New("stop walking")

// Kind of the tree node.
type Kind int

const (
	KindRoot Kind = iota
	KindRule
	KindAtRule
	KindDecl
	KindComment
	// KindRaw holds verbatim body of at-rules we do not know structure of.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindRule:
		return "rule"
	case KindAtRule:
		return "atrule"
	case KindDecl:
		return "decl"
	case KindComment:
		return "comment"
	case KindRaw:
		return "raw"
	}
	return "unknown"
}

// Input is a single parsed document.
type Input struct {
	// ID is absolute file path or synthetic name.
	ID string
	// CSS is the original text.
	CSS string
	// Map describes how CSS was generated, if known.
	Map *sourcemap.Map

	lines []int
}

// Position in the input. Line and Column are 1-based, Column counts UTF-16
// code units.
type Position struct {
	Line   int
	Column int
	Offset int
}

// Source points to where node came from.
type Source struct {
	Input *Input
	Start Position
}

// Position converts byte offset into line and column.
func (in *Input) Position(offset int) Position {
	if in.lines == nil {
		in.lines = []int{0}
		for i := 0; i < len(in.CSS); i++ {
			if in.CSS[i] == '\n' {
				in.lines = append(in.lines, i+1)
			}
		}
	}
	offset = max(0, min(offset, len(in.CSS)))
	line := sort.Search(len(in.lines), func(i int) bool { return in.lines[i] > offset }) - 1
	return Position{
		Line:   line + 1,
		Column: utf16Len(in.CSS[in.lines[line]:offset]) + 1,
		Offset: offset,
	}
}

func utf16Len(s string) int {
	n := 0
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
		s = s[size:]
	}
	return n
}

// Node is an element of stylesheet tree. Meaning of fields depends on Kind.
type Node struct {
	Kind Kind
	// Name is at-rule name without "@" or declaration property.
	Name string
	// Params of the at-rule.
	Params string
	// Selector of the rule.
	Selector string
	// Value of declaration, text of comment (without delimiters) or raw text.
	Value     string
	Important bool
	// Nodes are children of root, rules and at-rules with block. At-rules
	// without block have nil Nodes.
	Nodes  []*Node
	Source *Source

	parent *Node
}

func NewRoot() *Node {
	return &Node{Kind: KindRoot, Nodes: []*Node{}}
}

func NewRule(selector string) *Node {
	return &Node{Kind: KindRule, Selector: selector, Nodes: []*Node{}}
}

// NewAtRule creates at-rule without block, use Append or set Nodes to give
// it one.
func NewAtRule(name, params string) *Node {
	return &Node{Kind: KindAtRule, Name: name, Params: params}
}

func NewDecl(prop, value string) *Node {
	return &Node{Kind: KindDecl, Name: prop, Value: value}
}

func NewComment(text string) *Node {
	return &Node{Kind: KindComment, Value: text}
}

// Parent returns containing node or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Root returns top most node of the tree n belongs to.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// Index returns position of child in n or -1.
func (n *Node) Index(child *Node) int {
	for i, c := range n.Nodes {
		if c == child {
			return i
		}
	}
	return -1
}

func (n *Node) adopt(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, c := range nodes {
		if c.Kind == KindRoot {
			// splice content of documents
			out = append(out, n.adopt(c.Nodes)...)
			c.Nodes = []*Node{}
			continue
		}
		if c.parent != nil {
			c.parent.removeChild(c)
		}
		c.parent = n
		out = append(out, c)
	}
	return out
}

func (n *Node) removeChild(child *Node) {
	if i := n.Index(child); i >= 0 {
		n.Nodes = append(n.Nodes[:i:i], n.Nodes[i+1:]...)
	}
	child.parent = nil
}

// Append adds children at the end of n. Roots are spliced.
func (n *Node) Append(children ...*Node) *Node {
	if n.Nodes == nil {
		n.Nodes = []*Node{}
	}
	n.Nodes = append(n.Nodes, n.adopt(children)...)
	return n
}

// Prepend adds children at the beginning of n. Roots are spliced.
func (n *Node) Prepend(children ...*Node) *Node {
	adopted := n.adopt(children)
	n.Nodes = append(adopted, n.Nodes...)
	return n
}

// InsertBefore inserts nodes before existing child.
func (n *Node) InsertBefore(existing *Node, nodes ...*Node) {
	adopted := n.adopt(nodes)
	i := n.Index(existing)
	if i < 0 {
		n.Nodes = append(n.Nodes, adopted...)
		return
	}
	n.Nodes = append(n.Nodes[:i:i], append(adopted, n.Nodes[i:]...)...)
}

// InsertAfter inserts nodes after existing child.
func (n *Node) InsertAfter(existing *Node, nodes ...*Node) {
	adopted := n.adopt(nodes)
	i := n.Index(existing)
	if i < 0 {
		n.Nodes = append(n.Nodes, adopted...)
		return
	}
	n.Nodes = append(n.Nodes[:i+1:i+1], append(adopted, n.Nodes[i+1:]...)...)
}

// Remove detaches n from its parent.
func (n *Node) Remove() {
	if n.parent != nil {
		n.parent.removeChild(n)
	}
}

// ReplaceWith puts nodes in place of n, n is detached. Roots are spliced.
func (n *Node) ReplaceWith(nodes ...*Node) {
	p := n.parent
	if p == nil {
		return
	}
	p.InsertBefore(n, nodes...)
	p.removeChild(n)
}

// RemoveAll detaches all children.
func (n *Node) RemoveAll() {
	for _, c := range n.Nodes {
		c.parent = nil
	}
	if n.Nodes != nil {
		n.Nodes = []*Node{}
	}
}

// Clone makes deep copy of n without parent.
func (n *Node) Clone() *Node {
	c := *n
	c.parent = nil
	if n.Source != nil {
		src := *n.Source
		c.Source = &src
	}
	if n.Nodes != nil {
		c.Nodes = make([]*Node, 0, len(n.Nodes))
		for _, child := range n.Nodes {
			cc := child.Clone()
			cc.parent = &c
			c.Nodes = append(c.Nodes, cc)
		}
	}
	return &c
}

// Walk visits all descendants of n depth first. Children added or removed
// by fn while walking their parent are handled gracefully: removed nodes are
// skipped, nodes inserted before the current one are not visited.
func (n *Node) Walk(fn func(*Node) error) error {
	err := n.walk(fn)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (n *Node) walk(fn func(*Node) error) error {
	for i := 0; i < len(n.Nodes); i++ {
		child := n.Nodes[i]
		if err := fn(child); err != nil {
			return err
		}
		// child may have been removed or replaced
		if i >= len(n.Nodes) || n.Nodes[i] != child {
			if j := n.Index(child); j >= 0 {
				i = j
			} else {
				i--
				continue
			}
		}
		if child.Nodes != nil {
			if err := child.walk(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// WalkDecls visits declarations, optionally filtered by property name.
func (n *Node) WalkDecls(prop string, fn func(*Node) error) error {
	return n.Walk(func(c *Node) error {
		if c.Kind == KindDecl && (len(prop) == 0 || c.Name == prop) {
			return fn(c)
		}
		return nil
	})
}

// WalkRules visits rules.
func (n *Node) WalkRules(fn func(*Node) error) error {
	return n.Walk(func(c *Node) error {
		if c.Kind == KindRule {
			return fn(c)
		}
		return nil
	})
}

// WalkAtRules visits at-rules, optionally filtered by name.
func (n *Node) WalkAtRules(name string, fn func(*Node) error) error {
	return n.Walk(func(c *Node) error {
		if c.Kind == KindAtRule && (len(name) == 0 || c.Name == name) {
			return fn(c)
		}
		return nil
	})
}

// String prints n without source map.
func (n *Node) String() string {
	if n.Kind == KindRoot {
		code, _ := Stringify(n, StringifyOptions{})
		return code
	}
	var p printer
	p.node(n, 0)
	return p.sb.String()
}
