package css

import (
	"bytes"
	"errors"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// SyntaxError describes recoverable problem found while parsing. Offending
// construct is dropped from the tree.
type SyntaxError struct {
	Message string
	Pos     Position
}

// Parser parses stylesheets into node trees.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

type parseState struct {
	in     *Input
	data   []byte
	parser *css.Parser
	// end of previously consumed grammar
	last   int
	errs   []SyntaxError
	stack  []*Node
	errPos int
}

// Parse builds tree for in. It never fails, syntax errors are reported
// separately and broken constructs are skipped.
func (p *Parser) Parse(in *Input) (*Node, []SyntaxError) {
	p.log.Debug("Parsing CSS", zap.String("source", in.ID), zap.Int("bytes", len(in.CSS)))

	root := NewRoot()
	root.Source = &Source{Input: in, Start: in.Position(0)}

	st := &parseState{
		in:     in,
		data:   []byte(in.CSS),
		stack:  []*Node{root},
		errPos: -1,
	}
	st.parser = css.NewParser(parse.NewInputBytes(st.data), false)

	for {
		gt, _, data := st.parser.Next()
		if gt == css.ErrorGrammar {
			if !st.parser.HasParseError() {
				// EOF or read error
				break
			}
			offset := st.parser.Offset()
			if offset == st.errPos {
				break
			}
			st.errPos = offset
			st.errs = append(st.errs, SyntaxError{Message: parseErrorMessage(st.parser.Err()), Pos: in.Position(offset)})
			st.last = offset
			continue
		}
		st.handle(gt, data)
	}

	if len(st.errs) > 0 {
		p.log.Debug("CSS parsed with errors", zap.String("source", in.ID), zap.Int("errors", len(st.errs)))
	}
	return root, st.errs
}

func parseErrorMessage(err error) string {
	if err == nil {
		return "syntax error"
	}
	var perr *parse.Error
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

func (st *parseState) current() *Node {
	return st.stack[len(st.stack)-1]
}

// start finds where current grammar begins skipping whitespace, comments
// and semicolons after previous grammar.
func (st *parseState) start() int {
	i := st.last
	for i < len(st.data) {
		switch c := st.data[i]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == ';':
			i++
		case c == '/' && i+1 < len(st.data) && st.data[i+1] == '*':
			end := bytes.Index(st.data[i+2:], []byte("*/"))
			if end < 0 {
				return len(st.data)
			}
			i += end + 4
		default:
			return i
		}
	}
	return i
}

func (st *parseState) source(offset int) *Source {
	return &Source{Input: st.in, Start: st.in.Position(offset)}
}

func (st *parseState) handle(gt css.GrammarType, data []byte) {
	parser := st.parser
	end := parser.Offset()

	switch gt {
	case css.CommentGrammar:
		text := string(data)
		n := NewComment(strings.TrimSuffix(strings.TrimPrefix(text, "/*"), "*/"))
		n.Source = st.source(end - len(data))
		st.current().Append(n)

	case css.AtRuleGrammar:
		n := NewAtRule(string(data[1:]), strings.TrimSpace(joinTokens(parser.Values())))
		n.Source = st.source(st.start())
		st.current().Append(n)

	case css.BeginAtRuleGrammar:
		n := NewAtRule(string(data[1:]), strings.TrimSpace(joinTokens(parser.Values())))
		n.Nodes = []*Node{}
		n.Source = st.source(st.start())
		st.current().Append(n)
		st.stack = append(st.stack, n)

	case css.EndAtRuleGrammar, css.EndRulesetGrammar:
		if len(st.stack) > 1 {
			st.stack = st.stack[:len(st.stack)-1]
		}

	case css.QualifiedRuleGrammar, css.BeginRulesetGrammar:
		var sb strings.Builder
		sb.Write(data)
		for _, v := range parser.Values() {
			sb.Write(v.Data)
		}
		n := NewRule(strings.TrimSpace(sb.String()))
		n.Source = st.source(st.start())
		st.current().Append(n)
		if gt == css.BeginRulesetGrammar {
			st.stack = append(st.stack, n)
		}

	case css.DeclarationGrammar:
		values := parser.Values()
		important := false
		if l := len(values); l >= 2 && values[l-2].TokenType == css.DelimToken && values[l-2].Data[0] == '!' &&
			strings.EqualFold(string(values[l-1].Data), "important") {
			important = true
			values = values[:l-2]
		}
		start := st.start()
		n := NewDecl(st.original(start, data), strings.TrimSpace(joinTokens(values)))
		n.Important = important
		n.Source = st.source(start)
		st.current().Append(n)

	case css.CustomPropertyGrammar:
		var value string
		if values := parser.Values(); len(values) > 0 {
			value = strings.TrimSpace(string(values[0].Data))
		}
		n := NewDecl(string(data), value)
		n.Source = st.source(st.start())
		st.current().Append(n)

	case css.TokenGrammar:
		// body of unknown at-rule or CDO/CDC at top level
		parent := st.current()
		if parent.Kind != KindAtRule {
			break
		}
		if l := len(parent.Nodes); l > 0 && parent.Nodes[l-1].Kind == KindRaw {
			parent.Nodes[l-1].Value += string(data)
			break
		}
		n := &Node{Kind: KindRaw, Value: string(data)}
		n.Source = st.source(end - len(data))
		parent.Append(n)
	}

	st.last = end
}

// original returns data as written in the input at offset, the grammar
// parser lowercases property names.
func (st *parseState) original(offset int, data []byte) string {
	if end := offset + len(data); end <= len(st.data) && bytes.EqualFold(st.data[offset:end], data) {
		return string(st.data[offset:end])
	}
	return string(data)
}

func joinTokens(tokens []css.Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.Write(t.Data)
	}
	return sb.String()
}
