package modules

import (
	"context"
	"regexp"
	"strings"

	cssparse "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/postcss/icss"
)

// ScopeName is the name of the local name scoping plugin.
const ScopeName = "styles-modules-scope"

var (
	singleLocalRe = regexp.MustCompile(`^:local\(\.([\w-]+)\)$`)
	globalRe      = regexp.MustCompile(`^global\(([^)]+)\)$`)
)

type scoper struct {
	generate ScopedNameFunc
	file     string
	code     string
	exports  map[string][]string
	order    []string
}

func (s *scoper) add(name string, values ...string) {
	current, ok := s.exports[name]
	if !ok {
		s.order = append(s.order, name)
	}
	for _, v := range values {
		found := false
		for _, c := range current {
			found = found || c == v
		}
		if !found {
			current = append(current, v)
		}
	}
	s.exports[name] = current
}

func (s *scoper) scoped(name string) string {
	scoped := s.generate(name, s.file, s.code)
	s.add(name, scoped)
	return scoped
}

// Scope replaces ":local(...)" parts with generated names, resolves
// composition and exports local names with their scoped equivalents.
func Scope(generate ScopedNameFunc, log *zap.Logger) postcss.Plugin {
	if generate == nil {
		generate = ScopedNameGenerator("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("scope")

	return postcss.NewPlugin(ScopeName, func(_ context.Context, root *css.Node, res *postcss.Result) error {
		s := &scoper{generate: generate, file: res.Opts.From, exports: make(map[string][]string)}
		if root.Source != nil && root.Source.Input != nil {
			s.code = root.Source.Input.CSS
			if len(s.file) == 0 {
				s.file = root.Source.Input.ID
			}
		}

		imported := make(map[string]bool)
		imports, _ := icss.Extract(root, false)
		for _, imp := range imports {
			for _, a := range imp.Aliases {
				imported[a.Name] = true
			}
		}

		err := root.Walk(func(n *css.Node) error {
			switch n.Kind {
			case css.KindRule:
				if isICSS(n) {
					return nil
				}
				original := n.Selector
				n.Selector = s.selector(n.Selector)
				for _, decl := range append([]*css.Node(nil), n.Nodes...) {
					if decl.Kind != css.KindDecl || !isComposes(decl) {
						continue
					}
					if err := s.compose(original, decl, imported); err != nil {
						return err
					}
					decl.Remove()
				}

			case css.KindAtRule:
				if isKeyframes(n) {
					if m := singleLocalName(n.Params); len(m) > 0 {
						n.Params = s.scoped(m)
					}
				}

			case css.KindDecl:
				if name := strings.ToLower(n.Name); name == "animation" || name == "animation-name" {
					n.Value = s.value(n.Value)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		if len(s.order) == 0 {
			return nil
		}
		exports := make([]postcss.Export, 0, len(s.order))
		for _, name := range s.order {
			exports = append(exports, postcss.Export{Name: name, Value: strings.Join(s.exports[name], " ")})
		}
		root.Append(icss.CreateExports(exports))

		log.Debug("Scoped", zap.String("from", s.file), zap.Int("exports", len(exports)))
		return nil
	})
}

var localNameRe = regexp.MustCompile(`^:local\(\s*([\w-]+)\s*\)$`)

func singleLocalName(params string) string {
	if m := localNameRe.FindStringSubmatch(strings.TrimSpace(params)); m != nil {
		return m[1]
	}
	return ""
}

// selector replaces classes and ids inside ":local()" with scoped names.
func (s *scoper) selector(selector string) string {
	if !strings.Contains(selector, ":local(") {
		return selector
	}
	tokens := css.Tokenize(selector)
	var sb strings.Builder
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Type == cssparse.ColonToken && i+1 < len(tokens) &&
			tokens[i+1].Type == cssparse.FunctionToken && strings.EqualFold(tokens[i+1].Data, "local(") {
			end := closingParen(tokens, i+1)
			s.local(&sb, tokens[i+2:end])
			i = end
			continue
		}
		sb.WriteString(t.Data)
	}
	return sb.String()
}

func (s *scoper) local(sb *strings.Builder, tokens []css.Token) {
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch {
		case t.Type == cssparse.DelimToken && t.Data == "." && i+1 < len(tokens) && tokens[i+1].Type == cssparse.IdentToken:
			sb.WriteString("." + s.scoped(tokens[i+1].Data))
			i++
		case t.Type == cssparse.HashToken:
			sb.WriteString("#" + s.scoped(t.Data[1:]))
		default:
			sb.WriteString(t.Data)
		}
	}
}

// value replaces ":local(name)" in animation values.
func (s *scoper) value(value string) string {
	if !strings.Contains(value, ":local(") {
		return value
	}
	tokens := css.Tokenize(value)
	var sb strings.Builder
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.Type == cssparse.ColonToken && i+1 < len(tokens) &&
			tokens[i+1].Type == cssparse.FunctionToken && strings.EqualFold(tokens[i+1].Data, "local(") {
			end := closingParen(tokens, i+1)
			sb.WriteString(s.scoped(strings.TrimSpace(css.Join(tokens[i+2 : end]))))
			i = end
			continue
		}
		sb.WriteString(t.Data)
	}
	return sb.String()
}

func (s *scoper) compose(selector string, decl *css.Node, imported map[string]bool) error {
	var names []string
	for _, part := range strings.Split(selector, ",") {
		m := singleLocalRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nodeError(decl, "composition is only allowed when selector is single :local class name not in %q", selector)
		}
		names = append(names, m[1])
	}

	for _, class := range strings.Fields(decl.Value) {
		var values []string
		switch m := globalRe.FindStringSubmatch(class); {
		case m != nil:
			values = []string{m[1]}
		case imported[class]:
			values = []string{class}
		default:
			exported, ok := s.exports[class]
			if !ok {
				return nodeError(decl, "referenced class name %q in %s not found", class, decl.Name)
			}
			values = exported
		}
		for _, name := range names {
			s.add(name, values...)
		}
	}
	return nil
}
