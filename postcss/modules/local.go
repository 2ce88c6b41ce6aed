package modules

import (
	"context"
	"strings"

	cssparse "github.com/tdewolff/parse/v2/css"

	"styles/css"
	"styles/postcss"
)

// LocalByDefaultName is the name of the mode resolution plugin.
const LocalByDefaultName = "styles-modules-local-by-default"

var animationKeywords = map[string]bool{
	"none": true, "initial": true, "inherit": true, "unset": true, "revert": true, "revert-layer": true,
	"infinite": true, "linear": true, "ease": true, "ease-in": true, "ease-out": true, "ease-in-out": true,
	"step-start": true, "step-end": true, "normal": true, "reverse": true, "alternate": true,
	"alternate-reverse": true, "forwards": true, "backwards": true, "both": true, "running": true, "paused": true,
}

// LocalByDefault rewrites selectors, keyframes names and animation names so
// that every local part is wrapped into ":local(...)" and ":global" markers
// are removed.
func LocalByDefault(mode Mode) postcss.Plugin {
	local := mode != ModeGlobal

	return postcss.NewPlugin(LocalByDefaultName, func(_ context.Context, root *css.Node, _ *postcss.Result) error {
		return root.Walk(func(n *css.Node) error {
			switch n.Kind {
			case css.KindRule:
				if isICSS(n) || isKeyframes(n.Parent()) {
					return nil
				}
				sel, pure := localizeSelector(n.Selector, local)
				if mode == ModePure && !pure {
					return nodeError(n, "selector %q is not pure (pure selectors must contain at least one local class or id)", n.Selector)
				}
				n.Selector = sel

			case css.KindAtRule:
				if isKeyframes(n) {
					n.Params = localizeName(n.Params, local)
				}

			case css.KindDecl:
				switch strings.ToLower(n.Name) {
				case "animation-name":
					n.Value = localizeAnimation(n.Value, local, false)
				case "animation":
					n.Value = localizeAnimation(n.Value, local, true)
				}
			}
			return nil
		})
	})
}

type localizer struct {
	sb strings.Builder
	// every top level selector of the list so far has local part
	pure bool
	// current top level selector has local part
	hasLocal bool
}

// localizeSelector returns selector with local classes and ids wrapped into
// ":local()" and reports if every selector in the list has a local part.
func localizeSelector(selector string, local bool) (string, bool) {
	l := &localizer{pure: true}
	l.walk(css.Tokenize(selector), local, true)
	l.pure = l.pure && l.hasLocal
	return strings.TrimSpace(l.sb.String()), l.pure
}

func (l *localizer) endsWithSpace() bool {
	s := l.sb.String()
	return len(s) == 0 || strings.HasSuffix(s, " ") || strings.HasSuffix(s, ",") || strings.HasSuffix(s, "(")
}

func (l *localizer) walk(tokens []css.Token, local, top bool) {
	mode := local
	depth := 0
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Type {
		case cssparse.CommaToken:
			if top && depth == 0 {
				l.pure = l.pure && l.hasLocal
				l.hasLocal = false
				mode = local
			}
			l.sb.WriteString(t.Data)

		case cssparse.ColonToken:
			if i+1 >= len(tokens) {
				l.sb.WriteString(t.Data)
				continue
			}
			next := tokens[i+1]
			name := strings.ToLower(next.Data)
			switch {
			case next.Type == cssparse.FunctionToken && (name == "global(" || name == "local("):
				end := closingParen(tokens, i+1)
				l.walk(tokens[i+2:end], name == "local(", false)
				i = end
			case next.Type == cssparse.IdentToken && (name == "global" || name == "local"):
				mode = name == "local"
				i++
				if i+1 < len(tokens) && tokens[i+1].Type == cssparse.WhitespaceToken && l.endsWithSpace() {
					i++
				}
			default:
				l.sb.WriteString(t.Data)
			}

		case cssparse.DelimToken:
			if t.Data == "." && i+1 < len(tokens) && tokens[i+1].Type == cssparse.IdentToken {
				if mode {
					l.sb.WriteString(":local(." + tokens[i+1].Data + ")")
					l.hasLocal = true
				} else {
					l.sb.WriteString("." + tokens[i+1].Data)
				}
				i++
				continue
			}
			l.sb.WriteString(t.Data)

		case cssparse.HashToken:
			if mode {
				l.sb.WriteString(":local(" + t.Data + ")")
				l.hasLocal = true
			} else {
				l.sb.WriteString(t.Data)
			}

		case cssparse.FunctionToken, cssparse.LeftParenthesisToken:
			depth++
			l.sb.WriteString(t.Data)

		case cssparse.RightParenthesisToken:
			depth--
			l.sb.WriteString(t.Data)

		default:
			l.sb.WriteString(t.Data)
		}
	}
}

// closingParen returns index of parenthesis closing function at open or
// len(tokens).
func closingParen(tokens []css.Token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch tokens[i].Type {
		case cssparse.FunctionToken, cssparse.LeftParenthesisToken:
			depth++
		case cssparse.RightParenthesisToken:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens)
}

// localizeName handles single identifier such as keyframes name.
func localizeName(name string, local bool) string {
	name = strings.TrimSpace(name)
	switch {
	case strings.HasPrefix(name, ":global(") && strings.HasSuffix(name, ")"):
		return strings.TrimSpace(name[len(":global(") : len(name)-1])
	case strings.HasPrefix(name, ":local("):
		return name
	case local && len(name) > 0:
		return ":local(" + name + ")"
	}
	return name
}

// localizeAnimation wraps animation names into ":local()". For shorthand
// only the first non keyword identifier of every comma separated item is a
// name.
func localizeAnimation(value string, local, shorthand bool) string {
	tokens := css.Tokenize(value)
	var sb strings.Builder
	named := false
	depth := 0
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Type {
		case cssparse.CommaToken:
			if depth == 0 {
				named = false
			}
			sb.WriteString(t.Data)
		case cssparse.FunctionToken, cssparse.LeftParenthesisToken:
			depth++
			sb.WriteString(t.Data)
		case cssparse.RightParenthesisToken:
			depth--
			sb.WriteString(t.Data)
		case cssparse.ColonToken:
			if i+1 < len(tokens) && tokens[i+1].Type == cssparse.FunctionToken {
				fn := strings.ToLower(tokens[i+1].Data)
				if fn == "global(" || fn == "local(" {
					end := closingParen(tokens, i+1)
					inner := strings.TrimSpace(css.Join(tokens[i+2 : min(end, len(tokens))]))
					if fn == "global(" {
						sb.WriteString(inner)
					} else {
						sb.WriteString(":local(" + inner + ")")
					}
					named = true
					i = end
					continue
				}
			}
			sb.WriteString(t.Data)
		case cssparse.IdentToken:
			if local && depth == 0 && !named && !animationKeywords[strings.ToLower(t.Data)] {
				sb.WriteString(":local(" + t.Data + ")")
				named = shorthand
				continue
			}
			sb.WriteString(t.Data)
		default:
			sb.WriteString(t.Data)
		}
	}
	return sb.String()
}
