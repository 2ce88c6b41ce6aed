package css

import (
	"strconv"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

// Token is a lexical token of a property value or at-rule parameters.
type Token struct {
	Type css.TokenType
	Data string
}

// Tokenize splits value into tokens, whitespace and comments are kept so
// that Join reproduces the input.
func Tokenize(value string) []Token {
	l := css.NewLexer(parse.NewInputString(value))
	var out []Token
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		out = append(out, Token{Type: tt, Data: string(data)})
	}
	return out
}

// Join concatenates tokens data.
func Join(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Data)
	}
	return sb.String()
}

// URLRef is a reference to external resource found in a value.
type URLRef struct {
	// Index of the token holding the reference.
	Index int
	// URL is unquoted and unescaped reference.
	URL string
	// Quote used in the source, 0 for unquoted url().
	Quote byte
	// Func is set for url() tokens, otherwise reference is a plain string
	// argument of image-set().
	Func bool
}

// FindURLs returns all url() references and string arguments of image-set()
// functions in document order.
func FindURLs(tokens []Token) []URLRef {
	var (
		refs  []URLRef
		depth int
		// depth at which image-set was opened, 0 when outside
		imageSet int
	)
	for i, t := range tokens {
		switch t.Type {
		case css.URLToken:
			u, q := urlTokenValue(t.Data)
			refs = append(refs, URLRef{Index: i, URL: u, Quote: q, Func: true})
		case css.FunctionToken:
			depth++
			name := strings.ToLower(strings.TrimSuffix(t.Data, "("))
			if imageSet == 0 && (name == "image-set" || strings.HasSuffix(name, "-image-set")) {
				imageSet = depth
			}
		case css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth == imageSet {
				imageSet = 0
			}
			depth = max(0, depth-1)
		case css.StringToken:
			if imageSet > 0 && depth == imageSet {
				u, q := Unquote(t.Data)
				refs = append(refs, URLRef{Index: i, URL: u, Quote: q})
			}
		}
	}
	return refs
}

// URLFunc returns argument of url() token and its quote.
func URLFunc(data string) (string, byte) {
	return urlTokenValue(data)
}

func urlTokenValue(data string) (string, byte) {
	inner := data
	if len(inner) >= 4 && strings.EqualFold(inner[:4], "url(") {
		inner = inner[4:]
	}
	inner = strings.TrimSpace(strings.TrimSuffix(inner, ")"))
	if len(inner) > 0 && (inner[0] == '"' || inner[0] == '\'') {
		return Unquote(inner)
	}
	return unescape(inner), 0
}

// FormatURL renders token replacing ref with new url keeping original style.
func FormatURL(ref URLRef, u string) string {
	q := ref.Quote
	if !ref.Func {
		if q == 0 {
			q = '"'
		}
		return Quote(u, q)
	}
	if q == 0 && strings.ContainsAny(u, " \t\n\"'()\\") {
		q = '"'
	}
	if q == 0 {
		return "url(" + u + ")"
	}
	return "url(" + Quote(u, q) + ")"
}

// Unquote removes quotes and escapes from CSS string token, returning used
// quote character or 0 if s was not quoted.
func Unquote(s string) (string, byte) {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return unescape(s[1 : len(s)-1]), s[0]
	}
	if len(s) >= 1 && (s[0] == '"' || s[0] == '\'') {
		// unterminated string at the end of input
		return unescape(s[1:]), s[0]
	}
	return s, 0
}

// Quote produces CSS string using q as quote character.
func Quote(s string, q byte) string {
	var sb strings.Builder
	sb.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\a `)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte(q)
	return sb.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch {
		case s[i] == '\n':
			// line continuation
		case isHex(s[i]):
			j := i
			for j < len(s) && j-i < 6 && isHex(s[j]) {
				j++
			}
			code, _ := strconv.ParseUint(s[i:j], 16, 32)
			if code == 0 || code > 0x10FFFF {
				code = 0xFFFD
			}
			sb.WriteRune(rune(code))
			if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			}
			i = j - 1
		default:
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}
