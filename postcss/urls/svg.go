package urls

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
)

// compactSVG removes comments, processing instructions, directives and
// indentation from svg document.
func compactSVG(data []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	if root := doc.Root(); root == nil || root.Tag != "svg" {
		return nil, errors.New("not an svg document")
	}
	stripMarkup(&doc.Element)
	doc.Indent(etree.NoIndent)
	return doc.WriteToBytes()
}

func stripMarkup(el *etree.Element) {
	for i := len(el.Child) - 1; i >= 0; i-- {
		switch t := el.Child[i].(type) {
		case *etree.Comment, *etree.ProcInst, *etree.Directive:
			el.RemoveChildAt(i)
		case *etree.Element:
			stripMarkup(t)
		}
	}
}

// characters left as is in svg data uri, everything else is percent encoded
// so uri is valid in quoted and unquoted url()
const svgSafe = "-._~!$&*+,/:;=?@"

func svgDataURI(data []byte) string {
	var b strings.Builder
	b.WriteString("data:image/svg+xml,")
	for _, c := range data {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', strings.IndexByte(svgSafe, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
