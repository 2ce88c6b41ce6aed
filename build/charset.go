package build

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// @charset must be the very first thing in the file, exactly in this form.
var charsetRe = regexp.MustCompile(`^@charset "([^"]+)";`)

// ParseCharset returns encoding for character set name. Browsers resolve
// @charset through WHATWG encoding labels, IANA names are accepted as well.
func ParseCharset(name string) (encoding.Encoding, error) {
	enc, _, err := lookupCharset(name)
	return enc, err
}

// lookupCharset returns encoding with its canonical name.
func lookupCharset(name string) (encoding.Encoding, string, error) {
	if enc, canonical := charset.Lookup(name); enc != nil {
		return enc, canonical, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, "", err
	}
	if enc == nil {
		return nil, "", fmt.Errorf("character set %q is not supported", name)
	}
	canonical, _ := ianaindex.IANA.Name(enc)
	return enc, canonical, nil
}

// decodeSource converts stylesheet to UTF-8. Forced encoding wins, then byte
// order mark, then @charset rule. Rule naming non UTF-8 charset is removed
// since it no longer describes decoded text.
func decodeSource(data []byte, forced encoding.Encoding) (string, error) {
	var enc encoding.Encoding
	switch {
	case forced != nil:
		enc = forced
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}),
		bytes.HasPrefix(data, []byte{0xFE, 0xFF}),
		bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		enc = unicode.UTF8BOM
	default:
		m := charsetRe.FindSubmatch(data)
		if m == nil {
			return string(data), nil
		}
		var (
			canonical string
			err       error
		)
		if enc, canonical, err = lookupCharset(string(m[1])); err != nil {
			return "", fmt.Errorf("unable to decode stylesheet: %w", err)
		}
		if strings.EqualFold(canonical, "utf-8") {
			return string(data), nil
		}
		data = data[len(m[0]):]
	}

	// BOM always overrides, UTF-16 stylesheets are identified by it only
	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("unable to decode stylesheet: %w", err)
	}
	return string(out), nil
}
