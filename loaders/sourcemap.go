package loaders

import (
	"context"
	"path"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"styles/sourcemap"
	"styles/utils/paths"
)

// decodeText converts text starting with UTF-16 or UTF-8 byte order mark
// to UTF-8 without the mark. Text without the mark is returned as is.
func decodeText(code string) string {
	if len(code) < 2 {
		return code
	}
	switch {
	case len(code) >= 3 && code[:3] == "\xef\xbb\xbf":
	case code[:2] == "\xfe\xff", code[:2] == "\xff\xfe":
	default:
		return code
	}
	out, _, err := transform.String(unicode.BOMOverride(transform.Nop), code)
	if err != nil {
		return code
	}
	return out
}

// sourceMapLoader picks up map referenced by sourceMappingURL comment and
// removes the comment. It always runs first.
func sourceMapLoader() *Loader {
	return &Loader{
		Name:          SourceMap,
		AlwaysProcess: true,
		Process: func(_ context.Context, lc *Context, p Payload) (Payload, error) {
			p.Code = decodeText(p.Code)

			data, err := sourcemap.Load(p.Code, lc.ID)
			if err != nil {
				lc.Log.Debug("Ignoring source map", zap.String("id", lc.ID), zap.Error(err))
				lc.Warn(Warning{Plugin: SourceMap, Text: err.Error(), File: lc.ID})
			}
			if len(data) > 0 {
				if m := sourcemap.NewModifier(data).Resolve(path.Dir(paths.Normalize(lc.ID))).String(); len(m) > 0 {
					p.Map = m
				}
			}
			p.Code = sourcemap.StripComment(p.Code)
			return p, nil
		},
	}
}
