// Package minify compresses CSS with esbuild keeping source maps chained to
// the maps of previous stages.
package minify

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/multierr"

	"styles/sourcemap"
)

// Options select esbuild minification passes.
type Options struct {
	Whitespace  bool `yaml:"whitespace"`
	Syntax      bool `yaml:"syntax"`
	Identifiers bool `yaml:"identifiers"`
	// LegalComments is one of "inline", "eof" or "none".
	LegalComments string `yaml:"legal_comments" validate:"omitempty,oneof=inline eof none"`
	LineLimit     int    `yaml:"line_limit" validate:"gte=0"`
}

// Defaults returns options used when minification is requested without
// details.
func Defaults() Options {
	return Options{Whitespace: true, Syntax: true, LegalComments: "inline"}
}

// Input is a piece of CSS to minify. Map, when present, describes how Code
// was produced and is applied to the minifier map.
type Input struct {
	Code string
	// File names Code in produced map, "input.css" when empty.
	File      string
	Map       *sourcemap.Map
	SourceMap bool
}

// Result of minification. Map is nil unless requested.
type Result struct {
	Code     string
	Map      *sourcemap.Map
	Warnings []string
}

func legalComments(s string) api.LegalComments {
	switch strings.ToLower(s) {
	case "none":
		return api.LegalCommentsNone
	case "eof":
		return api.LegalCommentsEndOfFile
	}
	return api.LegalCommentsInline
}

func format(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

// CSS minifies in.Code.
func CSS(in Input, opts Options) (*Result, error) {
	file := in.File
	if len(file) == 0 {
		file = "input.css"
	}
	wantMap := in.SourceMap || in.Map != nil

	to := api.TransformOptions{
		Loader:            api.LoaderCSS,
		Sourcefile:        file,
		MinifyWhitespace:  opts.Whitespace,
		MinifySyntax:      opts.Syntax,
		MinifyIdentifiers: opts.Identifiers,
		LegalComments:     legalComments(opts.LegalComments),
		LineLimit:         opts.LineLimit,
		LogLevel:          api.LogLevelSilent,
	}
	if wantMap {
		to.Sourcemap = api.SourceMapExternal
		to.SourcesContent = api.SourcesContentInclude
	}

	result := api.Transform(in.Code, to)
	if len(result.Errors) > 0 {
		var err error
		for _, m := range result.Errors {
			err = multierr.Append(err, fmt.Errorf("minify: %s", format(m)))
		}
		return nil, err
	}

	out := &Result{Code: strings.TrimSuffix(string(result.Code), "\n")}
	for _, m := range result.Warnings {
		out.Warnings = append(out.Warnings, format(m))
	}
	if wantMap && len(result.Map) > 0 {
		m := sourcemap.Parse(string(result.Map))
		if m == nil {
			return nil, fmt.Errorf("minify: unable to parse source map for %s", file)
		}
		out.Map = sourcemap.Apply(m, in.Map, file)
	}
	return out, nil
}
