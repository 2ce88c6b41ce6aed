// Package modules implements CSS Modules scoping as a sequence of tree
// plugins: value aliasing, local/global mode resolution, composition import
// extraction and local name scoping. Results are expressed as ICSS blocks
// consumed by the icss plugin.
package modules

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/utils/naming"
)

// Mode is the default scope of class names and ids in selectors.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	// ModePure is ModeLocal requiring every selector to have a local part.
	ModePure Mode = "pure"
)

// DefaultScopedName is the template used for generated class names.
const DefaultScopedName = "[name]_[local]__[hash:8]"

// ScopedNameFunc produces scoped name for local name found in file with the
// given content.
type ScopedNameFunc func(local, file, css string) string

// Options of the scoping plugins.
type Options struct {
	Mode Mode
	// ScopedName is a placeholder template, DefaultScopedName when empty.
	ScopedName string
	// Generate replaces template based name generation.
	Generate ScopedNameFunc
	Log      *zap.Logger
}

// ParseMode validates mode name, empty string means ModeLocal.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeLocal, nil
	case ModeLocal, ModeGlobal, ModePure:
		return m, nil
	}
	return "", fmt.Errorf("unknown modules mode %q", s)
}

// Plugins returns scoping plugins in the order they must run.
func Plugins(opts Options) []postcss.Plugin {
	if len(opts.Mode) == 0 {
		opts.Mode = ModeLocal
	}
	if opts.Generate == nil {
		opts.Generate = ScopedNameGenerator(opts.ScopedName)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	log := opts.Log.Named("modules")
	return []postcss.Plugin{
		Values(log),
		LocalByDefault(opts.Mode),
		ExtractImports(),
		Scope(opts.Generate, log),
	}
}

var illegalRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ScopedNameGenerator creates ScopedNameFunc expanding template. [name] is
// the slugified file name without ".module" suffix, hash is calculated over
// file base name and content.
func ScopedNameGenerator(template string) ScopedNameFunc {
	if len(template) == 0 {
		template = DefaultScopedName
	}
	return func(local, file, code string) string {
		base := path.Base(file)
		name := strings.TrimSuffix(strings.TrimSuffix(base, path.Ext(base)), ".module")
		out := naming.Interpolate(template, naming.Values{
			File:  file,
			Name:  slug.Make(name),
			Local: local,
			Hash:  naming.HashString(base + ":" + code),
		})
		return legalIdentifier(out)
	}
}

func legalIdentifier(s string) string {
	s = illegalRe.ReplaceAllString(s, "_")
	if len(s) == 0 || (s[0] >= '0' && s[0] <= '9') || (s[0] == '-' && len(s) > 1 && s[1] >= '0' && s[1] <= '9') {
		s = "_" + s
	}
	return s
}

func isKeyframes(n *css.Node) bool {
	return n != nil && n.Kind == css.KindAtRule && strings.HasSuffix(strings.ToLower(n.Name), "keyframes")
}

func isICSS(rule *css.Node) bool {
	return rule.Selector == ":export" || strings.HasPrefix(rule.Selector, ":import(")
}

// nodeError formats error pointing to node position.
func nodeError(n *css.Node, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if n != nil && n.Source != nil && n.Source.Input != nil {
		return fmt.Errorf("%s:%d:%d: %s", n.Source.Input.ID, n.Source.Start.Line, n.Source.Start.Column, msg)
	}
	return errors.New(msg)
}
