package modules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"styles/css"
	"styles/postcss"
	"styles/postcss/icss"
)

// ValuesName is the name of the value aliasing plugin.
const ValuesName = "styles-modules-values"

var (
	valueImportsRe    = regexp.MustCompile(`^([\s\S]+?)\s+from\s+("[^"]*"|'[^']*'|[\w-]+)$`)
	valueImportRe     = regexp.MustCompile(`^([\w-]+)(?:\s+as\s+([\w-]+))?$`)
	valueDefinitionRe = regexp.MustCompile(`^([\w-]+)\s*:?\s*([\s\S]*?)$`)
)

// Values handles "@value" definitions and imports. Definitions are
// substituted and exported, imports become ":import" blocks.
func Values(log *zap.Logger) postcss.Plugin {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("values")

	return postcss.NewPlugin(ValuesName, func(_ context.Context, root *css.Node, res *postcss.Result) error {
		var (
			definitions = make(map[string]string)
			order       []string
			imports     []icss.Import
			counter     int
		)
		define := func(name, value string) {
			if _, ok := definitions[name]; !ok {
				order = append(order, name)
			}
			definitions[name] = value
		}

		err := root.WalkAtRules("value", func(rule *css.Node) error {
			params := strings.TrimSpace(rule.Params)

			if m := valueImportsRe.FindStringSubmatch(params); m != nil {
				from := m[2]
				if v, ok := definitions[from]; ok {
					from = v
				}
				from, _ = css.Unquote(from)

				list := strings.TrimSpace(m[1])
				list = strings.TrimSuffix(strings.TrimPrefix(list, "("), ")")
				imp := icss.Import{Path: from}
				for _, item := range strings.Split(list, ",") {
					im := valueImportRe.FindStringSubmatch(strings.TrimSpace(item))
					if im == nil {
						return nodeError(rule, "@value import %q is malformed", item)
					}
					local := im[1]
					if len(im[2]) > 0 {
						local = im[2]
					}
					alias := fmt.Sprintf("i__value_%s_%d", strings.ReplaceAll(im[1], "-", "_"), counter)
					counter++
					imp.Aliases = append(imp.Aliases, postcss.Export{Name: alias, Value: im[1]})
					define(local, alias)
				}
				imports = append(imports, imp)
				rule.Remove()
				return nil
			}

			m := valueDefinitionRe.FindStringSubmatch(params)
			if m == nil || len(strings.TrimSpace(m[2])) == 0 {
				res.Warn(ValuesName, fmt.Sprintf("Invalid value definition `%s`", rule), rule)
				return nil
			}
			define(m[1], icss.ReplaceValueSymbols(strings.TrimSpace(m[2]), definitions))
			rule.Remove()
			return nil
		})
		if err != nil {
			return err
		}
		if len(order) == 0 {
			return nil
		}

		log.Debug("Values", zap.String("from", res.Opts.From), zap.Int("definitions", len(order)), zap.Int("imports", len(imports)))

		icss.ReplaceSymbols(root, definitions)

		exports := make([]postcss.Export, 0, len(order))
		for _, name := range order {
			exports = append(exports, postcss.Export{Name: name, Value: definitions[name]})
		}
		root.Append(icss.CreateExports(exports))
		root.Prepend(icss.CreateImports(imports)...)
		return nil
	})
}
