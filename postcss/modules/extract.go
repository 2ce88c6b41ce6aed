package modules

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"styles/css"
	"styles/postcss"
	"styles/postcss/icss"
)

// ExtractImportsName is the name of the composition import extraction plugin.
const ExtractImportsName = "styles-modules-extract-imports"

var composesFromRe = regexp.MustCompile(`^([\s\S]+?)\s+from\s+(?:"([^"]*)"|'([^']*)'|(global))$`)

func isComposes(decl *css.Node) bool {
	name := strings.ToLower(decl.Name)
	return name == "composes" || name == "compose-with"
}

// ExtractImports turns "composes: a b from './file.css'" into ":import"
// blocks replacing class names with import aliases. Classes composed "from
// global" are marked with global().
func ExtractImports() postcss.Plugin {
	return postcss.NewPlugin(ExtractImportsName, func(_ context.Context, root *css.Node, _ *postcss.Result) error {
		var (
			imports []icss.Import
			byPath  = make(map[string]int)
			aliases = make(map[[2]string]string)
			counter int
		)

		err := root.WalkDecls("", func(decl *css.Node) error {
			if !isComposes(decl) {
				return nil
			}
			m := composesFromRe.FindStringSubmatch(strings.TrimSpace(decl.Value))
			if m == nil {
				return nil
			}
			classes := strings.Fields(m[1])

			if len(m[4]) > 0 {
				for i, c := range classes {
					classes[i] = "global(" + c + ")"
				}
				decl.Value = strings.Join(classes, " ")
				return nil
			}

			from := m[2] + m[3]
			if len(from) == 0 {
				return nodeError(decl, "empty path in `%s`", decl)
			}
			i, ok := byPath[from]
			if !ok {
				i = len(imports)
				byPath[from] = i
				imports = append(imports, icss.Import{Path: from})
			}
			for j, c := range classes {
				key := [2]string{from, c}
				alias, ok := aliases[key]
				if !ok {
					alias = fmt.Sprintf("i__imported_%s_%d", strings.ReplaceAll(c, "-", "_"), counter)
					counter++
					aliases[key] = alias
					imports[i].Aliases = append(imports[i].Aliases, postcss.Export{Name: alias, Value: c})
				}
				classes[j] = alias
			}
			decl.Value = strings.Join(classes, " ")
			return nil
		})
		if err != nil {
			return err
		}
		if len(imports) > 0 {
			root.Prepend(icss.CreateImports(imports)...)
		}
		return nil
	})
}
