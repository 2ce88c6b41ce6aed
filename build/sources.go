package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/maruel/natural"
)

// source is a stylesheet found on command line.
type source struct {
	// path is absolute file name, used as module id.
	path string
	// rel is output relative name derived from command line argument.
	rel string
}

// collectSources expands files and directories into list of supported
// stylesheets. Directories are walked recursively, symbolic links are not
// followed. Files named explicitly but not supported are returned
// separately.
func collectSources(ctx context.Context, args []string, supported func(string) bool) ([]source, []string, error) {
	var (
		out     []source
		skipped []string
		seen    = make(map[string]bool)
	)
	add := func(path, rel string) {
		if seen[path] {
			return
		}
		seen[path] = true
		out = append(out, source{path: path, rel: filepath.ToSlash(rel)})
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, nil, err
		}
		fi, err := os.Stat(abs)
		if err != nil {
			return nil, nil, fmt.Errorf("input source was not found (%s): %w", arg, err)
		}
		if fi.Mode().IsRegular() {
			if !supported(filepath.ToSlash(abs)) {
				skipped = append(skipped, abs)
				continue
			}
			add(abs, filepath.Base(abs))
			continue
		}
		if !fi.IsDir() {
			return nil, nil, fmt.Errorf("unexpected path mode for (%s)", arg)
		}

		var found []source
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if !d.Type().IsRegular() || !supported(filepath.ToSlash(path)) {
				return nil
			}
			rel, err := filepath.Rel(abs, path)
			if err != nil {
				return err
			}
			found = append(found, source{path: path, rel: rel})
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("unable to walk directory (%s): %w", arg, err)
		}
		// "a10.css" goes after "a9.css"
		sort.Slice(found, func(i, j int) bool { return natural.Less(found[i].path, found[j].path) })
		for _, s := range found {
			add(s.path, s.rel)
		}
	}
	return out, skipped, nil
}
