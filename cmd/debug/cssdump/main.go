package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"styles/css"
	"styles/sourcemap"
	"styles/utils/debug"
)

func main() {
	if len(os.Args) != 2 {
		_, _ = fmt.Fprintf(os.Stderr, "usage: cssdump <file.css|file.map>\n")
		os.Exit(2)
	}

	path, err := filepath.Abs(os.Args[1])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}

	if strings.HasSuffix(path, ".map") {
		if err := dumpMap(string(b)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		return
	}

	root, errs := css.NewParser(nil).Parse(&css.Input{ID: filepath.ToSlash(path), CSS: string(b)})
	for _, e := range errs {
		_, _ = fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", path, e.Pos.Line, e.Pos.Column, e.Message)
	}
	fmt.Print(css.Dump(root))

	data, err := sourcemap.Load(string(b), path)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
		os.Exit(1)
	}
	if len(data) > 0 {
		fmt.Println()
		if err := dumpMap(data); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
	}
}

func dumpMap(data string) error {
	m := sourcemap.Parse(data)
	if m == nil {
		return errors.New("not a source map")
	}
	mappings, err := m.DecodedMappings()
	if err != nil {
		return err
	}

	tw := debug.NewTreeWriter()
	tw.Entry(0, "SourceMap", "file", m.File, "root", m.SourceRoot)
	for i, s := range m.Sources {
		tw.Entry(1, "Source", "name", s)
		if i < len(m.SourcesContent) {
			tw.TextBlock(2, "content", m.SourcesContent[i])
		}
	}
	for _, mp := range mappings {
		if len(mp.Source) == 0 {
			tw.Line(1, "%d:%d", mp.GeneratedLine, mp.GeneratedColumn)
			continue
		}
		tw.Line(1, "%d:%d -> %s:%d:%d %s", mp.GeneratedLine, mp.GeneratedColumn, mp.Source, mp.OriginalLine, mp.OriginalColumn, mp.Name)
	}
	fmt.Print(tw.String())
	return nil
}
