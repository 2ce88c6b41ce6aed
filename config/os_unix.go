//go:build !windows

package config

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// CleanFileName drops path separators and leading dots, so name could be
// used as a single element inside report archive.
func CleanFileName(in string) string {
	out := strings.Map(func(r rune) rune {
		if r == os.PathSeparator || r == os.PathListSeparator {
			return -1
		}
		return r
	}, in)
	if out = strings.TrimLeft(out, "."); len(out) == 0 {
		return "_bad_file_name_"
	}
	return out
}

// EnableColorOutput reports if stream is a terminal.
func EnableColorOutput(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
