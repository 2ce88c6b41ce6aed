package sourcemap

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tdewolff/parse/v2"
)

var (
	commentBlockRe = regexp.MustCompile(`(?:\n|\r\n)?/\*[#*@]+\s*sourceMappingURL\s*=\s*(\S+)\s*\*+/`)
	commentLineRe  = regexp.MustCompile(`(?m)(?:\n|\r\n)?//[#@]+\s*sourceMappingURL\s*=\s*(\S+)\s*?$`)
)

// FindComment returns value of the sourceMappingURL comment in code.
func FindComment(code string) (string, bool) {
	if m := commentBlockRe.FindStringSubmatch(code); m != nil {
		return m[1], true
	}
	if m := commentLineRe.FindStringSubmatch(code); m != nil {
		return m[1], true
	}
	return "", false
}

// StripComment removes all sourceMappingURL comments from code.
func StripComment(code string) string {
	code = commentBlockRe.ReplaceAllString(code, "")
	return commentLineRe.ReplaceAllString(code, "")
}

// Load returns map referenced by sourceMappingURL comment in code. Inline
// data uris are decoded, other references are read relative to the directory
// of id. Absent comment or unreadable map file are not errors, empty string
// is returned.
func Load(code, id string) (string, error) {
	ref, ok := FindComment(code)
	if !ok {
		return "", nil
	}
	if len(ref) > 5 && ref[:5] == "data:" {
		_, data, err := parse.DataURI([]byte(ref))
		if err != nil {
			return "", fmt.Errorf("unable to decode inline source map: %w", err)
		}
		return string(data), nil
	}
	if len(id) == 0 {
		return "", fmt.Errorf("external source map %q detected, but no file id is provided", ref)
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(id), filepath.FromSlash(ref)))
	if err != nil {
		return "", nil
	}
	return string(data), nil
}
