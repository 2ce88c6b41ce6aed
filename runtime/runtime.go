// Package runtime carries browser helper inserting stylesheets into the
// document.
package runtime

import (
	_ "embed"
)

// ID is module specifier generated code imports the helper by.
const ID = "styles-runtime/inject.js"

// FileName is used when helper is written next to generated modules.
const FileName = "styles-inject.js"

//go:embed inject.js
var source string

// Source returns helper code, an ES module with default export
// inject(css, options).
func Source() string {
	return source
}
