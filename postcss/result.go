package postcss

import (
	"fmt"

	"styles/css"
	"styles/sourcemap"
)

// MessageType distinguishes messages plugins leave on the result.
type MessageType string

const (
	MessageWarning    MessageType = "warning"
	MessageDependency MessageType = "dependency"
	MessageAsset      MessageType = "asset"
	MessageICSS       MessageType = "icss"
)

// Export is a single ICSS export, order of exports is preserved.
type Export struct {
	Name  string
	Value string
}

// Message is a side channel used by plugins to report warnings, discovered
// dependencies, assets to emit and ICSS exports.
type Message struct {
	Type   MessageType
	Plugin string
	// Text of the warning.
	Text string
	// File is dependency path or location of the warning.
	File   string
	Line   int
	Column int
	// Name is output path of the asset.
	Name string
	// Source is asset content.
	Source []byte
	// Exports of ICSS message.
	Exports []Export
}

// Warning is non fatal problem found while processing.
type Warning struct {
	Plugin string
	Text   string
	File   string
	Line   int
	Column int
}

func (w Warning) String() string {
	if len(w.File) == 0 {
		return fmt.Sprintf("%s: %s", w.Plugin, w.Text)
	}
	if w.Line == 0 {
		return fmt.Sprintf("%s: %s: %s", w.File, w.Plugin, w.Text)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", w.File, w.Line, w.Column, w.Plugin, w.Text)
}

// Result of processing single stylesheet.
type Result struct {
	// Processor which produced result, plugins use it to process nested
	// documents with the same configuration.
	Processor *Processor
	Opts      ProcessOptions
	Root      *css.Node
	CSS       string
	// Map is nil unless requested by options.
	Map      *sourcemap.Map
	Messages []Message
}

// Warn records warning pointing to node (may be nil).
func (r *Result) Warn(plugin, text string, node *css.Node) {
	msg := Message{Type: MessageWarning, Plugin: plugin, Text: text, File: r.Opts.From}
	if node != nil && node.Source != nil {
		if node.Source.Input != nil {
			msg.File = node.Source.Input.ID
		}
		msg.Line = node.Source.Start.Line
		msg.Column = node.Source.Start.Column
	}
	r.Messages = append(r.Messages, msg)
}

// AddDependency records file as dependency of the processed stylesheet.
func (r *Result) AddDependency(plugin, file string) {
	r.Messages = append(r.Messages, Message{Type: MessageDependency, Plugin: plugin, File: file})
}

// Warnings returns all recorded warnings in order.
func (r *Result) Warnings() []Warning {
	var out []Warning
	for _, m := range r.Messages {
		if m.Type == MessageWarning {
			out = append(out, Warning{Plugin: m.Plugin, Text: m.Text, File: m.File, Line: m.Line, Column: m.Column})
		}
	}
	return out
}

// Dependencies returns files recorded as dependencies, duplicates removed.
func (r *Result) Dependencies() []string {
	var (
		out  []string
		seen = make(map[string]bool)
	)
	for _, m := range r.Messages {
		if m.Type == MessageDependency && !seen[m.File] {
			seen[m.File] = true
			out = append(out, m.File)
		}
	}
	return out
}

// HasDependency reports if file was recorded as dependency.
func (r *Result) HasDependency(file string) bool {
	for _, m := range r.Messages {
		if m.Type == MessageDependency && m.File == file {
			return true
		}
	}
	return false
}
