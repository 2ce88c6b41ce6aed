package config

import (
	"fmt"
	"strings"
)

// Specification of what happens with processed stylesheets.
// ENUM(inject, extract, emit)
type Mode int

const (
	ModeInject Mode = iota
	ModeExtract
	ModeEmit
)

var modeNames = []string{"inject", "extract", "emit"}

// ModeNames returns list of possible string values of Mode.
func ModeNames() []string {
	return append([]string(nil), modeNames...)
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", m)
}

// ParseMode attempts to convert string to Mode.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if strings.EqualFold(n, name) {
			return Mode(i), nil
		}
	}
	return Mode(0), fmt.Errorf("%s is not a valid Mode, try [%s]", name, strings.Join(modeNames, ", "))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Specification of source map generation.
// ENUM(none, inline, file)
type SourceMapMode int

const (
	SourceMapModeNone SourceMapMode = iota
	SourceMapModeInline
	SourceMapModeFile
)

var sourceMapModeNames = []string{"none", "inline", "file"}

// SourceMapModeNames returns list of possible string values of SourceMapMode.
func SourceMapModeNames() []string {
	return append([]string(nil), sourceMapModeNames...)
}

func (m SourceMapMode) String() string {
	if m >= 0 && int(m) < len(sourceMapModeNames) {
		return sourceMapModeNames[m]
	}
	return fmt.Sprintf("SourceMapMode(%d)", m)
}

// ParseSourceMapMode attempts to convert string to SourceMapMode.
func ParseSourceMapMode(name string) (SourceMapMode, error) {
	for i, n := range sourceMapModeNames {
		if strings.EqualFold(n, name) {
			return SourceMapMode(i), nil
		}
	}
	return SourceMapMode(0), fmt.Errorf("%s is not a valid SourceMapMode, try [%s]", name, strings.Join(sourceMapModeNames, ", "))
}

func (m SourceMapMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *SourceMapMode) UnmarshalText(text []byte) error {
	v, err := ParseSourceMapMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
