// Package output handles formatting CLI output as table, JSON, or compact.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// EnvOutput selects the default format when no flag is given.
const EnvOutput = "TASKBOARD_OUTPUT"

// Format represents an output format.
type Format int

const (
	// FormatAuto uses the default format (table).
	FormatAuto Format = iota
	// FormatJSON outputs JSON.
	FormatJSON
	// FormatTable outputs a human-readable table.
	FormatTable
	// FormatCompact outputs one-line-per-record compact format.
	FormatCompact
)

// Detect returns the appropriate format based on flags and environment.
// Default is table when no explicit format is set.
func Detect(jsonFlag, tableFlag, compactFlag bool) Format {
	if jsonFlag {
		return FormatJSON
	}
	if compactFlag {
		return FormatCompact
	}
	if tableFlag {
		return FormatTable
	}

	switch os.Getenv(EnvOutput) {
	case "json":
		return FormatJSON
	case "compact", "oneline":
		return FormatCompact
	case "table":
		return FormatTable
	}
	return FormatTable
}

// SetupColor picks the color profile for stdout. Color is off when noColor
// is set, NO_COLOR is present, or stdout is not a terminal.
func SetupColor(noColor bool) {
	out := termenv.NewOutput(os.Stdout)
	if noColor || termenv.EnvNoColor() || out.Profile == termenv.Ascii {
		DisableColor()
		return
	}
	lipgloss.SetColorProfile(out.Profile)
}
