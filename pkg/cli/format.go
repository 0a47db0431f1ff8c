// Package cli provides colour and layout helpers for the fsconf CLI.
package cli

import (
	"os"
	"strings"
)

// colorEnabled is false when NO_COLOR is set (per no-color.org).
var colorEnabled = os.Getenv("NO_COLOR") == ""

const reset = "\033[0m"

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + reset
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("\033[32m", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("\033[33m", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("\033[31m", s) }

// Cyan wraps s in ANSI cyan.
func Cyan(s string) string { return paint("\033[36m", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("\033[1m", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("\033[2m", s) }

// Status colours a reconciliation or compliance status word.
func Status(s string) string {
	switch s {
	case "converged", "compliant", "ok":
		return Green(s)
	case "partial", "non-compliant", "dry-run":
		return Yellow(s)
	case "failed", "error":
		return Red(s)
	case "noop":
		return Dim(s)
	}
	return s
}

// DiffLine colours one line of unified diff output.
func DiffLine(line string) string {
	switch {
	case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		return Bold(line)
	case strings.HasPrefix(line, "@@"):
		return Cyan(line)
	case strings.HasPrefix(line, "+"):
		return Green(line)
	case strings.HasPrefix(line, "-"):
		return Red(line)
	}
	return line
}

// DotPad pads name with dots to the given width.
// Example: DotPad("interfaces", 20) → "interfaces ........."
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
