// Package ui holds the ANSI styling used by the command line.
package ui

import "os"

// ANSI color and style constants for CLI output
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorDim   = "\033[2m"

	ColorCyan   = "\033[36m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorWhite  = "\033[97m"
	ColorRed    = "\033[31m"
)

// Plain disables the helpers below. It follows the NO_COLOR convention.
var Plain = os.Getenv("NO_COLOR") != ""

func paint(style, s string) string {
	if Plain {
		return s
	}
	return style + s + ColorReset
}

func Bold(s string) string    { return paint(ColorBold, s) }
func Success(s string) string { return paint(ColorGreen, s) }
func Info(s string) string    { return paint(ColorDim+ColorYellow, s) }
func Warn(s string) string    { return paint(ColorYellow, s) }
func Error(s string) string   { return paint(ColorRed, s) }
