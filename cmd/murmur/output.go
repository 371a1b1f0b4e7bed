package main

import (
	"fmt"
	"os"
)

// ANSI helpers for command feedback. Everything lands on stderr so piped
// stdout stays machine-readable.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}
