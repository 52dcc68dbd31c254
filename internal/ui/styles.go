// Package ui renders mcpgate CLI output for terminals.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorError  = 203 // red
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color. Used for tool names.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderError returns s in red.
func RenderError(s string) string { return paint(colorError, s) }

// RenderState colors an upstream lifecycle state name: ready is green,
// transitional states amber, terminal states red.
func RenderState(state string) string {
	switch state {
	case "ready":
		return paint(colorOK, state)
	case "starting", "awaiting_ready", "shutting_down":
		return paint(colorWarn, state)
	default:
		return paint(colorError, state)
	}
}

// RenderStatus colors a gateway health status ("ok" or "degraded").
func RenderStatus(status string) string {
	if status == "ok" {
		return paint(colorOK, status)
	}
	return paint(colorError, status)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
