// Package color provides terminal styling helpers for hostprep output.
// Every helper returns its input unchanged until Init enables colour, so
// callers need not guard their output.
package color

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Enabled is true when ANSI colour output is supported on the terminal
// passed to Init. It is set once at startup and not changed afterwards.
var Enabled bool

var renderer = lipgloss.NewRenderer(io.Discard)

// Init detects whether f is a colour-capable terminal and sets Enabled.
// Colour is suppressed when:
//   - disable is true (--no-color)
//   - NO_COLOR env var is set (https://no-color.org)
//   - TERM=dumb
//   - f is not a terminal (piped, redirected, a log file, etc.)
func Init(f *os.File, disable bool) {
	Enabled = false
	renderer = lipgloss.NewRenderer(f)
	renderer.SetColorProfile(termenv.Ascii)
	if disable || os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return
	}
	if !term.IsTerminal(int(f.Fd())) {
		return
	}
	enable(f)
}

// enable forces 16-colour ANSI output to w regardless of detection.
func enable(w io.Writer) {
	renderer = lipgloss.NewRenderer(w)
	renderer.SetColorProfile(termenv.ANSI)
	Enabled = true
}

func style(s string, fg string, bold, faint bool) string {
	if !Enabled || s == "" {
		return s
	}
	st := renderer.NewStyle().Bold(bold).Faint(faint)
	if fg != "" {
		st = st.Foreground(lipgloss.Color(fg))
	}
	return st.Render(s)
}

func Bold(s string) string      { return style(s, "", true, false) }
func Dim(s string) string       { return style(s, "", false, true) }
func Red(s string) string       { return style(s, "1", false, false) }
func Green(s string) string     { return style(s, "2", false, false) }
func Yellow(s string) string    { return style(s, "3", false, false) }
func BoldRed(s string) string   { return style(s, "1", true, false) }
func BoldGreen(s string) string { return style(s, "2", true, false) }
