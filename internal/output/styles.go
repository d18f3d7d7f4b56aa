package output

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Styles holds all lipgloss styles for text output
var Styles = struct {
	Header  lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Danger  lipgloss.Style
	Muted   lipgloss.Style
}{
	Header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
	Label:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	Value:   lipgloss.NewStyle().Bold(true),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),  // Green
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true), // Orange
	Danger:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true), // Red
	Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),            // Gray
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Painter applies styles only when color is enabled.
type Painter struct {
	Color bool
}

// NewPainter enables color when w is a terminal.
func NewPainter(w io.Writer) Painter {
	return Painter{Color: IsTerminal(w)}
}

// Render styles s, or returns it untouched when color is off.
func (p Painter) Render(style lipgloss.Style, s string) string {
	if !p.Color {
		return s
	}
	return style.Render(s)
}

// State colors a device state: green when up, gray when down, orange otherwise.
func (p Painter) State(state string, up bool) string {
	switch {
	case up:
		return p.Render(Styles.Success, state)
	case state == "Shutdown" || state == "offline":
		return p.Render(Styles.Muted, state)
	default:
		return p.Render(Styles.Warning, state)
	}
}

// Outcome renders a wait result word.
func (p Painter) Outcome(found bool) string {
	if found {
		return p.Render(Styles.Success, "found")
	}
	return p.Render(Styles.Danger, "timed out")
}
