// Package tui renders a running batch as an interactive Bubble Tea view.
package tui

import "github.com/charmbracelet/lipgloss"

// Palette.
const (
	ColorHeader  = lipgloss.Color("39")
	ColorBorder  = lipgloss.Color("240")
	ColorOK      = lipgloss.Color("42")
	ColorWarning = lipgloss.Color("214")
	ColorError   = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("245")
)

// Slot icons.
const (
	IconPending   = "·"
	IconRunning   = "●"
	IconSucceeded = "✓"
	IconFailed    = "✗"
	IconCancelled = "⊘"
)

// Styles holds every lipgloss style the batch view uses.
type Styles struct {
	Title    lipgloss.Style
	Timer    lipgloss.Style
	Phase    lipgloss.Style
	Index    lipgloss.Style
	Muted    lipgloss.Style
	Running  lipgloss.Style
	Success  lipgloss.Style
	Failure  lipgloss.Style
	Warning  lipgloss.Style
	Summary  lipgloss.Style
	ErrorBox lipgloss.Style
}

// DefaultStyles returns the default palette.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorHeader),
		Timer:   lipgloss.NewStyle().Foreground(ColorMuted),
		Phase:   lipgloss.NewStyle().Foreground(ColorMuted).Italic(true),
		Index:   lipgloss.NewStyle().Bold(true).Width(4).Align(lipgloss.Right),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		Running: lipgloss.NewStyle().Foreground(ColorWarning),
		Success: lipgloss.NewStyle().Foreground(ColorOK),
		Failure: lipgloss.NewStyle().Foreground(ColorError),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
		Summary: lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1),
		ErrorBox: lipgloss.NewStyle().
			Foreground(ColorError).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(0, 1),
	}
}
