package ui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessColor = lipgloss.Color("#10B981") // Green
	WarningColor = lipgloss.Color("#F59E0B") // Amber
	ErrorColor   = lipgloss.Color("#F87171") // Red
	MutedColor   = lipgloss.Color("#9CA3AF") // Gray
	PrimaryColor = lipgloss.Color("#A78BFA") // Purple
)

// Styles holds the styles for one output stream. Color is dropped
// automatically when the stream is not a terminal.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns styles bound to the color profile of out.
func NewStyles(out io.Writer) Styles {
	r := lipgloss.NewRenderer(out)
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(PrimaryColor),
		Success: r.NewStyle().Foreground(SuccessColor),
		Warning: r.NewStyle().Foreground(WarningColor).Bold(true),
		Error:   r.NewStyle().Foreground(ErrorColor).Bold(true),
		Muted:   r.NewStyle().Foreground(MutedColor),
	}
}
