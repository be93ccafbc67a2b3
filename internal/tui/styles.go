package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the chat shell.
type Styles struct {
	Header    lipgloss.Style
	Subtle    lipgloss.Style
	User      lipgloss.Style
	Error     lipgloss.Style
	Spinner   lipgloss.Style
	Pane      lipgloss.Style
	PaneTitle lipgloss.Style
	Help      lipgloss.Style
}

// DefaultStyles returns the styles used by New.
func DefaultStyles() Styles {
	accent := lipgloss.Color("69")
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1),
		Subtle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Spinner:   lipgloss.NewStyle().Foreground(accent),
		Pane:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1),
		PaneTitle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Help:      lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1),
	}
}
