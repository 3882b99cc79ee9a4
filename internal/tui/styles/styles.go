// Package styles defines shared lipgloss styles for the watch UI.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pablasso/missionctl/internal/control"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage for success
	warnColor      = lipgloss.Color("#D7AF5F") // Amber for paused
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta for errors

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SubtleStyle for hints and labels
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// SelectedStyle for the spinner and the current action
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// StatusBarStyle for the bottom key help
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// BoxStyle for the event log panel
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(secondaryColor).
			Padding(0, 1)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarnStyle for paused and cancelled states
	WarnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

// StateStyle returns the badge style for a planning state.
func StateStyle(s control.State) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch s {
	case control.Planning:
		return base.Foreground(primaryColor)
	case control.Dispatching:
		return base.Foreground(successColor)
	case control.Paused:
		return base.Foreground(warnColor)
	default:
		return base.Foreground(secondaryColor)
	}
}
