// Package ui renders the widget in a terminal. It is the CLI's
// implementation of the widget Renderer.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Semantic colors
	accent  = lipgloss.Color("#8BC34A") // lime green
	danger  = lipgloss.Color("#e53935")
	warning = lipgloss.Color("#FFC107")
	info    = lipgloss.Color("#2196F3")
	muted   = lipgloss.Color("#6b7280")

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f2f2f2"))

	errorStyle = lipgloss.NewStyle().
			Foreground(danger)

	warnStyle = lipgloss.NewStyle().
			Foreground(warning)

	infoStyle = lipgloss.NewStyle().
			Foreground(info)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#101F38")).
			Background(accent).
			Padding(0, 1)

	sourceStyle = lipgloss.NewStyle().
			Foreground(muted).
			Italic(true)

	toastStyle = lipgloss.NewStyle().
			Foreground(accent).
			Italic(true)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)
