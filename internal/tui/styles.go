package tui

import "github.com/charmbracelet/lipgloss"

var (
	gold  = lipgloss.Color("#f5c26b")
	cream = lipgloss.Color("#ffe3a3")
	dim   = lipgloss.Color("241")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(cream)
	captionStyle = lipgloss.NewStyle().Foreground(cream).Italic(true)
	dateStyle    = lipgloss.NewStyle().Foreground(gold)
	dimStyle     = lipgloss.NewStyle().Foreground(dim)
	onStyle      = lipgloss.NewStyle().Foreground(gold).Bold(true)
	dotDone      = lipgloss.NewStyle().Foreground(gold)
	dotCurrent   = lipgloss.NewStyle().Foreground(cream).Bold(true)
	dotAhead     = lipgloss.NewStyle().Foreground(dim)

	boxStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(gold).
		Padding(0, 2)
)
