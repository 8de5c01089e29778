package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("#7D56F4")
	colorGood    = lipgloss.Color("#04B575")
	colorError   = lipgloss.Color("#FF5F87")
	colorWarning = lipgloss.Color("#FFAF00")
	colorSubtle  = lipgloss.Color("#767676")
	colorBorder  = lipgloss.Color("#3C3C3C")
)

var (
	styleTitle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Padding(0, 1)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Margin(0, 1)

	styleActive = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleGood   = lipgloss.NewStyle().Foreground(colorGood).Bold(true)
	styleWarn   = lipgloss.NewStyle().Foreground(colorWarning)
	styleError  = lipgloss.NewStyle().Foreground(colorError)
	styleSubtle = lipgloss.NewStyle().Foreground(colorSubtle)
)
