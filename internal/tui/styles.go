package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lox/roulette/internal/wheel"
)

// Static styles for content elements
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true)

	LogStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	RedPocketStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#C0392B")).
			Bold(true)

	BlackPocketStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#1C1C1C")).
				Bold(true)

	GreenPocketStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#1E8449")).
				Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// PocketStyle returns the felt color style for p.
func PocketStyle(p wheel.Pocket) lipgloss.Style {
	switch p.Color() {
	case wheel.ColorRed:
		return RedPocketStyle
	case wheel.ColorBlack:
		return BlackPocketStyle
	default:
		return GreenPocketStyle
	}
}

// RenderPocket draws a pocket number on its felt color.
func RenderPocket(p wheel.Pocket) string {
	return PocketStyle(p).Render(" " + p.String() + " ")
}
