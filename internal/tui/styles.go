// Package tui provides a live terminal dashboard for stream health.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It shows one row per stream: health state, reason, window
// stats, and any active incident.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-hls-streamwatch/internal/model"
)

// Colors based on a modern dark theme
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorGreen  = lipgloss.Color("#10B981")
	colorYellow = lipgloss.Color("#F59E0B")
	colorRed    = lipgloss.Color("#EF4444")

	colorText      = lipgloss.Color("#E5E7EB")
	colorTextMuted = lipgloss.Color("#9CA3AF")
	colorBorder    = lipgloss.Color("#374151")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	subHeaderStyle = lipgloss.NewStyle().
			Foreground(colorSecondary)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	cellStyle = lipgloss.NewStyle().
			Foreground(colorText)

	tableStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	greenBadge = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	yellowBadge = lipgloss.NewStyle().
			Foreground(colorYellow).
			Bold(true)

	redBadge = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)
)

// stateBadge renders a colored health state label.
func stateBadge(state model.HealthState) string {
	switch state {
	case model.HealthRed:
		return redBadge.Render("RED")
	case model.HealthYellow:
		return yellowBadge.Render("YELLOW")
	case model.HealthGreen:
		return greenBadge.Render("GREEN")
	default:
		return mutedStyle.Render("n/a")
	}
}
