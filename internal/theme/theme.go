// Package theme holds the lipgloss palette shared by the board and the
// tasks command.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/smstask/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// PanelStyle wraps the task table and the new-task prompt.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

var ErrorStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

var NoticeStyle = lipgloss.NewStyle().
	Foreground(ColorGreen)

var IDStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorBlue).
	Width(4).
	Align(lipgloss.Right)

// StatusStyle returns a color-coded style for a task status.
func StatusStyle(status string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch status {
	case model.StatusPending:
		return base.Foreground(ColorYellow)
	case model.StatusDone:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// SlotsStyle colors the used/total slot counter: red once every slot is
// taken, yellow when one is left.
func SlotsStyle(used int) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch free := model.MaxSlots - used; {
	case free <= 0:
		return base.Foreground(ColorRed)
	case free == 1:
		return base.Foreground(ColorYellow)
	default:
		return base.Foreground(ColorGreen)
	}
}
