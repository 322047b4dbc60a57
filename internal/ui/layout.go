package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/theme"
)

// Layout splits the terminal into header, content and status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with one-line header and status bar.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the rows left for the content area. Never negative.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// SlotCounter renders "used/10 slots".
func SlotCounter(used int) string {
	return fmt.Sprintf("%d/%d slots", used, model.MaxSlots)
}

// RenderHeader renders the title on the left and the slot counter on the
// right, padded to the full width.
func (l Layout) RenderHeader(title string, used int) string {
	titleRendered := theme.HeaderStyle.Render(title)
	counter := theme.HeaderStyle.Render(SlotCounter(used))

	gap := max(l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(counter), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, filler, counter)
}

// RenderStatusBar renders hints left-aligned across the full width.
func (l Layout) RenderStatusBar(hints string) string {
	rendered := theme.StatusBarStyle.Render(hints)

	gap := max(l.Width-lipgloss.Width(rendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
