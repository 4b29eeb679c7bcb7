package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nerdx/nerdx-notify/internal/theme"
)

// Layout manages the terminal frame: header, content and status bar.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the title bar. badge is rendered right after the
// title and may be empty; status is right-aligned.
func (l Layout) RenderHeader(title, badge, status string) string {
	left := theme.HeaderStyle.Render(title)
	if badge != "" {
		left = lipgloss.JoinHorizontal(lipgloss.Top, left, theme.UnreadBadgeStyle.Render(badge))
	}
	right := theme.HeaderStyle.Render(status)

	return lipgloss.JoinHorizontal(lipgloss.Top, left, fill(theme.HeaderStyle, l.Width-lipgloss.Width(left)-lipgloss.Width(right)), right)
}

// RenderStatusBar renders the bottom bar. A non-empty errMsg replaces the
// hints and switches to the error style.
func (l Layout) RenderStatusBar(hints, errMsg string) string {
	style := theme.StatusBarStyle
	text := hints
	if errMsg != "" {
		style = theme.ErrorBarStyle
		text = errMsg
	}
	rendered := style.Render(text)

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, fill(style, l.Width-lipgloss.Width(rendered)))
}

// RenderWithFrame joins header, content and status bar vertically.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().
		Height(l.ContentHeight()).
		MaxHeight(l.ContentHeight()).
		Render(content)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}

// fill renders width cells of the style's background.
func fill(style lipgloss.Style, width int) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Width(width).
		Background(style.GetBackground()).
		Render("")
}
