package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestLayout_ContentHeight(t *testing.T) {
	assert.Equal(t, 22, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}

func TestLayout_RenderHeaderFillsWidth(t *testing.T) {
	l := NewLayout(60, 10)

	header := l.RenderHeader("NerdX", "3", "live")

	assert.Equal(t, 60, lipgloss.Width(header))
	assert.Contains(t, header, "NerdX")
	assert.Contains(t, header, "3")
	assert.Contains(t, header, "live")
}

func TestLayout_RenderStatusBarPrefersError(t *testing.T) {
	l := NewLayout(60, 10)

	bar := l.RenderStatusBar("q quit", "backend unreachable")

	assert.Contains(t, bar, "backend unreachable")
	assert.False(t, strings.Contains(bar, "q quit"))
	assert.Equal(t, 60, lipgloss.Width(bar))
}
