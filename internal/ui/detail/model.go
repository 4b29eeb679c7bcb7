package detail

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerdx/nerdx-notify/internal/keys"
	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/theme"
	"github.com/nerdx/nerdx-notify/internal/ui/notiflist"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Model shows one notification in full.
type Model struct {
	record   *model.Recipient
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, max(height-2, 0))
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view. Row actions are
// reported with the list's messages so the parent handles both alike.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && m.record != nil {
		rec := m.record
		switch {
		case key.Matches(keyMsg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }

		case key.Matches(keyMsg, m.keys.MarkRead):
			if rec.Unread() {
				return m, func() tea.Msg { return notiflist.MarkReadMsg{ID: rec.ID} }
			}
			return m, nil

		case key.Matches(keyMsg, m.keys.Dismiss):
			return m, func() tea.Msg { return notiflist.DismissMsg{ID: rec.ID} }

		case key.Matches(keyMsg, m.keys.Open):
			if u := rec.Notification.ActionURL(); u != "" {
				label := rec.Notification.ActionLabel()
				return m, func() tea.Msg { return notiflist.ActionMsg{Label: label, URL: u} }
			}
			return m, nil
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.record == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// SetRecord shows rec, scrolling to the top when it is a different record.
func (m *Model) SetRecord(rec model.Recipient) {
	same := m.record != nil && m.record.ID == rec.ID
	m.record = &rec
	m.viewport.SetContent(m.renderContent())
	if !same {
		m.viewport.GotoTop()
	}
}

// RecordID returns the id of the shown record, or "".
func (m Model) RecordID() string {
	if m.record == nil {
		return ""
	}
	return m.record.ID
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-2, 0)
	if m.record != nil {
		m.viewport.SetContent(m.renderContent())
	}
}

func (m Model) renderContent() string {
	rec := m.record
	n := rec.Notification
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	title := rec.Title()
	if title == "" {
		title = "Notification " + rec.NotificationID
	}
	sections = append(sections, titleStyle.Render(title))

	typ := model.NotificationInfo
	if n != nil {
		typ = n.Type
	}
	state := theme.UnreadBadgeStyle.Render("UNREAD")
	if !rec.Unread() {
		state = theme.MutedStyle.Render("read")
	}
	sections = append(sections,
		lipgloss.JoinHorizontal(lipgloss.Top, theme.TypeStyle(typ).Render(theme.TypeLabel(typ)), "  ", state),
		"",
	)

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(11)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value != "" {
			sections = append(sections, metaStyle.Render(label)+valStyle.Render(value))
		}
	}

	row("Received:", stamp(&rec.CreatedAt))
	row("Delivered:", stamp(rec.DeliveredAt))
	row("Read:", stamp(rec.ReadAt))
	row("Dismissed:", stamp(rec.DismissedAt))
	if u := n.ActionURL(); u != "" {
		label := n.ActionLabel()
		if label == "" {
			label = "Link:"
		} else {
			label += ":"
		}
		row(label, u)
	}

	separator := lipgloss.NewStyle().
		Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(m.width-4, 80), 0)))
	sections = append(sections, "", separator, "")

	body := ""
	if n != nil {
		body = n.Body
	}
	if body == "" {
		body = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("No message body")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 10)).Render(body))

	if extra := extraMetadata(n); len(extra) > 0 {
		sections = append(sections, "", separator, "")
		sections = append(sections, extra...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// extraMetadata lists metadata keys other than the action link, sorted.
func extraMetadata(n *model.Notification) []string {
	if n == nil {
		return nil
	}
	var names []string
	for k := range n.Metadata {
		if k != "action_url" && k != "action_label" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	out := make([]string, len(names))
	for i, k := range names {
		out[i] = theme.MutedStyle.Render(k+": ") + fmt.Sprint(n.Metadata[k])
	}
	return out
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}
