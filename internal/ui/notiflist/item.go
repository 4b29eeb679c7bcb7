package notiflist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/theme"
)

// Item wraps a model.Recipient so it can be used in a bubbles/list.
type Item struct {
	Record model.Recipient
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Title() }

// Title returns the notification title, or a placeholder for records that
// were never hydrated.
func (i Item) Title() string {
	if t := i.Record.Title(); t != "" {
		return t
	}
	return "(notification " + shortID(i.Record.NotificationID) + ")"
}

// Description returns the body on one line.
func (i Item) Description() string {
	if i.Record.Notification == nil {
		return ""
	}
	return strings.Join(strings.Fields(i.Record.Notification.Body), " ")
}

// ItemDelegate renders one notification per two lines.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 2 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	rec := it.Record
	isSelected := index == m.Index()

	marker := " "
	if rec.Unread() {
		marker = "●"
	}

	typ := model.NotificationInfo
	if rec.Notification != nil {
		typ = rec.Notification.Type
	}
	badge := theme.TypeStyle(typ).Render(theme.TypeLabel(typ))

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	age := theme.MutedStyle.Render(relativeTime(rec.CreatedAt, now()))

	width := m.Width() - 4
	title := truncate(it.Title(), width-16)
	body := truncate(it.Description(), width-2)

	line1 := fmt.Sprintf("%s %s %s  %s", marker, badge, title, age)
	line2 := "  " + body

	if !rec.Unread() {
		line1 = theme.ReadStyle.Render(line1)
		line2 = theme.ReadStyle.Render(line2)
	}
	style := theme.ListItemStyle
	if isSelected {
		style = theme.SelectedItemStyle
	}

	fmt.Fprint(w, style.Render(line1+"\n"+line2))
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
