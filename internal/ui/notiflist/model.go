package notiflist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nerdx/nerdx-notify/internal/keys"
	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/theme"
)

// loadMoreThreshold is how close to the last row the cursor gets before the
// next page is requested.
const loadMoreThreshold = 3

// MarkReadMsg asks the parent to mark a notification read.
type MarkReadMsg struct {
	ID string
}

// DismissMsg asks the parent to dismiss a notification.
type DismissMsg struct {
	ID string
}

// ShowDetailMsg asks the parent to open a notification in full.
type ShowDetailMsg struct {
	ID string
}

// MarkAllReadMsg asks the parent to mark everything read.
type MarkAllReadMsg struct{}

// RefreshMsg asks the parent to reload the first page.
type RefreshMsg struct{}

// LoadMoreMsg asks the parent to append the next page.
type LoadMoreMsg struct{}

// ActionMsg carries the action link of the focused notification.
type ActionMsg struct {
	Label string
	URL   string
}

// Model is the notification list view.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	hasMore bool
	loading bool
	width   int
	height  int
}

// New creates a new, empty list view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetRecords replaces the rows while keeping the cursor on the same
// notification when it is still present.
func (m *Model) SetRecords(records []model.Recipient, hasMore, loading bool) tea.Cmd {
	selected := m.SelectedID()

	items := make([]list.Item, len(records))
	cursor := 0
	for i, r := range records {
		items[i] = Item{Record: r}
		if r.ID == selected {
			cursor = i
		}
	}
	m.hasMore = hasMore
	m.loading = loading

	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// SelectedID returns the id of the focused notification, or "".
func (m Model) SelectedID() string {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return ""
	}
	return it.Record.ID
}

// Len returns the number of rows.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles key input for the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(keyMsg, m.keys.MarkRead):
		if it, ok := m.list.SelectedItem().(Item); ok && it.Record.Unread() {
			return m, emit(MarkReadMsg{ID: it.Record.ID})
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.View):
		if id := m.SelectedID(); id != "" {
			return m, emit(ShowDetailMsg{ID: id})
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.Dismiss):
		if id := m.SelectedID(); id != "" {
			return m, emit(DismissMsg{ID: id})
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.Open):
		if it, ok := m.list.SelectedItem().(Item); ok && it.Record.Notification != nil {
			if u := it.Record.Notification.ActionURL(); u != "" {
				return m, emit(ActionMsg{Label: it.Record.Notification.ActionLabel(), URL: u})
			}
		}
		return m, nil

	case key.Matches(keyMsg, m.keys.MarkAllRead):
		return m, emit(MarkAllReadMsg{})

	case key.Matches(keyMsg, m.keys.Refresh):
		return m, emit(RefreshMsg{})

	case key.Matches(keyMsg, m.keys.LoadMore):
		return m, m.loadMore()

	case key.Matches(keyMsg, m.keys.Top):
		m.list.Select(0)
		return m, nil

	case key.Matches(keyMsg, m.keys.End):
		if n := m.Len(); n > 0 {
			m.list.Select(n - 1)
		}
		return m, m.loadMore()
	}

	// Navigation keys go to the list; reaching the bottom pulls the next page.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	if m.Len()-m.list.Index() <= loadMoreThreshold {
		return m, tea.Batch(cmd, m.loadMore())
	}
	return m, cmd
}

func (m Model) loadMore() tea.Cmd {
	if !m.hasMore || m.loading {
		return nil
	}
	return emit(LoadMoreMsg{})
}

// View renders the list, an empty state, or a trailing loading line.
func (m Model) View() string {
	if m.Len() == 0 {
		return m.renderEmptyState()
	}

	footer := ""
	switch {
	case m.loading:
		footer = theme.MutedStyle.Render("  loading…")
	case m.hasMore:
		footer = theme.MutedStyle.Render("  more below (m)")
	default:
		footer = theme.MutedStyle.Render("  end of notifications")
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), footer)
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.loading {
		return style.Render("Loading notifications…")
	}
	return style.Render("You're all caught up.\n\nPress r to refresh.")
}

// SetSize updates the list dimensions. One line is kept for the footer.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, max(height-1, 0))
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
