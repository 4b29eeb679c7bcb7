package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the application.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding
	Top  key.Binding
	End  key.Binding

	// Actions on the focused notification
	MarkRead key.Binding
	Dismiss  key.Binding
	Open     key.Binding
	View     key.Binding

	// List actions
	MarkAllRead key.Binding
	Refresh     key.Binding
	LoadMore    key.Binding

	// Session
	Login  key.Binding
	Logout key.Binding

	// Help / Back / Quit
	Help key.Binding
	Back key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "newest"),
		),
		End: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "oldest loaded"),
		),
		MarkRead: key.NewBinding(
			key.WithKeys("enter", "x"),
			key.WithHelp("enter", "mark read"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "dismiss"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "show action link"),
		),
		View: key.NewBinding(
			key.WithKeys("v", "l", "right"),
			key.WithHelp("v", "details"),
		),
		MarkAllRead: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "mark all read"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		LoadMore: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "load more"),
		),
		Login: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "sign in for live updates"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "sign out"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.MarkRead, k.MarkAllRead,
		k.Refresh, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.End},
		{k.MarkRead, k.View, k.Dismiss, k.Open},
		{k.MarkAllRead, k.Refresh, k.LoadMore},
		{k.Login, k.Logout, k.Help, k.Back, k.Quit},
	}
}
