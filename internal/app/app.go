package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/backend/supabase"
	"github.com/nerdx/nerdx-notify/internal/keys"
	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/internal/notify"
	"github.com/nerdx/nerdx-notify/internal/ui"
	"github.com/nerdx/nerdx-notify/internal/ui/detail"
	helpview "github.com/nerdx/nerdx-notify/internal/ui/help"
	"github.com/nerdx/nerdx-notify/internal/ui/login"
	"github.com/nerdx/nerdx-notify/internal/ui/notiflist"
)

// opTimeout bounds a single user-triggered backend call.
const opTimeout = 15 * time.Second

// Authenticator manages the realtime session the feed is bound to.
type Authenticator interface {
	CurrentSessionUserID(ctx context.Context) (string, error)
	SignInWithPassword(ctx context.Context, email, password string) (*supabase.Session, error)
	SignOut(ctx context.Context) error
}

// FeedFactory builds the feed for a signed-in user.
type FeedFactory func(userID string) *notify.Feed

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewLogin
	ViewHelp
)

// Model is the root Bubble Tea model. It routes views, owns the feed of the
// signed-in user and turns list requests into feed operations.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	list         notiflist.Model
	detailView   detail.Model
	loginView    login.Model
	helpView     helpview.Model

	auth    Authenticator
	newFeed FeedFactory
	feed    *notify.Feed
	log     *zap.Logger

	email       string
	loadingMore bool
	statusMsg   string
	errMsg      string
	ready       bool
}

// New creates the root model. Nothing touches the network until Init.
func New(auth Authenticator, newFeed FeedFactory, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewList,
		keys:        k,
		list:        notiflist.New(k, 80, 22),
		detailView:  detail.New(k, 80, 22),
		loginView:   login.New(80, 22),
		helpView:    helpview.New(k, 80, 22),
		auth:        auth,
		newFeed:     newFeed,
		log:         log.Named("app"),
		layout:      ui.NewLayout(80, 24),
	}
}

// Init checks for a stored session.
func (m Model) Init() tea.Cmd {
	return m.checkSession()
}

// Close releases the feed. Call it after the program exits.
func (m Model) Close() {
	if m.feed != nil {
		m.feed.Close()
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.list.SetSize(w, h)
		m.detailView.SetSize(w, h)
		m.loginView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		// Forward to the active view so huh forms can lay out.
		return m.updateActiveView(msg)

	case sessionMsg:
		if msg.err != nil && !errors.Is(msg.err, backend.ErrNoSession) {
			m.errMsg = "session: " + msg.err.Error()
		}
		if msg.userID == "" {
			return m, m.showLogin()
		}
		return m, m.startFeed(msg.userID)

	case loginResultMsg:
		if msg.err != nil {
			m.loginView.SetError(loginError(msg.err))
			return m, m.loginView.Start(m.email)
		}
		m.loginView.SetError("")
		m.currentView = ViewList
		m.errMsg = ""
		return m, m.startFeed(msg.userID)

	case logoutResultMsg:
		if msg.err != nil {
			m.errMsg = "sign out: " + msg.err.Error()
		}
		return m, m.showLogin()

	case feedOpenedMsg:
		if msg.feed != m.feed {
			return m, nil
		}
		m.setLoadError(msg.err)
		return m, m.syncList()

	case feedChangedMsg:
		if msg.feed != m.feed {
			return m, nil
		}
		return m, tea.Batch(m.syncList(), waitForUpdate(m.feed))

	case pageResultMsg:
		if msg.feed != m.feed {
			return m, nil
		}
		m.loadingMore = false
		m.setLoadError(msg.err)
		return m, m.syncList()

	case opResultMsg:
		if msg.feed != m.feed {
			return m, nil
		}
		if msg.ok {
			m.statusMsg = msg.done
			m.errMsg = ""
		} else {
			m.errMsg = msg.op + " failed"
		}
		return m, m.syncList()

	case notiflist.MarkReadMsg:
		return m, m.runOp("mark read", "", func(ctx context.Context, f *notify.Feed) bool {
			return f.MarkRead(ctx, msg.ID)
		})

	case notiflist.ShowDetailMsg:
		rec, ok := m.record(msg.ID)
		if !ok {
			return m, nil
		}
		m.detailView.SetRecord(rec)
		m.currentView = ViewDetail
		if !rec.Unread() {
			return m, nil
		}
		// Opening a notification reads it.
		return m, m.runOp("mark read", "", func(ctx context.Context, f *notify.Feed) bool {
			return f.MarkRead(ctx, msg.ID)
		})

	case detail.BackMsg:
		m.currentView = ViewList
		return m, nil

	case notiflist.MarkAllReadMsg:
		return m, m.runOp("mark all read", "all marked read", func(ctx context.Context, f *notify.Feed) bool {
			return f.MarkAllRead(ctx)
		})

	case notiflist.DismissMsg:
		return m, m.runOp("dismiss", "dismissed", func(ctx context.Context, f *notify.Feed) bool {
			return f.Dismiss(ctx, msg.ID)
		})

	case notiflist.RefreshMsg:
		return m, m.loadPage(func(ctx context.Context, f *notify.Feed) error {
			return f.Refresh(ctx)
		})

	case notiflist.LoadMoreMsg:
		if m.loadingMore {
			return m, nil
		}
		m.loadingMore = true
		cmd := m.loadPage(func(ctx context.Context, f *notify.Feed) error {
			return f.LoadMore(ctx)
		})
		return m, tea.Batch(cmd, m.syncList())

	case notiflist.ActionMsg:
		label := msg.Label
		if label == "" {
			label = "link"
		}
		m.statusMsg = fmt.Sprintf("%s: %s", label, msg.URL)
		return m, nil

	case login.SubmitMsg:
		m.email = msg.Email
		return m, m.signIn(msg.Email, msg.Password)

	case login.CancelMsg:
		if m.feed == nil {
			return m, tea.Quit
		}
		m.currentView = ViewList
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.currentView == ViewLogin {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.statusMsg = ""

		case key.Matches(msg, m.keys.Logout):
			return m, m.signOut()

		case key.Matches(msg, m.keys.Login):
			if m.feed == nil || !m.feed.Live() {
				return m, m.showLogin()
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	badge := ""
	if m.feed != nil {
		if n := m.feed.UnreadCount(); n > 0 {
			badge = fmt.Sprintf("%d new", n)
		}
	}
	header := m.layout.RenderHeader("NerdX Notifications", badge, m.connectionStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.errMsg)

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLogin:
		return m.loginView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewDetail:
		return m.detailView.View()
	default:
		return m.list.View()
	}
}

// connectionStatus returns the right side of the header.
func (m Model) connectionStatus() string {
	switch {
	case m.feed == nil:
		return "signed out"
	case m.feed.Live():
		return "● live"
	default:
		return "○ offline"
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewLogin:
		return "enter submit | esc cancel"
	case ViewDetail:
		if m.statusMsg == "" {
			return "esc back | enter mark read | d dismiss | o link"
		}
	}
	if m.statusMsg != "" {
		return m.statusMsg
	}
	return m.helpView.ShortView()
}

func (m *Model) setLoadError(err error) {
	switch {
	case err == nil:
		m.errMsg = ""
	case errors.Is(err, notify.ErrBusy):
		m.statusMsg = "still loading, try again in a moment"
	case backend.IsAuthError(err):
		m.errMsg = "session expired, press L to sign in again"
	default:
		m.errMsg = "could not load notifications: " + err.Error()
	}
}

// showLogin drops the feed and switches to the sign-in form.
func (m *Model) showLogin() tea.Cmd {
	if m.feed != nil {
		m.feed.Close()
		m.feed = nil
	}
	m.list.SetRecords(nil, false, false)
	m.previousView = ViewList
	m.currentView = ViewLogin
	return m.loginView.Start(m.email)
}

// startFeed replaces the current feed with one for userID and opens it.
func (m *Model) startFeed(userID string) tea.Cmd {
	if m.feed != nil {
		m.feed.Close()
	}
	m.feed = m.newFeed(userID)
	m.loadingMore = false
	m.currentView = ViewList
	m.log.Info("feed started", zap.String("user_id", userID))

	return tea.Batch(openFeed(m.feed), waitForUpdate(m.feed), m.syncList())
}

// syncList copies the feed state into the list and detail views.
func (m *Model) syncList() tea.Cmd {
	if m.feed == nil {
		return nil
	}
	if id := m.detailView.RecordID(); id != "" {
		if rec, ok := m.record(id); ok {
			m.detailView.SetRecord(rec)
		}
	}
	return m.list.SetRecords(m.feed.Snapshot(), m.feed.HasMore(), m.loadingMore || m.feed.Loading())
}

// record looks up a loaded notification of the current feed.
func (m Model) record(id string) (model.Recipient, bool) {
	if m.feed == nil {
		return model.Recipient{}, false
	}
	for _, r := range m.feed.Snapshot() {
		if r.ID == id {
			return r, true
		}
	}
	return model.Recipient{}, false
}

func loginError(err error) string {
	if backend.IsAuthError(err) {
		return "Invalid email or password."
	}
	return "Sign in failed: " + err.Error()
}
