package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nerdx/nerdx-notify/internal/notify"
)

// sessionMsg reports the stored session found at startup.
type sessionMsg struct {
	userID string
	err    error
}

// loginResultMsg reports a sign-in attempt.
type loginResultMsg struct {
	userID string
	err    error
}

// logoutResultMsg reports a sign-out.
type logoutResultMsg struct {
	err error
}

// feedOpenedMsg is sent once the first page of a feed has been requested.
type feedOpenedMsg struct {
	feed *notify.Feed
	err  error
}

// feedChangedMsg is sent when the feed's list changed.
type feedChangedMsg struct {
	feed *notify.Feed
}

// pageResultMsg reports a refresh or load-more.
type pageResultMsg struct {
	feed *notify.Feed
	err  error
}

// opResultMsg reports a write operation.
type opResultMsg struct {
	feed *notify.Feed
	op   string
	done string
	ok   bool
}

func (m Model) checkSession() tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		userID, err := auth.CurrentSessionUserID(ctx)
		return sessionMsg{userID: userID, err: err}
	}
}

func (m Model) signIn(email, password string) tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		s, err := auth.SignInWithPassword(ctx, email, password)
		if err != nil {
			return loginResultMsg{err: err}
		}
		return loginResultMsg{userID: s.UserID}
	}
}

func (m Model) signOut() tea.Cmd {
	auth := m.auth
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return logoutResultMsg{err: auth.SignOut(ctx)}
	}
}

// openFeed runs Feed.Open, which may block on the first page.
func openFeed(f *notify.Feed) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return feedOpenedMsg{feed: f, err: f.Open(ctx)}
	}
}

// waitForUpdate blocks until the feed signals a change. It returns nil once
// the feed is closed, ending the listen loop.
func waitForUpdate(f *notify.Feed) tea.Cmd {
	updates := f.Updates()
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return nil
		}
		return feedChangedMsg{feed: f}
	}
}

func (m Model) loadPage(fn func(context.Context, *notify.Feed) error) tea.Cmd {
	f := m.feed
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return pageResultMsg{feed: f, err: fn(ctx, f)}
	}
}

func (m Model) runOp(op, done string, fn func(context.Context, *notify.Feed) bool) tea.Cmd {
	f := m.feed
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return opResultMsg{feed: f, op: op, done: done, ok: fn(ctx, f)}
	}
}
