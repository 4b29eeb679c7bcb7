package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/backend/supabase"
	"github.com/nerdx/nerdx-notify/internal/notify"
	"github.com/nerdx/nerdx-notify/internal/ui/detail"
	"github.com/nerdx/nerdx-notify/internal/ui/login"
	"github.com/nerdx/nerdx-notify/internal/ui/notiflist"
	"github.com/nerdx/nerdx-notify/tests/testutil"
)

type fakeAuth struct {
	userID    string
	signInErr error
	signOuts  int
}

func (a *fakeAuth) CurrentSessionUserID(context.Context) (string, error) {
	if a.userID == "" {
		return "", backend.ErrNoSession
	}
	return a.userID, nil
}

func (a *fakeAuth) SignInWithPassword(_ context.Context, email, _ string) (*supabase.Session, error) {
	if a.signInErr != nil {
		return nil, a.signInErr
	}
	a.userID = "user-1"
	return &supabase.Session{UserID: a.userID, Email: email}, nil
}

func (a *fakeAuth) SignOut(context.Context) error {
	a.signOuts++
	a.userID = ""
	return nil
}

func newTestModel(t *testing.T, fb *testutil.FakeBackend, auth *fakeAuth) Model {
	t.Helper()
	factory := func(userID string) *notify.Feed {
		return notify.NewFeed(fb, userID, notify.FeedOptions{PageSize: 5})
	}
	m := New(auth, factory, nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	t.Cleanup(m.Close)
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

// openSignedIn starts the feed for user-1 and loads its first page.
func openSignedIn(t *testing.T, m Model) Model {
	t.Helper()
	m = update(t, m, sessionMsg{userID: "user-1"})
	require.NotNil(t, m.feed)
	err := m.feed.Open(context.Background())
	return update(t, m, feedOpenedMsg{feed: m.feed, err: err})
}

func TestModel_NoSessionShowsLogin(t *testing.T) {
	m := newTestModel(t, testutil.NewFakeBackend(""), &fakeAuth{})

	m = update(t, m, sessionMsg{err: backend.ErrNoSession})

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.feed)
	assert.Empty(t, m.errMsg)
}

func TestModel_SessionOpensFeed(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 8, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})

	m = openSignedIn(t, m)

	assert.Equal(t, ViewList, m.currentView)
	assert.Equal(t, 5, m.list.Len())
	assert.True(t, m.feed.HasMore())

	view := m.View()
	assert.Contains(t, view, "5 new")
	assert.Contains(t, view, "Title r-000")
}

func TestModel_MarkReadRunsOnFeed(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 3, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m, cmd := updateCmd(t, m, notiflist.MarkReadMsg{ID: "r-001"})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, []string{"r-001"}, fb.MarkReadCalls)
	assert.Equal(t, 2, m.feed.UnreadCount())
	assert.Empty(t, m.errMsg)
}

func TestModel_FailedWriteShowsError(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 2, time.Now())
	fb.MarkErr = errors.New("boom")
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m, cmd := updateCmd(t, m, notiflist.DismissMsg{ID: "r-000"})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, "dismiss failed", m.errMsg)
	// Dismissal leaves the row in place.
	assert.Equal(t, 2, m.list.Len())
}

func TestModel_LoadMoreAppendsPage(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 7, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m, cmd := updateCmd(t, m, notiflist.LoadMoreMsg{})
	require.NotNil(t, cmd)
	assert.True(t, m.loadingMore)

	// A second request while one is pending is dropped.
	_, again := updateCmd(t, m, notiflist.LoadMoreMsg{})
	assert.Nil(t, again)

	ctx := context.Background()
	m = update(t, m, pageResultMsg{feed: m.feed, err: m.feed.LoadMore(ctx)})

	assert.False(t, m.loadingMore)
	assert.Equal(t, 7, m.list.Len())
	assert.False(t, m.feed.HasMore())
}

func TestModel_LoadErrorShownAndListKept(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 3, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	fb.PageErr = errors.New("offline")
	m = update(t, m, pageResultMsg{feed: m.feed, err: m.feed.Refresh(context.Background())})

	assert.True(t, strings.HasPrefix(m.errMsg, "could not load notifications"))
	assert.Equal(t, 3, m.list.Len())
}

func TestModel_BusyRefreshIsNotAnError(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 3, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m = update(t, m, pageResultMsg{feed: m.feed, err: notify.ErrBusy})

	assert.Empty(t, m.errMsg)
	assert.Equal(t, "still loading, try again in a moment", m.statusMsg)
	assert.Equal(t, 3, m.list.Len())
}

func TestModel_StaleFeedMessagesIgnored(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 3, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	old := m.feed
	m = update(t, m, sessionMsg{userID: "user-1"})
	require.NotSame(t, old, m.feed)

	m = update(t, m, pageResultMsg{feed: old, err: errors.New("late")})
	assert.Empty(t, m.errMsg)
}

func TestModel_LoginFailureKeepsForm(t *testing.T) {
	auth := &fakeAuth{signInErr: &backend.AuthError{Message: "invalid grant"}}
	m := newTestModel(t, testutil.NewFakeBackend(""), auth)
	m = update(t, m, sessionMsg{err: backend.ErrNoSession})

	m, cmd := updateCmd(t, m, loginSubmit("ada@example.com"))
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.feed)
	assert.Equal(t, "ada@example.com", m.email)
}

func TestModel_LoginSuccessStartsFeed(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	m := newTestModel(t, fb, &fakeAuth{})
	m = update(t, m, sessionMsg{err: backend.ErrNoSession})

	m, cmd := updateCmd(t, m, loginSubmit("ada@example.com"))
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, ViewList, m.currentView)
	require.NotNil(t, m.feed)
	assert.Equal(t, "user-1", m.feed.UserID())
}

func TestModel_LogoutDropsFeed(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	auth := &fakeAuth{userID: "user-1"}
	m := newTestModel(t, fb, auth)
	m = openSignedIn(t, m)

	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.NotNil(t, cmd)
	m = update(t, m, cmd())

	assert.Equal(t, 1, auth.signOuts)
	assert.Equal(t, ViewLogin, m.currentView)
	assert.Nil(t, m.feed)
}

func TestModel_HelpToggle(t *testing.T) {
	m := newTestModel(t, testutil.NewFakeBackend("user-1"), &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("?")})
	assert.Equal(t, ViewHelp, m.currentView)
	assert.Contains(t, m.View(), "Keyboard Shortcuts")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewList, m.currentView)
}

func loginSubmit(email string) tea.Msg {
	return login.SubmitMsg{Email: email, Password: "secret"}
}

func TestModel_DetailViewMarksRead(t *testing.T) {
	fb := testutil.NewFakeBackend("user-1")
	fb.Records = testutil.Recipients("r", "user-1", 3, time.Now())
	m := newTestModel(t, fb, &fakeAuth{userID: "user-1"})
	m = openSignedIn(t, m)

	m, cmd := updateCmd(t, m, notiflist.ShowDetailMsg{ID: "r-002"})
	require.NotNil(t, cmd)
	assert.Equal(t, ViewDetail, m.currentView)
	assert.Contains(t, m.View(), "Title r-002")

	m = update(t, m, cmd())
	assert.Equal(t, []string{"r-002"}, fb.MarkReadCalls)
	assert.Equal(t, 2, m.feed.UnreadCount())

	// A read notification opens without another write.
	_, cmd = updateCmd(t, m, notiflist.ShowDetailMsg{ID: "r-002"})
	assert.Nil(t, cmd)

	m = update(t, m, detail.BackMsg{})
	assert.Equal(t, ViewList, m.currentView)
}
