package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/tests/testutil"
)

func newTestFeed(t *testing.T, fb *testutil.FakeBackend, opts FeedOptions) *Feed {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 5
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return t0 }
	}
	f := NewFeed(fb, testUser, opts)
	t.Cleanup(f.Close)
	return f
}

func TestFeed_OpenLoadsAndConnects(t *testing.T) {
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 8, t0)
	f := newTestFeed(t, fb, FeedOptions{Realtime: true})

	require.NoError(t, f.Open(context.Background()))

	assert.Len(t, f.Snapshot(), 5)
	assert.True(t, f.HasMore())
	assert.True(t, f.Live())
	assert.Equal(t, testUser, f.UserID())

	fb.Emit(backend.Event{Kind: backend.EventInsert, Record: raw("r-new", t0.Add(time.Hour))})
	assert.Equal(t, "r-new", f.Snapshot()[0].ID)
}

func TestFeed_OpenWithoutRealtime(t *testing.T) {
	fb := testutil.NewFakeBackend(testUser)
	f := newTestFeed(t, fb, FeedOptions{})

	require.NoError(t, f.Open(context.Background()))

	assert.False(t, f.Live())
	opened, _ := fb.Subscriptions()
	assert.Zero(t, opened)
}

func TestFeed_OpenConnectsEvenWhenFirstPageFails(t *testing.T) {
	fb := testutil.NewFakeBackend(testUser)
	fb.PageErr = errors.New("offline")
	f := newTestFeed(t, fb, FeedOptions{Realtime: true})

	err := f.Open(context.Background())

	require.Error(t, err)
	assert.Equal(t, err, f.Err())
	assert.True(t, f.Live())
}

func TestFeed_WarmStartFromCache(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	cached := testutil.Recipients("c", testUser, 3, t0)
	require.NoError(t, c.SaveSnapshot(ctx, testUser, cached))

	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 2, t0.Add(time.Hour))
	gate := make(chan struct{})
	fb.Gate = gate
	f := newTestFeed(t, fb, FeedOptions{Cache: c})

	done := make(chan error, 1)
	go func() { done <- f.Open(ctx) }()

	// The cached rows show while the first page is pending.
	require.Eventually(t, f.Loading, time.Second, time.Millisecond)
	assert.Equal(t, []string{"c-000", "c-001", "c-002"}, ids(f.Snapshot()))

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"r-000", "r-001"}, ids(f.Snapshot()))

	saved, err := c.LoadSnapshot(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"r-000", "r-001"}, ids(saved))
}

func TestFeed_SnapshotSavedOnlyForFirstPage(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 12, t0)
	f := newTestFeed(t, fb, FeedOptions{Cache: c})

	require.NoError(t, f.Refresh(ctx))
	require.NoError(t, f.LoadMore(ctx))
	require.Len(t, f.Snapshot(), 10)

	saved, err := c.LoadSnapshot(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Len(t, saved, 5)
}

func TestFeed_MarkReadIsOptimistic(t *testing.T) {
	ctx := context.Background()
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 3, t0)
	f := newTestFeed(t, fb, FeedOptions{})
	require.NoError(t, f.Refresh(ctx))

	assert.True(t, f.MarkRead(ctx, "r-001"))
	assert.Equal(t, 2, f.UnreadCount())
	assert.Equal(t, []string{"r-001"}, fb.MarkReadCalls)

	// Already read: nothing is sent.
	assert.True(t, f.MarkRead(ctx, "r-001"))
	assert.Len(t, fb.MarkReadCalls, 1)

	assert.False(t, f.MarkRead(ctx, "missing"))
	assert.Len(t, fb.MarkReadCalls, 1)
}

func TestFeed_MarkReadKeepsLocalStateOnFailure(t *testing.T) {
	ctx := context.Background()
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 2, t0)
	f := newTestFeed(t, fb, FeedOptions{})
	require.NoError(t, f.Refresh(ctx))

	fb.MarkErr = errors.New("500")
	assert.False(t, f.MarkRead(ctx, "r-000"))

	r := f.Snapshot()[0]
	require.NotNil(t, r.ReadAt)
	assert.True(t, r.ReadAt.Equal(t0))
}

func TestFeed_MarkAllReadAlwaysCallsBackend(t *testing.T) {
	ctx := context.Background()
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 3, t0)
	f := newTestFeed(t, fb, FeedOptions{})
	require.NoError(t, f.Refresh(ctx))

	assert.True(t, f.MarkAllRead(ctx))
	assert.Zero(t, f.UnreadCount())

	// Unloaded pages may still hold unread rows.
	assert.True(t, f.MarkAllRead(ctx))
	assert.Equal(t, 2, fb.MarkAllCalls)

	fb.MarkErr = errors.New("500")
	assert.False(t, f.MarkAllRead(ctx))
}

func TestFeed_DismissLeavesListAlone(t *testing.T) {
	ctx := context.Background()
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 3, t0)
	f := newTestFeed(t, fb, FeedOptions{})
	require.NoError(t, f.Refresh(ctx))
	before := f.Snapshot()

	assert.True(t, f.Dismiss(ctx, "r-002"))
	assert.Equal(t, []string{"r-002"}, fb.DismissCalls)
	assert.Equal(t, before, f.Snapshot())

	fb.MarkErr = errors.New("500")
	assert.False(t, f.Dismiss(ctx, "r-001"))
}

func TestFeed_UpdatesSignalAndClose(t *testing.T) {
	ctx := context.Background()
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 3, t0)
	f := NewFeed(fb, testUser, FeedOptions{PageSize: 5, Realtime: true})

	require.NoError(t, f.Open(ctx))
	f.MarkRead(ctx, "r-000")

	// Several changes coalesce into one pending signal.
	select {
	case _, ok := <-f.Updates():
		assert.True(t, ok)
	default:
		t.Fatal("expected a pending update")
	}
	select {
	case <-f.Updates():
		t.Fatal("updates were not coalesced")
	default:
	}

	f.Close()
	f.Close()

	_, ok := <-f.Updates()
	assert.False(t, ok)
	assert.False(t, f.Live())
	_, closed := fb.Subscriptions()
	assert.Equal(t, 1, closed)

	// Changes after close neither panic nor reach the list.
	assert.NotPanics(t, func() {
		fb.Emit(backend.Event{Kind: backend.EventInsert, Record: raw("late", t0.Add(time.Hour))})
	})
	assert.Len(t, f.Snapshot(), 3)
}

func TestFeed_LoadMoreAfterFailedWarmRefreshReloadsFirstPage(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	require.NoError(t, c.SaveSnapshot(ctx, testUser, testutil.Recipients("c", testUser, 5, t0.Add(-time.Hour))))

	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 8, t0)
	fb.PageErr = errors.New("offline")
	f := newTestFeed(t, fb, FeedOptions{Cache: c})

	require.Error(t, f.Open(ctx))
	require.Equal(t, []string{"c-000", "c-001", "c-002", "c-003", "c-004"}, ids(f.Snapshot()))

	fb.PageErr = nil
	require.NoError(t, f.LoadMore(ctx))
	assert.Equal(t, []string{"r-000", "r-001", "r-002", "r-003", "r-004"}, ids(f.Snapshot()))

	saved, err := c.LoadSnapshot(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Equal(t, ids(f.Snapshot()), ids(saved))

	require.NoError(t, f.LoadMore(ctx))
	assert.Len(t, f.Snapshot(), 8)
	assert.Equal(t, []int{0, 0, 5}, offsets(fb.Calls()))
}

func TestFeed_BusyRefreshSkipsSnapshot(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewTestCache(t)
	fb := testutil.NewFakeBackend(testUser)
	fb.Records = testutil.Recipients("r", testUser, 3, t0)
	f := newTestFeed(t, fb, FeedOptions{Cache: c})

	gate := make(chan struct{})
	fb.Gate = gate
	done := make(chan error, 1)
	go func() { done <- f.Refresh(ctx) }()
	require.Eventually(t, f.Loading, time.Second, time.Millisecond)

	assert.ErrorIs(t, f.Refresh(ctx), ErrBusy)
	saved, err := c.LoadSnapshot(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Empty(t, saved)

	// Scrolling while the first page is pending is not an error.
	assert.NoError(t, f.LoadMore(ctx))

	close(gate)
	require.NoError(t, <-done)
	saved, err = c.LoadSnapshot(ctx, testUser, 0)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
}
