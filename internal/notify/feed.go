package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/model"
)

// SnapshotCache persists the newest page per user so a screen can render
// before the network answers.
type SnapshotCache interface {
	LoadSnapshot(ctx context.Context, userID string, limit int) ([]model.Recipient, error)
	SaveSnapshot(ctx context.Context, userID string, records []model.Recipient) error
}

// FeedOptions configures a Feed.
type FeedOptions struct {
	PageSize       int
	Mode           Mode
	HydrateTimeout time.Duration

	// Realtime enables the push subscription.
	Realtime bool

	// Cache is optional.
	Cache SnapshotCache

	Logger *zap.Logger

	// Now stamps optimistic reads. Defaults to time.Now.
	Now func() time.Time
}

// Feed is the screen-scoped notification list. It owns a Store, the Pager
// feeding it and the Bridge pushing into it, and is what the UI talks to.
//
// Backend failures never escape as panics: loads return the error while the
// list stays as it was, and writes report false after logging.
type Feed struct {
	client backend.Client
	userID string
	store  *Store
	pager  *Pager
	bridge *Bridge
	cache  SnapshotCache
	log    *zap.Logger
	now    func() time.Time

	realtime bool

	mu      sync.Mutex
	updates chan struct{}
	dispose Disposer
	closed  bool
}

// NewFeed creates a feed for userID. Nothing is fetched until Open.
func NewFeed(client backend.Client, userID string, opts FeedOptions) *Feed {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("user_id", userID))
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	f := &Feed{
		client:   client,
		userID:   userID,
		cache:    opts.Cache,
		log:      log.Named("feed"),
		now:      now,
		realtime: opts.Realtime,
		updates:  make(chan struct{}, 1),
	}
	f.store = NewStore(f.signal)
	f.pager = NewPager(client, f.store, userID, PagerOptions{
		PageSize: opts.PageSize,
		Mode:     opts.Mode,
		Logger:   log,
	})
	f.bridge = NewBridge(client, f.store, BridgeOptions{
		HydrateTimeout: opts.HydrateTimeout,
		Logger:         log,
	})
	return f
}

// Open renders the cached snapshot if there is one, loads the first page and
// then connects the realtime channel. The channel is connected even when the
// first page fails, so a later refresh finds a live list.
func (f *Feed) Open(ctx context.Context) error {
	f.warmStart(ctx)

	err := f.Refresh(ctx)

	if f.realtime {
		dispose := f.bridge.Connect(ctx, f.userID)
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			dispose()
			return err
		}
		f.dispose = dispose
		f.mu.Unlock()
	}
	return err
}

// Refresh reloads the newest page, replacing the list. It returns ErrBusy
// without touching the list or the cache while another load is in flight.
func (f *Feed) Refresh(ctx context.Context) error {
	if err := f.pager.LoadFirstPage(ctx); err != nil {
		return err
	}
	f.saveSnapshot(ctx)
	return nil
}

// LoadMore appends the next page if there is one. Until a first page has
// loaded, for example after a warm start whose refresh failed, it refreshes
// instead.
func (f *Feed) LoadMore(ctx context.Context) error {
	if !f.pager.Loaded() {
		if err := f.Refresh(ctx); !errors.Is(err, ErrBusy) {
			return err
		}
		return nil
	}
	return f.pager.LoadNextPage(ctx)
}

// MarkRead marks one record read locally and then on the backend. The local
// change is kept even when the backend call fails.
func (f *Feed) MarkRead(ctx context.Context, id string) bool {
	rec, ok := f.store.Get(id)
	if !ok {
		return false
	}
	if !rec.Unread() {
		return true
	}
	f.store.MarkRead(id, f.now())

	ok, err := f.client.MarkRecipientRead(ctx, id, f.userID)
	if err != nil {
		f.log.Warn("marking notification read", zap.String("recipient_id", id), zap.Error(err))
		return false
	}
	return ok
}

// MarkAllRead marks every loaded record read locally and asks the backend to
// mark all of the user's records, including pages not loaded yet.
func (f *Feed) MarkAllRead(ctx context.Context) bool {
	changed := f.store.MarkAllRead(f.now())

	ok, err := f.client.MarkAllRecipientsRead(ctx, f.userID)
	if err != nil {
		f.log.Warn("marking all notifications read", zap.Int("local_changed", changed), zap.Error(err))
		return false
	}
	return ok
}

// Dismiss records the dismissal on the backend. The record stays in the
// list; dismissal only affects future delivery.
func (f *Feed) Dismiss(ctx context.Context, id string) bool {
	ok, err := f.client.DismissRecipient(ctx, id, f.userID)
	if err != nil {
		f.log.Warn("dismissing notification", zap.String("recipient_id", id), zap.Error(err))
		return false
	}
	return ok
}

// Snapshot returns the current ordered list.
func (f *Feed) Snapshot() []model.Recipient { return f.store.Snapshot() }

// UnreadCount returns the number of unread records loaded.
func (f *Feed) UnreadCount() int { return f.store.UnreadCount() }

// HasMore reports whether LoadMore may find more records.
func (f *Feed) HasMore() bool { return f.pager.HasMore() }

// Loading reports whether a page fetch is in flight.
func (f *Feed) Loading() bool { return f.pager.Loading() }

// Err returns the last load error, nil after a successful load.
func (f *Feed) Err() error { return f.pager.Err() }

// Live reports whether the realtime channel is connected.
func (f *Feed) Live() bool { return f.bridge.Connected() }

// UserID returns the owner of this feed.
func (f *Feed) UserID() string { return f.userID }

// Updates delivers a value after the list changed. Changes are coalesced;
// the channel is closed by Close.
func (f *Feed) Updates() <-chan struct{} { return f.updates }

// Close disconnects the realtime channel and drops any in-flight page.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	dispose := f.dispose
	f.dispose = nil
	close(f.updates)
	f.mu.Unlock()

	f.pager.Close()
	if dispose != nil {
		dispose()
	}
	f.bridge.Disconnect()
}

func (f *Feed) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func (f *Feed) warmStart(ctx context.Context) {
	if f.cache == nil {
		return
	}
	records, err := f.cache.LoadSnapshot(ctx, f.userID, f.pager.PageSize())
	if err != nil {
		f.log.Warn("loading cached snapshot", zap.Error(err))
		return
	}
	if len(records) > 0 {
		f.store.ReplaceAll(records)
		f.log.Debug("rendered cached snapshot", zap.Int("count", len(records)))
	}
}

func (f *Feed) saveSnapshot(ctx context.Context) {
	if f.cache == nil {
		return
	}
	records := f.store.Snapshot()
	if n := f.pager.PageSize(); len(records) > n {
		records = records[:n]
	}
	if err := f.cache.SaveSnapshot(ctx, f.userID, records); err != nil {
		f.log.Warn("saving snapshot", zap.Error(err))
	}
}
