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

// DefaultHydrateTimeout bounds the secondary fetch made for INSERT events.
const DefaultHydrateTimeout = 10 * time.Second

// Disposer tears down whatever produced it. Calling it more than once is safe.
type Disposer func()

func noopDisposer() {}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	HydrateTimeout time.Duration
	Logger         *zap.Logger
}

// Bridge keeps one live subscription to the per-user event channel and
// translates push events into Store mutations.
type Bridge struct {
	client         backend.Client
	store          *Store
	hydrateTimeout time.Duration
	log            *zap.Logger

	mu   sync.Mutex
	conn *bridgeConn
}

// bridgeConn is one Connect call's subscription.
type bridgeConn struct {
	userID string
	sub    backend.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewBridge creates a bridge that writes into store.
func NewBridge(client backend.Client, store *Store, opts BridgeOptions) *Bridge {
	timeout := opts.HydrateTimeout
	if timeout <= 0 {
		timeout = DefaultHydrateTimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		client:         client,
		store:          store,
		hydrateTimeout: timeout,
		log:            log.Named("realtime"),
	}
}

// Connect subscribes to userID's channel and returns a disposer for it.
//
// The caller must dispose the previous connection before connecting again;
// this is not enforced. Connect never fails: when the realtime session is
// absent or the subscription cannot be opened it logs and returns a
// disposer that does nothing, and the list keeps working through manual
// refresh.
func (b *Bridge) Connect(ctx context.Context, userID string) Disposer {
	sessionUser, err := b.client.CurrentSessionUserID(ctx)
	switch {
	case errors.Is(err, backend.ErrNoSession) || (err == nil && sessionUser == ""):
		b.log.Info("realtime session absent, continuing without push updates")
		return noopDisposer
	case err != nil:
		b.log.Warn("resolving realtime session", zap.Error(err))
		return noopDisposer
	}

	c := &bridgeConn{userID: userID}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	sub, err := b.client.Subscribe(ctx, userID, func(ev backend.Event) {
		b.handle(c, ev)
	})
	if err != nil {
		c.cancel()
		b.log.Warn("subscribing to notifications", zap.String("user_id", userID), zap.Error(err))
		return noopDisposer
	}
	c.sub = sub

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()

	b.log.Info("realtime connected", zap.String("user_id", userID))
	return func() { b.disconnect(c) }
}

// Disconnect tears down the current subscription. It is safe to call when
// never connected and more than once.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	c := b.conn
	b.mu.Unlock()

	if c != nil {
		b.disconnect(c)
	}
}

// Connected reports whether a subscription is live.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

func (b *Bridge) disconnect(c *bridgeConn) {
	c.once.Do(func() {
		c.cancel()
		if err := c.sub.Close(); err != nil {
			b.log.Debug("closing subscription", zap.Error(err))
		}
		b.log.Info("realtime disconnected", zap.String("user_id", c.userID))
	})

	b.mu.Lock()
	if b.conn == c {
		b.conn = nil
	}
	b.mu.Unlock()
}

// handle applies one event. It runs on the subscription's delivery goroutine.
func (b *Bridge) handle(c *bridgeConn, ev backend.Event) {
	if c.ctx.Err() != nil {
		return
	}
	rec := ev.Record
	if rec.ID == "" {
		b.log.Debug("dropping event without id", zap.Stringer("kind", ev.Kind))
		return
	}
	if rec.UserID != "" && rec.UserID != c.userID {
		b.log.Debug("dropping event for another user",
			zap.String("recipient_id", rec.ID),
			zap.String("user_id", rec.UserID),
		)
		return
	}

	switch ev.Kind {
	case backend.EventInsert:
		if _, ok := b.store.Get(rec.ID); ok {
			return
		}
		if full := b.hydrate(c, rec.ID); full != nil {
			rec = *full
		}
		if c.ctx.Err() != nil {
			return
		}
		b.store.Prepend(rec)

	case backend.EventUpdate:
		b.store.ApplyUpdate(rec)

	default:
		b.log.Debug("ignoring event", zap.Stringer("kind", ev.Kind))
	}
}

// hydrate fetches the joined record for an INSERT. It returns nil when the
// fetch fails, in which case the raw payload is used instead.
func (b *Bridge) hydrate(c *bridgeConn, id string) *model.Recipient {
	ctx, cancel := context.WithTimeout(c.ctx, b.hydrateTimeout)
	defer cancel()

	full, err := b.client.FetchRecipientByID(ctx, id)
	if err != nil {
		b.log.Warn("hydrating inserted notification, using raw payload",
			zap.String("recipient_id", id), zap.Error(err))
		return nil
	}
	if full == nil {
		b.log.Debug("inserted notification not found, using raw payload",
			zap.String("recipient_id", id))
	}
	return full
}
