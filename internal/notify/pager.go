package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/model"
)

// DefaultPageSize is used when PagerOptions.PageSize is not positive.
const DefaultPageSize = 20

// ErrBusy is returned by LoadFirstPage while another load is in flight.
var ErrBusy = errors.New("a page load is already in flight")

// Mode selects how the pager asks the backend for the next page.
type Mode string

const (
	// ModeOffset pages by skip count.
	ModeOffset Mode = "offset"

	// ModeKeyset pages by (created_at, id) of the oldest loaded record.
	// It requires the backend to implement backend.KeysetFetcher and falls
	// back to ModeOffset otherwise.
	ModeKeyset Mode = "keyset"
)

// PagerOptions configures a Pager.
type PagerOptions struct {
	PageSize int
	Mode     Mode
	Logger   *zap.Logger
}

// Pager drives fetch cycles against the backend and feeds the results into
// a Store, tracking whether more pages exist.
//
// The offset only advances by the number of records a successful fetch
// returned. Records prepended by the realtime bridge never move it, so the
// next page always continues from the last fetched tail.
type Pager struct {
	client   backend.Client
	keyset   backend.KeysetFetcher
	store    *Store
	userID   string
	pageSize int
	log      *zap.Logger

	mu      sync.Mutex
	offset  int
	hasMore bool
	loading bool
	closed  bool
	loaded  bool
	err     error
}

// NewPager creates a pager for userID that writes into store.
func NewPager(client backend.Client, store *Store, userID string, opts PagerOptions) *Pager {
	size := opts.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pager{
		client:   client,
		store:    store,
		userID:   userID,
		pageSize: size,
		log:      log.Named("pager"),
		hasMore:  true,
	}
	if opts.Mode == ModeKeyset {
		if kf, ok := client.(backend.KeysetFetcher); ok {
			p.keyset = kf
		} else {
			p.log.Warn("backend has no keyset support, using offset paging")
		}
	}
	return p
}

// LoadFirstPage fetches the newest page and replaces the store with it.
// Records prepended while the fetch was in flight survive the replace. It
// returns ErrBusy while another load is in flight and is a no-op after Close.
func (p *Pager) LoadFirstPage(ctx context.Context) error {
	mark := p.store.PrependMark()
	if err := p.begin(false); err != nil {
		if errors.Is(err, errSkipped) {
			return nil
		}
		return err
	}

	records, err := p.client.FetchRecipientPage(ctx, p.userID, p.pageSize, 0)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finish() {
		return nil
	}
	if err != nil {
		p.err = fmt.Errorf("fetching first page: %w", err)
		p.log.Warn("first page failed", zap.Error(err))
		return p.err
	}

	kept := p.store.ReplaceAllSince(records, mark)
	p.offset = len(records)
	p.hasMore = len(records) == p.pageSize
	p.loaded = true
	p.err = nil
	p.log.Debug("first page loaded",
		zap.Int("count", len(records)),
		zap.Int("kept_pushed", kept),
		zap.Bool("has_more", p.hasMore),
	)
	return nil
}

// LoadNextPage fetches the page after the last fetched tail and appends it.
// Until a first page has loaded it loads the first page instead. It is a
// no-op when no more pages exist, while another load is in flight or after
// Close. A failed fetch leaves offset and HasMore unchanged.
func (p *Pager) LoadNextPage(ctx context.Context) error {
	if !p.Loaded() {
		if err := p.LoadFirstPage(ctx); !errors.Is(err, ErrBusy) {
			return err
		}
		return nil
	}
	if err := p.begin(true); err != nil {
		return nil
	}

	p.mu.Lock()
	offset := p.offset
	p.mu.Unlock()

	records, err := p.fetchNext(ctx, offset)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.finish() {
		return nil
	}
	if err != nil {
		p.err = fmt.Errorf("fetching page at offset %d: %w", offset, err)
		p.log.Warn("next page failed", zap.Int("offset", offset), zap.Error(err))
		return p.err
	}

	appended := p.store.AppendPage(records)
	p.offset += len(records)
	p.hasMore = len(records) == p.pageSize
	p.err = nil
	p.log.Debug("next page loaded",
		zap.Int("offset", offset),
		zap.Int("received", len(records)),
		zap.Int("appended", appended),
		zap.Bool("has_more", p.hasMore),
	)
	return nil
}

func (p *Pager) fetchNext(ctx context.Context, offset int) ([]model.Recipient, error) {
	if p.keyset != nil {
		if tail, ok := p.store.Tail(); ok {
			return p.keyset.FetchRecipientsBefore(ctx, p.userID, p.pageSize, backend.CursorOf(tail))
		}
	}
	return p.client.FetchRecipientPage(ctx, p.userID, p.pageSize, offset)
}

// errSkipped reports a load with nothing to do: the pager is closed or, for
// a next page, no more pages exist.
var errSkipped = errors.New("nothing to load")

// begin claims the in-flight slot. next marks a next-page load, which also
// requires HasMore.
func (p *Pager) begin(next bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.closed, next && !p.hasMore:
		return errSkipped
	case p.loading:
		return ErrBusy
	}
	p.loading = true
	return nil
}

// finish releases the in-flight slot and reports whether the result may
// still be applied. Callers hold the lock.
func (p *Pager) finish() bool {
	p.loading = false
	return !p.closed
}

// Close disposes the pager. Loads that resolve afterwards leave the store
// untouched.
func (p *Pager) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// Loaded reports whether a first page has been applied.
func (p *Pager) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Offset returns the number of records fetched through the cursor so far.
func (p *Pager) Offset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// HasMore reports whether another page may exist.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Loading reports whether a fetch is in flight.
func (p *Pager) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the error of the last failed load, cleared by the next
// successful one.
func (p *Pager) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// PageSize returns the fixed page size.
func (p *Pager) PageSize() int {
	return p.pageSize
}
