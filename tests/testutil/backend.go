package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/model"
)

// PageCall records one FetchRecipientPage call.
type PageCall struct {
	UserID string
	Limit  int
	Offset int
}

// FakeBackend is an in-memory backend.Client. Rows are served newest first
// from Records unless Pages scripts the responses.
type FakeBackend struct {
	mu sync.Mutex

	// Records are the server-side rows, newest first.
	Records []model.Recipient

	// Pages, when non-empty, are returned one per fetch in order.
	Pages [][]model.Recipient

	// Gate, when set, blocks every page fetch until it receives or closes.
	Gate chan struct{}

	PageErr      error
	HydrateErr   error
	MarkErr      error
	SubscribeErr error

	SessionUserID string
	SessionErr    error

	PageCalls     []PageCall
	HydrateCalls  []string
	MarkReadCalls []string
	MarkAllCalls  int
	DismissCalls  []string

	handler backend.Handler
	subs    int
	closed  int
}

// NewFakeBackend returns a fake with a live session for userID.
func NewFakeBackend(userID string) *FakeBackend {
	return &FakeBackend{SessionUserID: userID}
}

// FetchRecipientPage serves a page.
func (f *FakeBackend) FetchRecipientPage(
	ctx context.Context,
	userID string,
	limit, offset int,
) ([]model.Recipient, error) {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.PageCalls = append(f.PageCalls, PageCall{UserID: userID, Limit: limit, Offset: offset})
	if f.PageErr != nil {
		return nil, f.PageErr
	}
	if len(f.Pages) > 0 {
		page := f.Pages[0]
		f.Pages = f.Pages[1:]
		return cloneAll(page), nil
	}
	return cloneAll(window(f.Records, offset, limit)), nil
}

// FetchRecipientByID serves a hydrated row from Records.
func (f *FakeBackend) FetchRecipientByID(_ context.Context, id string) (*model.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.HydrateCalls = append(f.HydrateCalls, id)
	if f.HydrateErr != nil {
		return nil, f.HydrateErr
	}
	for _, r := range f.Records {
		if r.ID == id {
			c := r.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

// MarkRecipientRead records the call.
func (f *FakeBackend) MarkRecipientRead(_ context.Context, id, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.MarkReadCalls = append(f.MarkReadCalls, id)
	if f.MarkErr != nil {
		return false, f.MarkErr
	}
	return true, nil
}

// MarkAllRecipientsRead records the call.
func (f *FakeBackend) MarkAllRecipientsRead(_ context.Context, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.MarkAllCalls++
	if f.MarkErr != nil {
		return false, f.MarkErr
	}
	return true, nil
}

// DismissRecipient records the call.
func (f *FakeBackend) DismissRecipient(_ context.Context, id, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.DismissCalls = append(f.DismissCalls, id)
	if f.MarkErr != nil {
		return false, f.MarkErr
	}
	return true, nil
}

// Subscribe registers h; Emit delivers to it.
func (f *FakeBackend) Subscribe(_ context.Context, _ string, h backend.Handler) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SubscribeErr != nil {
		return nil, f.SubscribeErr
	}
	f.handler = h
	f.subs++
	return &fakeSubscription{f: f}, nil
}

// CurrentSessionUserID returns SessionUserID, or ErrNoSession when empty.
func (f *FakeBackend) CurrentSessionUserID(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SessionErr != nil {
		return "", f.SessionErr
	}
	if f.SessionUserID == "" {
		return "", backend.ErrNoSession
	}
	return f.SessionUserID, nil
}

// Emit delivers ev to the live subscription synchronously. It reports
// whether a subscriber received it.
func (f *FakeBackend) Emit(ev backend.Event) bool {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()

	if h == nil {
		return false
	}
	h(ev)
	return true
}

// Subscriptions returns how many subscriptions were opened and closed.
func (f *FakeBackend) Subscriptions() (opened, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs, f.closed
}

// Calls returns a copy of the recorded page calls.
func (f *FakeBackend) Calls() []PageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PageCall(nil), f.PageCalls...)
}

type fakeSubscription struct {
	f    *FakeBackend
	once sync.Once
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.f.mu.Lock()
		s.f.handler = nil
		s.f.closed++
		s.f.mu.Unlock()
	})
	return nil
}

// KeysetBackend adds cursor paging over Records to a FakeBackend.
type KeysetBackend struct {
	*FakeBackend

	Cursors []backend.Cursor
}

// FetchRecipientsBefore serves rows strictly older than before.
func (k *KeysetBackend) FetchRecipientsBefore(
	_ context.Context,
	_ string,
	limit int,
	before backend.Cursor,
) ([]model.Recipient, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.Cursors = append(k.Cursors, before)
	if k.PageErr != nil {
		return nil, k.PageErr
	}
	var out []model.Recipient
	for _, r := range k.Records {
		if before.Before(r) {
			out = append(out, r.Clone())
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Recipients builds n hydrated records named prefix-000.. with CreatedAt
// descending one minute apart from start.
func Recipients(prefix, userID string, n int, start time.Time) []model.Recipient {
	out := make([]model.Recipient, n)
	for i := 0; i < n; i++ {
		out[i] = Recipient(fmt.Sprintf("%s-%03d", prefix, i), userID, start.Add(-time.Duration(i)*time.Minute))
	}
	return out
}

// Recipient builds one unread hydrated record.
func Recipient(id, userID string, createdAt time.Time) model.Recipient {
	notifID := uuid.NewString()
	return model.Recipient{
		ID:             id,
		NotificationID: notifID,
		UserID:         userID,
		CreatedAt:      createdAt,
		Notification: &model.Notification{
			ID:        notifID,
			Title:     "Title " + id,
			Body:      "Body " + id,
			Type:      model.NotificationInfo,
			CreatedAt: createdAt,
		},
	}
}

func window(records []model.Recipient, offset, limit int) []model.Recipient {
	if offset >= len(records) {
		return nil
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

func cloneAll(records []model.Recipient) []model.Recipient {
	if records == nil {
		return nil
	}
	out := make([]model.Recipient, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
