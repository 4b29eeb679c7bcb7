package notify

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdx/nerdx-notify/internal/model"
	"github.com/nerdx/nerdx-notify/tests/testutil"
)

const testUser = "user-1"

var t0 = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func ids(records []model.Recipient) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func assertUnique(t *testing.T, records []model.Recipient) {
	t.Helper()
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		require.False(t, seen[r.ID], "duplicate id %s", r.ID)
		seen[r.ID] = true
	}
}

func assertNewestFirst(t *testing.T, records []model.Recipient) {
	t.Helper()
	ok := sort.SliceIsSorted(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	assert.True(t, ok, "records not newest first: %v", ids(records))
}

func TestStore_ReplaceAllDropsDuplicates(t *testing.T) {
	s := NewStore(nil)
	recs := testutil.Recipients("r", testUser, 3, t0)

	s.ReplaceAll(append(recs, recs[1]))

	assert.Equal(t, []string{"r-000", "r-001", "r-002"}, ids(s.Snapshot()))
}

func TestStore_AppendPageSkipsKnownIDs(t *testing.T) {
	s := NewStore(nil)
	recs := testutil.Recipients("r", testUser, 5, t0)
	s.ReplaceAll(recs[:3])

	appended := s.AppendPage(recs[2:])

	assert.Equal(t, 2, appended)
	assert.Equal(t, 5, s.Len())
	assertUnique(t, s.Snapshot())
}

func TestStore_PrependRejectsDuplicate(t *testing.T) {
	s := NewStore(nil)
	s.ReplaceAll(testutil.Recipients("r", testUser, 2, t0))

	assert.False(t, s.Prepend(testutil.Recipient("r-001", testUser, t0.Add(time.Hour))))
	assert.True(t, s.Prepend(testutil.Recipient("r-new", testUser, t0.Add(time.Hour))))

	assert.Equal(t, []string{"r-new", "r-000", "r-001"}, ids(s.Snapshot()))
}

// Any interleaving of replace, append and prepend keeps ids unique and the
// list newest first, provided each call honors its ordering contract.
func TestStore_DedupAndOrderProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		s := NewStore(nil)
		// A shared pool lets ids repeat across calls.
		pool := testutil.Recipients("p", testUser, 40, t0)
		head, tail := 20, 20

		for step := 0; step < 30; step++ {
			switch rng.Intn(3) {
			case 0:
				// A fresh first page around the middle of the pool.
				n := rng.Intn(10)
				start := 15 + rng.Intn(5)
				s.ReplaceAll(pool[start:min(start+n, len(pool))])
				head, tail = start, min(start+n, len(pool))
				if n == 0 {
					head, tail = 20, 20
				}
			case 1:
				// Older records, possibly overlapping the current tail.
				from := max(tail-rng.Intn(3), head)
				to := min(from+rng.Intn(5), len(pool))
				if from < to {
					s.AppendPage(pool[from:to])
					tail = max(tail, to)
				}
			case 2:
				// A newer record, or a replay of one already held.
				if head > 0 && rng.Intn(4) > 0 {
					head--
					s.Prepend(pool[head])
				} else if s.Len() > 0 {
					snap := s.Snapshot()
					s.Prepend(snap[rng.Intn(len(snap))])
				}
			}

			snap := s.Snapshot()
			assertUnique(t, snap)
			assertNewestFirst(t, snap)
		}
	}
}

func TestStore_MarkReadIdempotent(t *testing.T) {
	s := NewStore(nil)
	s.ReplaceAll(testutil.Recipients("r", testUser, 3, t0))

	assert.True(t, s.MarkRead("r-001", t0))
	once := s.Snapshot()

	assert.False(t, s.MarkRead("r-001", t0.Add(time.Minute)))
	assert.Equal(t, once, s.Snapshot())

	assert.False(t, s.MarkRead("missing", t0))
}

func TestStore_MarkAllReadIdempotent(t *testing.T) {
	s := NewStore(nil)
	s.ReplaceAll(testutil.Recipients("r", testUser, 4, t0))
	s.MarkRead("r-002", t0.Add(-time.Hour))

	assert.Equal(t, 3, s.MarkAllRead(t0))
	once := s.Snapshot()

	assert.Equal(t, 0, s.MarkAllRead(t0.Add(time.Minute)))
	assert.Equal(t, once, s.Snapshot())
	assert.Equal(t, 0, s.UnreadCount())

	// The earlier read time survives.
	r, ok := s.Get("r-002")
	require.True(t, ok)
	assert.True(t, r.ReadAt.Equal(t0.Add(-time.Hour)))
}

func TestStore_ReadStateIsMonotonic(t *testing.T) {
	s := NewStore(nil)
	s.ReplaceAll(testutil.Recipients("r", testUser, 2, t0))
	s.MarkRead("r-000", t0)

	// An update without read_at must not clear it.
	partial := model.Recipient{ID: "r-000", UserID: testUser}
	assert.True(t, s.ApplyUpdate(partial))

	r, ok := s.Get("r-000")
	require.True(t, ok)
	require.NotNil(t, r.ReadAt)
	assert.True(t, r.ReadAt.Equal(t0))

	// Neither do the other mutators.
	s.MarkAllRead(t0.Add(time.Hour))
	s.Prepend(model.Recipient{ID: "r-000"})
	s.AppendPage([]model.Recipient{{ID: "r-000"}})
	r, _ = s.Get("r-000")
	require.NotNil(t, r.ReadAt)
	assert.True(t, r.ReadAt.Equal(t0))
}

func TestStore_ApplyUpdateMergesPartialPayload(t *testing.T) {
	s := NewStore(nil)
	recs := testutil.Recipients("r", testUser, 2, t0)
	s.ReplaceAll(recs)

	dismissed := t0.Add(time.Minute)
	raw := model.Recipient{
		ID:          "r-001",
		UserID:      testUser,
		DismissedAt: &dismissed,
		CreatedAt:   t0.Add(time.Hour),
	}
	assert.True(t, s.ApplyUpdate(raw))

	r, ok := s.Get("r-001")
	require.True(t, ok)
	require.NotNil(t, r.DismissedAt)
	assert.True(t, r.DismissedAt.Equal(dismissed))
	// The joined notification and list position are kept.
	require.NotNil(t, r.Notification)
	assert.Equal(t, "Title r-001", r.Notification.Title)
	assert.True(t, r.CreatedAt.Equal(recs[1].CreatedAt))
	assert.Equal(t, []string{"r-000", "r-001"}, ids(s.Snapshot()))
}

func TestStore_UpdateForUnknownIDIsNoop(t *testing.T) {
	calls := 0
	s := NewStore(func() { calls++ })
	s.ReplaceAll(testutil.Recipients("r", testUser, 10, t0))
	before := s.Snapshot()
	calls = 0

	assert.NotPanics(t, func() {
		assert.False(t, s.ApplyUpdate(testutil.Recipient("ghost", testUser, t0)))
	})

	assert.Equal(t, before, s.Snapshot())
	assert.Zero(t, calls)
}

func TestStore_SnapshotDoesNotAlias(t *testing.T) {
	s := NewStore(nil)
	s.ReplaceAll(testutil.Recipients("r", testUser, 1, t0))

	snap := s.Snapshot()
	snap[0].Notification.Title = "changed"
	now := t0
	snap[0].ReadAt = &now

	r, _ := s.Get("r-000")
	assert.Equal(t, "Title r-000", r.Notification.Title)
	assert.True(t, r.Unread())
}

func TestStore_OnChangeOnlyForRealChanges(t *testing.T) {
	calls := 0
	s := NewStore(func() { calls++ })
	recs := testutil.Recipients("r", testUser, 3, t0)

	s.ReplaceAll(recs)
	assert.Equal(t, 1, calls)

	s.AppendPage(recs)
	s.Prepend(recs[0])
	s.MarkRead("missing", t0)
	assert.Equal(t, 1, calls)

	s.MarkRead("r-000", t0)
	assert.Equal(t, 2, calls)
}

func TestStore_TailAndCounts(t *testing.T) {
	s := NewStore(nil)
	_, ok := s.Tail()
	assert.False(t, ok)

	s.ReplaceAll(testutil.Recipients("r", testUser, 3, t0))
	tail, ok := s.Tail()
	require.True(t, ok)
	assert.Equal(t, "r-002", tail.ID)
	assert.Equal(t, 3, s.UnreadCount())
	assert.Equal(t, 3, s.Len())
}

func TestStore_ReplaceAllSinceKeepsNewerPushes(t *testing.T) {
	s := NewStore(nil)
	page := testutil.Recipients("r", testUser, 3, t0)
	s.ReplaceAll(page)

	require.True(t, s.Prepend(testutil.Recipient("early", testUser, t0.Add(time.Minute))))
	mark := s.PrependMark()
	require.True(t, s.Prepend(testutil.Recipient("stale", testUser, t0.Add(-time.Hour))))
	require.True(t, s.Prepend(testutil.Recipient("p-1", testUser, t0.Add(time.Hour))))
	require.True(t, s.Prepend(testutil.Recipient("p-2", testUser, t0.Add(2*time.Hour))))

	kept := s.ReplaceAllSince(page, mark)

	// early predates the mark and stale is older than the page head.
	assert.Equal(t, 2, kept)
	assert.Equal(t, []string{"p-2", "p-1", "r-000", "r-001", "r-002"}, ids(s.Snapshot()))

	// Kept pushes still count as pushed for a refresh started earlier.
	assert.Equal(t, 2, s.ReplaceAllSince(page, mark))
	assert.Zero(t, s.ReplaceAllSince(page, s.PrependMark()))
	assert.Len(t, s.Snapshot(), 3)
}
