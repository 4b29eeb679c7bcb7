// Package notify keeps a paginated, deduplicated list of notification
// recipient records consistent with the realtime event stream while the
// user scrolls, refreshes and marks items read.
package notify

import (
	"sync"
	"time"

	"github.com/nerdx/nerdx-notify/internal/model"
)

// Store holds the ordered working set of recipient records for the signed-in
// user. Records are unique by ID and ordered newest first; the store never
// re-sorts, it relies on each caller honoring its operation's ordering
// contract. Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  []model.Recipient
	ids      map[string]struct{}
	onChange func()

	// seq counts prepends; pushed maps each prepended id still in the
	// store to the seq it was prepended at.
	seq    uint64
	pushed map[string]uint64
}

// NewStore creates an empty store. onChange may be nil; when set it is
// called after every mutation that changed the store, outside the lock.
func NewStore(onChange func()) *Store {
	return &Store{
		ids:      make(map[string]struct{}),
		pushed:   make(map[string]uint64),
		onChange: onChange,
	}
}

// ReplaceAll makes the store equal to records. records must already be
// sorted newest first. Duplicate ids within records keep their first
// occurrence.
func (s *Store) ReplaceAll(records []model.Recipient) {
	s.mu.Lock()
	s.replace(nil, records)
	s.mu.Unlock()

	s.changed()
}

// PrependMark returns a mark for ReplaceAllSince.
func (s *Store) PrependMark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// ReplaceAllSince is ReplaceAll that keeps records prepended after mark
// when records does not carry them and they are not older than its head.
// Kept records stay at the head in their current order. It returns how
// many were kept.
func (s *Store) ReplaceAllSince(records []model.Recipient, mark uint64) int {
	incoming := make(map[string]struct{}, len(records))
	for _, r := range records {
		incoming[r.ID] = struct{}{}
	}

	s.mu.Lock()
	var keep []model.Recipient
	for _, r := range s.records {
		if seq, ok := s.pushed[r.ID]; !ok || seq <= mark {
			continue
		}
		if _, ok := incoming[r.ID]; ok {
			continue
		}
		if len(records) > 0 && r.CreatedAt.Before(records[0].CreatedAt) {
			continue
		}
		keep = append(keep, r)
	}
	pushed := s.pushed
	s.replace(keep, records)
	for _, r := range keep {
		s.pushed[r.ID] = pushed[r.ID]
	}
	s.mu.Unlock()

	s.changed()
	return len(keep)
}

// replace rebuilds the store from head followed by records, dropping
// duplicate ids. Callers hold the lock.
func (s *Store) replace(head, records []model.Recipient) {
	s.records = make([]model.Recipient, 0, len(head)+len(records))
	s.ids = make(map[string]struct{}, len(head)+len(records))
	s.pushed = make(map[string]uint64)
	for _, group := range [][]model.Recipient{head, records} {
		for _, r := range group {
			if _, dup := s.ids[r.ID]; dup {
				continue
			}
			s.ids[r.ID] = struct{}{}
			s.records = append(s.records, r.Clone())
		}
	}
}

// AppendPage adds records to the tail in the given order. The caller
// guarantees they are older than the current tail. Records whose id is
// already present are skipped. It returns the number appended.
func (s *Store) AppendPage(records []model.Recipient) int {
	s.mu.Lock()
	appended := 0
	for _, r := range records {
		if _, dup := s.ids[r.ID]; dup {
			continue
		}
		s.ids[r.ID] = struct{}{}
		s.records = append(s.records, r.Clone())
		appended++
	}
	s.mu.Unlock()

	if appended > 0 {
		s.changed()
	}
	return appended
}

// Prepend inserts record at the head unless a record with the same id is
// already present. It reports whether the record was inserted.
func (s *Store) Prepend(record model.Recipient) bool {
	s.mu.Lock()
	if _, dup := s.ids[record.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.ids[record.ID] = struct{}{}
	s.seq++
	s.pushed[record.ID] = s.seq
	s.records = append(s.records, model.Recipient{})
	copy(s.records[1:], s.records)
	s.records[0] = record.Clone()
	s.mu.Unlock()

	s.changed()
	return true
}

// ApplyUpdate merges record onto the stored record with the same id. An
// update for an id that is not loaded is ignored. It reports whether a
// record was updated.
func (s *Store) ApplyUpdate(record model.Recipient) bool {
	s.mu.Lock()
	i := s.indexOf(record.ID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	merge(&s.records[i], record.Clone())
	s.mu.Unlock()

	s.changed()
	return true
}

// MarkRead sets ReadAt to now on the matching record if it is unread.
// It reports whether anything changed.
func (s *Store) MarkRead(id string, now time.Time) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 || s.records[i].ReadAt != nil {
		s.mu.Unlock()
		return false
	}
	t := now
	s.records[i].ReadAt = &t
	s.mu.Unlock()

	s.changed()
	return true
}

// MarkAllRead sets ReadAt to now on every unread record and returns how
// many records changed.
func (s *Store) MarkAllRead(now time.Time) int {
	s.mu.Lock()
	changed := 0
	for i := range s.records {
		if s.records[i].ReadAt != nil {
			continue
		}
		t := now
		s.records[i].ReadAt = &t
		changed++
	}
	s.mu.Unlock()

	if changed > 0 {
		s.changed()
	}
	return changed
}

// Snapshot returns a deep copy of the records in store order.
func (s *Store) Snapshot() []model.Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Recipient, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (model.Recipient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return model.Recipient{}, false
	}
	return s.records[i].Clone(), true
}

// Tail returns the oldest record in the store.
func (s *Store) Tail() (model.Recipient, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return model.Recipient{}, false
	}
	return s.records[len(s.records)-1].Clone(), true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// UnreadCount returns the number of records without ReadAt, for badges.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.Unread() {
			n++
		}
	}
	return n
}

// indexOf returns the position of id, or -1. Callers hold the lock.
func (s *Store) indexOf(id string) int {
	if _, ok := s.ids[id]; !ok {
		return -1
	}
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// merge overwrites dst with the fields src carries. Zero fields in src
// leave dst untouched, so a partial push payload never erases the joined
// notification. ReadAt only ever moves from nil to a timestamp, and
// CreatedAt is kept because it positions the record in the list.
func merge(dst *model.Recipient, src model.Recipient) {
	if src.NotificationID != "" {
		dst.NotificationID = src.NotificationID
	}
	if src.UserID != "" {
		dst.UserID = src.UserID
	}
	if src.DeliveredAt != nil {
		dst.DeliveredAt = src.DeliveredAt
	}
	if src.ReadAt != nil {
		dst.ReadAt = src.ReadAt
	}
	if src.DismissedAt != nil {
		dst.DismissedAt = src.DismissedAt
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
	if src.Notification != nil {
		dst.Notification = src.Notification
	}
}
