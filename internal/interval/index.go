// Package interval keeps per-room sets of half-open day intervals used to
// answer "is this room free for [start, end)" without touching storage.
package interval

import (
	"fmt"
	"sort"
	"sync"

	"hotelledger/internal/models"
)

// Span is one occupied interval [Start, End) owned by a booking.
type Span struct {
	BookingID int64
	Start     models.Day
	End       models.Day
}

func (s Span) overlaps(start, end models.Day) bool {
	return s.Start < end && start < s.End
}

type roomSet struct {
	mu sync.RWMutex
	// spans are sorted by Start and never overlap each other.
	spans []Span
}

// Index is safe for concurrent use. Reads on different rooms never
// contend; callers serialize check-then-insert per room themselves.
type Index struct {
	mu    sync.RWMutex
	rooms map[int64]*roomSet
}

func NewIndex() *Index {
	return &Index{rooms: make(map[int64]*roomSet)}
}

func (ix *Index) room(roomID int64, create bool) *roomSet {
	ix.mu.RLock()
	rs, ok := ix.rooms[roomID]
	ix.mu.RUnlock()
	if ok || !create {
		return rs
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if rs, ok = ix.rooms[roomID]; !ok {
		rs = &roomSet{}
		ix.rooms[roomID] = rs
	}
	return rs
}

// Occupied reports whether any span of the room overlaps [start, end).
// Touching endpoints do not overlap.
func (ix *Index) Occupied(roomID int64, start, end models.Day) bool {
	rs := ix.room(roomID, false)
	if rs == nil {
		return false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.firstOverlap(start, end) >= 0
}

// firstOverlap returns the position of a span overlapping [start, end) or -1.
func (rs *roomSet) firstOverlap(start, end models.Day) int {
	// Spans are disjoint and sorted by Start, so their Ends are sorted too.
	i := sort.Search(len(rs.spans), func(i int) bool { return rs.spans[i].End > start })
	if i < len(rs.spans) && rs.spans[i].overlaps(start, end) {
		return i
	}
	return -1
}

// Insert adds a span for the booking. It fails with models.ErrConflict if
// the interval overlaps an existing span and leaves the set unchanged.
func (ix *Index) Insert(roomID, bookingID int64, start, end models.Day) error {
	if start >= end {
		return fmt.Errorf("%w: empty interval %s..%s", models.ErrValidation, start, end)
	}
	rs := ix.room(roomID, true)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if i := rs.firstOverlap(start, end); i >= 0 {
		return fmt.Errorf("%w: room %d already held by booking %d for %s..%s",
			models.ErrConflict, roomID, rs.spans[i].BookingID, rs.spans[i].Start, rs.spans[i].End)
	}

	pos := sort.Search(len(rs.spans), func(i int) bool { return rs.spans[i].Start >= start })
	rs.spans = append(rs.spans, Span{})
	copy(rs.spans[pos+1:], rs.spans[pos:])
	rs.spans[pos] = Span{BookingID: bookingID, Start: start, End: end}
	return nil
}

// Remove drops the span owned by bookingID. It reports whether one existed.
func (ix *Index) Remove(roomID, bookingID int64) bool {
	rs := ix.room(roomID, false)
	if rs == nil {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, s := range rs.spans {
		if s.BookingID == bookingID {
			rs.spans = append(rs.spans[:i], rs.spans[i+1:]...)
			return true
		}
	}
	return false
}

// Spans returns a copy of the room's spans ordered by start.
func (ix *Index) Spans(roomID int64) []Span {
	rs := ix.room(roomID, false)
	if rs == nil {
		return nil
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]Span, len(rs.spans))
	copy(out, rs.spans)
	return out
}

// Rebuild replaces the whole index with the active bookings given. A
// booking that overlaps one already loaded is reported and skipped.
func (ix *Index) Rebuild(bookings []*models.Booking) (skipped []int64) {
	fresh := NewIndex()
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		if err := fresh.Insert(b.RoomID, b.ID, b.CheckIn, b.CheckOut); err != nil {
			skipped = append(skipped, b.ID)
		}
	}

	ix.mu.Lock()
	ix.rooms = fresh.rooms
	ix.mu.Unlock()
	return skipped
}

// Len returns the number of spans across all rooms.
func (ix *Index) Len() int {
	ix.mu.RLock()
	sets := make([]*roomSet, 0, len(ix.rooms))
	for _, rs := range ix.rooms {
		sets = append(sets, rs)
	}
	ix.mu.RUnlock()

	n := 0
	for _, rs := range sets {
		rs.mu.RLock()
		n += len(rs.spans)
		rs.mu.RUnlock()
	}
	return n
}
