// Package history maintains the per-user position event history: a bounded,
// newest-first ledger fed by the chain subscriptions, with duplicate delivery
// collapsed by event coordinate.
package history

import (
	"container/list"
	"sync"

	"LendView/internal/event"
)

// DefaultCapacity bounds the visible history length.
const DefaultCapacity = 20

// seenQuota is how many coordinates the dedup set remembers per history
// slot. Remembering more keys than entries keeps an evicted event from
// reappearing when a subscription redelivers it.
const seenQuota = 8

// Ledger is a bounded newest-first event history with coordinate-level
// deduplication. The duplicate check and the insert happen under one lock so
// two deliveries of the same coordinate can never both land.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	entries  []event.PositionEvent
	seen     *seenSet
}

// NewLedger builds a ledger. A capacity of zero or less selects the default.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{
		capacity: capacity,
		entries:  make([]event.PositionEvent, 0, capacity),
		seen:     newSeenSet(capacity * seenQuota),
	}
}

// Record inserts ev unless its coordinate has been recorded before. It
// returns true when the event was inserted and false for a duplicate.
func (l *Ledger) Record(ev event.PositionEvent) bool {
	key := ev.DedupKey()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen.contains(key) {
		return false
	}
	l.seen.add(key)
	l.insert(ev)
	return true
}

// insert places ev in chain order, newest first, and trims to capacity.
// Caller holds l.mu.
func (l *Ledger) insert(ev event.PositionEvent) {
	pos := 0
	for pos < len(l.entries) && newer(l.entries[pos], ev) {
		pos++
	}
	l.entries = append(l.entries, event.PositionEvent{})
	copy(l.entries[pos+1:], l.entries[pos:])
	l.entries[pos] = ev

	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// newer reports whether a sits strictly after b in chain order.
func newer(a, b event.PositionEvent) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber > b.BlockNumber
	}
	return a.LogIndex > b.LogIndex
}

// Snapshot returns a copy of the history, newest first.
func (l *Ledger) Snapshot() []event.PositionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]event.PositionEvent, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Capacity returns the configured bound.
func (l *Ledger) Capacity() int {
	return l.capacity
}

// --- seen-coordinate LRU ---

// seenSet is an LRU of dedup keys. Not safe for concurrent use on its own;
// the ledger serializes access.
type seenSet struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List
}

func newSeenSet(capacity int) *seenSet {
	return &seenSet{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (s *seenSet) contains(key string) bool {
	elem, ok := s.cache[key]
	if ok {
		s.order.MoveToFront(elem)
	}
	return ok
}

func (s *seenSet) add(key string) {
	if elem, ok := s.cache[key]; ok {
		s.order.MoveToFront(elem)
		return
	}
	s.cache[key] = s.order.PushFront(key)
	if s.order.Len() > s.capacity {
		oldest := s.order.Back()
		s.order.Remove(oldest)
		delete(s.cache, oldest.Value.(string))
	}
}
