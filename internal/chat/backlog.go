package chat

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// Direction tells whether an entry was sent or received.
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	switch d {
	case Sent:
		return "Sent"
	case Received:
		return "Received"
	default:
		return "Unknown"
	}
}

// Entry is one immutable record of the backlog.
type Entry struct {
	Direction Direction
	Alias     string
	Body      string
	Created   time.Time
}

// Backlog is the append-only message history of one session. Only the
// owning Session appends; everyone else reads copies.
type Backlog struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewBacklog() *Backlog {
	return &Backlog{}
}

func (b *Backlog) add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
}

// Entries returns a copy of all entries in append order.
func (b *Backlog) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the number of entries.
func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Filter returns the entries with the given direction.
func (b *Backlog) Filter(d Direction) []Entry {
	return lo.Filter(b.Entries(), func(e Entry, _ int) bool {
		return e.Direction == d
	})
}

// LastSent returns the most recent Sent entry by creation time.
func (b *Backlog) LastSent() (Entry, bool) {
	sent := b.Filter(Sent)
	if len(sent) == 0 {
		return Entry{}, false
	}
	return lo.MaxBy(sent, func(a, b Entry) bool {
		return a.Created.After(b.Created)
	}), true
}
