// Package queue holds the bounded list of tickets waiting for export and
// the form state around it.
//
// Queue values are immutable: every mutation returns a new Queue and leaves
// the receiver untouched. State changes go through Reduce, so a caller can
// keep earlier snapshots or compare before and after.
package queue

import (
	"fmt"
	"time"

	"github.com/lvillar/railpass"
)

// MaxSize is the queue capacity.
const MaxSize = 10

// Entry is a queued ticket.
type Entry struct {
	ID        string          `json:"id"`
	Ticket    railpass.Ticket `json:"ticket"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Queue is an insertion-ordered list of at most MaxSize entries. The zero
// value is an empty queue.
type Queue struct {
	entries []Entry
}

// Of builds a queue from entries. More than MaxSize entries is refused
// with railpass.ErrQueueFull and an empty queue; nothing is truncated.
func Of(entries ...Entry) (Queue, error) {
	if len(entries) > MaxSize {
		return Queue{}, railpass.NewError("queue", "", fmt.Errorf("%w: %d entries given, at most %d tickets", railpass.ErrQueueFull, len(entries), MaxSize))
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return Queue{entries: out}, nil
}

// Len returns the number of entries.
func (q Queue) Len() int { return len(q.entries) }

// Full reports whether another Add would be rejected.
func (q Queue) Full() bool { return len(q.entries) >= MaxSize }

// Entries returns a copy of the entries in insertion order.
func (q Queue) Entries() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Tickets returns the queued tickets in insertion order.
func (q Queue) Tickets() []railpass.Ticket {
	out := make([]railpass.Ticket, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.Ticket
	}
	return out
}

// Get returns the entry with id.
func (q Queue) Get(id string) (Entry, bool) {
	for _, e := range q.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Add returns a queue with e appended. A full queue is returned unchanged
// together with railpass.ErrQueueFull; nothing is evicted.
func (q Queue) Add(e Entry) (Queue, error) {
	if q.Full() {
		return q, railpass.NewError("queue", "", fmt.Errorf("%w: at most %d tickets", railpass.ErrQueueFull, MaxSize))
	}
	next := make([]Entry, len(q.entries), len(q.entries)+1)
	copy(next, q.entries)
	return Queue{entries: append(next, e)}, nil
}

// Remove returns a queue without the entry carrying id. Unknown ids are a
// no-op.
func (q Queue) Remove(id string) Queue {
	next := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if e.ID != id {
			next = append(next, e)
		}
	}
	return Queue{entries: next}
}

// Clear returns an empty queue.
func (q Queue) Clear() Queue {
	return Queue{}
}
