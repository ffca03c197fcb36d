package queue

import (
	"fmt"
	"time"

	"github.com/lvillar/railpass"
)

// FullNotice is shown when a ticket is generated into a full queue.
var FullNotice = fmt.Sprintf("候补列表已满，最多只能添加%d张车票", MaxSize)

// State is one snapshot of the form, the queue and the preview flag.
type State struct {
	Form       railpass.Ticket
	Queue      Queue
	Previewing bool
	// Notice is a transient user message set by the last action, if any.
	Notice string
}

// Initial returns the state a new session starts in.
func Initial() State {
	form := railpass.DefaultTicket()
	return State{Form: form, Previewing: showsPreview(form)}
}

// Action is a state transition understood by Reduce.
type Action interface {
	action()
}

// Edit replaces the whole form record.
type Edit struct {
	Ticket railpass.Ticket
}

// Generate queues the current form record under ID.
type Generate struct {
	ID string
	At time.Time
}

// Remove drops a queued entry.
type Remove struct {
	ID string
}

// Preview loads a queued entry back into the form.
type Preview struct {
	ID string
}

// Clear empties the queue.
type Clear struct{}

func (Edit) action()     {}
func (Generate) action() {}
func (Remove) action()   {}
func (Preview) action()  {}
func (Clear) action()    {}

// Reduce returns the state that follows s after a. It never modifies s.
func Reduce(s State, a Action) State {
	s.Notice = ""
	switch a := a.(type) {
	case Edit:
		s.Form = a.Ticket
		s.Previewing = showsPreview(a.Ticket)
	case Generate:
		if !s.Form.HasRoute() {
			return s
		}
		q, err := s.Queue.Add(Entry{ID: a.ID, Ticket: s.Form, CreatedAt: a.At})
		if err != nil {
			s.Notice = FullNotice
			return s
		}
		s.Queue = q
		s.Previewing = true
	case Remove:
		s.Queue = s.Queue.Remove(a.ID)
	case Preview:
		if e, ok := s.Queue.Get(a.ID); ok {
			s.Form = e.Ticket
			s.Previewing = true
		}
	case Clear:
		s.Queue = s.Queue.Clear()
	}
	return s
}

// showsPreview reports whether the form carries enough to draw a preview.
func showsPreview(t railpass.Ticket) bool {
	return t.TicketNumber != "" || t.DepartureStation != "" || t.ArrivalStation != ""
}
