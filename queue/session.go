package queue

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass"
)

// ErrIncomplete is returned when a ticket without a ticket number or a
// route is generated.
var ErrIncomplete = errors.New("queue: ticket number, departure and arrival are required")

// Session owns a State and serialises dispatch. Entry ids are UUIDv7, so
// they sort by creation time.
type Session struct {
	mu     sync.Mutex
	state  State
	now    func() time.Time
	logger *logrus.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithState starts the session from st instead of Initial().
func WithState(st State) Option {
	return func(s *Session) {
		s.state = st
	}
}

// NewSession returns a session in the initial state.
func NewSession(opts ...Option) *Session {
	l := logrus.New()
	l.SetOutput(io.Discard)
	s := &Session{
		state:  Initial(),
		now:    time.Now,
		logger: l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a and returns the new state.
func (s *Session) Dispatch(a Action) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, a)
	return s.state
}

// Edit replaces the form record.
func (s *Session) Edit(t railpass.Ticket) State {
	return s.Dispatch(Edit{Ticket: t})
}

// Generate queues the current form record under a fresh id.
func (s *Session) Generate() (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked()
}

// Add replaces the form with t and queues it, as a user filling in the form
// and pressing generate would.
func (s *Session) Add(t railpass.Ticket) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, Edit{Ticket: t})
	return s.generateLocked()
}

func (s *Session) generateLocked() (Entry, error) {
	if !s.state.Form.HasRoute() {
		return Entry{}, ErrIncomplete
	}
	if s.state.Queue.Full() {
		s.state = Reduce(s.state, Generate{})
		s.logger.WithField("size", s.state.Queue.Len()).Warn("queue full, ticket rejected")
		return Entry{}, railpass.NewError("queue", "", railpass.ErrQueueFull)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Entry{}, err
	}
	s.state = Reduce(s.state, Generate{ID: id.String(), At: s.now()})
	e, _ := s.state.Queue.Get(id.String())
	s.logger.WithFields(logrus.Fields{
		"id":    e.ID,
		"route": e.Ticket.Route(),
		"size":  s.state.Queue.Len(),
	}).Debug("ticket queued")
	return e, nil
}

// Remove drops the entry with id and reports whether it was queued.
func (s *Session) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.state.Queue.Len()
	s.state = Reduce(s.state, Remove{ID: id})
	return s.state.Queue.Len() < before
}

// Preview loads the entry with id into the form and reports whether it
// exists.
func (s *Session) Preview(id string) (railpass.Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.Queue.Get(id); !ok {
		return railpass.Ticket{}, false
	}
	s.state = Reduce(s.state, Preview{ID: id})
	return s.state.Form, true
}

// Clear empties the queue.
func (s *Session) Clear() {
	s.Dispatch(Clear{})
}

// Tickets returns the queued tickets in insertion order.
func (s *Session) Tickets() []railpass.Ticket {
	return s.State().Queue.Tickets()
}
