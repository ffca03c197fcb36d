package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/lvillar/railpass"
)

func entry(i int) Entry {
	t := railpass.DefaultTicket()
	t.TicketNumber = fmt.Sprintf("D%06d", i)
	return Entry{ID: fmt.Sprint(i), Ticket: t}
}

func TestQueueBound(t *testing.T) {
	var q Queue
	for i := 0; i < MaxSize; i++ {
		var err error
		q, err = q.Add(entry(i))
		if err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	got, err := q.Add(entry(MaxSize))
	if !errors.Is(err, railpass.ErrQueueFull) {
		t.Fatalf("11th Add error = %v", err)
	}
	if got.Len() != MaxSize {
		t.Fatalf("len after rejected add = %d", got.Len())
	}
	if e := got.Entries()[0]; e.ID != "0" {
		t.Fatalf("oldest entry evicted, first is %q", e.ID)
	}
}

func TestQueueImmutable(t *testing.T) {
	q1, _ := Queue{}.Add(entry(1))
	q2, _ := q1.Add(entry(2))
	q3 := q2.Remove("1")
	q4 := q3.Clear()

	if q1.Len() != 1 || q2.Len() != 2 || q3.Len() != 1 || q4.Len() != 0 {
		t.Fatalf("lengths = %d %d %d %d", q1.Len(), q2.Len(), q3.Len(), q4.Len())
	}
	if _, ok := q3.Get("2"); !ok {
		t.Fatal("Remove dropped the wrong entry")
	}

	es := q2.Entries()
	es[0].ID = "mutated"
	if _, ok := q2.Get("1"); !ok {
		t.Fatal("Entries exposed internal storage")
	}
}

func TestQueueRemoveUnknown(t *testing.T) {
	q, _ := Queue{}.Add(entry(1))
	if q.Remove("nope").Len() != 1 {
		t.Fatal("unknown id removed something")
	}
}

func TestQueueOf(t *testing.T) {
	var es []Entry
	for i := 0; i < MaxSize+3; i++ {
		es = append(es, entry(i))
	}
	q, err := Of(es[:MaxSize]...)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != MaxSize || !q.Full() {
		t.Fatalf("Of kept %d entries", q.Len())
	}
	es[0].ID = "changed"
	if e, _ := q.Get("changed"); e.ID != "" {
		t.Fatal("Of shares the caller's slice")
	}

	q, err = Of(es...)
	if !errors.Is(err, railpass.ErrQueueFull) {
		t.Fatalf("Of(%d entries) error = %v, want ErrQueueFull", len(es), err)
	}
	if q.Len() != 0 {
		t.Fatalf("overflowing Of kept %d entries", q.Len())
	}
}

func TestReduceEdit(t *testing.T) {
	s := Reduce(State{}, Edit{Ticket: railpass.Ticket{ArrivalStation: "天津"}})
	if !s.Previewing {
		t.Fatal("edit with a station should preview")
	}
	s = Reduce(s, Edit{Ticket: railpass.Ticket{PassengerName: "x"}})
	if s.Previewing {
		t.Fatal("edit without number or stations should not preview")
	}
	if s.Form.ArrivalStation != "" {
		t.Fatal("edit must replace the whole record")
	}
}

func TestReduceGenerate(t *testing.T) {
	at := time.Date(2024, 6, 22, 11, 44, 0, 0, time.UTC)
	s := Reduce(Initial(), Generate{ID: "a", At: at})
	if s.Queue.Len() != 1 {
		t.Fatalf("queue len = %d", s.Queue.Len())
	}
	e, _ := s.Queue.Get("a")
	if !e.CreatedAt.Equal(at) || e.Ticket != railpass.DefaultTicket() {
		t.Fatalf("entry = %+v", e)
	}

	incomplete := Reduce(State{Form: railpass.Ticket{TicketNumber: "X"}}, Generate{ID: "b"})
	if incomplete.Queue.Len() != 0 {
		t.Fatal("ticket without a route was queued")
	}
}

func TestReduceGenerateFull(t *testing.T) {
	s := Initial()
	for i := 0; i < MaxSize; i++ {
		s = Reduce(s, Generate{ID: fmt.Sprint(i)})
	}
	before := s
	s = Reduce(s, Generate{ID: "overflow"})
	if s.Queue.Len() != MaxSize {
		t.Fatalf("len = %d", s.Queue.Len())
	}
	if s.Notice != FullNotice {
		t.Fatalf("notice = %q", s.Notice)
	}
	if before.Notice != "" {
		t.Fatal("Reduce modified its input")
	}
	if s = Reduce(s, Remove{ID: "0"}); s.Notice != "" || s.Queue.Len() != MaxSize-1 {
		t.Fatalf("after remove: notice %q len %d", s.Notice, s.Queue.Len())
	}
}

func TestReducePreviewAndClear(t *testing.T) {
	s := Reduce(Initial(), Generate{ID: "a"})
	s = Reduce(s, Edit{Ticket: railpass.Ticket{}})
	s = Reduce(s, Preview{ID: "a"})
	if s.Form != railpass.DefaultTicket() || !s.Previewing {
		t.Fatalf("preview did not load entry: %+v", s.Form)
	}
	s = Reduce(s, Clear{})
	if s.Queue.Len() != 0 {
		t.Fatal("clear left entries")
	}
}

func TestSessionGenerate(t *testing.T) {
	at := time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC)
	logger, hook := test.NewNullLogger()
	s := NewSession(WithClock(func() time.Time { return at }), WithLogger(logger))

	e, err := s.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	id, err := uuid.Parse(e.ID)
	if err != nil || id.Version() != 7 {
		t.Fatalf("id %q is not a UUIDv7: %v", e.ID, err)
	}
	if !e.CreatedAt.Equal(at) {
		t.Fatalf("created at %v", e.CreatedAt)
	}

	for i := 1; i < MaxSize; i++ {
		if _, err := s.Generate(); err != nil {
			t.Fatalf("Generate #%d: %v", i, err)
		}
	}
	if _, err := s.Generate(); !errors.Is(err, railpass.ErrQueueFull) {
		t.Fatalf("error = %v", err)
	}
	if st := s.State(); st.Queue.Len() != MaxSize || st.Notice != FullNotice {
		t.Fatalf("state after overflow: len %d notice %q", st.Queue.Len(), st.Notice)
	}
	if last := hook.LastEntry(); last == nil || last.Level != logrus.WarnLevel {
		t.Fatalf("expected a warning, got %+v", last)
	}
}

func TestSessionAddIncomplete(t *testing.T) {
	s := NewSession()
	if _, err := s.Add(railpass.Ticket{TicketNumber: "X"}); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("error = %v", err)
	}
	if s.State().Queue.Len() != 0 {
		t.Fatal("incomplete ticket queued")
	}
}

func TestSessionRemovePreview(t *testing.T) {
	s := NewSession()
	rec := railpass.DefaultTicket()
	rec.TrainNumber = "G1"
	e, err := s.Add(rec)
	if err != nil {
		t.Fatal(err)
	}
	s.Edit(railpass.Ticket{})
	got, ok := s.Preview(e.ID)
	if !ok || got.TrainNumber != "G1" {
		t.Fatalf("Preview = %+v, %v", got, ok)
	}
	if _, ok := s.Preview("nope"); ok {
		t.Fatal("Preview of unknown id succeeded")
	}
	if !s.Remove(e.ID) || s.Remove(e.ID) {
		t.Fatal("Remove should succeed once")
	}
}

func TestSessionConcurrentAdd(t *testing.T) {
	s := NewSession()
	var wg sync.WaitGroup
	var mu sync.Mutex
	full := 0
	for i := 0; i < 2*MaxSize; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Add(railpass.DefaultTicket()); errors.Is(err, railpass.ErrQueueFull) {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if n := len(s.Tickets()); n != MaxSize || full != MaxSize {
		t.Fatalf("queued %d, rejected %d", n, full)
	}
}
