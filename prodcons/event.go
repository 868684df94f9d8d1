package prodcons

import (
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/creachadair/mds/value"
)

// Kind identifies which task emitted an [Event].
type Kind int

const (
	Produced Kind = iota + 1 // the producer stored an item
	Consumed                 // the consumer removed an item
)

func (k Kind) String() string {
	switch k {
	case Produced:
		return "produce"
	case Consumed:
		return "consume"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// An Event is a notification from the producer or consumer task.
type Event struct {
	Kind Kind
	Seq  int // iteration index of the emitting task, from 1
	Item int
}

// String renders e as a line of console output, for example
// "producer produce item 7".
func (e Event) String() string {
	switch e.Kind {
	case Produced:
		return fmt.Sprintf("producer produce item %d", e.Item)
	case Consumed:
		return fmt.Sprintf("consumer consume item %d", e.Item)
	default:
		return fmt.Sprintf("%v item %d", e.Kind, e.Item)
	}
}

// A Sink receives the events emitted by the tasks. Notify is called while
// the channel lock is held, so the events a sink sees are in the order the
// slot changed state.
type Sink interface {
	Notify(Event)
}

// SinkFunc adapts a function to a [Sink].
type SinkFunc func(Event)

// Notify calls f(e).
func (f SinkFunc) Notify(e Event) { f(e) }

// Discard is a [Sink] that ignores all events.
var Discard Sink = SinkFunc(func(Event) {})

// Tee returns a [Sink] that delivers each event to all of sinks in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Notify(e)
		}
	})
}

// A WriterSink writes one line per event to an [io.Writer]. After the first
// write error, further events are dropped and the error is reported by Err.
type WriterSink struct {
	μ   sync.Mutex
	w   io.Writer
	err error
}

// NewWriterSink constructs a [WriterSink] that writes to w.
func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

// Notify writes e to the underlying writer.
func (s *WriterSink) Notify(e Event) {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.err == nil {
		_, s.err = fmt.Fprintln(s.w, e)
	}
}

// Err reports the first error from writing, or nil.
func (s *WriterSink) Err() error {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.err
}

// A Recorder is a [Sink] that keeps the events it receives in order.
// A zero Recorder is ready for use, but must not be copied after first use.
type Recorder struct {
	μ      sync.Mutex
	events []Event
}

// Notify appends e to the recording.
func (r *Recorder) Notify(e Event) {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the events recorded so far.
func (r *Recorder) Events() []Event {
	r.μ.Lock()
	defer r.μ.Unlock()
	return slices.Clone(r.events)
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.events = nil
}

// TraceError is the concrete type of errors reported by [Check].
type TraceError struct {
	Pos    int // offset in the trace where the problem was found
	Reason string
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("trace position %d: %s", e.Pos, e.Reason)
}

// Check reports whether events is a complete trace of an exchange of n
// items, as recorded by a [Sink] attached to [Run]. In a valid trace the
// producer and consumer strictly alternate, starting with the producer, and
// the k-th event of each task carries Item(k). If the trace is invalid,
// Check returns a *[TraceError] describing the first problem. A negative n
// is reported as [ErrCount].
func Check(events []Event, n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d", ErrCount, n)
	}
	for i, e := range events {
		seq := i/2 + 1
		want := Event{Kind: value.Cond(i%2 == 0, Produced, Consumed), Seq: seq, Item: Item(seq)}
		if seq > n {
			return &TraceError{Pos: i, Reason: fmt.Sprintf("unexpected event %q after %d items", e, n)}
		} else if e != want {
			return &TraceError{Pos: i, Reason: fmt.Sprintf("got %q (seq %d), want %q (seq %d)", e, e.Seq, want, want.Seq)}
		}
	}
	if len(events) < 2*n {
		return &TraceError{Pos: len(events), Reason: fmt.Sprintf("got %d events, want %d", len(events), 2*n)}
	}
	return nil
}
