package turn

import "sync"

// Event kinds. A stream carries zero or more token events followed by
// exactly one terminal event (answer, clarification or error), after which
// the channel is closed.
type EventKind string

const (
	EventToken         EventKind = "token"
	EventAnswer        EventKind = "answer"
	EventClarification EventKind = "clarification"
	EventError         EventKind = "error"
)

// Event is one frame on a turn's output stream.
type Event struct {
	Kind          EventKind      `json:"kind"`
	Token         string         `json:"token,omitempty"`
	Answer        *Answer        `json:"answer,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Terminal reports whether this event ends the stream.
func (e Event) Terminal() bool {
	return e.Kind != EventToken
}

// Stream is the bounded single-producer channel a turn writes its output to.
// Writes block when the consumer lags, which is the backpressure mechanism:
// the producer never buffers unboundedly and never drops frames. After the
// terminal event any further writes are discarded.
type Stream struct {
	ch chan Event

	mu   sync.Mutex
	done bool
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &Stream{ch: make(chan Event, buffer)}
}

// Events is the consumer side. The channel closes after the terminal event.
func (s *Stream) Events() <-chan Event { return s.ch }

// Token emits one answer fragment. Tokens arriving after the terminal event
// are dropped.
func (s *Stream) Token(t string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.ch <- Event{Kind: EventToken, Token: t}
}

// Answer terminates the stream with the aggregated answer.
func (s *Stream) Answer(a Answer) {
	s.terminate(Event{Kind: EventAnswer, Answer: &a})
}

// Clarify terminates the stream with a clarification request.
func (s *Stream) Clarify(c Clarification) {
	s.terminate(Event{Kind: EventClarification, Clarification: &c})
}

// Fail terminates the stream with an error message.
func (s *Stream) Fail(msg string) {
	s.terminate(Event{Kind: EventError, Error: msg})
}

func (s *Stream) terminate(e Event) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.ch <- e
	close(s.ch)
}
