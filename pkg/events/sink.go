package events

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Sink is the output channel of a stream session. Send suspends until the
// consumer has taken the event or ctx is done, which is how backpressure
// reaches the producer. Close is idempotent.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

var ErrSinkClosed = errors.New("sink closed")

// ChannelSink delivers events over a Go channel. With an unbuffered channel
// every Send waits for the reader.
type ChannelSink struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events is closed once the sink is closed.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Send(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

var _ Sink = (*ChannelSink)(nil)

// RecordingSink keeps every event in memory. Useful for tests and for callers
// that only care about the terminal event.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
	closed int
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Send(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return ErrSinkClosed
	}
	s.events = append(s.events, e)
	return nil
}

func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Event, len(s.events))
	copy(ret, s.events)
	return ret
}

// Closed reports whether Close was called at least once.
func (s *RecordingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed > 0
}

// Last returns the most recent event, or nil.
func (s *RecordingSink) Last() Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

var _ Sink = (*RecordingSink)(nil)
