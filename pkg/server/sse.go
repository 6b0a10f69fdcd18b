package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/pkg/errors"
)

// SSESink writes events to an HTTP response as server-sent events. Headers
// are written with the first event, so a handler can still answer with a
// plain JSON error while nothing has been sent.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	started bool
	closed  bool
}

func NewSSESink(w http.ResponseWriter) *SSESink {
	flusher, _ := w.(http.Flusher)
	return &SSESink{w: w, flusher: flusher}
}

func (s *SSESink) Send(ctx context.Context, e events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "could not encode %s event", e.Type())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return events.ErrSinkClosed
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return errors.Wrap(err, "could not write event")
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *SSESink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Started reports whether the event stream headers have been written.
func (s *SSESink) Started() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

var _ events.Sink = (*SSESink)(nil)
