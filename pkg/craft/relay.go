package craft

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ErrSessionAborted is returned when the consumer of a stream went away, e.g.
// the HTTP client disconnected.
var ErrSessionAborted = errors.New("session aborted")

// chunkQueue is an unbounded FIFO between the stream reader and the
// forwarder. push never blocks, pop waits for a chunk or close.
type chunkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []string
	closed bool
}

func newChunkQueue() *chunkQueue {
	q := &chunkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *chunkQueue) push(chunk string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, chunk)
	q.cond.Signal()
}

// close lets pop drain what is queued and then report the end.
func (q *chunkQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *chunkQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return "", false
	}
	chunk := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return chunk, true
}

// Relay forwards every chunk of stream to sink as a chunk event, in order,
// and returns the concatenated text once the stream ends.
//
// Reading and forwarding run in separate goroutines joined by an unbounded
// queue, so the stream is read at the generator's pace whatever the sink
// does. A slow sink only holds back forwarding. If ctx ends first the buffer
// is discarded and ctx.Err() is returned. A failing sink yields
// ErrSessionAborted, a failing stream a *generator.GeneratorError.
func Relay(ctx context.Context, stream generator.ChunkStream, sink events.Sink) (string, error) {
	eg, gctx := errgroup.WithContext(ctx)
	queue := newChunkQueue()
	// unblocks a Recv stuck on the network and a pop waiting for chunks once
	// either side gives up
	stop := context.AfterFunc(gctx, func() {
		_ = stream.Close()
		queue.close()
	})
	defer stop()

	buffer := &strings.Builder{}

	eg.Go(func() error {
		defer queue.close()
		for {
			chunk, err := stream.Recv()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return asGeneratorError(err)
			}
			if chunk == "" {
				continue
			}
			buffer.WriteString(chunk)
			queue.push(chunk)
		}
	})

	eg.Go(func() error {
		for {
			chunk, ok := queue.pop()
			if !ok {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := sink.Send(gctx, events.NewChunkEvent(chunk)); err != nil {
				if gctx.Err() != nil && ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.Wrapf(ErrSessionAborted, "could not forward chunk: %v", err)
			}
		}
	})

	err := eg.Wait()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return buffer.String(), nil
}

func asGeneratorError(err error) error {
	var genErr *generator.GeneratorError
	if errors.As(err, &genErr) {
		return genErr
	}
	return generator.NewGeneratorError("stream", err)
}
