package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-go-golems/cauldron/pkg/generator"
)

const ProviderName = "mock"

// Generator replays scripted chunks. It is used by tests and by the mock
// provider, which lets the server run without an API key.
type Generator struct {
	// Chunks are returned in order, one per Recv.
	Chunks []string
	// StreamErr is returned after all chunks instead of io.EOF.
	StreamErr error
	// OpenErr makes Generate fail before any stream is opened.
	OpenErr error
	// Delay is waited before each chunk.
	Delay time.Duration
	// Hang blocks after the last chunk until the context is done.
	Hang bool

	mu      sync.Mutex
	prompts []generator.Prompt
}

func New(chunks ...string) *Generator {
	return &Generator{Chunks: chunks}
}

func (g *Generator) Generate(ctx context.Context, prompt generator.Prompt) (generator.ChunkStream, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.OpenErr != nil {
		return nil, generator.NewGeneratorError(ProviderName, g.OpenErr)
	}
	chunks := make([]string, len(g.Chunks))
	copy(chunks, g.Chunks)
	return &stream{
		ctx:       ctx,
		chunks:    chunks,
		streamErr: g.StreamErr,
		delay:     g.Delay,
		hang:      g.Hang,
		closed:    make(chan struct{}),
	}, nil
}

// Calls returns how many times Generate was called.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *Generator) Prompts() []generator.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	ret := make([]generator.Prompt, len(g.prompts))
	copy(ret, g.prompts)
	return ret
}

var _ generator.Generator = (*Generator)(nil)

type stream struct {
	ctx       context.Context
	chunks    []string
	streamErr error
	delay     time.Duration
	hang      bool

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *stream) wait(d time.Duration) error {
	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}
	select {
	case <-timer:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-s.closed:
		return io.ErrClosedPipe
	}
}

func (s *stream) Recv() (string, error) {
	if len(s.chunks) > 0 {
		if s.delay > 0 {
			if err := s.wait(s.delay); err != nil {
				return "", err
			}
		} else if err := s.ctx.Err(); err != nil {
			return "", err
		}
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		return chunk, nil
	}

	if s.hang {
		return "", s.wait(0)
	}
	if s.streamErr != nil {
		return "", generator.NewGeneratorError(ProviderName, s.streamErr)
	}
	return "", io.EOF
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	return nil
}
