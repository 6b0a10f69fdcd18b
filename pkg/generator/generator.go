package generator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Prompt is a single-turn request to a text generator.
type Prompt struct {
	System string
	User   string

	// zero values fall back to the generator's defaults
	MaxTokens   int
	Temperature *float64
}

func (p Prompt) MarshalZerologObject(e *zerolog.Event) {
	e.Int("system_chars", len(p.System))
	e.Int("user_chars", len(p.User))
	if p.MaxTokens > 0 {
		e.Int("max_tokens", p.MaxTokens)
	}
	if p.Temperature != nil {
		e.Float64("temperature", *p.Temperature)
	}
}

// ChunkStream yields generated text in order. Recv returns io.EOF once the
// generator has finished. Close releases the underlying connection and may be
// called at any time, including before the stream ended.
type ChunkStream interface {
	Recv() (string, error)
	Close() error
}

type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (ChunkStream, error)
}

// GeneratorError reports a failure talking to a generator backend, either when
// opening the stream or while reading it.
type GeneratorError struct {
	Provider   string
	StatusCode int
	Err        error
}

func NewGeneratorError(provider string, err error) *GeneratorError {
	return &GeneratorError{Provider: provider, Err: err}
}

func (e *GeneratorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s generator failed (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s generator failed: %v", e.Provider, e.Err)
}

func (e *GeneratorError) Unwrap() error {
	return e.Err
}

func (e *GeneratorError) IsRateLimited() bool {
	return e.StatusCode == 429
}
