package craft

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/cauldron/pkg/cache"
	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/go-go-golems/cauldron/pkg/recipes"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateStart      State = "start"
	StateCacheCheck State = "cache_check"
	StateReplay     State = "replay"
	StateGenerating State = "generating"
	StateExtracting State = "extracting"
	StateStore      State = "store"
	StateError      State = "error"
	StateDone       State = "done"
)

const DefaultTimeout = 60 * time.Second

const (
	messageGenerationFailed = "Failed to generate recipe"
	messageTimedOut         = "generation timed out"
	messageParseFailed      = "Failed to parse recipe"
)

// PromptBuilder renders the generator prompt for a craft request.
type PromptBuilder interface {
	Build(req recipes.Request) (generator.Prompt, error)
}

// Result describes how a craft session ended.
type Result struct {
	SessionID   string
	Fingerprint string
	Recipe      *recipes.Recipe
	Cached      bool
	// Trace lists the states the session went through, in order.
	Trace []State
	// Err is the failure reported to the client in the error event, if any.
	Err error
}

func (r *Result) State() State {
	if len(r.Trace) == 0 {
		return StateStart
	}
	return r.Trace[len(r.Trace)-1]
}

func (r *Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("session", r.SessionID)
	e.Str("fingerprint", r.Fingerprint)
	e.Bool("cached", r.Cached)
	if r.Recipe != nil {
		e.Str("potion", r.Recipe.Outcome.Name)
	}
	if r.Err != nil {
		e.AnErr("reported_error", r.Err)
	}
}

// Coordinator runs craft sessions: it answers from the cache when it can and
// otherwise streams a fresh generation, extracts the recipe and stores it.
type Coordinator struct {
	store     cache.Store
	generator generator.Generator
	prompts   PromptBuilder
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Coordinator)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func NewCoordinator(store cache.Store, gen generator.Generator, prompts PromptBuilder, options ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		generator: gen,
		prompts:   prompts,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

type session struct {
	result *Result
	logger zerolog.Logger
	sink   events.Sink
}

func (s *session) transition(state State) {
	s.result.Trace = append(s.result.Trace, state)
	s.logger.Debug().Str("state", string(state)).Msg("Craft session transition")
}

// fail emits the terminal error event. A send failure means the client is
// gone and is reported as ErrSessionAborted.
func (s *session) fail(ctx context.Context, reported error, message string) error {
	s.transition(StateError)
	s.result.Err = reported
	s.logger.Warn().Err(reported).Str("message", message).Msg("Craft failed")
	if err := s.sink.Send(ctx, events.NewErrorEvent(message)); err != nil {
		return errors.Wrapf(ErrSessionAborted, "could not send error event: %v", err)
	}
	s.transition(StateDone)
	return nil
}

// Craft runs one session for req and writes its events to sink, which is
// closed before Craft returns. An invalid request is rejected with a
// *recipes.ValidationError before anything is sent, read or generated.
// Generation and extraction failures are reported to the sink and in
// Result.Err, not as the returned error.
func (c *Coordinator) Craft(ctx context.Context, req recipes.Request, sink events.Sink) (*Result, error) {
	defer func() {
		_ = sink.Close()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fingerprint := req.Fingerprint()
	s := &session{
		result: &Result{
			SessionID:   ulid.Make().String(),
			Fingerprint: fingerprint,
		},
		sink: sink,
	}
	s.logger = log.With().
		Str("session", s.result.SessionID).
		Str("fingerprint", fingerprint).
		Logger()
	s.transition(StateStart)
	s.logger.Debug().Object("request", req).Msg("Starting craft session")

	s.transition(StateCacheCheck)
	cached, ok, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		// a broken cache read is treated as a miss
		s.logger.Warn().Err(err).Msg("Cache lookup failed")
	}
	if ok {
		s.transition(StateReplay)
		s.result.Recipe = cached
		s.result.Cached = true
		if err := sink.Send(ctx, events.NewCompleteEvent(cached, true)); err != nil {
			return s.result, errors.Wrapf(ErrSessionAborted, "could not send cached recipe: %v", err)
		}
		s.transition(StateDone)
		s.logger.Info().Object("recipe", cached).Msg("Served cached recipe")
		return s.result, nil
	}

	s.transition(StateGenerating)
	buffer, err := c.generate(ctx, req, sink)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			s.transition(StateError)
			s.result.Err = ctx.Err()
			s.logger.Info().Err(ctx.Err()).Msg("Client went away during generation")
			return s.result, errors.Wrap(ErrSessionAborted, ctx.Err().Error())
		case errors.Is(err, ErrSessionAborted):
			s.transition(StateError)
			s.result.Err = err
			return s.result, err
		case errors.Is(err, context.DeadlineExceeded):
			return s.result, s.fail(ctx, err, messageTimedOut)
		default:
			return s.result, s.fail(ctx, err, messageGenerationFailed)
		}
	}

	s.transition(StateExtracting)
	doc, err := recipes.Extract(buffer)
	if err != nil {
		message := messageParseFailed
		var extractionErr *recipes.ExtractionError
		if errors.As(err, &extractionErr) {
			message = fmt.Sprintf("%s (%s)", messageParseFailed, extractionErr.Kind)
		}
		s.logger.Debug().Str("buffer", buffer).Msg("Unparseable generator output")
		return s.result, s.fail(ctx, err, message)
	}

	s.transition(StateStore)
	recipe := recipes.NewRecipe(fingerprint, req, doc, c.now())
	inserted, err := c.store.PutIfAbsent(ctx, fingerprint, recipe)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Msg("Could not store recipe")
	case !inserted:
		s.logger.Debug().Msg("Cache race lost, keeping the stored recipe and answering with the fresh one")
	}

	s.result.Recipe = recipe
	if err := sink.Send(ctx, events.NewCompleteEvent(recipe, false)); err != nil {
		return s.result, errors.Wrapf(ErrSessionAborted, "could not send recipe: %v", err)
	}
	s.transition(StateDone)
	s.logger.Info().Object("recipe", recipe).Msg("Crafted new recipe")
	return s.result, nil
}

// generate streams one generation through the relay, bounded by the
// coordinator timeout.
func (c *Coordinator) generate(ctx context.Context, req recipes.Request, sink events.Sink) (string, error) {
	prompt, err := c.prompts.Build(req)
	if err != nil {
		return "", errors.Wrap(err, "could not build prompt")
	}

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.generator.Generate(genCtx, prompt)
	if err != nil {
		if genCtx.Err() != nil {
			return "", genCtx.Err()
		}
		return "", err
	}
	defer func() {
		_ = stream.Close()
	}()

	return Relay(genCtx, stream, sink)
}
