package narration

import (
	"context"
	"time"

	"github.com/go-go-golems/cauldron/pkg/craft"
	"github.com/go-go-golems/cauldron/pkg/events"
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/go-go-golems/cauldron/pkg/prompts"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout = 30 * time.Second
	// narration is short and does not need the recipe token budget
	DefaultMaxTokens = 400
)

// Narrator streams NPC dialogue and scene narration. Unlike crafting nothing
// is cached or extracted: the stream ends with the whole text.
type Narrator struct {
	generator   generator.Generator
	timeout     time.Duration
	maxTokens   int
	temperature *float64
}

type Option func(*Narrator)

func WithTimeout(timeout time.Duration) Option {
	return func(n *Narrator) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(n *Narrator) {
		n.maxTokens = maxTokens
	}
}

func WithTemperature(temperature float64) Option {
	return func(n *Narrator) {
		n.temperature = &temperature
	}
}

func NewNarrator(gen generator.Generator, options ...Option) *Narrator {
	n := &Narrator{
		generator: gen,
		timeout:   DefaultTimeout,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range options {
		o(n)
	}
	return n
}

// Dialogue streams the reply of req.Persona to the player message. The sink
// is closed before Dialogue returns.
func (n *Narrator) Dialogue(ctx context.Context, req DialogueRequest, sink events.Sink) (string, error) {
	defer func() {
		_ = sink.Close()
	}()
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Persona.Name == "" {
		req.Persona = DefaultPersona
	}

	system, err := prompts.Render("dialogue-system", req)
	if err != nil {
		return "", err
	}
	user, err := prompts.Render("dialogue-user", req)
	if err != nil {
		return "", err
	}

	logger := log.With().Str("session", ulid.Make().String()).Str("kind", "dialogue").Logger()
	logger.Debug().Object("request", req).Msg("Starting dialogue")
	return n.run(ctx, logger, generator.Prompt{System: system, User: user}, sink, "Failed to generate dialogue")
}

// Narrate streams a narration of req.Scene. The sink is closed before Narrate
// returns.
func (n *Narrator) Narrate(ctx context.Context, req NarrationRequest, sink events.Sink) (string, error) {
	defer func() {
		_ = sink.Close()
	}()
	if err := req.Validate(); err != nil {
		return "", err
	}

	system, err := prompts.Render("narration-system", req)
	if err != nil {
		return "", err
	}
	user, err := prompts.Render("narration-user", req)
	if err != nil {
		return "", err
	}

	logger := log.With().Str("session", ulid.Make().String()).Str("kind", "narration").Logger()
	logger.Debug().Object("request", req).Msg("Starting narration")
	return n.run(ctx, logger, generator.Prompt{System: system, User: user}, sink, "Failed to generate narration")
}

func (n *Narrator) run(
	ctx context.Context,
	logger zerolog.Logger,
	prompt generator.Prompt,
	sink events.Sink,
	failureMessage string,
) (string, error) {
	prompt.MaxTokens = n.maxTokens
	prompt.Temperature = n.temperature

	buffer, err := n.stream(ctx, prompt, sink)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			logger.Info().Err(ctx.Err()).Msg("Client went away during narration")
			return "", errors.Wrap(craft.ErrSessionAborted, ctx.Err().Error())
		case errors.Is(err, craft.ErrSessionAborted):
			return "", err
		case errors.Is(err, context.DeadlineExceeded):
			return "", n.fail(ctx, logger, sink, err, "generation timed out")
		default:
			return "", n.fail(ctx, logger, sink, err, failureMessage)
		}
	}

	text := PlainText(buffer)
	if err := sink.Send(ctx, events.NewFinalEvent(text)); err != nil {
		return "", errors.Wrapf(craft.ErrSessionAborted, "could not send final text: %v", err)
	}
	logger.Debug().Int("length", len(text)).Msg("Narration done")
	return text, nil
}

func (n *Narrator) stream(ctx context.Context, prompt generator.Prompt, sink events.Sink) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	stream, err := n.generator.Generate(genCtx, prompt)
	if err != nil {
		if genCtx.Err() != nil {
			return "", genCtx.Err()
		}
		return "", err
	}
	defer func() {
		_ = stream.Close()
	}()
	return craft.Relay(genCtx, stream, sink)
}

// fail reports err as an error event. The returned error is non-nil only if
// the event could not be delivered.
func (n *Narrator) fail(ctx context.Context, logger zerolog.Logger, sink events.Sink, err error, message string) error {
	logger.Warn().Err(err).Str("message", message).Msg("Narration failed")
	if sendErr := sink.Send(ctx, events.NewErrorEvent(message)); sendErr != nil {
		return errors.Wrapf(craft.ErrSessionAborted, "could not send error event: %v", sendErr)
	}
	return nil
}
