package openai

import (
	"context"
	"io"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderName     = "openai"
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1000
)

type Generator struct {
	client      *go_openai.Client
	model       string
	maxTokens   int
	temperature *float64
}

type Option func(*Generator)

func WithModel(model string) Option {
	return func(g *Generator) {
		if model != "" {
			g.model = model
		}
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(g *Generator) {
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

func WithTemperature(temperature float64) Option {
	return func(g *Generator) {
		g.temperature = &temperature
	}
}

// New builds a chat completion generator. baseURL may be empty to use the
// public endpoint.
func New(apiKey string, baseURL string, options ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	config := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	g := &Generator{
		client:    go_openai.NewClientWithConfig(config),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

func (g *Generator) Generate(ctx context.Context, prompt generator.Prompt) (generator.ChunkStream, error) {
	var messages []go_openai.ChatCompletionMessage
	if prompt.System != "" {
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: prompt.System,
		})
	}
	messages = append(messages, go_openai.ChatCompletionMessage{
		Role:    go_openai.ChatMessageRoleUser,
		Content: prompt.User,
	})

	req := go_openai.ChatCompletionRequest{
		Model:     g.model,
		Messages:  messages,
		MaxTokens: g.maxTokens,
		Stream:    true,
	}
	if prompt.MaxTokens > 0 {
		req.MaxTokens = prompt.MaxTokens
	}
	temperature := g.temperature
	if prompt.Temperature != nil {
		temperature = prompt.Temperature
	}
	if temperature != nil {
		req.Temperature = float32(*temperature)
	}

	log.Debug().Str("model", req.Model).Object("prompt", prompt).Msg("Opening openai stream")

	s, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}
	return &stream{stream: s}, nil
}

var _ generator.Generator = (*Generator)(nil)

func wrapError(err error) error {
	ret := generator.NewGeneratorError(ProviderName, err)
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		ret.StatusCode = apiErr.HTTPStatusCode
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) {
		ret.StatusCode = reqErr.HTTPStatusCode
	}
	return ret
}

type stream struct {
	stream    *go_openai.ChatCompletionStream
	closeOnce sync.Once
}

func (s *stream) Recv() (string, error) {
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", wrapError(err)
		}
		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.stream.Close()
	})
	return nil
}
