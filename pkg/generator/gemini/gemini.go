package gemini

import (
	"context"
	"io"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	ProviderName     = "gemini"
	DefaultModel     = "gemini-1.5-flash"
	DefaultMaxTokens = 1000
)

// Generator streams from the Gemini API. A client is opened per Generate
// call and closed with the stream.
type Generator struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature *float64
}

type Option func(*Generator)

func WithBaseURL(baseURL string) Option {
	return func(g *Generator) {
		g.baseURL = baseURL
	}
}

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

func New(apiKey string, options ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is required")
	}
	g := &Generator{
		apiKey:    apiKey,
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

func (g *Generator) Generate(ctx context.Context, prompt generator.Prompt) (generator.ChunkStream, error) {
	opts := []option.ClientOption{option.WithAPIKey(g.apiKey)}
	if g.baseURL != "" {
		opts = append(opts, option.WithEndpoint(g.baseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, generator.NewGeneratorError(ProviderName, err)
	}

	model := client.GenerativeModel(g.model)
	if prompt.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt.System)}}
	}
	maxTokens := g.maxTokens
	if prompt.MaxTokens > 0 {
		maxTokens = prompt.MaxTokens
	}
	model.SetMaxOutputTokens(int32(maxTokens))
	temperature := g.temperature
	if prompt.Temperature != nil {
		temperature = prompt.Temperature
	}
	if temperature != nil {
		model.SetTemperature(float32(*temperature))
	}

	log.Debug().Str("model", g.model).Object("prompt", prompt).Msg("Opening gemini stream")

	return &stream{
		client: client,
		iter:   model.GenerateContentStream(ctx, genai.Text(prompt.User)),
	}, nil
}

var _ generator.Generator = (*Generator)(nil)

type stream struct {
	client    *genai.Client
	iter      *genai.GenerateContentResponseIterator
	pending   []string
	closeOnce sync.Once
}

func (s *stream) Recv() (string, error) {
	for len(s.pending) == 0 {
		resp, err := s.iter.Next()
		if err == iterator.Done || errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			ret := generator.NewGeneratorError(ProviderName, err)
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				ret.StatusCode = apiErr.Code
			}
			return "", ret
		}
		s.pending = textParts(resp)
	}

	chunk := s.pending[0]
	s.pending = s.pending[1:]
	return chunk, nil
}

func textParts(resp *genai.GenerateContentResponse) []string {
	var ret []string
	if resp == nil {
		return ret
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok && len(text) > 0 {
				ret = append(ret, string(text))
			}
		}
		// only the first candidate is streamed
		break
	}
	return ret
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.client.Close()
	})
	return err
}
