package claude

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ProviderName = "claude"

	DefaultBaseURL    = "https://api.anthropic.com"
	DefaultModel      = "claude-3-5-sonnet-20241022"
	DefaultMaxTokens  = 1000
	defaultAPIVersion = "2023-06-01"
)

// Generator streams text from the Anthropic Messages API.
type Generator struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	apiVersion  string
	model       string
	maxTokens   int
	temperature *float64
}

type Option func(*Generator)

func WithBaseURL(baseURL string) Option {
	return func(g *Generator) {
		if baseURL != "" {
			g.baseURL = strings.TrimSuffix(baseURL, "/")
		}
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

func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		g.httpClient = client
	}
}

func New(apiKey string, options ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is required")
	}
	g := &Generator{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		apiVersion: defaultAPIVersion,
		model:      DefaultModel,
		maxTokens:  DefaultMaxTokens,
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

func (g *Generator) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", g.apiKey)
	req.Header.Set("anthropic-version", g.apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
}

func (g *Generator) Generate(ctx context.Context, prompt generator.Prompt) (generator.ChunkStream, error) {
	req := MessageRequest{
		Model:       g.model,
		Messages:    []Message{{Role: "user", Content: prompt.User}},
		System:      prompt.System,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      true,
	}
	if prompt.MaxTokens > 0 {
		req.MaxTokens = prompt.MaxTokens
	}
	if prompt.Temperature != nil {
		req.Temperature = prompt.Temperature
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "could not encode message request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, generator.NewGeneratorError(ProviderName, err)
	}
	g.setHeaders(httpReq)

	log.Debug().Str("model", req.Model).Object("prompt", prompt).Msg("Opening claude stream")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, generator.NewGeneratorError(ProviderName, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var errorResp ErrorResponse
		msg := strings.TrimSpace(string(respBody))
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error.Message != "" {
			msg = errorResp.Error.Type + ": " + errorResp.Error.Message
		}
		return nil, &generator.GeneratorError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}

	return &stream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

var _ generator.Generator = (*Generator)(nil)

// stream pulls SSE events off the response body on demand.
type stream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	done      bool
	closeOnce sync.Once
}

func (s *stream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		event, err := s.nextEvent()
		if err != nil {
			return "", err
		}

		switch event.Type {
		case ContentBlockDeltaType:
			if event.Delta != nil && event.Delta.Type == TextDeltaType && event.Delta.Text != "" {
				return event.Delta.Text, nil
			}
		case MessageStopType:
			s.done = true
			return "", io.EOF
		case ErrorType:
			msg := "unknown stream error"
			if event.Error != nil {
				msg = event.Error.Type + ": " + event.Error.Message
			}
			return "", generator.NewGeneratorError(ProviderName, errors.New(msg))
		case PingType, MessageStartType, ContentBlockStartType, ContentBlockStopType, MessageDeltaType:
		default:
			log.Debug().Object("event", event).Msg("Ignoring unknown claude stream event")
		}
	}
}

// nextEvent reads lines up to the next blank line and decodes the data field.
func (s *stream) nextEvent() (*StreamingEvent, error) {
	var data []string
	for {
		line, err := s.reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		if trimmed == "" && len(data) > 0 {
			return parseData(data)
		}
		if strings.HasPrefix(trimmed, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(trimmed, "data:"), " "))
		}

		if err != nil {
			if err == io.EOF {
				if len(data) > 0 {
					return parseData(data)
				}
				return nil, generator.NewGeneratorError(ProviderName, io.ErrUnexpectedEOF)
			}
			return nil, generator.NewGeneratorError(ProviderName, err)
		}
	}
}

func parseData(data []string) (*StreamingEvent, error) {
	event := &StreamingEvent{}
	if err := json.Unmarshal([]byte(strings.Join(data, "\n")), event); err != nil {
		return nil, generator.NewGeneratorError(ProviderName, errors.Wrap(err, "could not decode stream event"))
	}
	return event, nil
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
