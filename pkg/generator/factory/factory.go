package factory

import (
	"github.com/go-go-golems/cauldron/pkg/generator"
	"github.com/go-go-golems/cauldron/pkg/generator/claude"
	"github.com/go-go-golems/cauldron/pkg/generator/gemini"
	"github.com/go-go-golems/cauldron/pkg/generator/mock"
	"github.com/go-go-golems/cauldron/pkg/generator/openai"
	"github.com/go-go-golems/cauldron/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// MockRecipe is what the mock provider streams, so the server can be run end
// to end without credentials.
var MockRecipe = []string{
	"The cauldron hums.\n",
	`{"steps": [{"type": "heat", "description": "Heat ramp to 60°C", "temperature": 60}, `,
	`{"type": "mix", "description": "Stir slowly until the surface glimmers"}], `,
	`"result": {"name": "Placeholder Tonic", "rarity": 1, "effects": ["mild warmth"]}}`,
}

// NewGenerator builds the generator named by s.Provider.
func NewGenerator(s *settings.Settings) (generator.Generator, error) {
	log.Debug().Str("provider", s.Provider).Str("model", s.Model).Msg("Creating generator")

	switch s.Provider {
	case claude.ProviderName:
		return claude.New(s.AnthropicAPIKey,
			claude.WithBaseURL(s.AnthropicBaseURL),
			claude.WithModel(s.Model),
			claude.WithMaxTokens(s.MaxTokens),
			claude.WithTemperature(s.Temperature),
		)
	case openai.ProviderName:
		return openai.New(s.OpenAIAPIKey, s.OpenAIBaseURL,
			openai.WithModel(s.Model),
			openai.WithMaxTokens(s.MaxTokens),
			openai.WithTemperature(s.Temperature),
		)
	case gemini.ProviderName:
		return gemini.New(s.GeminiAPIKey,
			gemini.WithBaseURL(s.GeminiBaseURL),
			gemini.WithModel(s.Model),
			gemini.WithMaxTokens(s.MaxTokens),
			gemini.WithTemperature(s.Temperature),
		)
	case mock.ProviderName:
		return mock.New(MockRecipe...), nil
	default:
		return nil, errors.Errorf("unknown provider %q", s.Provider)
	}
}
