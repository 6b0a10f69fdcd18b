package settings

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-go-golems/cauldron/pkg/security"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultPort              = 3001
	DefaultAllowedOrigin     = "http://localhost:5173"
	DefaultProvider          = "claude"
	DefaultMaxTokens         = 1000
	DefaultTemperature       = 0.6
	DefaultGenerationTimeout = 60 * time.Second
	DefaultCacheBackend      = "memory"
	DefaultCacheSize         = 1000

	EnvPrefix = "cauldron"
)

// Settings is the decoded configuration of a cauldron process. Keys match the
// flag names, so the same names work in the config file and, upper-cased with
// the CAULDRON_ prefix, in the environment.
type Settings struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed-origins" yaml:"allowed-origins"`

	Provider          string        `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	MaxTokens         int           `mapstructure:"max-tokens" yaml:"max-tokens"`
	Temperature       float64       `mapstructure:"temperature" yaml:"temperature"`
	GenerationTimeout time.Duration `mapstructure:"generation-timeout" yaml:"generation-timeout"`

	CacheBackend string `mapstructure:"cache-backend" yaml:"cache-backend"`
	CachePath    string `mapstructure:"cache-path" yaml:"cache-path"`
	CacheSize    int    `mapstructure:"cache-size" yaml:"cache-size"`

	AnthropicAPIKey  string `mapstructure:"anthropic-api-key" yaml:"anthropic-api-key,omitempty"`
	AnthropicBaseURL string `mapstructure:"anthropic-base-url" yaml:"anthropic-base-url,omitempty"`
	OpenAIAPIKey     string `mapstructure:"openai-api-key" yaml:"openai-api-key,omitempty"`
	OpenAIBaseURL    string `mapstructure:"openai-base-url" yaml:"openai-base-url,omitempty"`
	GeminiAPIKey     string `mapstructure:"gemini-api-key" yaml:"gemini-api-key,omitempty"`
	GeminiBaseURL    string `mapstructure:"gemini-base-url" yaml:"gemini-base-url,omitempty"`

	// AllowLocalProviders lets base URLs use plain http and local networks.
	AllowLocalProviders bool `mapstructure:"allow-local-providers" yaml:"allow-local-providers"`
}

// AddFlags registers every setting on fs with its default.
func AddFlags(fs *pflag.FlagSet) {
	fs.Int("port", DefaultPort, "HTTP port to listen on")
	fs.StringSlice("allowed-origins", []string{DefaultAllowedOrigin}, "Origins allowed by CORS")

	fs.String("provider", DefaultProvider, "Generator provider (claude, openai, gemini, mock)")
	fs.String("model", "", "Model name (default depends on the provider)")
	fs.Int("max-tokens", DefaultMaxTokens, "Maximum tokens per generation")
	fs.Float64("temperature", DefaultTemperature, "Sampling temperature")
	fs.Duration("generation-timeout", DefaultGenerationTimeout, "Upper bound for a single generation")

	fs.String("cache-backend", DefaultCacheBackend, "Recipe cache backend (memory, sqlite)")
	fs.String("cache-path", "", "SQLite cache file (default <user config dir>/cauldron/recipes.db)")
	fs.Int("cache-size", DefaultCacheSize, "Maximum entries of the memory cache")

	fs.String("anthropic-api-key", "", "Anthropic API key")
	fs.String("anthropic-base-url", "", "Anthropic API base URL")
	fs.String("openai-api-key", "", "OpenAI API key")
	fs.String("openai-base-url", "", "OpenAI API base URL")
	fs.String("gemini-api-key", "", "Gemini API key")
	fs.String("gemini-base-url", "", "Gemini API endpoint")
	fs.Bool("allow-local-providers", false, "Allow http and local network provider base URLs")
}

// wellKnownEnv are unprefixed variables honoured for compatibility with the
// usual provider tooling.
var wellKnownEnv = map[string]string{
	"port":              "PORT",
	"allowed-origins":   "ALLOWED_ORIGINS",
	"anthropic-api-key": "ANTHROPIC_API_KEY",
	"openai-api-key":    "OPENAI_API_KEY",
	"gemini-api-key":    "GEMINI_API_KEY",
}

// ConfigureEnv sets up prefixed automatic env lookup on v and binds the
// unprefixed well-known variables. The prefixed name wins when both are set.
func ConfigureEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, env := range wellKnownEnv {
		prefixed := strings.ToUpper(EnvPrefix + "_" + strings.ReplaceAll(key, "-", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return errors.Wrapf(err, "could not bind %s", env)
		}
	}
	return nil
}

// Load decodes v into Settings and fills in derived defaults.
func Load(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	// a single comma separated value can arrive unsplit from the environment
	var origins []string
	for _, o := range s.AllowedOrigins {
		for _, o_ := range strings.Split(o, ",") {
			if o_ = strings.TrimSpace(o_); o_ != "" {
				origins = append(origins, o_)
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{DefaultAllowedOrigin}
	}
	s.AllowedOrigins = origins

	if s.Provider == "" {
		s.Provider = DefaultProvider
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.GenerationTimeout <= 0 {
		s.GenerationTimeout = DefaultGenerationTimeout
	}
	if s.CacheBackend == "" {
		s.CacheBackend = DefaultCacheBackend
	}
	if s.CacheSize <= 0 {
		s.CacheSize = DefaultCacheSize
	}
	if s.CacheBackend == "sqlite" && s.CachePath == "" {
		s.CachePath = DefaultCachePath()
	}
}

// DefaultCachePath is the sqlite file used when none is configured.
func DefaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cauldron", "recipes.db")
}

func (s *Settings) Validate() error {
	switch s.Provider {
	case "claude", "openai", "gemini", "mock":
	default:
		return errors.Errorf("unknown provider %q", s.Provider)
	}
	switch s.CacheBackend {
	case "memory", "sqlite":
	default:
		return errors.Errorf("unknown cache backend %q", s.CacheBackend)
	}
	if s.Port < 0 || s.Port > 65535 {
		return errors.Errorf("invalid port %d", s.Port)
	}

	policy := security.BaseURLPolicy{
		AllowHTTP:          s.AllowLocalProviders,
		AllowLocalNetworks: s.AllowLocalProviders,
	}
	for name, baseURL := range map[string]string{
		"anthropic-base-url": s.AnthropicBaseURL,
		"openai-base-url":    s.OpenAIBaseURL,
		"gemini-base-url":    s.GeminiBaseURL,
	} {
		if baseURL == "" {
			continue
		}
		if err := policy.Check(baseURL); err != nil {
			return errors.Wrapf(err, "invalid %s", name)
		}
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// Redacted returns a copy safe to print, with API keys masked.
func (s *Settings) Redacted() *Settings {
	ret := s.Clone()
	for _, key := range []*string{&ret.AnthropicAPIKey, &ret.OpenAIAPIKey, &ret.GeminiAPIKey} {
		if *key != "" {
			*key = "***"
		}
	}
	return ret
}

func (s *Settings) MarshalZerologObject(e *zerolog.Event) {
	e.Int("port", s.Port)
	e.Strs("allowed_origins", s.AllowedOrigins)
	e.Str("provider", s.Provider)
	e.Str("model", s.Model)
	e.Dur("generation_timeout", s.GenerationTimeout)
	e.Str("cache_backend", s.CacheBackend)
	if s.CacheBackend == "sqlite" {
		e.Str("cache_path", s.CachePath)
	}
}
