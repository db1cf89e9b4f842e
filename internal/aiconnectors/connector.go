package aiconnectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderCohere Provider = "cohere"
	ProviderOllama Provider = "ollama"
)

const defaultOllamaURL = "http://localhost:11434"

var defaultModels = map[Provider]string{
	ProviderOpenAI: "gpt-4o-mini",
	ProviderGemini: "gemini-2.5-flash",
	ProviderClaude: "claude-3-5-haiku-latest",
	ProviderCohere: "command-r",
	ProviderOllama: "llama3",
}

// Options selects and configures a provider.
type Options struct {
	Provider    Provider `json:"provider" koanf:"provider"`
	Model       string   `json:"model,omitempty" koanf:"model"`
	APIKey      string   `json:"api_key" koanf:"api_key"`
	BaseURL     string   `json:"base_url,omitempty" koanf:"base_url"`
	Temperature float64  `json:"temperature,omitempty" koanf:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty" koanf:"max_tokens"`
}

// Connector wraps a langchaingo model with per-call defaults.
type Connector struct {
	provider Provider
	llm      llms.Model
	options  Options
}

func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	options.Provider = Provider(strings.ToLower(strings.TrimSpace(string(options.Provider))))
	if options.Model == "" {
		options.Model = defaultModels[options.Provider]
	}

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Msg("Creating connector")

	var model llms.Model
	var err error
	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{openai.WithModel(options.Model), openai.WithToken(options.APIKey)}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderGemini:
		model, err = googleai.New(ctx, googleai.WithAPIKey(options.APIKey), googleai.WithDefaultModel(options.Model))
	case ProviderClaude:
		opts := []anthropic.Option{anthropic.WithToken(options.APIKey), anthropic.WithModel(options.Model)}
		if options.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(options.BaseURL))
		}
		model, err = anthropic.New(opts...)
	case ProviderCohere:
		opts := []cohere.Option{cohere.WithToken(options.APIKey), cohere.WithModel(options.Model)}
		if options.BaseURL != "" {
			opts = append(opts, cohere.WithBaseURL(options.BaseURL))
		}
		model, err = cohere.New(opts...)
	case ProviderOllama:
		if options.BaseURL == "" {
			options.BaseURL = defaultOllamaURL
		}
		model, err = ollama.New(ollama.WithServerURL(options.BaseURL), ollama.WithModel(options.Model))
	default:
		return nil, fmt.Errorf("unsupported provider: %q", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}
	return &Connector{provider: options.Provider, llm: model, options: options}, nil
}

// NewWithModel wraps an already constructed model, typically a test double.
func NewWithModel(provider Provider, model llms.Model, options Options) *Connector {
	options.Provider = provider
	return &Connector{provider: provider, llm: model, options: options}
}

// Call sends a single prompt with the connector's default call options.
func (c *Connector) Call(ctx context.Context, input string, options ...llms.CallOption) (string, error) {
	callOptions := []llms.CallOption{llms.WithTemperature(c.options.Temperature)}
	if c.options.MaxTokens > 0 {
		callOptions = append(callOptions, llms.WithMaxTokens(c.options.MaxTokens))
	}
	if c.provider == ProviderGemini {
		callOptions = append(callOptions, llms.WithModel(c.options.Model))
	}
	callOptions = append(callOptions, options...)
	return llms.GenerateFromSinglePrompt(ctx, c.llm, input, callOptions...)
}

func (c *Connector) Provider() Provider { return c.provider }

func (c *Connector) Model() string { return c.options.Model }
