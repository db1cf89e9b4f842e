package aiconnectors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type echoModel struct {
	lastPrompt string
	lastOpts   llms.CallOptions
}

func (m *echoModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&m.lastOpts)
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.lastPrompt = text.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "echo: " + m.lastPrompt}}}, nil
}

func (m *echoModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestNewConnectorRejectsUnknownProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), Options{Provider: "mystery"})
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestNewConnectorDefaultsModel(t *testing.T) {
	c, err := NewConnector(context.Background(), Options{Provider: " Ollama "})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, c.Provider())
	assert.Equal(t, "llama3", c.Model())

	c, err = NewConnector(context.Background(), Options{Provider: ProviderOpenAI, APIKey: "sk-test", Model: "gpt-x"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-x", c.Model())
}

func TestCallAppliesDefaults(t *testing.T) {
	m := &echoModel{}
	c := NewWithModel(ProviderOpenAI, m, Options{Temperature: 0.2, MaxTokens: 256})

	out, err := c.Call(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.Equal(t, 0.2, m.lastOpts.Temperature)
	assert.Equal(t, 256, m.lastOpts.MaxTokens)
}
