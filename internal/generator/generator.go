// Package generator constructs the LLM backend used for answer synthesis
// and adapts it to the single Generate capability the answer path consumes.
// Supported backends: Ollama (local) and OpenAI.
package generator

import (
	"context"
	"fmt"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
)

// Config holds the generator backend configuration.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Model is the model name (e.g. "llama3.2", "gpt-4o").
	Model string

	// BaseURL overrides the default API endpoint (Ollama default
	// http://localhost:11434).
	BaseURL string

	// APIKey is the authentication credential (OpenAI only).
	APIKey string

	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int

	// Temperature controls response randomness (0.0-1.0).
	Temperature float32
}

// Validate checks the config for the selected backend so callers get a
// clear error at startup rather than on the first question.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Model == "" {
			return fmt.Errorf("generator: model name is required for ollama backend")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("generator: api key is required for openai backend")
		}
		if c.Model == "" {
			return fmt.Errorf("generator: model name is required for openai backend")
		}
	default:
		return fmt.Errorf("generator: unknown backend %q - valid values: ollama, openai", c.Backend)
	}
	return nil
}

// Client wraps a chat model behind the plain-text Generate capability.
type Client struct {
	model model.ToolCallingChatModel
}

// New constructs a Client for the configured backend.
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("generator: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		m   model.ToolCallingChatModel
		err error
	)
	switch cfg.Backend {
	case BackendOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		m, err = einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   cfg.Model,
		})
	case BackendOpenAI:
		maxTokens := cfg.MaxTokens
		temp := cfg.Temperature
		m, err = einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   &maxTokens,
			Temperature: &temp,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("generator: init %s backend: %w", cfg.Backend, err)
	}
	return &Client{model: m}, nil
}

// Generate sends the prompt as a single user turn and returns the model's
// text response.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := c.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("generator: generate: %w", err)
	}
	return msg.Content, nil
}
