package llm

import (
	"context"
	"fmt"
	"strings"

	"astro_insight/src/model"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
)

const (
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
	ProviderArk      = "ark"
	ProviderDeepSeek = "deepseek"
)

// NewChatModel builds the eino chat model for the configured provider
func NewChatModel(ctx context.Context, config model.LLMConfig) (einomodel.BaseChatModel, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))

	switch provider {
	case ProviderOpenAI, "":
		if config.APIKey == "" {
			return nil, fmt.Errorf("LLM_API_KEY is required for provider %s", ProviderOpenAI)
		}
		maxTokens := config.MaxTokens
		temperature := float32(config.Temperature)
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      config.APIKey,
			BaseURL:     config.BaseURL,
			Model:       config.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			Timeout:     config.Timeout,
		})
	case ProviderOllama:
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: baseURL,
			Model:   config.Model,
			Timeout: config.Timeout,
		})
	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  config.APIKey,
			BaseURL: config.BaseURL,
			Model:   config.Model,
		})
	case ProviderDeepSeek:
		return deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:  config.APIKey,
			BaseURL: config.BaseURL,
			Model:   config.Model,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}

// NewClassifier wires the configured provider into an EinoClassifier
func NewClassifier(ctx context.Context, config model.LLMConfig) (*EinoClassifier, error) {
	chatModel, err := NewChatModel(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating chat model: %w", err)
	}
	provider := config.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}
	return NewEinoClassifier(ctx, provider, chatModel, config.Timeout)
}
