package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// CheckOllama verifies that a local Ollama server is up and has the model pulled
func CheckOllama(ctx context.Context, baseURL, modelName string) error {
	client, err := ollamaClient(baseURL)
	if err != nil {
		return err
	}

	if err := client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}

	resp, err := client.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list ollama models: %w", err)
	}
	for _, m := range resp.Models {
		if m.Name == modelName || m.Model == modelName || strings.TrimSuffix(m.Name, ":latest") == modelName {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q is not pulled", modelName)
}

func ollamaClient(baseURL string) (*api.Client, error) {
	if baseURL == "" {
		return api.ClientFromEnvironment()
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}
	return api.NewClient(u, http.DefaultClient), nil
}
