package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"astro_insight/src/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

const defaultSystemPrompt = "You are the routing and code assistant of an astronomy data analysis agent. Follow the output format requested in each message exactly and do not add commentary."

// EinoClassifier sends prompts through an eino chain: chat template then chat model
type EinoClassifier struct {
	provider string
	chain    compose.Runnable[map[string]any, *schema.Message]
	timeout  time.Duration
}

// NewEinoClassifier compiles the template → model chain
func NewEinoClassifier(ctx context.Context, provider string, chatModel model.BaseChatModel, timeout time.Duration) (*EinoClassifier, error) {
	if chatModel == nil {
		return nil, errors.New("chat model cannot be nil")
	}

	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(defaultSystemPrompt),
		schema.UserMessage("{prompt}"),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(chatModel).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("error creating Eino chain: %w", err)
	}

	return &EinoClassifier{provider: provider, chain: chain, timeout: timeout}, nil
}

// Classify runs one prompt. Empty replies are returned as-is for the caller to default.
func (c *EinoClassifier) Classify(ctx context.Context, promptText string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := c.chain.Invoke(ctx, map[string]any{"prompt": promptText})
	if err != nil {
		return "", &ClassifierError{Provider: c.provider, Err: err}
	}

	logger.Debug().
		Str("provider", c.provider).
		Int("prompt_length", len(promptText)).
		Dur("elapsed", time.Since(start)).
		Msg("Classifier call finished")

	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}
