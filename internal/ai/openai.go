package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIResponder generates replies through the OpenAI chat completion API.
type OpenAIResponder struct {
	client *openai.Client
	model  string
}

// OpenAIOptions holds construction parameters for the OpenAI responder.
type OpenAIOptions struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// Model overrides the default "gpt-4o-mini".
	Model string

	// BaseURL points the client at an alternate endpoint (tests,
	// OpenAI-compatible gateways).
	BaseURL string
}

// NewOpenAIResponder creates an OpenAI-backed responder.
func NewOpenAIResponder(opts OpenAIOptions) (*OpenAIResponder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("ai: openai api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIResponder{client: openai.NewClientWithConfig(cfg), model: opts.Model}, nil
}

func (p *OpenAIResponder) Name() string { return "openai" }

func (p *OpenAIResponder) Reply(ctx context.Context, text, language string, history []Exchange) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)*2+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: instructionFor(language),
	})
	for _, ex := range history {
		if ex.User != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: ex.User,
			})
		}
		if ex.Assistant != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: ex.Assistant,
			})
		}
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("ai: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai: openai returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", errors.New("ai: openai returned an empty reply")
	}
	return reply, nil
}
