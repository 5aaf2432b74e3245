package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiResponder generates replies through Google's Gemini API.
type GeminiResponder struct {
	client *genai.Client
	model  string
}

// GeminiOptions holds construction parameters for the Gemini responder.
type GeminiOptions struct {
	// APIKey is the Google AI API key (required).
	APIKey string

	// Model overrides the default "gemini-2.0-flash".
	Model string
}

// NewGeminiResponder creates a Gemini-backed responder.
func NewGeminiResponder(ctx context.Context, opts GeminiOptions) (*GeminiResponder, error) {
	if opts.APIKey == "" {
		return nil, errors.New("ai: gemini api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create gemini client: %w", err)
	}

	return &GeminiResponder{client: client, model: opts.Model}, nil
}

func (p *GeminiResponder) Name() string { return "gemini" }

func (p *GeminiResponder) Reply(ctx context.Context, text, language string, history []Exchange) (string, error) {
	contents := make([]*genai.Content, 0, len(history)*2+1)
	for _, ex := range history {
		if ex.User != "" {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: ex.User}},
			})
		}
		if ex.Assistant != "" {
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: ex.Assistant}},
			})
		}
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: text}},
	})

	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instructionFor(language)}},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("ai: gemini generate: %w", err)
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		return "", errors.New("ai: gemini returned an empty reply")
	}
	return reply, nil
}

// instructionFor appends the caller's language to the base system instruction
// when it is not the default.
func instructionFor(language string) string {
	if language == "" || strings.HasPrefix(strings.ToLower(language), "en") {
		return systemInstruction
	}
	return systemInstruction + " The caller's language is " + language + "; respond in it."
}
