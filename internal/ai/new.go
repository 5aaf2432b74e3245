package ai

import (
	"context"
	"fmt"

	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/observability"
)

// NewResponder builds the reply-generation capability from configuration.
func NewResponder(ctx context.Context, cfg config.AIConfig, logger *observability.Logger) (Responder, error) {
	switch cfg.Responder {
	case "gemini":
		return NewGeminiResponder(ctx, GeminiOptions{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		})
	case "openai":
		return NewOpenAIResponder(OpenAIOptions{
			APIKey: cfg.OpenAI.APIKey,
			Model:  cfg.OpenAI.Model,
		})
	case "stub", "":
		logger.Warn(ctx, "no responder configured, using stub replies")
		return StubResponder{}, nil
	default:
		return nil, fmt.Errorf("ai: unknown responder %q", cfg.Responder)
	}
}

// NewSynthesizer builds the speech-synthesis capability from configuration.
func NewSynthesizer(ctx context.Context, cfg config.AIConfig, logger *observability.Logger) (Synthesizer, error) {
	switch cfg.Synthesizer {
	case "deepgram":
		return NewDeepgramSynthesizer(DeepgramOptions{
			APIKey: cfg.Deepgram.APIKey,
			Voice:  cfg.Deepgram.Voice,
		})
	case "stub", "":
		logger.Warn(ctx, "no synthesizer configured, replies will use provider speech")
		return StubSynthesizer{}, nil
	default:
		return nil, fmt.Errorf("ai: unknown synthesizer %q", cfg.Synthesizer)
	}
}
