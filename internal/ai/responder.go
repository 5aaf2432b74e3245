// Package ai wraps the external AI capabilities the call flow consumes as
// black boxes: reply generation (text in, reply text out) and speech
// synthesis (text in, audio bytes out). Every capability follows one calling
// convention: context-bounded, explicit errors, no callable introspection.
package ai

import (
	"context"
	"fmt"
)

// systemInstruction keeps phone replies short enough to speak.
const systemInstruction = "You are a helpful voice assistant on a phone call. " +
	"Be concise, friendly, and actionable. Answer in one or two short sentences. " +
	"Default to English unless the caller uses another language."

// Exchange is one prior turn handed to the responder for multi-turn memory.
type Exchange struct {
	User      string
	Assistant string
}

// Responder generates a reply to caller text.
type Responder interface {
	// Name identifies the backing provider for logs and metrics.
	Name() string

	// Reply generates a response to text, given prior exchanges in turn
	// order. Implementations must respect ctx deadlines.
	Reply(ctx context.Context, text, language string, history []Exchange) (string, error)
}

// StubResponder is the no-credentials responder: it echoes the input with a
// tagged prefix, matching the development behavior callers script against.
type StubResponder struct{}

func (StubResponder) Name() string { return "stub" }

func (StubResponder) Reply(_ context.Context, text, language string, _ []Exchange) (string, error) {
	return fmt.Sprintf("[stub-reply:%s] %s", language, text), nil
}
