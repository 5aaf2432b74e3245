// Package convo runs one conversational turn: fetch context, classify
// intent, generate a reply, persist the exchange. It owns no storage and
// no transport; everything it touches comes in through narrow contracts.
package convo

import (
	"context"
	"time"

	"github.com/haasonsaas/callbridge/internal/ai"
	"github.com/haasonsaas/callbridge/internal/convctx"
	"github.com/haasonsaas/callbridge/internal/observability"
)

// replyFallback is spoken when reply generation fails or times out. The
// caller must always hear something coherent.
const replyFallback = "Sorry, I'm having trouble answering right now. Could you say that again?"

// Result is the outcome of one completed turn.
type Result struct {
	SessionID string          `json:"session_id"`
	UserText  string          `json:"user_text"`
	AIText    string          `json:"ai_text"`
	Intent    string          `json:"intent"`
	Context   convctx.Context `json:"context"`
}

// Engine orchestrates per-turn conversation logic.
type Engine struct {
	store        convctx.Store
	responder    ai.Responder
	analyzer     Analyzer
	logger       *observability.Logger
	metrics      *observability.Metrics
	replyTimeout time.Duration
}

// Options holds construction parameters for the engine.
type Options struct {
	Store     convctx.Store
	Responder ai.Responder

	// Analyzer defaults to the built-in heuristic classifier.
	Analyzer Analyzer

	Logger  *observability.Logger
	Metrics *observability.Metrics

	// ReplyTimeout bounds a single reply-generation call. Zero means no
	// engine-imposed deadline beyond the caller's.
	ReplyTimeout time.Duration
}

// NewEngine wires a turn engine from its collaborators.
func NewEngine(opts Options) *Engine {
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = HeuristicAnalyzer{}
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Engine{
		store:        opts.Store,
		responder:    opts.Responder,
		analyzer:     analyzer,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		replyTimeout: opts.ReplyTimeout,
	}
}

// HandleTurn runs one turn for a session: load memory, classify, generate,
// route, persist, and return the refreshed context. It degrades instead of
// failing; the only errors it returns are context cancellations.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, text, language string) (Result, error) {
	start := time.Now()

	memory, err := e.store.GetContext(ctx, sessionID)
	if err != nil {
		e.logger.Warn(ctx, "context load failed, starting empty", "session_id", sessionID, "error", err)
		memory = convctx.Empty()
	}

	analysis, err := e.analyzer.Analyze(ctx, text)
	if err != nil {
		e.logger.Warn(ctx, "intent analysis failed", "session_id", sessionID, "error", err)
		analysis = Analysis{Intent: IntentUnknown}
	}

	generated := e.generateReply(ctx, text, language, memory.History)
	reply := routeIntent(analysis, generated)

	if err := e.store.SaveTurn(ctx, sessionID, text, reply); err != nil {
		e.logger.Error(ctx, "turn not persisted", "session_id", sessionID, "error", err)
	}

	refreshed, err := e.store.GetContext(ctx, sessionID)
	if err != nil {
		refreshed = memory
	}

	if e.metrics != nil {
		e.metrics.TurnDuration.Observe(time.Since(start).Seconds())
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	return Result{
		SessionID: sessionID,
		UserText:  text,
		AIText:    reply,
		Intent:    analysis.Intent,
		Context:   refreshed,
	}, nil
}

// Reset clears a session's memory and returns the fresh context.
func (e *Engine) Reset(ctx context.Context, sessionID string) (convctx.Context, error) {
	return e.store.Reset(ctx, sessionID)
}

func (e *Engine) generateReply(ctx context.Context, text, language string, history []convctx.Turn) string {
	if e.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.replyTimeout)
		defer cancel()
	}

	exchanges := make([]ai.Exchange, 0, len(history))
	for _, t := range history {
		exchanges = append(exchanges, ai.Exchange{User: t.UserText, Assistant: t.AIText})
	}

	start := time.Now()
	reply, err := e.responder.Reply(ctx, text, language, exchanges)
	if e.metrics != nil {
		e.metrics.ReplyDuration.WithLabelValues(e.responder.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.ReplyRequests.WithLabelValues(e.responder.Name(), "error").Inc()
		}
		e.logger.Warn(ctx, "reply generation failed, using fallback",
			"responder", e.responder.Name(), "error", err)
		return replyFallback
	}
	if e.metrics != nil {
		e.metrics.ReplyRequests.WithLabelValues(e.responder.Name(), "success").Inc()
	}
	return reply
}

// routeIntent picks the spoken reply: a canned response for the handful of
// intents with fixed handling, the generated reply for everything else.
func routeIntent(a Analysis, generated string) string {
	switch a.Intent {
	case IntentGreeting:
		return "Hello! How can I help you today?"
	case IntentGoodbye:
		return "Thanks for calling. Have a great day!"
	case IntentInquiry:
		if topic := a.Entities["topic"]; topic != "" {
			return "I see you're interested in " + topic + ". Want me to share more details?"
		}
		return "Happy to help with that. Could you share a few more details?"
	default:
		if generated == "" {
			return "I didn't quite get that. Could you rephrase?"
		}
		return generated
	}
}
