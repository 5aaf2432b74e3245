// Package callflow is the per-callback turn state machine. It decides what
// one inbound telephony event turns into: a welcome prompt, a spoken reply,
// a played audio asset, or the safe fallback document. It owns no storage
// and no transport.
package callflow

import (
	"context"
	"time"

	"github.com/haasonsaas/callbridge/internal/ai"
	"github.com/haasonsaas/callbridge/internal/convo"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
	"github.com/haasonsaas/callbridge/internal/ttscache"
)

const (
	welcomePrompt  = "Hi! I'm your AI assistant. You can speak, or press 1 for sales, 2 for support."
	continuePrompt = "You can continue, or press 1 for sales, 2 for support."
	fallbackText   = "Sorry, something went wrong on our side. Please press any digit to continue."

	gatherInputMode = "speech dtmf"
	defaultLanguage = "en-US"
)

// dtmfUtterances maps keypad digits to the utterance the conversation
// engine receives. Unlisted digits become "Pressed {digit}".
var dtmfUtterances = map[string]string{
	"1": "I want to talk to sales",
	"2": "I want to talk to support",
}

// Flow ties the conversation engine, synthesis cache, and asset store into
// the turn protocol. One Flow serves all calls; it is stateless per event.
type Flow struct {
	provider    telephony.Provider
	engine      *convo.Engine
	cache       *ttscache.Cache
	assets      media.AssetStore
	synthesizer ai.Synthesizer

	voice         string
	language      string
	publicBaseURL string
	synthTimeout  time.Duration

	logger  *observability.Logger
	metrics *observability.Metrics
}

// Options holds construction parameters for the flow.
type Options struct {
	Provider    telephony.Provider
	Engine      *convo.Engine
	Cache       *ttscache.Cache
	Assets      media.AssetStore
	Synthesizer ai.Synthesizer

	// Voice is the synthesis voice model, half of the cache key.
	Voice string

	// Language is the speech language for provider-side prompts.
	// Defaults to "en-US".
	Language string

	// PublicBaseURL enables play-from-URL responses. Empty disables them;
	// replies degrade to provider-side speech.
	PublicBaseURL string

	// SynthesisTimeout bounds a single text-to-speech call.
	SynthesisTimeout time.Duration

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// New wires a call flow from its collaborators.
func New(opts Options) *Flow {
	if opts.Language == "" {
		opts.Language = defaultLanguage
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Flow{
		provider:      opts.Provider,
		engine:        opts.Engine,
		cache:         opts.Cache,
		assets:        opts.Assets,
		synthesizer:   opts.Synthesizer,
		voice:         opts.Voice,
		language:      opts.Language,
		publicBaseURL: opts.PublicBaseURL,
		synthTimeout:  opts.SynthesisTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
	}
}

// HandleEvent runs one turn and returns the complete response document.
// It never fails: any panic or downstream error inside the pipeline
// degrades to a well-formed document the telephony network can play. The
// fellBack flag reports that the fixed fallback document was served in
// place of a real turn.
func (f *Flow) HandleEvent(ctx context.Context, ev telephony.Event) (doc string, fellBack bool) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error(ctx, "turn pipeline panicked, serving fallback",
				"call_id", ev.ProviderCallID, "panic", r)
			doc = f.SafeFallback()
			fellBack = true
		}
	}()

	utterance, ok := utteranceFrom(ev)
	if !ok {
		// First contact for this callback: nothing to answer yet.
		gather := f.provider.BuildGather(welcomePrompt, 1, gatherInputMode, f.language)
		return f.provider.WrapResponse(gather), false
	}

	result, err := f.engine.HandleTurn(ctx, ev.ProviderCallID, utterance, f.language)
	if err != nil {
		f.logger.Error(ctx, "turn aborted", "call_id", ev.ProviderCallID, "error", err)
		return f.SafeFallback(), true
	}

	gather := f.provider.BuildGather(continuePrompt, 1, gatherInputMode, f.language)

	if audioID, ok := f.synthesizeReply(ctx, result.AIText); ok && f.publicBaseURL != "" {
		play := f.provider.BuildPlay(f.publicBaseURL + "/media/audio/" + audioID)
		return f.provider.WrapResponse(play + gather), false
	}

	say := f.provider.BuildSay(result.AIText, f.language)
	return f.provider.WrapResponse(say + gather), false
}

// SafeFallback returns the fixed apology document. Pure string assembly, no
// external calls; this path cannot fail.
func (f *Flow) SafeFallback() string {
	return f.provider.WrapResponse(
		f.provider.BuildSay(fallbackText, f.language) +
			f.provider.BuildGather("Please press a digit.", 1, "dtmf", f.language),
	)
}

// synthesizeReply resolves reply text to a playable asset ID, reusing the
// synthesis cache. Failures are logged and reported as absence; the caller
// degrades to provider-side speech.
func (f *Flow) synthesizeReply(ctx context.Context, text string) (string, bool) {
	if f.synthesizer == nil || text == "" {
		return "", false
	}

	entry, hit, err := f.cache.GetOrSynthesize(ctx, f.voice, text, func(ctx context.Context) (ttscache.Entry, error) {
		if f.synthTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.synthTimeout)
			defer cancel()
		}

		audio, ext, err := f.synthesizer.Synthesize(ctx, text, f.voice)
		if err != nil {
			f.countSynthesis("error")
			return ttscache.Entry{}, err
		}
		f.countSynthesis("success")

		audioID := media.AudioID(ttscache.Key(f.voice, text), ext)
		if err := f.assets.Save(ctx, audioID, audio); err != nil {
			return ttscache.Entry{}, err
		}
		return ttscache.Entry{AudioID: audioID, MIME: media.MIMEForID(audioID)}, nil
	})
	if err != nil {
		f.logger.Warn(ctx, "synthesis unavailable, degrading to provider speech", "error", err)
		return "", false
	}

	if f.metrics != nil {
		if hit {
			f.metrics.TTSCacheLookups.WithLabelValues("hit").Inc()
		} else {
			f.metrics.TTSCacheLookups.WithLabelValues("miss").Inc()
		}
	}
	return entry.AudioID, true
}

func (f *Flow) countSynthesis(status string) {
	if f.metrics != nil {
		f.metrics.SynthesisRequests.WithLabelValues(status).Inc()
	}
}

// utteranceFrom extracts the caller's input from an event. Recognized
// speech wins over digits; digits map through the fixed table; neither
// present means this is a first-turn callback.
func utteranceFrom(ev telephony.Event) (string, bool) {
	if ev.Speech != "" {
		return ev.Speech, true
	}
	if ev.Digits != "" {
		if mapped, ok := dtmfUtterances[ev.Digits]; ok {
			return mapped, true
		}
		return "Pressed " + ev.Digits, true
	}
	return "", false
}
