package callflow

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/haasonsaas/callbridge/internal/ai"
	"github.com/haasonsaas/callbridge/internal/convctx"
	"github.com/haasonsaas/callbridge/internal/convo"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
	"github.com/haasonsaas/callbridge/internal/ttscache"
)

type echoResponder struct {
	err      error
	lastText atomic.Value
}

func (r *echoResponder) Name() string { return "echo" }

func (r *echoResponder) Reply(_ context.Context, text, _ string, _ []ai.Exchange) (string, error) {
	r.lastText.Store(text)
	if r.err != nil {
		return "", r.err
	}
	return "You said: " + text, nil
}

type fakeSynth struct {
	err   error
	calls atomic.Int32
}

func (s *fakeSynth) Name() string { return "fake" }

func (s *fakeSynth) Synthesize(context.Context, string, string) ([]byte, string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, "", s.err
	}
	return []byte{0xFF, 0xFB, 0x01, 0x02}, "mp3", nil
}

type panicResponder struct{}

func (panicResponder) Name() string { return "panic" }

func (panicResponder) Reply(context.Context, string, string, []ai.Exchange) (string, error) {
	panic("wired wrong")
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

type flowFixture struct {
	flow      *Flow
	responder *echoResponder
	synth     *fakeSynth
	store     convctx.Store
}

func newFixture(t *testing.T, mutate func(*Options)) *flowFixture {
	t.Helper()

	provider, err := telephony.NewTwilioProvider(telephony.TwilioOptions{
		SkipVerify: true,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewTwilioProvider failed: %v", err)
	}

	responder := &echoResponder{}
	synth := &fakeSynth{}
	store := convctx.WithSessionLocks(convctx.NewMemoryStore())
	assets, err := media.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}

	opts := Options{
		Provider: provider,
		Engine: convo.NewEngine(convo.Options{
			Store:     store,
			Responder: responder,
			Logger:    quietLogger(),
		}),
		Cache:         ttscache.New(ttscache.NewMemoryIndex(), quietLogger()),
		Assets:        assets,
		Synthesizer:   synth,
		Voice:         "aura-asteria-en",
		PublicBaseURL: "https://gw.example.com",
		Logger:        quietLogger(),
	}
	if mutate != nil {
		mutate(&opts)
	}

	return &flowFixture{
		flow:      New(opts),
		responder: responder,
		synth:     synth,
		store:     store,
	}
}

func TestHandleEvent_FirstTurnGathersOnly(t *testing.T) {
	fx := newFixture(t, nil)

	doc, _ := fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		EventType:      "ringing",
	})

	if !strings.Contains(doc, "press 1 for sales") {
		t.Errorf("welcome prompt missing: %s", doc)
	}
	if strings.Contains(doc, "<Play>") {
		t.Errorf("first turn must not play audio: %s", doc)
	}
	if !strings.Contains(doc, "<Gather") || !strings.Contains(doc, "</Response>") {
		t.Errorf("malformed first-turn document: %s", doc)
	}

	exists, _ := fx.store.Exists(context.Background(), "CA1")
	if exists {
		t.Error("first turn must not create context")
	}
}

func TestHandleEvent_DTMFMapping(t *testing.T) {
	cases := map[string]string{
		"1": "I want to talk to sales",
		"2": "I want to talk to support",
		"7": "Pressed 7",
	}
	for digit, want := range cases {
		fx := newFixture(t, nil)
		fx.flow.HandleEvent(context.Background(), telephony.Event{
			ProviderCallID: "CA1",
			Digits:         digit,
		})
		if got := fx.responder.lastText.Load(); got != want {
			t.Errorf("digit %q: responder received %q, want %q", digit, got, want)
		}
	}
}

func TestHandleEvent_SpeechWinsOverDigits(t *testing.T) {
	fx := newFixture(t, nil)
	fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "what are your hours",
		Digits:         "1",
	})
	if got := fx.responder.lastText.Load(); got != "what are your hours" {
		t.Errorf("responder received %q, want the speech text", got)
	}
}

func TestHandleEvent_PlaysFreshAssetWithContinuation(t *testing.T) {
	fx := newFixture(t, nil)

	doc, _ := fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Digits:         "2",
	})

	wantID := media.AudioID(ttscache.Key("aura-asteria-en", "You said: I want to talk to support"), "mp3")
	if !strings.Contains(doc, "<Play>https://gw.example.com/media/audio/"+wantID+"</Play>") {
		t.Errorf("play fragment missing or wrong asset: %s", doc)
	}
	if !strings.Contains(doc, "You can continue") {
		t.Errorf("continuation gather missing: %s", doc)
	}
}

func TestHandleEvent_CacheDeterminism(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	ev := telephony.Event{ProviderCallID: "CA1", Speech: "same words"}
	first, _ := fx.flow.HandleEvent(ctx, ev)
	second, _ := fx.flow.HandleEvent(ctx, telephony.Event{ProviderCallID: "CA2", Speech: "same words"})

	extract := func(doc string) string {
		i := strings.Index(doc, "<Play>")
		j := strings.Index(doc, "</Play>")
		if i < 0 || j < 0 {
			t.Fatalf("no play fragment: %s", doc)
		}
		return doc[i+len("<Play>") : j]
	}
	if extract(first) != extract(second) {
		t.Errorf("same reply text produced different assets:\n%s\n%s", first, second)
	}
	if n := fx.synth.calls.Load(); n != 1 {
		t.Errorf("synthesis calls = %d, want 1 (second request should hit the cache)", n)
	}
}

func TestHandleEvent_NoPublicURLDegradesToSay(t *testing.T) {
	fx := newFixture(t, func(o *Options) { o.PublicBaseURL = "" })

	doc, _ := fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "hello hello",
	})

	if strings.Contains(doc, "<Play>") {
		t.Errorf("must not emit play without a public base URL: %s", doc)
	}
	if !strings.Contains(doc, "<Say") || !strings.Contains(doc, "<Gather") {
		t.Errorf("degraded response must still speak and gather: %s", doc)
	}
}

func TestHandleEvent_BothCapabilitiesDownStillWellFormed(t *testing.T) {
	fx := newFixture(t, nil)
	fx.responder.err = errors.New("llm down")
	fx.synth.err = errors.New("tts down")

	doc, _ := fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "anyone there",
	})

	if !strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?><Response>`) ||
		!strings.HasSuffix(doc, "</Response>") {
		t.Errorf("envelope malformed: %s", doc)
	}
	if !strings.Contains(doc, "<Say") || !strings.Contains(doc, "<Gather") {
		t.Errorf("fallback must speak and gather: %s", doc)
	}
	if strings.Contains(doc, "<Play>") {
		t.Errorf("no audio should be referenced when synthesis is down: %s", doc)
	}
}

func TestHandleEvent_SynthesisFailureNotCached(t *testing.T) {
	fx := newFixture(t, nil)
	fx.synth.err = errors.New("transient tts outage")
	ctx := context.Background()

	ev := telephony.Event{ProviderCallID: "CA1", Speech: "cache me if you can"}
	fx.flow.HandleEvent(ctx, ev)

	fx.synth.err = nil
	doc, _ := fx.flow.HandleEvent(ctx, telephony.Event{ProviderCallID: "CA2", Speech: "cache me if you can"})

	if !strings.Contains(doc, "<Play>") {
		t.Errorf("recovered synthesis should produce audio: %s", doc)
	}
	if n := fx.synth.calls.Load(); n != 2 {
		t.Errorf("synthesis calls = %d, want 2 (failure must not be cached)", n)
	}
}

func TestHandleEvent_PanicServesSafeFallback(t *testing.T) {
	fx := newFixture(t, func(o *Options) {
		o.Engine = convo.NewEngine(convo.Options{
			Store:     convctx.WithSessionLocks(convctx.NewMemoryStore()),
			Responder: panicResponder{},
			Logger:    quietLogger(),
		})
	})

	doc, _ := fx.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "boom",
	})

	if doc != fx.flow.SafeFallback() {
		t.Errorf("panic must serve the fixed fallback document, got: %s", doc)
	}
	if !strings.Contains(doc, "<Say") || !strings.Contains(doc, "<Gather") {
		t.Errorf("fallback malformed: %s", doc)
	}
}

func TestHandleEvent_ReportsFallbackServed(t *testing.T) {
	broken := newFixture(t, func(o *Options) {
		o.Engine = convo.NewEngine(convo.Options{
			Store:     convctx.WithSessionLocks(convctx.NewMemoryStore()),
			Responder: panicResponder{},
			Logger:    quietLogger(),
		})
	})
	_, fellBack := broken.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "boom",
	})
	if !fellBack {
		t.Error("fallback document served without reporting it")
	}

	healthy := newFixture(t, nil)
	_, fellBack = healthy.flow.HandleEvent(context.Background(), telephony.Event{
		ProviderCallID: "CA1",
		Speech:         "hello",
	})
	if fellBack {
		t.Error("successful turn reported as fallback")
	}
}

func TestHandleEvent_TurnsAccumulatePerSession(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	fx.flow.HandleEvent(ctx, telephony.Event{ProviderCallID: "CA1", Speech: "first"})
	fx.flow.HandleEvent(ctx, telephony.Event{ProviderCallID: "CA1", Speech: "second"})

	memory, _ := fx.store.GetContext(ctx, "CA1")
	if len(memory.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(memory.History))
	}
	if memory.History[0].UserText != "first" || memory.History[1].UserText != "second" {
		t.Errorf("history out of order: %+v", memory.History)
	}
}
