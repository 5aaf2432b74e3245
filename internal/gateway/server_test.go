package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/callbridge/internal/ai"
	"github.com/haasonsaas/callbridge/internal/callflow"
	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/convctx"
	"github.com/haasonsaas/callbridge/internal/convo"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
	"github.com/haasonsaas/callbridge/internal/ttscache"
)

func ttsCache(logger *observability.Logger) *ttscache.Cache {
	return ttscache.New(ttscache.NewMemoryIndex(), logger)
}

const (
	testAuthToken = "twilio-auth-token-for-tests"
	testBaseURL   = "https://gw.example.com"
)

type echoResponder struct{}

func (echoResponder) Name() string { return "echo" }

func (echoResponder) Reply(_ context.Context, text, _ string, _ []ai.Exchange) (string, error) {
	return "You said: " + text, nil
}

type countingSynth struct {
	calls atomic.Int32
}

func (s *countingSynth) Name() string { return "counting" }

func (s *countingSynth) Synthesize(context.Context, string, string) ([]byte, string, error) {
	s.calls.Add(1)
	return []byte{0xFF, 0xFB, 0x10}, "mp3", nil
}

func quietLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

type serverFixture struct {
	server *Server
	store  convctx.Store
	synth  *countingSynth
	assets media.AssetStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := quietLogger()
	provider, err := telephony.NewTwilioProvider(telephony.TwilioOptions{
		AccountSID: "AC_test",
		AuthToken:  testAuthToken,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewTwilioProvider failed: %v", err)
	}

	store := convctx.WithSessionLocks(convctx.NewMemoryStore())
	assets, err := media.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	synth := &countingSynth{}

	engine := convo.NewEngine(convo.Options{
		Store:     store,
		Responder: echoResponder{},
		Logger:    logger,
	})
	flow := callflow.New(callflow.Options{
		Provider:      provider,
		Engine:        engine,
		Cache:         ttsCache(logger),
		Assets:        assets,
		Synthesizer:   synth,
		Voice:         "aura-asteria-en",
		PublicBaseURL: testBaseURL,
		Logger:        logger,
	})

	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = testBaseURL

	server := New(Options{
		Config:   cfg,
		Provider: provider,
		Flow:     flow,
		Engine:   engine,
		Assets:   assets,
		Logger:   logger,
	})
	return &serverFixture{server: server, store: store, synth: synth, assets: assets}
}

// twilioSign computes the vendor signature: base64(HMAC-SHA1(url + sorted
// concatenated form params, auth token)).
func twilioSign(fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sigString := fullURL
	for _, k := range keys {
		sigString += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(testAuthToken))
	mac.Write([]byte(sigString))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, fx *serverFixture, form url.Values, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/voice/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestWebhook_InvalidSignatureRejectedWithoutSideEffects(t *testing.T) {
	fx := newServerFixture(t)
	form := url.Values{"CallSid": {"CA1"}, "Digits": {"1"}}

	rec := postWebhook(t, fx, form, "bogus-signature")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	exists, _ := fx.store.Exists(context.Background(), "CA1")
	if exists {
		t.Error("rejected webhook must not mutate context")
	}
	if n := fx.synth.calls.Load(); n != 0 {
		t.Errorf("rejected webhook must not trigger synthesis, got %d calls", n)
	}
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	fx := newServerFixture(t)
	rec := postWebhook(t, fx, url.Values{"CallSid": {"CA1"}}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestWebhook_FirstTurnWelcome(t *testing.T) {
	fx := newServerFixture(t)
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"ringing"}}

	rec := postWebhook(t, fx, form, twilioSign(testBaseURL+"/voice/webhook", form))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/xml") {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(rec.Body.String(), "press 1 for sales") {
		t.Errorf("welcome prompt missing: %s", rec.Body.String())
	}
}

func TestWebhook_TurnServesPlayableAsset(t *testing.T) {
	fx := newServerFixture(t)
	form := url.Values{"CallSid": {"CA1"}, "Digits": {"2"}}

	rec := postWebhook(t, fx, form, twilioSign(testBaseURL+"/voice/webhook", form))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := rec.Body.String()
	i := strings.Index(body, testBaseURL+"/media/audio/")
	if i < 0 {
		t.Fatalf("no playback URL in response: %s", body)
	}
	rest := body[i+len(testBaseURL):]
	audioPath := rest[:strings.Index(rest, "<")]

	mediaReq := httptest.NewRequest(http.MethodGet, audioPath, nil)
	mediaRec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(mediaRec, mediaReq)

	if mediaRec.Code != http.StatusOK {
		t.Fatalf("media status = %d for %s", mediaRec.Code, audioPath)
	}
	if got := mediaRec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("media content type = %q", got)
	}
	if mediaRec.Body.Len() == 0 {
		t.Error("media body empty")
	}
}

func TestWebhook_TamperedFormRejected(t *testing.T) {
	fx := newServerFixture(t)
	signed := url.Values{"CallSid": {"CA1"}, "Digits": {"1"}}
	signature := twilioSign(testBaseURL+"/voice/webhook", signed)

	tampered := url.Values{"CallSid": {"CA1"}, "Digits": {"9"}}
	rec := postWebhook(t, fx, tampered, signature)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

type panickyResponder struct{}

func (panickyResponder) Name() string { return "panicky" }

func (panickyResponder) Reply(context.Context, string, string, []ai.Exchange) (string, error) {
	panic("misconfigured responder")
}

func TestWebhook_FallbackOutcomeCounted(t *testing.T) {
	logger := quietLogger()
	provider, err := telephony.NewTwilioProvider(telephony.TwilioOptions{
		AccountSID: "AC_test",
		AuthToken:  testAuthToken,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("NewTwilioProvider failed: %v", err)
	}
	assets, err := media.NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	engine := convo.NewEngine(convo.Options{
		Store:     convctx.WithSessionLocks(convctx.NewMemoryStore()),
		Responder: panickyResponder{},
		Logger:    logger,
	})
	flow := callflow.New(callflow.Options{
		Provider:      provider,
		Engine:        engine,
		Cache:         ttsCache(logger),
		Assets:        assets,
		Synthesizer:   &countingSynth{},
		Voice:         "aura-asteria-en",
		PublicBaseURL: testBaseURL,
		Logger:        logger,
	})
	cfg := &config.Config{}
	cfg.Server.PublicBaseURL = testBaseURL
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	server := New(Options{
		Config:   cfg,
		Provider: provider,
		Flow:     flow,
		Engine:   engine,
		Assets:   assets,
		Logger:   logger,
		Metrics:  metrics,
	})

	form := url.Values{"CallSid": {"CA1"}, "Digits": {"1"}}
	req := httptest.NewRequest(http.MethodPost, "/voice/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilioSign(testBaseURL+"/voice/webhook", form))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := testutil.ToFloat64(metrics.WebhookRequests.WithLabelValues("twilio", "fallback")); got != 1 {
		t.Errorf("fallback outcome = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.WebhookRequests.WithLabelValues("twilio", "ok")); got != 0 {
		t.Errorf("ok outcome = %v, want 0", got)
	}
}

func TestMedia_NotFound(t *testing.T) {
	fx := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/media/audio/nope.mp3", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestOutbound_FailureSentinelReported(t *testing.T) {
	fx := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/calls/outbound",
		strings.NewReader(`{"to_number":"+15550001111"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp outboundResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response json: %v", err)
	}
	if resp.Status != "failed" {
		t.Errorf("status = %q, want failed (provider has no dial config)", resp.Status)
	}
	if !telephony.IsFailedCallID(resp.ProviderCallID) {
		t.Errorf("provider_call_id = %q, want a failure sentinel", resp.ProviderCallID)
	}
}

func TestOutbound_RequiresToNumber(t *testing.T) {
	fx := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/calls/outbound", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRespondAndReset(t *testing.T) {
	fx := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/ai/respond",
		strings.NewReader(`{"session_id":"api-1","text":"what is the wait time"}`))
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("respond status = %d: %s", rec.Code, rec.Body.String())
	}

	var result convo.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("bad result json: %v", err)
	}
	if result.AIText != "You said: what is the wait time" {
		t.Errorf("ai_text = %q", result.AIText)
	}
	if len(result.Context.History) != 1 {
		t.Errorf("history length = %d, want 1", len(result.Context.History))
	}

	resetReq := httptest.NewRequest(http.MethodPost, "/conversation/reset/api-1", nil)
	resetRec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(resetRec, resetReq)
	if resetRec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", resetRec.Code)
	}

	memory, _ := fx.store.GetContext(context.Background(), "api-1")
	if len(memory.History) != 0 {
		t.Errorf("history after reset = %d, want 0", len(memory.History))
	}
}

func TestHealthz(t *testing.T) {
	fx := newServerFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("request id header missing")
	}
}
