package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/haasonsaas/callbridge/internal/retry"
)

const (
	deepgramSpeakURL = "https://api.deepgram.com/v1/speak"
	defaultVoice     = "aura-asteria-en"

	// maxAudioBytes caps a single synthesis response.
	maxAudioBytes = 10 << 20
)

// DeepgramSynthesizer produces MP3 audio through the Deepgram speak API.
type DeepgramSynthesizer struct {
	apiKey     string
	voice      string
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
}

// DeepgramOptions holds construction parameters for the Deepgram synthesizer.
type DeepgramOptions struct {
	// APIKey is the Deepgram API key (required).
	APIKey string

	// Voice overrides the default "aura-asteria-en".
	Voice string

	// BaseURL overrides the speak endpoint (tests).
	BaseURL string

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// NewDeepgramSynthesizer creates a Deepgram-backed synthesizer.
func NewDeepgramSynthesizer(opts DeepgramOptions) (*DeepgramSynthesizer, error) {
	if opts.APIKey == "" {
		return nil, errors.New("ai: deepgram api key is required")
	}
	if opts.Voice == "" {
		opts.Voice = defaultVoice
	}
	if opts.BaseURL == "" {
		opts.BaseURL = deepgramSpeakURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeepgramSynthesizer{
		apiKey:     opts.APIKey,
		voice:      opts.Voice,
		baseURL:    opts.BaseURL,
		httpClient: client,
		retryCfg:   retry.Exponential(3, 500*time.Millisecond, 5*time.Second),
	}, nil
}

func (s *DeepgramSynthesizer) Name() string { return "deepgram" }

// Voice returns the default voice model; it is half of the synthesis cache
// key, so callers must pass the same value they key on.
func (s *DeepgramSynthesizer) Voice() string { return s.voice }

func (s *DeepgramSynthesizer) Synthesize(ctx context.Context, text, voice string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", errors.New("ai: empty synthesis text")
	}
	if voice == "" {
		voice = s.voice
	}

	audio, result := retry.DoWithValue(ctx, s.retryCfg, func() ([]byte, error) {
		return s.speak(ctx, text, voice)
	})
	if result.Err != nil {
		return nil, "", fmt.Errorf("ai: deepgram speak after %d attempts: %w", result.Attempts, result.Err)
	}
	if !ValidAudio(audio) {
		return nil, "", errors.New("ai: deepgram returned non-audio payload")
	}
	return audio, "mp3", nil
}

func (s *DeepgramSynthesizer) speak(ctx context.Context, text, voice string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, retry.Permanent(err)
	}

	endpoint := s.baseURL + "?model=" + url.QueryEscape(voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("deepgram status %d: %s", resp.StatusCode, snippet(body))
	default:
		return nil, retry.Permanent(fmt.Errorf("deepgram status %d: %s", resp.StatusCode, snippet(body)))
	}
}

func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max]
	}
	return s
}
