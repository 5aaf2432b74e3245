package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// TwilioProvider implements the Provider interface for Twilio Voice.
// It builds TwiML response fragments, verifies webhook signatures with
// HMAC-SHA1, and places outbound calls through the Twilio REST API.
//
// Thread safety: TwilioProvider is immutable after construction and safe
// for concurrent use.
type TwilioProvider struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	publicURL  string
	skipVerify bool

	client *http.Client
	logger *observability.Logger
}

// TwilioOptions holds construction parameters for the Twilio provider.
type TwilioOptions struct {
	// AccountSID is the Twilio account SID (required for dialing).
	AccountSID string

	// AuthToken is the Twilio auth token, also the webhook signing key.
	AuthToken string

	// FromNumber is the default caller ID for outbound calls (E.164).
	FromNumber string

	// PublicBaseURL is this system's externally reachable base URL; the
	// outbound webhook target is PublicBaseURL + "/voice/webhook".
	PublicBaseURL string

	// SkipVerify accepts every webhook without signature checks. Debug
	// only; the constructor logs a warning when set.
	SkipVerify bool

	// HTTPClient overrides the REST client (tests). Defaults to a client
	// with a 30s timeout.
	HTTPClient *http.Client

	Logger *observability.Logger
}

// NewTwilioProvider creates a new Twilio voice provider.
func NewTwilioProvider(opts TwilioOptions) (*TwilioProvider, error) {
	if !opts.SkipVerify && opts.AuthToken == "" {
		return nil, errors.New("twilio: auth token is required unless signature verification is disabled")
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.SkipVerify {
		opts.Logger.Warn(context.Background(), "twilio signature verification disabled, accepting all webhooks")
	}

	return &TwilioProvider{
		accountSID: opts.AccountSID,
		authToken:  opts.AuthToken,
		fromNumber: opts.FromNumber,
		baseURL:    fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s", opts.AccountSID),
		publicURL:  opts.PublicBaseURL,
		skipVerify: opts.SkipVerify,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

// Name returns the provider identifier.
func (p *TwilioProvider) Name() ProviderName {
	return ProviderTwilio
}

// VerifySignature validates webhook authenticity using Twilio's scheme:
// base64(HMAC-SHA1(url + concatenated sorted form params, auth token))
// compared in constant time against the X-Twilio-Signature header.
func (p *TwilioProvider) VerifySignature(rawBody []byte, headers map[string]string, form url.Values, fullURL string) bool {
	if p.skipVerify {
		return true
	}

	signature := headerValue(headers, "X-Twilio-Signature")
	if signature == "" || fullURL == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sigString := fullURL
	for _, k := range keys {
		sigString += k + form.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(p.authToken))
	mac.Write([]byte(sigString))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// InitiateCall starts an outbound call via the Twilio REST API, pointing the
// call at this system's webhook. Failures return sentinel IDs so callers can
// detect them without an error channel.
func (p *TwilioProvider) InitiateCall(ctx context.Context, toNumber, fromNumber string) string {
	if p.publicURL == "" {
		p.logger.Warn(ctx, "public base URL not configured, cannot dial", "to", toNumber)
		return "CA" + FailedCallPrefix + "no_public_url"
	}

	from := fromNumber
	if from == "" {
		from = p.fromNumber
	}
	if from == "" {
		p.logger.Error(ctx, "no from number configured for outbound call", "to", toNumber)
		return "CA" + FailedCallPrefix + "no_from_number"
	}

	params := url.Values{
		"To":   {toNumber},
		"From": {from},
		"Url":  {p.publicURL + "/voice/webhook"},
	}

	resp, err := p.apiRequest(ctx, "/Calls.json", params)
	if err != nil {
		p.logger.Error(ctx, "twilio create call failed", "to", toNumber, "error", err)
		return "CA" + FailedCallPrefix + "rest_error"
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(resp, &result); err != nil || result.SID == "" {
		p.logger.Error(ctx, "twilio create call returned unparseable response", "error", err)
		return "CA" + FailedCallPrefix + "bad_response"
	}

	p.logger.Info(ctx, "twilio call created", "sid", result.SID, "to", toNumber)
	return result.SID
}

// BuildSay returns a <Say> fragment synthesized at the network edge.
func (p *TwilioProvider) BuildSay(text, lang string) string {
	return fmt.Sprintf(`<Say language="%s">%s</Say>`, escapeXML(lang), escapeXML(text))
}

// BuildPlay returns a <Play> fragment streaming audio from a URL.
func (p *TwilioProvider) BuildPlay(audioURL string) string {
	return fmt.Sprintf(`<Play>%s</Play>`, escapeXML(audioURL))
}

// BuildGather returns a <Gather> fragment collecting caller input. With no
// action attribute Twilio posts the result back to the current webhook URL,
// which is exactly the turn loop the call flow wants.
func (p *TwilioProvider) BuildGather(prompt string, numDigits int, inputMode, lang string) string {
	return fmt.Sprintf(
		`<Gather input="%s" numDigits="%d" timeout="5">%s</Gather>`,
		escapeXML(inputMode), numDigits, p.BuildSay(prompt, lang),
	)
}

// WrapResponse assembles fragments into a complete TwiML document.
func (p *TwilioProvider) WrapResponse(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Response>` + inner + `</Response>`
}

// Respond writes a TwiML document with the XML content type.
func (p *TwilioProvider) Respond(w http.ResponseWriter, doc string) {
	WriteXML(w, doc)
}

// apiRequest makes an authenticated form POST to the Twilio REST API.
func (p *TwilioProvider) apiRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, (1<<20)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > 1<<20 {
		return nil, fmt.Errorf("twilio: API response too large (%d bytes)", len(body))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("twilio: API error (%d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
