package telephony

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// ExotelProvider implements the Provider interface for Exotel. Exotel's XML
// dialect is close to TwiML but omits the input-mode attribute on Gather and
// the language attribute on Say.
type ExotelProvider struct {
	apiKey     string
	apiToken   string
	subdomain  string
	accountSID string
	fromNumber string
	publicURL  string
	skipVerify bool

	client *http.Client
	logger *observability.Logger
}

// ExotelOptions holds construction parameters for the Exotel provider.
type ExotelOptions struct {
	APIKey     string
	APIToken   string
	Subdomain  string
	AccountSID string
	FromNumber string

	PublicBaseURL string

	// SkipVerify accepts every webhook without signature checks. Debug
	// only; logged at construction.
	SkipVerify bool

	HTTPClient *http.Client
	Logger     *observability.Logger
}

// NewExotelProvider creates a new Exotel voice provider.
func NewExotelProvider(opts ExotelOptions) (*ExotelProvider, error) {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.SkipVerify {
		opts.Logger.Warn(context.Background(), "exotel signature verification disabled, accepting all webhooks")
	}

	return &ExotelProvider{
		apiKey:     opts.APIKey,
		apiToken:   opts.APIToken,
		subdomain:  opts.Subdomain,
		accountSID: opts.AccountSID,
		fromNumber: opts.FromNumber,
		publicURL:  opts.PublicBaseURL,
		skipVerify: opts.SkipVerify,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

// Name returns the provider identifier.
func (p *ExotelProvider) Name() ProviderName {
	return ProviderExotel
}

// VerifySignature validates webhook authenticity as hex(HMAC-SHA256(raw
// body, api token)) against the X-Exotel-Signature header. Exotel deploys
// without signing headers exist; those must run with SkipVerify set
// explicitly rather than silently passing here.
func (p *ExotelProvider) VerifySignature(rawBody []byte, headers map[string]string, form url.Values, fullURL string) bool {
	if p.skipVerify {
		return true
	}
	if p.apiToken == "" {
		return false
	}

	signature := headerValue(headers, "X-Exotel-Signature")
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.apiToken))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// InitiateCall starts an outbound call via the Exotel connect API. Failures
// return sentinel IDs so callers can detect them without an error channel.
func (p *ExotelProvider) InitiateCall(ctx context.Context, toNumber, fromNumber string) string {
	if p.subdomain == "" || p.accountSID == "" {
		p.logger.Warn(ctx, "exotel account not configured, cannot dial", "to", toNumber)
		return "EXO" + FailedCallPrefix + "not_configured"
	}

	from := fromNumber
	if from == "" {
		from = p.fromNumber
	}

	params := url.Values{
		"To":   {toNumber},
		"From": {from},
		"Url":  {p.publicURL + "/voice/webhook"},
	}

	endpoint := fmt.Sprintf("https://%s:%s@%s/v1/Accounts/%s/Calls/connect.json",
		url.PathEscape(p.apiKey), url.PathEscape(p.apiToken), p.subdomain, p.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return "EXO" + FailedCallPrefix + "bad_request"
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Error(ctx, "exotel connect failed", "to", toNumber, "error", err)
		return "EXO" + FailedCallPrefix + "rest_error"
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode >= 400 {
		p.logger.Error(ctx, "exotel connect rejected", "status", resp.StatusCode, "error", err)
		return "EXO" + FailedCallPrefix + "rest_error"
	}

	var result struct {
		Call struct {
			Sid string `json:"Sid"`
		} `json:"Call"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Call.Sid == "" {
		return "EXO" + FailedCallPrefix + "bad_response"
	}

	p.logger.Info(ctx, "exotel call created", "sid", result.Call.Sid, "to", toNumber)
	return result.Call.Sid
}

// BuildSay returns a <Say> fragment in Exotel's dialect.
func (p *ExotelProvider) BuildSay(text, lang string) string {
	return fmt.Sprintf(`<Say>%s</Say>`, escapeXML(text))
}

// BuildPlay returns a <Play> fragment streaming audio from a URL.
func (p *ExotelProvider) BuildPlay(audioURL string) string {
	return fmt.Sprintf(`<Play>%s</Play>`, escapeXML(audioURL))
}

// BuildGather returns a <Gather> fragment. Exotel's gather collects digits
// only; the input-mode hint is accepted for interface parity and ignored.
func (p *ExotelProvider) BuildGather(prompt string, numDigits int, inputMode, lang string) string {
	return fmt.Sprintf(`<Gather numDigits="%d" timeout="5">%s</Gather>`, numDigits, p.BuildSay(prompt, lang))
}

// WrapResponse assembles fragments into a complete response document.
func (p *ExotelProvider) WrapResponse(inner string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><Response>` + inner + `</Response>`
}

// Respond writes a response document with the XML content type.
func (p *ExotelProvider) Respond(w http.ResponseWriter, doc string) {
	WriteXML(w, doc)
}
