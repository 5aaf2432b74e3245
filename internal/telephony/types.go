// Package telephony provides the vendor abstraction for voice calls.
// It supports multiple providers (Twilio, Exotel) behind one capability set:
// webhook signature verification, outbound dialing, and the markup fragments
// (say, play, gather) the telephony network executes.
package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// ProviderName identifies a telephony provider.
type ProviderName string

const (
	ProviderTwilio ProviderName = "twilio"
	ProviderExotel ProviderName = "exotel"
)

// ErrUnauthorized is returned when an inbound webhook fails signature
// verification. The request must be rejected before any event processing.
var ErrUnauthorized = errors.New("telephony: webhook signature verification failed")

// FailedCallPrefix tags call IDs returned by InitiateCall when dialing did
// not reach the vendor. Outbound dialing is best-effort: failures surface
// through the returned identifier, not an error channel.
const FailedCallPrefix = "_failed_"

// IsFailedCallID reports whether an InitiateCall result is a failure
// sentinel rather than a real vendor call ID.
func IsFailedCallID(id string) bool {
	return strings.Contains(id, FailedCallPrefix)
}

// Event is the canonical, vendor-independent representation of an inbound
// telephony callback. At most one of Digits/Speech is treated as the
// utterance signal; speech takes precedence when both are populated.
type Event struct {
	ProviderCallID string            `json:"provider_call_id"`
	EventType      string            `json:"event_type"`
	From           string            `json:"from,omitempty"`
	To             string            `json:"to,omitempty"`
	Digits         string            `json:"digits,omitempty"`
	Speech         string            `json:"speech,omitempty"`
	RawHeaders     map[string]string `json:"raw_headers,omitempty"`
}

// DialResult is the outcome of an outbound dial request.
type DialResult struct {
	Status         string `json:"status"`
	ProviderCallID string `json:"provider_call_id"`
}

// Provider is the capability set every telephony vendor must implement.
// Vendors encode the same primitives (speak, play, gather, wrap) in
// different markup dialects; isolating them here keeps the call flow
// vendor-agnostic.
type Provider interface {
	// Name returns the provider identifier.
	Name() ProviderName

	// VerifySignature checks webhook authenticity from the raw request
	// body, headers, parsed form parameters and the full request URL.
	VerifySignature(rawBody []byte, headers map[string]string, form url.Values, fullURL string) bool

	// InitiateCall places an outbound call pointed at this system's
	// webhook URL. On transport or vendor failure it returns a sentinel
	// identifier (detectable via IsFailedCallID), never an error.
	InitiateCall(ctx context.Context, toNumber, fromNumber string) string

	// BuildSay returns a fragment instructing the network to synthesize
	// text at the network edge.
	BuildSay(text, lang string) string

	// BuildPlay returns a fragment instructing the network to stream
	// audio from a URL.
	BuildPlay(url string) string

	// BuildGather returns a fragment collecting speech or keypad input,
	// prefaced by a spoken prompt.
	BuildGather(prompt string, numDigits int, inputMode, lang string) string

	// WrapResponse assembles fragments into the complete response
	// document the telephony network expects.
	WrapResponse(inner string) string

	// Respond writes a response document with the correct content type.
	Respond(w http.ResponseWriter, doc string)
}

// WriteXML writes a markup document with the XML content type all supported
// vendors expect.
func WriteXML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// escapeXML escapes special characters for XML content and attributes.
func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// headerValue does a case-insensitive header lookup on a flat header map.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
