package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/callbridge/internal/cache"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
)

// maxWebhookBody bounds inbound callback bodies. Vendor callbacks are small
// form posts; anything larger is not a callback.
const maxWebhookBody = 1 << 20

// handleWebhook is the telephony callback endpoint. Signature verification
// gates everything: an unverified request is rejected before any event is
// constructed and before any store or capability is touched.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	providerName := string(s.provider.Name())

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	form, _ := url.ParseQuery(string(rawBody))
	headers := flattenHeaders(r.Header)

	if !s.provider.VerifySignature(rawBody, headers, form, s.fullRequestURL(r)) {
		s.countWebhook(providerName, "unauthorized")
		s.logger.Warn(r.Context(), "webhook signature rejected",
			"provider", providerName, "remote", r.RemoteAddr)
		http.Error(w, "signature verification failed", http.StatusForbidden)
		return
	}

	event := telephony.ParseEvent(form, r.URL.Query(), headers)
	ctx := observability.WithCallID(r.Context(), event.ProviderCallID)

	if s.dedupe.Seen(cache.CallbackKey(event.ProviderCallID, event.EventType, event.Speech+"\x00"+event.Digits)) {
		if s.metrics != nil {
			s.metrics.DuplicateCallbacks.Inc()
		}
		s.logger.Info(ctx, "duplicate callback, reprocessing",
			"event_type", event.EventType)
	}

	ctx, span := s.tracer.Start(ctx, "gateway.webhook",
		attribute.String("telephony.provider", providerName),
		attribute.String("telephony.event_type", event.EventType),
	)
	doc, fellBack := s.flow.HandleEvent(ctx, event)
	span.End()

	s.provider.Respond(w, doc)

	outcome := "ok"
	if fellBack {
		outcome = "fallback"
	}
	s.countWebhook(providerName, outcome)
	if s.metrics != nil {
		s.metrics.WebhookDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
	}
}

// handleMedia serves synthesized audio assets for provider playback.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	audioID := r.PathValue("id")

	content, mime, err := s.assets.Open(r.Context(), audioID)
	if errors.Is(err, media.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error(r.Context(), "asset read failed", "audio_id", audioID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	_, _ = w.Write(content)
}

type outboundRequest struct {
	ToNumber   string `json:"to_number"`
	FromNumber string `json:"from_number,omitempty"`
}

type outboundResponse struct {
	Status         string `json:"status"`
	ProviderCallID string `json:"provider_call_id"`
}

// handleOutbound places an outbound call. Dialing is best effort; failure is
// reported through the sentinel call ID, not an error status.
func (s *Server) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var req outboundRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.ToNumber == "" {
		http.Error(w, "to_number is required", http.StatusBadRequest)
		return
	}

	callID := s.provider.InitiateCall(r.Context(), req.ToNumber, req.FromNumber)

	status := "ok"
	if telephony.IsFailedCallID(callID) {
		status = "failed"
	}
	if s.metrics != nil {
		s.metrics.OutboundCalls.WithLabelValues(string(s.provider.Name()), status).Inc()
	}
	s.logger.Info(r.Context(), "outbound call placed",
		"to", req.ToNumber, "status", status, "provider_call_id", callID)

	writeJSON(w, http.StatusOK, outboundResponse{Status: status, ProviderCallID: callID})
}

type respondRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	Language  string `json:"language,omitempty"`
}

// handleRespond runs one conversation turn outside the telephony loop, for
// programmatic callers and manual testing.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if req.Language == "" {
		req.Language = "en-US"
	}

	result, err := s.engine.HandleTurn(r.Context(), req.SessionID, req.Text, req.Language)
	if err != nil {
		http.Error(w, "turn aborted", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReset clears a session's conversational memory.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")

	fresh, err := s.engine.Reset(r.Context(), sessionID)
	if err != nil {
		s.logger.Error(r.Context(), "reset failed", "session_id", sessionID, "error", err)
		http.Error(w, "reset failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"context":    fresh,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// fullRequestURL reconstructs the URL the vendor signed. Behind a proxy the
// public base URL is authoritative; the Host header alone is not.
func (s *Server) fullRequestURL(r *http.Request) string {
	if base := s.cfg.Server.PublicBaseURL; base != "" {
		return base + r.URL.RequestURI()
	}

	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func (s *Server) countWebhook(provider, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookRequests.WithLabelValues(provider, outcome).Inc()
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
