package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus metrics for the call-flow pipeline.
//
// Tracked concerns:
//   - webhook request volume and latency per provider and outcome
//   - conversational turn duration end to end
//   - TTS cache efficiency (the expensive synthesis calls we avoided)
//   - downstream capability health (reply generation, synthesis)
type Metrics struct {
	// WebhookRequests counts inbound webhook callbacks.
	// Labels: provider (twilio|exotel), outcome (ok|unauthorized|fallback)
	WebhookRequests *prometheus.CounterVec

	// WebhookDuration measures webhook handling latency in seconds.
	// Labels: provider
	WebhookDuration *prometheus.HistogramVec

	// TurnDuration measures full conversational turn latency in seconds.
	TurnDuration prometheus.Histogram

	// TTSCacheLookups counts synthesis cache lookups.
	// Labels: result (hit|miss)
	TTSCacheLookups *prometheus.CounterVec

	// SynthesisRequests counts text-to-speech capability calls.
	// Labels: status (success|error)
	SynthesisRequests *prometheus.CounterVec

	// ReplyRequests counts reply-generation capability calls.
	// Labels: provider (gemini|openai|stub), status (success|error)
	ReplyRequests *prometheus.CounterVec

	// ReplyDuration measures reply-generation latency in seconds.
	// Labels: provider
	ReplyDuration *prometheus.HistogramVec

	// OutboundCalls counts outbound dial attempts.
	// Labels: provider, status (ok|failed)
	OutboundCalls *prometheus.CounterVec

	// DuplicateCallbacks counts inbound callbacks flagged as duplicates by
	// the dedupe window. Advisory only; duplicates are still processed.
	DuplicateCallbacks prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics with the given
// registerer. Call once at process start.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_webhook_requests_total",
				Help: "Inbound webhook callbacks by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_webhook_duration_seconds",
				Help:    "Webhook handling latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"provider"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "callbridge_turn_duration_seconds",
				Help:    "Full conversational turn latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		TTSCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_tts_cache_lookups_total",
				Help: "Synthesis cache lookups by result",
			},
			[]string{"result"},
		),
		SynthesisRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_synthesis_requests_total",
				Help: "Text-to-speech capability calls by status",
			},
			[]string{"status"},
		),
		ReplyRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_reply_requests_total",
				Help: "Reply-generation capability calls by provider and status",
			},
			[]string{"provider", "status"},
		),
		ReplyDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "callbridge_reply_duration_seconds",
				Help:    "Reply-generation latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider"},
		),
		OutboundCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "callbridge_outbound_calls_total",
				Help: "Outbound dial attempts by provider and status",
			},
			[]string{"provider", "status"},
		),
		DuplicateCallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "callbridge_duplicate_callbacks_total",
				Help: "Inbound callbacks flagged as duplicates within the dedupe window",
			},
		),
	}
}
