// Package gateway is the HTTP surface of the call bridge: the telephony
// webhook, media playback, outbound dialing, and the operational endpoints.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/callbridge/internal/cache"
	"github.com/haasonsaas/callbridge/internal/callflow"
	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/convo"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
)

// dedupe window sizing: vendors re-deliver within seconds, not hours.
const (
	dedupeTTL     = 2 * time.Minute
	dedupeMaxSize = 4096
)

// Server hosts the HTTP endpoints and owns their lifecycle.
type Server struct {
	cfg      *config.Config
	provider telephony.Provider
	flow     *callflow.Flow
	engine   *convo.Engine
	assets   media.AssetStore
	dedupe   *cache.DedupeWindow

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	httpServer *http.Server
}

// Options holds the collaborators the server routes requests to.
type Options struct {
	Config   *config.Config
	Provider telephony.Provider
	Flow     *callflow.Flow
	Engine   *convo.Engine
	Assets   media.AssetStore

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// New wires the HTTP server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.Tracer == nil {
		opts.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	return &Server{
		cfg:      opts.Config,
		provider: opts.Provider,
		flow:     opts.Flow,
		engine:   opts.Engine,
		assets:   opts.Assets,
		dedupe:   cache.NewDedupeWindow(cache.DedupeOptions{TTL: dedupeTTL, MaxSize: dedupeMaxSize}),
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
	}
}

// Handler returns the routed handler with middleware applied. Exposed so
// tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /voice/webhook", s.handleWebhook)
	mux.HandleFunc("GET /media/audio/{id}", s.handleMedia)
	mux.HandleFunc("POST /calls/outbound", s.handleOutbound)
	mux.HandleFunc("POST /ai/respond", s.handleRespond)
	mux.HandleFunc("POST /conversation/reset/{session_id}", s.handleReset)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s.withRequestID(mux)
}

// Start listens and serves until the context is cancelled or Serve fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	s.logger.Info(ctx, "gateway listening",
		"addr", addr, "provider", string(s.provider.Name()))

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway: serve: %w", err)
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "gateway shutdown error", "error", err)
		return err
	}
	return nil
}
