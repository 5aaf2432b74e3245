// Package main is the CLI entry point for the Callbridge voice gateway.
//
// Callbridge drives automated voice conversations over a telephony network:
// it receives provider webhook callbacks for in-progress calls, turns caller
// input into AI-generated replies, synthesizes them to audio, and answers
// with the provider's markup dialect.
//
// # Basic Usage
//
// Start the gateway:
//
//	callbridge serve --config callbridge.yaml
//
// Place an outbound call through a running configuration:
//
//	callbridge dial --to +15550001111
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/callbridge/internal/ai"
	"github.com/haasonsaas/callbridge/internal/callflow"
	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/convctx"
	"github.com/haasonsaas/callbridge/internal/convo"
	"github.com/haasonsaas/callbridge/internal/gateway"
	"github.com/haasonsaas/callbridge/internal/media"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/telephony"
	"github.com/haasonsaas/callbridge/internal/ttscache"

	"github.com/redis/go-redis/v9"
)

// gatewayDrainTimeout bounds graceful shutdown.
const gatewayDrainTimeout = 10 * time.Second

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callbridge",
		Short: "Callbridge - AI voice call gateway",
		Long: `Callbridge bridges telephony providers (Twilio, Exotel) to AI reply
generation and speech synthesis, serving the webhook loop that drives an
automated voice conversation.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildDialCmd(),
	)
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
		dev        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Callbridge gateway",
		Long: `Start the gateway: load configuration, connect the context store and
synthesis cache, select the telephony provider, and serve the webhook,
media, and operational endpoints until SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, debug, dev)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "callbridge.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&dev, "dev", false, "Run without a config file: stub capabilities, in-memory stores, signature checks disabled")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug, dev bool) error {
	var (
		cfg *config.Config
		err error
	)
	if dev {
		cfg = config.DevDefault()
	} else {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.Info(ctx, "starting callbridge", "version", version, "config", configPath)
	if dev {
		logger.Warn(ctx, "development mode: webhook signature verification disabled")
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "callbridge",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(ctx, "tracer shutdown failed", "error", err)
		}
	}()

	provider, err := telephony.NewProvider(cfg, logger)
	if err != nil {
		return err
	}

	store := convctx.New(cfg.Redis, logger)
	cache := ttscache.New(newSynthesisIndex(cfg), logger)

	assets, err := media.New(ctx, cfg.Media)
	if err != nil {
		return err
	}

	responder, err := ai.NewResponder(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	synthesizer, err := ai.NewSynthesizer(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}

	engine := convo.NewEngine(convo.Options{
		Store:        store,
		Responder:    responder,
		Logger:       logger,
		Metrics:      metrics,
		ReplyTimeout: cfg.AI.ReplyTimeout,
	})
	flow := callflow.New(callflow.Options{
		Provider:         provider,
		Engine:           engine,
		Cache:            cache,
		Assets:           assets,
		Synthesizer:      synthesizer,
		Voice:            cfg.AI.Deepgram.Voice,
		PublicBaseURL:    cfg.Server.PublicBaseURL,
		SynthesisTimeout: cfg.AI.SynthesisTimeout,
		Logger:           logger,
		Metrics:          metrics,
	})
	server := gateway.New(gateway.Options{
		Config:   cfg,
		Provider: provider,
		Flow:     flow,
		Engine:   engine,
		Assets:   assets,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gatewayDrainTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildDialCmd() *cobra.Command {
	var (
		configPath string
		toNumber   string
		fromNumber string
	)

	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Place an outbound call",
		Long: `Place an outbound call through the configured telephony provider,
pointing it at this system's webhook. Failure is reported through a sentinel
call ID, not a non-zero exit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(observability.LogConfig{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			provider, err := telephony.NewProvider(cfg, logger)
			if err != nil {
				return err
			}

			callID := provider.InitiateCall(cmd.Context(), toNumber, fromNumber)
			status := "ok"
			if telephony.IsFailedCallID(callID) {
				status = "failed"
			}
			out, _ := json.Marshal(map[string]string{
				"status":           status,
				"provider_call_id": callID,
			})
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "callbridge.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&toNumber, "to", "", "Destination number (E.164)")
	cmd.Flags().StringVar(&fromNumber, "from", "", "Caller ID override")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// newSynthesisIndex picks the synthesis cache backend: shared Redis when an
// address is configured, process memory otherwise.
func newSynthesisIndex(cfg *config.Config) ttscache.Index {
	if cfg.Redis.Addr == "" {
		return ttscache.NewMemoryIndex()
	}
	return ttscache.NewRedisIndex(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
}
