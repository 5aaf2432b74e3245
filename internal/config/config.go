// Package config loads and validates the Callbridge configuration.
//
// Configuration is a single YAML document. Environment variable references
// in the form ${VAR} are expanded before parsing, so secrets (API keys,
// auth tokens) can stay out of the file itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Callbridge.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telephony TelephonyConfig `yaml:"telephony"`
	Redis     RedisConfig     `yaml:"redis"`
	Media     MediaConfig     `yaml:"media"`
	AI        AIConfig        `yaml:"ai"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// PublicBaseURL is the externally reachable base URL of this instance
	// (e.g. an ngrok or load-balancer address). It is used to build webhook
	// and media playback URLs handed to the telephony network. When empty,
	// the call flow degrades to <Say> instead of <Play>.
	PublicBaseURL string `yaml:"public_base_url"`
}

type TelephonyConfig struct {
	// Provider selects the active vendor: "twilio" or "exotel".
	Provider string `yaml:"provider"`

	// DebugSkipVerify disables webhook signature verification. Only for
	// local development; the server logs a warning on startup when set.
	DebugSkipVerify bool `yaml:"debug_skip_verify"`

	Twilio TwilioConfig `yaml:"twilio"`
	Exotel ExotelConfig `yaml:"exotel"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type ExotelConfig struct {
	APIKey     string `yaml:"api_key"`
	APIToken   string `yaml:"api_token"`
	Subdomain  string `yaml:"subdomain"`
	AccountSID string `yaml:"account_sid"`
	FromNumber string `yaml:"from_number"`
}

type RedisConfig struct {
	// Addr is the host:port of the shared Redis instance. When empty, the
	// conversation store and TTS cache fall back to process memory.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MediaConfig struct {
	// Backend selects the audio asset store: "dir" (default) or "s3".
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

type AIConfig struct {
	// Responder selects the reply-generation capability:
	// "gemini", "openai", or "stub".
	Responder string       `yaml:"responder"`
	Gemini    GeminiConfig `yaml:"gemini"`
	OpenAI    OpenAIConfig `yaml:"openai"`

	// Synthesizer selects the speech-synthesis capability:
	// "deepgram" or "stub".
	Synthesizer string         `yaml:"synthesizer"`
	Deepgram    DeepgramConfig `yaml:"deepgram"`

	// ReplyTimeout bounds a single reply-generation call.
	ReplyTimeout time.Duration `yaml:"reply_timeout"`

	// SynthesisTimeout bounds a single text-to-speech call.
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type DeepgramConfig struct {
	APIKey string `yaml:"api_key"`

	// Voice is the TTS voice model, also the first half of the synthesis
	// cache key.
	Voice string `yaml:"voice"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
	Insecure     bool    `yaml:"insecure"`
}

// ApplyDefaults fills in zero values with working defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.PublicBaseURL = strings.TrimRight(c.Server.PublicBaseURL, "/")

	if c.Telephony.Provider == "" {
		c.Telephony.Provider = "twilio"
	}
	if c.Media.Backend == "" {
		c.Media.Backend = "dir"
	}
	if c.Media.Dir == "" {
		c.Media.Dir = "var/audio"
	}
	if c.AI.Responder == "" {
		c.AI.Responder = "stub"
	}
	if c.AI.Synthesizer == "" {
		c.AI.Synthesizer = "stub"
	}
	if c.AI.Gemini.Model == "" {
		c.AI.Gemini.Model = "gemini-2.0-flash"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.Deepgram.Voice == "" {
		c.AI.Deepgram.Voice = "aura-asteria-en"
	}
	if c.AI.ReplyTimeout == 0 {
		c.AI.ReplyTimeout = 20 * time.Second
	}
	if c.AI.SynthesisTimeout == 0 {
		c.AI.SynthesisTimeout = 30 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later as confusing runtime failures.
func (c *Config) Validate() error {
	switch c.Telephony.Provider {
	case "twilio":
		if !c.Telephony.DebugSkipVerify && c.Telephony.Twilio.AuthToken == "" {
			return fmt.Errorf("config: telephony.twilio.auth_token is required unless debug_skip_verify is set")
		}
	case "exotel":
	default:
		return fmt.Errorf("config: unknown telephony provider %q", c.Telephony.Provider)
	}

	switch c.Media.Backend {
	case "dir":
	case "s3":
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("config: media.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("config: unknown media backend %q", c.Media.Backend)
	}

	switch c.AI.Responder {
	case "gemini", "openai", "stub":
	default:
		return fmt.Errorf("config: unknown responder %q", c.AI.Responder)
	}

	switch c.AI.Synthesizer {
	case "deepgram", "stub":
	default:
		return fmt.Errorf("config: unknown synthesizer %q", c.AI.Synthesizer)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Parse decodes raw YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
