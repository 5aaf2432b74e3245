package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("telephony:\n  debug_skip_verify: true\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Telephony.Provider != "twilio" {
		t.Errorf("expected default provider twilio, got %q", cfg.Telephony.Provider)
	}
	if cfg.AI.ReplyTimeout != 20*time.Second {
		t.Errorf("expected default reply timeout 20s, got %v", cfg.AI.ReplyTimeout)
	}
	if cfg.AI.Deepgram.Voice != "aura-asteria-en" {
		t.Errorf("unexpected default voice %q", cfg.AI.Deepgram.Voice)
	}
	if cfg.Media.Backend != "dir" {
		t.Errorf("expected default media backend dir, got %q", cfg.Media.Backend)
	}
}

func TestParse_RequiresAuthTokenWithoutDebug(t *testing.T) {
	_, err := Parse([]byte("telephony:\n  provider: twilio\n"))
	if err == nil {
		t.Fatal("expected error for missing auth token")
	}
}

func TestParse_UnknownProvider(t *testing.T) {
	_, err := Parse([]byte("telephony:\n  provider: carrier-pigeon\n"))
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestParse_S3RequiresBucket(t *testing.T) {
	_, err := Parse([]byte("telephony:\n  debug_skip_verify: true\nmedia:\n  backend: s3\n"))
	if err == nil {
		t.Fatal("expected error for missing s3 bucket")
	}
}

func TestParse_TrimsPublicBaseURL(t *testing.T) {
	cfg, err := Parse([]byte("telephony:\n  debug_skip_verify: true\nserver:\n  public_base_url: https://example.com/\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.Server.PublicBaseURL != "https://example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Server.PublicBaseURL)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("CALLBRIDGE_TEST_TOKEN", "tok-123")

	dir := t.TempDir()
	path := filepath.Join(dir, "callbridge.yaml")
	body := "telephony:\n  provider: twilio\n  twilio:\n    auth_token: ${CALLBRIDGE_TEST_TOKEN}\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Telephony.Twilio.AuthToken != "tok-123" {
		t.Errorf("expected env expansion, got %q", cfg.Telephony.Twilio.AuthToken)
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "typoed-name.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDefaults_KeepSignatureVerificationOn(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	if cfg.Telephony.DebugSkipVerify {
		t.Error("defaults must not disable signature verification")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("twilio config without an auth token must not validate")
	}
}

func TestDevDefault(t *testing.T) {
	cfg := DevDefault()
	if !cfg.Telephony.DebugSkipVerify {
		t.Error("dev config should skip signature verification")
	}
	if cfg.AI.Responder != "stub" || cfg.AI.Synthesizer != "stub" {
		t.Errorf("dev config should run on stubs, got %q/%q", cfg.AI.Responder, cfg.AI.Synthesizer)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dev config must validate: %v", err)
	}
}
