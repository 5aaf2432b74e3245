package config

import (
	"fmt"
	"os"
	"strings"
)

// Load reads a configuration file, expands ${ENV} references and returns a
// validated Config.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config: path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	return Parse([]byte(expanded))
}

// DevDefault returns the development configuration: stub capabilities,
// process-memory stores, and webhook signature verification disabled. It is
// only reachable through an explicit operator flag; Load never falls back to
// it, so a mistyped config path fails instead of serving unverified.
func DevDefault() *Config {
	cfg := &Config{}
	cfg.Telephony.DebugSkipVerify = true
	cfg.ApplyDefaults()
	return cfg
}
