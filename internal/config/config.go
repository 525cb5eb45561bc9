// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string

	// SecretKey is the 32-byte AES-256 key for passwords and credentials at
	// rest. Nil when DATAWIPE_SECRET_KEY is unset.
	SecretKey  []byte
	CatalogDir string

	AutoConfirm   bool
	AutoRetry     bool
	PacingMin     time.Duration
	PacingMax     time.Duration
	MaxDifficulty int
	EnrichmentTTL time.Duration

	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	RequesterName  string
	RequesterEmail string

	GenAIAPIKey string
	GenAIModel  string

	BrowserEnabled  bool
	BrowserBin      string
	BrowserHeadless bool
	BrowserTimeout  time.Duration

	LogLevel  slog.Level
	LogFormat string
}

// HasSMTPCredentials reports whether the erasure-email path can be enabled.
func (c *Config) HasSMTPCredentials() bool {
	return c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Load reads configuration from environment variables and returns a validated
// Config. Every variable is optional; malformed values fail fast.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:      envString("DATAWIPE_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:          envString("DATAWIPE_DB_PATH", "datawipe.db"),
		CatalogDir:      envString("DATAWIPE_CATALOG_DIR", ""),
		SMTPHost:        envString("DATAWIPE_SMTP_HOST", ""),
		SMTPUsername:    envString("DATAWIPE_SMTP_USERNAME", ""),
		SMTPPassword:    envString("DATAWIPE_SMTP_PASSWORD", ""),
		RequesterName:   envString("DATAWIPE_REQUESTER_NAME", ""),
		RequesterEmail:  envString("DATAWIPE_REQUESTER_EMAIL", ""),
		GenAIAPIKey:     envString("DATAWIPE_GENAI_API_KEY", ""),
		GenAIModel:      envString("DATAWIPE_GENAI_MODEL", "gemini-2.0-flash"),
		BrowserBin:      envString("DATAWIPE_BROWSER_BIN", ""),
		LogFormat:       strings.ToLower(envString("DATAWIPE_LOG_FORMAT", "text")),
		AutoRetry:       true,
		BrowserHeadless: true,
	}
	if cfg.RequesterEmail == "" {
		cfg.RequesterEmail = cfg.SMTPUsername
	}

	var err error
	if cfg.SecretKey, err = parseKey(os.Getenv("DATAWIPE_SECRET_KEY")); err != nil {
		return nil, fmt.Errorf("DATAWIPE_SECRET_KEY: %w", err)
	}

	if cfg.AutoConfirm, err = envBool("DATAWIPE_AUTO_CONFIRM", false); err != nil {
		return nil, err
	}
	if cfg.AutoRetry, err = envBool("DATAWIPE_AUTO_RETRY", true); err != nil {
		return nil, err
	}
	if cfg.BrowserEnabled, err = envBool("DATAWIPE_BROWSER_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.BrowserHeadless, err = envBool("DATAWIPE_BROWSER_HEADLESS", true); err != nil {
		return nil, err
	}

	if cfg.PacingMin, err = envDuration("DATAWIPE_PACING_MIN", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.PacingMax, err = envDuration("DATAWIPE_PACING_MAX", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.BrowserTimeout, err = envDuration("DATAWIPE_BROWSER_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.EnrichmentTTL, err = envDuration("DATAWIPE_ENRICHMENT_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}

	if cfg.MaxDifficulty, err = envInt("DATAWIPE_MAX_DIFFICULTY", 8); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = envInt("DATAWIPE_SMTP_PORT", 587); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("DATAWIPE_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("DATAWIPE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.PacingMin < 0 || c.PacingMax < c.PacingMin:
		return fmt.Errorf("DATAWIPE_PACING_MIN (%s) must be non-negative and not exceed DATAWIPE_PACING_MAX (%s)", c.PacingMin, c.PacingMax)
	case c.MaxDifficulty < 1 || c.MaxDifficulty > 10:
		return fmt.Errorf("DATAWIPE_MAX_DIFFICULTY must be between 1 and 10, got %d", c.MaxDifficulty)
	case c.SMTPPort < 1 || c.SMTPPort > 65535:
		return fmt.Errorf("DATAWIPE_SMTP_PORT must be a valid port, got %d", c.SMTPPort)
	case c.BrowserTimeout <= 0:
		return fmt.Errorf("DATAWIPE_BROWSER_TIMEOUT must be positive, got %s", c.BrowserTimeout)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("DATAWIPE_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// parseKey accepts a 32-byte key as 64 hex characters or standard base64.
// An empty value yields a nil key.
func parseKey(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}

	var key []byte
	if len(v) == 64 {
		if b, err := hex.DecodeString(v); err == nil {
			key = b
		}
	}
	if key == nil {
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("must be 64 hex characters or base64")
		}
		key = b
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envBool(name string, def bool) (bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", name, v, err)
	}
	return b, nil
}

func envInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	return d, nil
}
