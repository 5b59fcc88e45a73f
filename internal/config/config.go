// Package config holds operator-level configuration for a TruAi governor
// installation: data directory, audit signing key, provider credentials,
// model routing overrides, and server settings. Set via env vars (TRUAI_*)
// or truai.config.yaml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/demewebsolutions/truai/internal/llm"
)

// Viper keys. Each maps to an env var with the TRUAI_ prefix
// (e.g. "signing_key" → TRUAI_SIGNING_KEY) and to a YAML field in
// truai.config.yaml.
const (
	KeyDataDir        = "data_dir"
	KeySigningKey     = "signing_key"
	KeyOpenAIAPIKey   = "openai_api_key"
	KeyMarkersFile    = "markers_file"
	KeyListenAddr     = "listen_addr"
	KeyAdminKey       = "admin_key"
	KeyAPIKeys        = "api_keys"
	KeyTimeoutSeconds = "generate_timeout_seconds"
	KeyMaxAttempts    = "generate_max_attempts"
	KeyRateLimitRPS   = "rate_limit_rps"
	KeyRateLimitBurst = "rate_limit_burst"
	KeyModelCheap     = "models.cheap"
	KeyModelMid       = "models.mid"
	KeyModelHigh      = "models.high"
)

// Defaults that do not involve crypto material. The signing key has no
// baked-in default; when unset we derive a per-machine fallback and warn.
const (
	DefaultListenAddr     = ":8080"
	DefaultTimeoutSeconds = 30
	DefaultMaxAttempts    = 3
	DefaultRateLimitRPS   = 10
	DefaultRateLimitBurst = 20
)

// Config is the resolved operator configuration for a governor process.
type Config struct {
	DataDir         string            // base directory for all state (~/.truai)
	SigningKey      string            // HMAC-SHA256 key for audit signing (≥32 bytes)
	OpenAIAPIKey    string            // provider credential
	MarkersFile     string            // optional risk-marker override YAML
	ListenAddr      string            // HTTP listen address
	AdminKey        string            // API key for the admin override path
	APIKeys         map[string]string // API key → user ID
	GenerateTimeout time.Duration     // per-attempt generation deadline
	MaxAttempts     int               // generation retry budget
	RateLimitRPS    int               // per-key request rate
	RateLimitBurst  int               // per-key burst allowance
	Models          llm.ModelMap      // tier → model overrides

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey reports whether the audit signing key fell back
// to the derived per-machine default.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// TaskDBPath returns the full path to the task SQLite database.
func (c *Config) TaskDBPath() string {
	return filepath.Join(c.DataDir, "tasks.db")
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not set.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default TRUAI_SIGNING_KEY — set via env var or config file for production")
	}
}

func init() {
	viper.SetEnvPrefix("TRUAI")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyTimeoutSeconds, DefaultTimeoutSeconds)
	viper.SetDefault(KeyMaxAttempts, DefaultMaxAttempts)
	viper.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	viper.SetDefault(KeyRateLimitBurst, DefaultRateLimitBurst)
}

// Load reads configuration from Viper (env vars, config file, defaults)
// and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		SigningKey:      viper.GetString(KeySigningKey),
		OpenAIAPIKey:    resolveOpenAIKey(),
		MarkersFile:     viper.GetString(KeyMarkersFile),
		ListenAddr:      viper.GetString(KeyListenAddr),
		AdminKey:        viper.GetString(KeyAdminKey),
		APIKeys:         viper.GetStringMapString(KeyAPIKeys),
		GenerateTimeout: time.Duration(viper.GetInt(KeyTimeoutSeconds)) * time.Second,
		MaxAttempts:     viper.GetInt(KeyMaxAttempts),
		RateLimitRPS:    viper.GetInt(KeyRateLimitRPS),
		RateLimitBurst:  viper.GetInt(KeyRateLimitBurst),
		Models: llm.ModelMap{
			Cheap: viper.GetString(KeyModelCheap),
			Mid:   viper.GetString(KeyModelMid),
			High:  viper.GetString(KeyModelHigh),
		},
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".truai"
	}
	return filepath.Join(home, ".truai")
}

// resolveOpenAIKey prefers TRUAI_OPENAI_API_KEY but accepts the plain
// OPENAI_API_KEY env var as a single-operator quickstart fallback.
func resolveOpenAIKey() string {
	if key := viper.GetString(KeyOpenAIAPIKey); key != "" {
		return key
	}
	return os.Getenv("OPENAI_API_KEY")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. Not cryptographically strong — it exists
// so the governor runs out of the box while still signing the audit trail
// with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("truai:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set TRUAI_SIGNING_KEY", len(c.SigningKey))
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("generate_timeout_seconds must be positive")
	}
	if c.GenerateTimeout > llm.MaxGenerateTimeout {
		return fmt.Errorf("generate_timeout_seconds must not exceed %d", int(llm.MaxGenerateTimeout.Seconds()))
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("generate_max_attempts must be positive")
	}
	return nil
}
