// Package config loads runtime configuration from a YAML (or JSON) file and CHIRALITY_* environment variables.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no file is given.
const DefaultFile = "chirality.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHIRALITY_"

// Config is the full runtime configuration.
type Config struct {
	Workspace string `yaml:"workspace" json:"workspace" env:"WORKSPACE"`
	DataDir   string `yaml:"data_dir" json:"data_dir" env:"DATA_DIR"`
	LogLevel  string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	Store     StoreConfig     `yaml:"store" json:"store" envPrefix:"STORE_"`
	Redis     RedisConfig     `yaml:"redis" json:"redis" envPrefix:"REDIS_"`
	Blob      BlobConfig      `yaml:"blob" json:"blob" envPrefix:"BLOB_"`
	Guard     GuardConfig     `yaml:"guard" json:"guard" envPrefix:"GUARD_"`
	Brief     BriefConfig     `yaml:"brief" json:"brief" envPrefix:"BRIEF_"`
	Privacy   PrivacyConfig   `yaml:"privacy" json:"privacy" envPrefix:"PRIVACY_"`
	Git       GitConfig       `yaml:"git" json:"git" envPrefix:"GIT_"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger" envPrefix:"LEDGER_"`
	HTTP      HTTPConfig      `yaml:"http" json:"http" envPrefix:"HTTP_"`
	Auth      AuthConfig      `yaml:"auth" json:"auth" envPrefix:"AUTH_"`
	Anthropic AnthropicConfig `yaml:"anthropic" json:"anthropic" envPrefix:"ANTHROPIC_"`
}

// StoreConfig selects where entity records live.
type StoreConfig struct {
	Backend string        `yaml:"backend" json:"backend" env:"BACKEND"` // file | memory | redis
	LockTTL time.Duration `yaml:"lock_ttl" json:"lock_ttl" env:"LOCK_TTL"`
}

// RedisConfig is used by the redis store backend and distributed locking.
type RedisConfig struct {
	Address  string        `yaml:"address" json:"address" env:"ADDRESS"`
	Password string        `yaml:"password" json:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" json:"db" env:"DB"`
	Prefix   string        `yaml:"prefix" json:"prefix" env:"PREFIX"`
	TTL      time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

// BlobConfig selects the content-addressed store.
type BlobConfig struct {
	Backend string `yaml:"backend" json:"backend" env:"BACKEND"` // file | sqlite | memory
	Path    string `yaml:"path" json:"path" env:"PATH"`
}

// GuardConfig tunes the write-scope guard.
type GuardConfig struct {
	Containment string `yaml:"containment" json:"containment" env:"CONTAINMENT"` // fallback | fail_closed
}

// BriefConfig points at an optional rules table.
type BriefConfig struct {
	RulesFile string `yaml:"rules_file" json:"rules_file" env:"RULES_FILE"`
}

// PrivacyConfig protects session briefs at rest.
type PrivacyConfig struct {
	EncryptionKey  string   `yaml:"encryption_key" json:"encryption_key" env:"ENCRYPTION_KEY"` // 64 hex chars
	FallbackKeys   []string `yaml:"fallback_keys" json:"fallback_keys" env:"FALLBACK_KEYS" envSeparator:","`
	RedactPatterns []string `yaml:"redact_patterns" json:"redact_patterns" env:"REDACT_PATTERNS" envSeparator:","`
}

// GitConfig enables commits and tags on issuance.
type GitConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
}

// LedgerConfig enables the _STATUS.md ledger.
type LedgerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" env:"ENABLED"`
}

// HTTPConfig configures `chirality serve`.
type HTTPConfig struct {
	Address string `yaml:"address" json:"address" env:"ADDRESS"`
}

// AuthConfig enables bearer-token identity on the API.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" json:"issuer" env:"ISSUER"`
}

// AnthropicConfig configures the agent executor.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key" env:"API_KEY"`
	Model     string `yaml:"model" json:"model" env:"MODEL"`
	MaxTokens int64  `yaml:"max_tokens" json:"max_tokens" env:"MAX_TOKENS"`
	AgentsDir string `yaml:"agents_dir" json:"agents_dir" env:"AGENTS_DIR"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Workspace: ".",
		DataDir:   ".chirality",
		LogLevel:  "info",
		Store:     StoreConfig{Backend: "file", LockTTL: 30 * time.Second},
		Redis:     RedisConfig{Address: "localhost:6379", Prefix: "chirality:"},
		Blob:      BlobConfig{Backend: "file"},
		Guard:     GuardConfig{Containment: "fallback"},
		Ledger:    LedgerConfig{Enabled: true},
		HTTP:      HTTPConfig{Address: ":8080"},
	}
}

// Load reads path (or DefaultFile when path is empty and it exists), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects unknown backends, policies and malformed keys.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "file", "memory", "redis":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Blob.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown blob backend %q", c.Blob.Backend)
	}
	if _, err := domain.ParseContainmentPolicy(c.Guard.Containment); err != nil {
		return err
	}
	if _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	for i, k := range c.Privacy.FallbackKeys {
		if _, err := decodeKey(k); err != nil {
			return fmt.Errorf("privacy.fallback_keys[%d] must be 64 hex characters", i)
		}
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}
	return nil
}

// ContainmentPolicy returns the parsed guard policy.
func (c *Config) ContainmentPolicy() domain.ContainmentPolicy {
	p, _ := domain.ParseContainmentPolicy(c.Guard.Containment)
	return p
}

// EncryptionKeys decodes the active and fallback keys. Both are nil when encryption is off.
func (c *Config) EncryptionKeys() (active []byte, err error) {
	if c.Privacy.EncryptionKey == "" {
		return nil, nil
	}
	active, err = hex.DecodeString(c.Privacy.EncryptionKey)
	if err != nil || len(active) != 32 {
		return nil, errors.New("privacy.encryption_key must be 64 hex characters")
	}
	return active, nil
}

// FallbackKeys decodes the rotation keys. Validate rejects malformed ones, so
// none are skipped on a validated Config.
func (c *Config) FallbackKeys() [][]byte {
	var keys [][]byte
	for _, k := range c.Privacy.FallbackKeys {
		if b, err := decodeKey(k); err == nil {
			keys = append(keys, b)
		}
	}
	return keys
}

func decodeKey(k string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(k))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key is %d bytes, want 32", len(b))
	}
	return b, nil
}

// Level maps LogLevel onto slog, defaulting to Info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// DataPath returns the data directory. A relative DataDir sits under Workspace.
func (c *Config) DataPath() string {
	if filepath.IsAbs(c.DataDir) {
		return filepath.Clean(c.DataDir)
	}
	return filepath.Join(c.Workspace, c.DataDir)
}

// Path resolves a data-dir-relative path.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.DataPath()}, elem...)...)
}
