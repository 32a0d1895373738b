// Package config loads birthmark settings from a YAML or JSONC file with
// BIRTHMARK_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/fsutil"
	"github.com/birthmark-protocol/birthmark/pkg/logging"
	"github.com/birthmark-protocol/birthmark/pkg/model"
	"github.com/birthmark-protocol/birthmark/pkg/webhook"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BIRTHMARK_"

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = EnvPrefix + "CONFIG"

// Config is the effective birthmark configuration.
type Config struct {
	Backend     BackendConfig     `yaml:"backend" json:"backend" envPrefix:"BACKEND_"`
	Fingerprint FingerprintConfig `yaml:"fingerprint" json:"fingerprint" envPrefix:"FINGERPRINT_"`
	Submitter   SubmitterConfig   `yaml:"submitter" json:"submitter" envPrefix:"SUBMITTER_"`
	Sidecar     SidecarConfig     `yaml:"sidecar" json:"sidecar" envPrefix:"SIDECAR_"`
	Journal     JournalConfig     `yaml:"journal" json:"journal" envPrefix:"JOURNAL_"`
	Server      ServerConfig      `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Webhooks    WebhooksConfig    `yaml:"webhooks" json:"webhooks" envPrefix:"WEBHOOKS_"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging" envPrefix:"LOGGING_"`
}

// BackendConfig selects the ledger backend. Options are passed to
// ledger.Resolve unchanged. BIRTHMARK_BACKEND_OPTIONS replaces the whole
// map, e.g. "endpoint:http://127.0.0.1:8645,network:local".
type BackendConfig struct {
	Name    string            `yaml:"name" json:"name" env:"NAME"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty" env:"OPTIONS"`
}

// FingerprintConfig picks the digest algorithm.
type FingerprintConfig struct {
	Algorithm string `yaml:"algorithm" json:"algorithm" env:"ALGORITHM"`
}

// SubmitterConfig identifies this device or user on the ledger.
type SubmitterConfig struct {
	ID string `yaml:"id" json:"id" env:"ID"`
}

// SidecarConfig sets the sidecar format: json, cbor or none.
type SidecarConfig struct {
	Format string `yaml:"format" json:"format" env:"FORMAT"`
}

// JournalConfig enables the local submission journal when Path is set.
type JournalConfig struct {
	Path string `yaml:"path" json:"path" env:"PATH"`
}

// ServerConfig configures `birthmark serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`
}

// WebhooksConfig lists endpoints `birthmark serve` notifies about accepted
// records. Hooks are file-only; the retry knobs also read the environment.
type WebhooksConfig struct {
	Hooks      []webhook.HookConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`
	MaxRetries int                  `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration        `yaml:"retry_delay" json:"retry_delay" env:"RETRY_DELAY"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LEVEL"`
	Format string `yaml:"format" json:"format" env:"FORMAT"` // json, text
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Backend:     BackendConfig{Name: "memory"},
		Fingerprint: FingerprintConfig{Algorithm: string(model.DefaultAlgorithm)},
		Sidecar:     SidecarConfig{Format: string(model.SidecarJSON)},
		Server:      ServerConfig{Addr: "127.0.0.1:8645"},
		Webhooks:    WebhooksConfig{MaxRetries: 3, RetryDelay: webhook.DefaultRetryDelay},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
	}
}

// DefaultPath returns $BIRTHMARK_CONFIG, else ~/.birthmark/config.yaml.
func DefaultPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".birthmark", "config.yaml")
	}
	return filepath.Join(home, ".birthmark", "config.yaml")
}

// Load reads the file at path over the defaults, then applies environment
// overrides. An empty path means DefaultPath, which may be absent; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
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
	if isJSON(path) {
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return errclass.ErrInvalidConfiguration.WithMessagef("parse config %s: %v", path, err)
	}
	return nil
}

func isJSON(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return true
	}
	return false
}

// Validate rejects values no component could use. Algorithm and backend
// names are checked where they are resolved.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.Name) == "" {
		return errclass.ErrMissingConfiguration.WithMessage("backend.name must be set")
	}
	switch model.SidecarFormat(c.Sidecar.Format) {
	case model.SidecarJSON, model.SidecarCBOR, model.SidecarNone:
	default:
		return errclass.ErrInvalidConfiguration.WithMessagef("sidecar.format %q (json, cbor, none)", c.Sidecar.Format)
	}
	if c.Webhooks.MaxRetries < 0 {
		return errclass.ErrInvalidConfiguration.WithMessage("webhooks.max_retries must not be negative")
	}
	for _, h := range c.Webhooks.Hooks {
		if err := h.Validate(); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errclass.ErrInvalidConfiguration.WithMessagef("logging.level: %v", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return errclass.ErrInvalidConfiguration.WithMessagef("logging.format: %v", err)
	}
	return nil
}

// Save writes cfg to path atomically, as JSON for .json/.jsonc paths and
// YAML otherwise.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
