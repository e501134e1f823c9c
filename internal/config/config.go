// Package config loads the service configuration file (aille.yaml).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aille/internal/alert"
	"github.com/ppiankov/aille/internal/audit"
	"github.com/ppiankov/aille/internal/fusion"
	"github.com/ppiankov/aille/internal/logging"
	"github.com/ppiankov/aille/internal/ratelimit"
	"github.com/ppiankov/aille/internal/validate"
)

// Ledger backends.
const (
	BackendJSONL  = "jsonl"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the full service configuration.
type Config struct {
	Engine  fusion.Config  `yaml:"engine" json:"engine"`
	Ledger  LedgerConfig   `yaml:"ledger" json:"ledger"`
	Logging logging.Config `yaml:"logging" json:"logging"`
	Server  ServerConfig   `yaml:"server" json:"server"`
	Alerts  []alert.Config `yaml:"alerts" json:"alerts" validate:"dive"`
}

// LedgerConfig selects where audit records are kept and how they are chained.
type LedgerConfig struct {
	Backend string `yaml:"backend" json:"backend" default:"jsonl" validate:"oneof=jsonl sqlite memory"`
	Path    string `yaml:"path" json:"path" default:"aille-audit.jsonl" validate:"required_unless=Backend memory"`
	Digest  string `yaml:"digest" json:"digest" default:"xxhash" validate:"oneof=xxhash sha256"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen          string           `yaml:"listen" json:"listen" default:":8080" validate:"required"`
	MaxFallbackRate float64          `yaml:"max_fallback_rate" json:"max_fallback_rate" default:"0.10" validate:"gte=0,lte=1"`
	RateLimits      ratelimit.Config `yaml:"rate_limits" json:"rate_limits" validate:"dive"` // keyed by user_id, "*" for everyone else
}

// Default returns the built-in configuration.
func Default() Config {
	var cfg Config
	if err := validate.Defaults(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks every section.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// Load reads path over the defaults. An empty path or a missing file yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// OpenLedger opens the audit ledger the config describes.
func (c LedgerConfig) OpenLedger(opts ...audit.Option) (*audit.Ledger, error) {
	digest, err := audit.DigestByName(c.Digest)
	if err != nil {
		return nil, err
	}
	opts = append([]audit.Option{audit.WithDigest(digest)}, opts...)

	var store audit.Store
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		s, err := audit.OpenSQLite(c.Path)
		if err != nil {
			return nil, err
		}
		store = s
	case BackendJSONL, "":
		s, err := audit.OpenJSONL(c.Path)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("config: unknown ledger backend %q", c.Backend)
	}

	l, err := audit.Open(store, opts...)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	return l, nil
}
