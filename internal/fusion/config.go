package fusion

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/aille/internal/validate"
)

// Config holds the thresholds of one decision cycle. An Engine copies it at
// construction and on SetConfig; it is never mutated mid-cycle.
type Config struct {
	MinConfidenceThreshold   float64 `yaml:"min_confidence_threshold" json:"min_confidence_threshold" default:"0.35" validate:"gte=0,lte=1"`
	GraceConfidenceThreshold float64 `yaml:"grace_confidence_threshold" json:"grace_confidence_threshold" default:"0.25" validate:"gte=0,ltefield=MinConfidenceThreshold"`
	MinModelsRequired        int     `yaml:"min_models_required" json:"min_models_required" default:"2" validate:"gte=1,ltefield=MaxModelCount"`
	SignAgreementThreshold   float64 `yaml:"sign_agreement_threshold" json:"sign_agreement_threshold" default:"0.66" validate:"gt=0,lte=1"`
	FallbackWindowSize       int     `yaml:"fallback_window_size" json:"fallback_window_size" default:"50" validate:"gte=1"`
	FallbackPositionScale    float64 `yaml:"fallback_position_scale" json:"fallback_position_scale" default:"0.1" validate:"gte=0,lte=1"`
	MaxModelCount            int     `yaml:"max_model_count" json:"max_model_count" default:"10" validate:"gte=1"`
}

// DefaultConfig returns the built-in thresholds.
func DefaultConfig() Config {
	var cfg Config
	// Tags are static; Set only fails on malformed tags.
	if err := validate.Defaults(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks ranges and the grace <= min ordering.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// LoadConfig loads engine thresholds from a YAML file.
// Empty path or a missing file returns defaults. YAML overwrites only the
// fields it names. Invalid YAML or out-of-range values return an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("fusion: read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("fusion: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("fusion: %w", err)
	}
	return cfg, nil
}
