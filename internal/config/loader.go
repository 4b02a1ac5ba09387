package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	cfg.Tuning = cfg.Tuning.WithDefaults()
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Script.Path != "" && cfg.Script.ID != "" {
		errs = append(errs, errors.New("script.path and script.id are mutually exclusive"))
	}
	if cfg.Script.ID != "" && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("script.id requires store.postgres_dsn"))
	}

	t := cfg.Tuning
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("tuning.confidence_threshold %v must be in [0, 1]", t.ConfidenceThreshold))
	}
	if t.DistanceWeight < 0 || t.DistanceWeight > 1 {
		errs = append(errs, fmt.Errorf("tuning.distance_weight %v must be in [0, 1]", t.DistanceWeight))
	}
	if t.WordThreshold < 0 || t.WordThreshold > 1 {
		errs = append(errs, fmt.Errorf("tuning.word_threshold %v must be in [0, 1]", t.WordThreshold))
	}
	if t.CaretPercent < 0 || t.CaretPercent >= 1 {
		errs = append(errs, fmt.Errorf("tuning.caret_percent %v must be in [0, 1)", t.CaretPercent))
	}
	if t.Radius < 0 {
		errs = append(errs, fmt.Errorf("tuning.radius %d must not be negative", t.Radius))
	}
	if t.MinConsecutive < 0 {
		errs = append(errs, fmt.Errorf("tuning.min_consecutive %d must not be negative", t.MinConsecutive))
	}
	if t.CorrectionGain < 0 {
		errs = append(errs, fmt.Errorf("tuning.correction_gain %v must not be negative", t.CorrectionGain))
	}
	if t.MaxCorrectionSpeedPx < 0 {
		errs = append(errs, fmt.Errorf("tuning.max_correction_speed_px %v must not be negative", t.MaxCorrectionSpeedPx))
	}
	if t.MinPace != 0 && t.MaxPace != 0 && t.MinPace > t.MaxPace {
		errs = append(errs, fmt.Errorf("tuning.min_pace %v must not exceed tuning.max_pace %v", t.MinPace, t.MaxPace))
	}

	if v := cfg.Viewport; v.HeightPx < 0 || v.PxPerWord < 0 {
		errs = append(errs, errors.New("viewport dimensions must not be negative"))
	}

	return errors.Join(errs...)
}
