package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists known recognizer implementation names. Used by
// [Validate] to warn about unrecognised names; this is advisory only,
// since the actual binding happens at [Registry.CreateRecognizer] time.
var ValidBackendNames = []string{"mock", "whisper", "fallback"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
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
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrBadConfiguration is returned by [Validate] when cfg violates one of the
// session invariants or references an undeclared recognizer backend.
var ErrBadConfiguration = errors.New("config: bad configuration")

// Validate checks that cfg contains a coherent set of values, enforcing the
// session invariants (min_new_samples >= 1, max_segment_samples >=
// min_new_samples, local_agree_dim >= 1) and that recognizer.default names a
// declared backend. It returns a joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Session.MinNewSamples < 1 {
		errs = append(errs, errors.New("session.min_new_samples must be >= 1"))
	}
	if cfg.Session.MaxSegmentSamples < cfg.Session.MinNewSamples {
		errs = append(errs, errors.New("session.max_segment_samples must be >= session.min_new_samples"))
	}
	if cfg.Session.LocalAgreeDim < 1 {
		errs = append(errs, errors.New("session.local_agree_dim must be >= 1"))
	}

	for key, entry := range cfg.Recognizer.Backends {
		if entry.Name == "" {
			errs = append(errs, fmt.Errorf("recognizer.backends[%q].name is required", key))
			continue
		}
		if !slices.Contains(ValidBackendNames, entry.Name) {
			slog.Warn("unknown recognizer backend name, may be a typo or third-party backend",
				"model_key", key,
				"name", entry.Name,
				"known", ValidBackendNames,
			)
		}
		if entry.Name == "fallback" {
			if entry.Fallback == "" {
				errs = append(errs, fmt.Errorf("recognizer.backends[%q]: name is \"fallback\" but fallback is not set", key))
			} else if _, ok := cfg.Recognizer.Backends[entry.Fallback]; !ok {
				errs = append(errs, fmt.Errorf("recognizer.backends[%q].fallback %q does not name a declared backend", key, entry.Fallback))
			}
		}
	}

	if cfg.Recognizer.Default != "" {
		if _, ok := cfg.Recognizer.Backends[cfg.Recognizer.Default]; !ok {
			errs = append(errs, fmt.Errorf("recognizer.default %q does not name a declared backend", cfg.Recognizer.Default))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	err := ErrBadConfiguration
	for _, e := range errs {
		err = fmt.Errorf("%w: %v", err, e)
	}
	return err
}
