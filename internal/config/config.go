// Package config provides the configuration schema, loader, and recognizer
// registry for the streaming transcription server.
package config

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Session    SessionConfig    `yaml:"session"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings for the wsserver listener.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`
}

// RecognizerConfig declares the set of recognizer backends a client may
// select at connection time via the model-selection handshake message, and
// which one is used when a client omits model_key.
type RecognizerConfig struct {
	// Default is the model_key used when a connecting client does not send
	// one. Must name an entry in Backends.
	Default string `yaml:"default"`

	// Backends maps a model_key to its backend configuration.
	Backends map[string]ProviderEntry `yaml:"backends"`
}

// ProviderEntry configures a single recognizer backend.
type ProviderEntry struct {
	// Name selects the registered recognizer implementation (e.g., "mock",
	// "whisper", "fallback"). Looked up in the [Registry].
	Name string `yaml:"name"`

	// BaseURL is the backend's server address, for backends that talk to a
	// remote process (e.g. NeuralBackend's whisper.cpp server).
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the backend (e.g. "base.en").
	Model string `yaml:"model"`

	// Language is the BCP-47 language hint forwarded to the backend.
	Language string `yaml:"language"`

	// Fallback, when Name is "fallback", names another Backends entry to
	// use as the secondary recognizer.
	Fallback string `yaml:"fallback"`
}

// SessionConfig holds the three tunables every Session is constructed with.
// The session's recognizer is chosen through [RecognizerConfig], not here.
type SessionConfig struct {
	// MaxSegmentSamples is the ring buffer capacity, in samples.
	MaxSegmentSamples int `yaml:"max_segment_samples"`

	// MinNewSamples is the minimum amount of fresh audio, in samples, that
	// must accumulate before another recognizer invocation is warranted.
	MinNewSamples int `yaml:"min_new_samples"`

	// LocalAgreeDim is N in LocalAgree-N: the number of consecutive
	// hypotheses that must agree before a prefix is committed.
	LocalAgreeDim int `yaml:"local_agree_dim"`
}
