package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/streamstt/internal/core"
)

// ErrProviderNotRegistered is returned by [Registry.CreateRecognizer] when no
// factory has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps recognizer backend names to their constructor functions. It
// is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]func(ProviderEntry) (core.Recognizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]func(ProviderEntry) (core.Recognizer, error)),
	}
}

// Register registers a recognizer factory under name. Subsequent calls with
// the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(ProviderEntry) (core.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has
// been registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (core.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.kinds[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// ResolveModelKey constructs the recognizer for modelKey, falling back to
// cfg.Recognizer.Default when modelKey is empty. The declared entry is
// passed unchanged to [Registry.CreateRecognizer]; an entry named
// "fallback" is built by whichever factory is registered under that name.
func (r *Registry) ResolveModelKey(cfg *Config, modelKey string) (core.Recognizer, error) {
	key := modelKey
	if key == "" {
		key = cfg.Recognizer.Default
	}
	entry, ok := cfg.Recognizer.Backends[key]
	if !ok {
		return nil, fmt.Errorf("config: model_key %q is not declared in recognizer.backends", key)
	}
	return r.CreateRecognizer(entry)
}
