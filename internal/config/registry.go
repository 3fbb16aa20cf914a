package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/resona-ai/resona/pkg/provider/genai"
	"github.com/resona-ai/resona/pkg/provider/text"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	media map[string]func(ProviderEntry) (genai.Provider, error)
	text  map[string]func(ProviderEntry) (text.Provider, error)
	live  map[string]func(LiveEntry) (genai.LiveDialer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		media: make(map[string]func(ProviderEntry) (genai.Provider, error)),
		text:  make(map[string]func(ProviderEntry) (text.Provider, error)),
		live:  make(map[string]func(LiveEntry) (genai.LiveDialer, error)),
	}
}

// RegisterMedia registers a media provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterMedia(name string, factory func(ProviderEntry) (genai.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[name] = factory
}

// RegisterText registers a text provider factory under name.
func (r *Registry) RegisterText(name string, factory func(ProviderEntry) (text.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = factory
}

// RegisterLive registers a live dialer factory under name.
func (r *Registry) RegisterLive(name string, factory func(LiveEntry) (genai.LiveDialer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// CreateMedia constructs the media provider configured in entry.
func (r *Registry) CreateMedia(entry ProviderEntry) (genai.Provider, error) {
	r.mu.RLock()
	factory, ok := r.media[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: media provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateText constructs the text provider configured in entry.
func (r *Registry) CreateText(entry ProviderEntry) (text.Provider, error) {
	r.mu.RLock()
	factory, ok := r.text[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: text provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLive constructs the live dialer configured in entry.
func (r *Registry) CreateLive(entry LiveEntry) (genai.LiveDialer, error) {
	r.mu.RLock()
	factory, ok := r.live[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// MediaNames returns the registered media provider names.
func (r *Registry) MediaNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.media))
	for name := range r.media {
		names = append(names, name)
	}
	return names
}
