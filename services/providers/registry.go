package providers

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a provider is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate provider
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry keeps the chat and embedding providers configured at startup,
// keyed by provider name.
type Registry struct {
	mu        sync.RWMutex
	chat      map[string]ChatProvider
	embedding map[string]EmbeddingProvider
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		chat:      make(map[string]ChatProvider),
		embedding: make(map[string]EmbeddingProvider),
	}
}

// RegisterChat registers a chat provider
func (r *Registry) RegisterChat(p ChatProvider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	if p.Name() == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chat[p.Name()]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.chat[p.Name()] = p
	return nil
}

// RegisterEmbedding registers an embedding provider
func (r *Registry) RegisterEmbedding(p EmbeddingProvider) error {
	if p == nil {
		return errors.New("provider cannot be nil")
	}
	if p.Name() == "" {
		return errors.New("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.embedding[p.Name()]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.embedding[p.Name()] = p
	return nil
}

// Chat retrieves a chat provider by name
func (r *Registry) Chat(name string) (ChatProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.chat[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Embedding retrieves an embedding provider by name
func (r *Registry) Embedding(name string) (EmbeddingProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.embedding[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Names returns the sorted names of all registered providers of either kind
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.chat)+len(r.embedding))
	for name := range r.chat {
		seen[name] = struct{}{}
	}
	for name := range r.embedding {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
