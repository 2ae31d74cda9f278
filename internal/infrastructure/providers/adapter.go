// Package providers implements the payment-gateway adapter layer: one
// adapter per payment gateway, each able to verify an inbound webhook's
// signature and normalize its payload into a provider-agnostic sequence of
// entities.NormalizedEvent.
package providers

import (
	"fmt"
	"net/http"
	"sync"

	"licensepay.backend/internal/domain/entities"
)

// WebhookRequest is the subset of an inbound HTTP request an adapter needs:
// headers for signature verification and the raw, unconsumed body.
type WebhookRequest struct {
	Headers http.Header
	Body    []byte
}

// Header returns the first value of the named header, case-insensitively.
func (r WebhookRequest) Header(name string) string {
	return r.Headers.Get(name)
}

// ProviderAdapter is the capability set every gateway integration
// implements: verify the inbound signature, then parse the body into one
// or more normalized events (a single delivery may bundle several).
type ProviderAdapter interface {
	Name() string
	VerifySignature(req WebhookRequest) bool
	ParseWebhook(req WebhookRequest) ([]entities.NormalizedEvent, error)
}

// Registry resolves a ProviderAdapter by name. Built via constructor
// injection rather than a package-level map so it can be swapped out
// cleanly in tests and doesn't leak global state across requests.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ProviderAdapter
}

// NewRegistry builds a Registry preloaded with adapters.
func NewRegistry(adapters ...ProviderAdapter) *Registry {
	r := &Registry{adapters: make(map[string]ProviderAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its own Name().
func (r *Registry) Register(a ProviderAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Resolve looks up an adapter by provider name.
func (r *Registry) Resolve(name string) (ProviderAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
	return a, nil
}

// FlattenHeaders exposes the adapters' header-flattening helper to callers
// outside the package (the ingress layer needs it to record a signature
// failure before an adapter ever reaches ParseWebhook).
func FlattenHeaders(h http.Header) map[string]string {
	return flattenHeaders(h)
}
