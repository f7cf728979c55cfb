package search

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"slrforge/internal/config"
)

// Provider executes one compiled query against a scholarly database and
// returns normalized documents. Implementations enforce their own rate
// limit and retry policy internally.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Document, error)
}

// Registry maps provider names to implementations. Dialects without a
// registered provider stay syntax-only and are skipped by the executor.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry builds a registry with every executable provider wired from
// the given configuration.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	r.Add(NewOpenAlex(cfg))
	r.Add(NewArxiv(cfg))
	r.Add(NewCrossref(cfg))
	r.Add(NewSemanticScholar(cfg))
	return r
}

// EmptyRegistry returns a registry with no providers, for callers that wire
// their own.
func EmptyRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Add registers a provider under its own name, replacing any previous one.
func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Token buckets are process-wide singletons keyed by provider name so that
// concurrent stage invocations share one budget per service.
var (
	limiterMu sync.Mutex
	limiters  = make(map[string]*rate.Limiter)
)

// LimiterFor returns the shared token bucket for a provider, creating it
// with the given capacity and refill rate on first use. Later calls ignore
// the parameters and return the existing bucket.
func LimiterFor(name string, capacity int, refillPerSecond float64) *rate.Limiter {
	limiterMu.Lock()
	defer limiterMu.Unlock()
	l, ok := limiters[name]
	if !ok {
		l = rate.NewLimiter(rate.Limit(refillPerSecond), capacity)
		limiters[name] = l
	}
	return l
}
