// Package source defines the interface and implementations for signal
// source adapters.
package source

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sells-group/sentinel-cli/internal/model"
	"github.com/sells-group/sentinel-cli/internal/resilience"
)

// Query is one search request issued to every adapter during collection.
type Query struct {
	// Text is the raw search string.
	Text string
	// Kind labels why the query exists (org, competitor, crisis,
	// opportunity, industry). Used for logging and reports only.
	Kind string
	// Window bounds how far back results should reach.
	Window model.TimeWindow
	// Profile is the organization under watch. Read-only.
	Profile *model.OrganizationProfile
}

// Adapter fetches raw signals from one external source class. The deadline
// is carried by ctx; implementations must return promptly on cancellation.
type Adapter interface {
	// Name returns the adapter identifier (matches config and report keys).
	Name() string
	// Fetch runs the query and returns whatever signals the source offered.
	Fetch(ctx context.Context, q Query) ([]model.RawSignal, error)
}

// Registry manages available source adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// List returns all registered adapter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered adapter in name order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// breakers keys one circuit per adapter name, so wrappers rebuilt around
// the same source share failure history.
var breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())

// BreakerStates reports the circuit state of every throttled adapter.
func BreakerStates() map[string]resilience.CircuitState {
	return breakers.States()
}

// Throttled wraps an adapter with a rate limiter and a circuit breaker so
// one misbehaving upstream cannot starve a collection run.
type Throttled struct {
	inner   Adapter
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

// Throttle wraps an adapter. rps bounds sustained request rate; burst
// allows short spikes.
func Throttle(a Adapter, rps float64, burst int) *Throttled {
	return &Throttled{
		inner:   a,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breakers.Get(a.Name()),
	}
}

func (t *Throttled) Name() string {
	return t.inner.Name()
}

func (t *Throttled) Fetch(ctx context.Context, q Query) ([]model.RawSignal, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return resilience.ExecuteVal(ctx, t.breaker, func(ctx context.Context) ([]model.RawSignal, error) {
		return t.inner.Fetch(ctx, q)
	})
}

// BreakerState exposes the wrapped circuit state for monitoring.
func (t *Throttled) BreakerState() resilience.CircuitState {
	return t.breaker.State()
}

// clean drops malformed signals and stamps the adapter name on the rest.
func clean(signals []model.RawSignal, adapterName string) []model.RawSignal {
	out := make([]model.RawSignal, 0, len(signals))
	for _, s := range signals {
		if !s.Valid() {
			continue
		}
		s.Adapter = adapterName
		out = append(out, s)
	}
	return out
}
