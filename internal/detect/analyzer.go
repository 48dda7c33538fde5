package detect

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/sentinel-cli/internal/model"
)

// Request carries one run's dispatched signal batch to an analyzer.
type Request struct {
	RunID   string
	OrgID   string
	Profile *model.OrganizationProfile
	Signals []model.ScoredSignal
}

// Result is what an analyzer returns on success. Findings carry only the
// analyzer-specific variant; the router stamps run and org identity before
// persistence.
type Result struct {
	Findings []model.Finding
}

// Analyzer inspects a scored signal batch and produces findings.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (*Result, error)
}

// Registry holds the available analyzers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	analyzers map[string]Analyzer
}

func NewRegistry() *Registry {
	return &Registry{analyzers: make(map[string]Analyzer)}
}

func (r *Registry) Register(a Analyzer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzers[a.Name()] = a
}

func (r *Registry) Get(name string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyzers[name]
	return a, ok
}

// Names returns the registered analyzer names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.analyzers))
	for name := range r.analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
