package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Condition summarizes a dependency for status reporting.
type Condition string

// Dependency conditions, from best to worst.
const (
	ConditionUp       Condition = "up"
	ConditionDegraded Condition = "degraded"
	ConditionDown     Condition = "down"
)

// ProviderHealth is a point-in-time view of one outbound dependency, such as
// the push relay or the remote config endpoint.
type ProviderHealth struct {
	Name          string
	CircuitState  gobreaker.State
	Counts        gobreaker.Counts
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	LastError     string
}

// Condition maps the breaker state: closed is up, half-open is degraded and
// open is down. A closed breaker whose latest call failed is degraded too.
func (h ProviderHealth) Condition() Condition {
	switch h.CircuitState {
	case gobreaker.StateOpen:
		return ConditionDown
	case gobreaker.StateHalfOpen:
		return ConditionDegraded
	}
	if h.Counts.ConsecutiveFailures > 0 {
		return ConditionDegraded
	}
	return ConditionUp
}

// Registry collects the outcome of every call made through the clients
// registered with it. One registry is created per process.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*tracked
	now       func() time.Time
}

type tracked struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*tracked),
		now:       time.Now,
	}
}

// Register adds a client under name, replacing any previous one.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &tracked{client: client}
}

// Record stores the outcome of one call; a nil err is a success. Unknown
// names are ignored.
func (r *Registry) Record(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return
	}
	now := r.now()
	if err == nil {
		p.lastSuccessAt = &now
		return
	}
	p.lastFailureAt = &now
	p.lastError = err.Error()
}

// Health returns the current view of one dependency.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return p.health(name), true
}

// Snapshot returns every dependency ordered by name.
func (r *Registry) Snapshot() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		out = append(out, p.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (p *tracked) health(name string) ProviderHealth {
	return ProviderHealth{
		Name:          name,
		CircuitState:  p.client.CircuitBreakerState(),
		Counts:        p.client.CircuitBreakerCounts(),
		LastSuccessAt: p.lastSuccessAt,
		LastFailureAt: p.lastFailureAt,
		LastError:     p.lastError,
	}
}
