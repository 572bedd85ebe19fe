package outbound

import (
	"sync"
)

// Registry owns one named client per upstream service. It is an explicitly
// constructed object injected into consumers rather than a package-level
// singleton, so initialization order is visible at the call site and
// shutdown has an owner.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*Client
	config  *Config
	extra   []Option
}

// NewRegistry creates a registry. config may be nil, in which case every
// client is built from the library defaults plus extra options. The extra
// options apply to every client the registry constructs (shared logger,
// metrics collector, middleware).
func NewRegistry(config *Config, extra ...Option) *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		config:  config,
		extra:   extra,
	}
}

// Client returns the named client, constructing it on first use.
// Construction is double-checked under the registry lock so concurrent
// first calls build exactly one instance; later calls return the same one.
func (r *Registry) Client(name string, opts ...Option) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clientLocked(name, opts...)
}

func (r *Registry) clientLocked(name string, opts ...Option) *Client {
	if client, ok := r.clients[name]; ok {
		return client
	}

	var options []Option
	if r.config != nil {
		if sc, ok := r.config.Services[name]; ok {
			options = append(options, sc.options(name)...)
		}
	}
	if len(options) == 0 {
		options = append(options, WithServiceName(name))
	}
	options = append(options, r.extra...)
	options = append(options, opts...)

	client := New(options...)
	r.clients[name] = client
	return client
}

// Init eagerly constructs a client for every configured service so the
// first real request does not pay construction cost and configuration
// errors surface at startup. Returns the first validation error found.
func (r *Registry) Init() error {
	if r.config == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.config.Services {
		client := r.clientLocked(name)
		if err := client.ValidationError(); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup closes every registered client and clears the registry. It is
// idempotent and safe during shutdown even when some clients were never
// used; the registry remains usable afterwards (clients are rebuilt on
// demand).
func (r *Registry) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, client := range r.clients {
		client.Close()
	}
	r.clients = make(map[string]*Client)
}

// Len returns the number of constructed clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// BreakerStates snapshots breaker states across every constructed client,
// keyed by registry name then service bucket.
func (r *Registry) BreakerStates() map[string]map[string]CircuitState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]map[string]CircuitState, len(r.clients))
	for name, client := range r.clients {
		out[name] = client.BreakerStates()
	}
	return out
}
