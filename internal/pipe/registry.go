package pipe

import (
	"sort"
	"sync"

	"github.com/danmuck/pipectl/internal/observability"
	"github.com/moby/locker"
	"github.com/rs/zerolog"
)

// Registry maps pipe names to their endpoint sets. Membership changes for a
// name (create, open, close) are serialized by a per-name lock; distinct
// names never contend beyond the brief map access.
type Registry struct {
	log   zerolog.Logger
	names *locker.Locker

	mu     sync.RWMutex
	sets   map[string]*endpointSet
	closed bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger routes state-transition logs to log.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Registry) {
		r.log = log
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		log:   zerolog.Nop(),
		names: locker.New(),
		sets:  make(map[string]*endpointSet),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create adds a listening instance under name.
func (r *Registry) Create(name string, cfg EndpointConfig) (*Server, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	r.names.Lock(key)
	defer r.names.Unlock(key)

	set, err := r.setForCreate(key, cfg)
	if err != nil {
		return nil, err
	}
	if err := set.admit(cfg); err != nil {
		r.dropIfEmpty(set)
		r.log.Debug().Err(err).Str("pipe", key).Msg("pipe_create_rejected")
		return nil, err
	}
	in := newInstance(key, cfg, r.log)
	set.add(in, cfg)
	observability.AddPipeInstances(1)
	in.log.Debug().
		Str("access", cfg.Access.String()).
		Str("type", cfg.Type.String()).
		Int("max_instances", set.maxInstances).
		Msg("pipe_created")
	return &Server{reg: r, set: set, in: in}, nil
}

// setForCreate returns the set for key, inserting an empty one if needed.
// The closed check and the insert share one critical section so Close
// cannot miss a set.
func (r *Registry) setForCreate(key string, cfg EndpointConfig) (*endpointSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	set, ok := r.sets[key]
	if !ok {
		set = newEndpointSet(key, cfg)
		r.sets[key] = set
	}
	return set, nil
}

func (r *Registry) lookup(key string) (*endpointSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	set, ok := r.sets[key]
	if !ok {
		return nil, ErrNotFound
	}
	return set, nil
}

// dropIfEmpty forgets set once its last instance is gone. Callers hold the
// name lock.
func (r *Registry) dropIfEmpty(set *endpointSet) {
	if len(set.instances) > 0 {
		return
	}
	r.mu.Lock()
	if r.sets[set.key] == set {
		delete(r.sets, set.key)
	}
	r.mu.Unlock()
}

// Open binds a client to the first listening instance of name. It never
// waits: ErrNotFound and ErrBusy are for the caller to retry.
func (r *Registry) Open(name string, opts ...OpenOption) (*Client, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.names.Lock(key)
	defer r.names.Unlock(key)

	set, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	in, gen, err := set.resolveForConnect()
	if err != nil {
		return nil, err
	}
	return newClient(in, gen, o.overlapped), nil
}

// release closes in and removes it from its set.
func (r *Registry) release(set *endpointSet, in *instance) error {
	r.names.Lock(set.key)
	defer r.names.Unlock(set.key)
	if err := in.close(); err != nil {
		return err
	}
	observability.AddPipeInstances(-1)
	set.remove(in)
	r.dropIfEmpty(set)
	return nil
}

// Close tears the registry down: every instance is closed, pending ops
// abort, and later Create or Open calls fail with ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	r.closed = true
	keys := make([]string, 0, len(r.sets))
	for key := range r.sets {
		keys = append(keys, key)
	}
	r.mu.Unlock()

	for _, key := range keys {
		r.names.Lock(key)
		r.mu.Lock()
		set := r.sets[key]
		delete(r.sets, key)
		r.mu.Unlock()
		if set != nil {
			for _, in := range set.instances {
				if in.close() == nil {
					observability.AddPipeInstances(-1)
				}
			}
			set.instances = nil
		}
		r.names.Unlock(key)
	}
	r.log.Debug().Int("names", len(keys)).Msg("pipe_registry_closed")
	return nil
}

// Names lists registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for key := range r.sets {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Lookup returns a snapshot of name's endpoint set.
func (r *Registry) Lookup(name string) (SetInfo, error) {
	key, err := NormalizeName(name)
	if err != nil {
		return SetInfo{}, err
	}
	r.names.Lock(key)
	defer r.names.Unlock(key)
	set, err := r.lookup(key)
	if err != nil {
		return SetInfo{}, err
	}
	return set.info(), nil
}

// Snapshot returns every endpoint set, sorted by name.
func (r *Registry) Snapshot() []SetInfo {
	out := make([]SetInfo, 0)
	for _, key := range r.Names() {
		info, err := r.Lookup(key)
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	return out
}
