package pipe

import "fmt"

const (
	// DefaultBufferSize is used for a direction whose configured size is 0.
	DefaultBufferSize = 4096
	// MaxInstancesLimit caps MaxInstances for one name.
	MaxInstancesLimit = 255
)

// EndpointConfig is what a server passes when creating an instance.
type EndpointConfig struct {
	Access       AccessMode
	Type         TypeMode
	MaxInstances int
	// InBufferSize bounds client-to-server bytes held at once.
	InBufferSize int
	// OutBufferSize bounds server-to-client bytes held at once.
	OutBufferSize int
	// Overlapped lets *Async calls on the server handle return before
	// they complete.
	Overlapped bool
}

func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.InBufferSize <= 0 {
		c.InBufferSize = DefaultBufferSize
	}
	if c.OutBufferSize <= 0 {
		c.OutBufferSize = DefaultBufferSize
	}
	return c
}

func (c EndpointConfig) Validate() error {
	if !c.Access.valid() {
		return fmt.Errorf("%w: access mode %d", ErrInvalidConfig, c.Access)
	}
	if !c.Type.valid() {
		return fmt.Errorf("%w: type mode %d", ErrInvalidConfig, c.Type)
	}
	if c.MaxInstances < 1 || c.MaxInstances > MaxInstancesLimit {
		return fmt.Errorf("%w: max instances %d outside 1..%d", ErrInvalidConfig, c.MaxInstances, MaxInstancesLimit)
	}
	if c.InBufferSize < 0 || c.OutBufferSize < 0 {
		return fmt.Errorf("%w: negative buffer size", ErrInvalidConfig)
	}
	return nil
}

// endpointSet is every live instance sharing one name. It is guarded by
// the registry's lock for that name.
type endpointSet struct {
	key          string
	access       AccessMode
	typ          TypeMode
	maxInstances int
	instances    []*instance
}

func newEndpointSet(key string, cfg EndpointConfig) *endpointSet {
	return &endpointSet{
		key:          key,
		access:       cfg.Access,
		typ:          cfg.Type,
		maxInstances: cfg.MaxInstances,
	}
}

// admit checks that one more instance with cfg may join the set.
func (s *endpointSet) admit(cfg EndpointConfig) error {
	if len(s.instances) == 0 {
		return nil
	}
	if cfg.Access != s.access || cfg.Type != s.typ {
		return fmt.Errorf("%w: %s has access=%s type=%s", ErrAccessConflict, s.key, s.access, s.typ)
	}
	if cfg.MaxInstances > s.maxInstances {
		return fmt.Errorf("%w: %s allows at most %d", ErrInstancesExceeded, s.key, s.maxInstances)
	}
	if len(s.instances) >= s.maxInstances {
		return fmt.Errorf("%w: %s has %d live instances", ErrInstancesExceeded, s.key, len(s.instances))
	}
	return nil
}

func (s *endpointSet) add(in *instance, cfg EndpointConfig) {
	if len(s.instances) == 0 {
		s.access = cfg.Access
		s.typ = cfg.Type
		s.maxInstances = cfg.MaxInstances
	}
	s.instances = append(s.instances, in)
}

// resolveForConnect binds the first listening instance in creation order.
func (s *endpointSet) resolveForConnect() (*instance, uint64, error) {
	for _, in := range s.instances {
		if gen, ok := in.bind(); ok {
			return in, gen, nil
		}
	}
	if len(s.instances) == 0 {
		return nil, 0, ErrNotFound
	}
	return nil, 0, ErrBusy
}

// remove drops in and reports whether the set is now empty.
func (s *endpointSet) remove(in *instance) bool {
	for i, cur := range s.instances {
		if cur == in {
			s.instances = append(s.instances[:i:i], s.instances[i+1:]...)
			break
		}
	}
	return len(s.instances) == 0
}

// SetInfo is a point-in-time view of one name.
type SetInfo struct {
	Name         string         `json:"name"`
	Access       string         `json:"access"`
	Type         string         `json:"type"`
	MaxInstances int            `json:"max_instances"`
	Instances    []InstanceInfo `json:"instances"`
}

func (s *endpointSet) info() SetInfo {
	out := SetInfo{
		Name:         s.key,
		Access:       s.access.String(),
		Type:         s.typ.String(),
		MaxInstances: s.maxInstances,
		Instances:    make([]InstanceInfo, 0, len(s.instances)),
	}
	for _, in := range s.instances {
		out.Instances = append(out.Instances, in.info())
	}
	return out
}
