package echo

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/pipectl/internal/pipe"
	"github.com/rs/zerolog"
)

const (
	// DefaultSessions is the session count used by the demo and tests.
	DefaultSessions = 8
	// BufferSize is the per-direction quota of echo instances and the
	// largest request a session reads.
	BufferSize = 1024
)

var ErrNameRequired = errors.New("echo: pipe name required")

// Config configures one echo server.
type Config struct {
	Name string
	// Sessions stops Run after that many sessions; 0 serves until ctx ends.
	Sessions int
	// Endpoint overrides the instance settings. A zero Access selects a
	// duplex byte pipe with BufferSize quotas. Overlapped and the instance
	// floor each style needs are always applied on top.
	Endpoint pipe.EndpointConfig
	Log      zerolog.Logger
}

func (c Config) validate() error {
	if c.Name == "" {
		return ErrNameRequired
	}
	if c.Sessions < 0 {
		return fmt.Errorf("echo: negative session count %d", c.Sessions)
	}
	if c.Endpoint.Access != 0 && c.Endpoint.Access != pipe.AccessDuplex {
		return fmt.Errorf("echo: %s needs a duplex pipe, got %s", c.Name, c.Endpoint.Access)
	}
	return nil
}

func (c Config) more(done int) bool {
	return c.Sessions == 0 || done < c.Sessions
}

func defaultEndpoint(maxInstances int, overlapped bool) pipe.EndpointConfig {
	return pipe.EndpointConfig{
		Access:        pipe.AccessDuplex,
		Type:          pipe.TypeByte,
		MaxInstances:  maxInstances,
		InBufferSize:  BufferSize,
		OutBufferSize: BufferSize,
		Overlapped:    overlapped,
	}
}

func (c Config) endpoint(minInstances int, overlapped bool) pipe.EndpointConfig {
	ep := c.Endpoint
	if ep.Access == 0 {
		ep = defaultEndpoint(minInstances, overlapped)
	}
	ep.MaxInstances = max(ep.MaxInstances, minInstances)
	ep.Overlapped = overlapped
	return ep
}

// serveSession answers one request on a connected instance and waits for
// the client to read the reply.
func serveSession(ctx context.Context, srv *pipe.Server, buf []byte) (int, error) {
	n, err := srv.Read(ctx, buf)
	if err != nil {
		return 0, fmt.Errorf("read request: %w", err)
	}
	written, err := srv.Write(ctx, buf[:n])
	if err != nil {
		return 0, fmt.Errorf("write reply: %w", err)
	}
	if written != n {
		return 0, fmt.Errorf("write reply: short write %d/%d", written, n)
	}
	if err := srv.Flush(ctx); err != nil {
		return 0, fmt.Errorf("flush reply: %w", err)
	}
	return n, nil
}

// connect waits for a client. A client that bound before the call counts,
// even one that already left: its buffered request is still served.
func connect(ctx context.Context, srv *pipe.Server) error {
	err := srv.Connect(ctx)
	if errors.Is(err, pipe.ErrAlreadyConnected) || errors.Is(err, pipe.ErrBrokenPipe) {
		return nil
	}
	return err
}

// sessionFailed logs a session that ended early. A peer that left early
// is routine; anything else is worth a warning.
func sessionFailed(log zerolog.Logger, session int, err error) {
	event := log.Warn()
	if errors.Is(err, pipe.ErrBrokenPipe) || errors.Is(err, pipe.ErrNotConnected) {
		event = log.Debug()
	}
	event.Err(err).Int("session", session).Msg("echo_session_failed")
}

// DisconnectServer serves every session on one instance.
type DisconnectServer struct {
	cfg Config
	srv *pipe.Server
}

func NewDisconnectServer(reg *pipe.Registry, cfg Config) (*DisconnectServer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	srv, err := reg.Create(cfg.Name, cfg.endpoint(1, false))
	if err != nil {
		return nil, err
	}
	cfg.Log = cfg.Log.With().Str("echo", "disconnect").Str("pipe", srv.Name()).Logger()
	return &DisconnectServer{cfg: cfg, srv: srv}, nil
}

func (s *DisconnectServer) Name() string { return s.srv.Name() }

// Run serves sessions until the configured count is reached or ctx ends.
// The instance is closed on return.
func (s *DisconnectServer) Run(ctx context.Context) error {
	defer s.srv.Close()
	buf := make([]byte, BufferSize)
	for done := 0; s.cfg.more(done); done++ {
		if err := connect(ctx, s.srv); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n, err := serveSession(ctx, s.srv, buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			sessionFailed(s.cfg.Log, done, err)
		} else {
			s.cfg.Log.Debug().Int("session", done).Int("bytes", n).Msg("echo_session_done")
		}
		if err := s.srv.Disconnect(); err != nil {
			return err
		}
	}
	return nil
}

// RecreateServer replaces its instance after every session.
type RecreateServer struct {
	cfg Config
	reg *pipe.Registry
	srv *pipe.Server
}

func NewRecreateServer(reg *pipe.Registry, cfg Config) (*RecreateServer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	srv, err := reg.Create(cfg.Name, cfg.endpoint(2, false))
	if err != nil {
		return nil, err
	}
	cfg.Log = cfg.Log.With().Str("echo", "recreate").Str("pipe", srv.Name()).Logger()
	return &RecreateServer{cfg: cfg, reg: reg, srv: srv}, nil
}

func (s *RecreateServer) Name() string { return s.srv.Name() }

// Run serves sessions, creating the next instance before closing the one
// that served so the name never disappears between sessions.
func (s *RecreateServer) Run(ctx context.Context) error {
	defer func() { s.srv.Close() }()
	buf := make([]byte, BufferSize)
	for done := 0; s.cfg.more(done); done++ {
		if err := connect(ctx, s.srv); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n, err := serveSession(ctx, s.srv, buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			sessionFailed(s.cfg.Log, done, err)
		} else {
			s.cfg.Log.Debug().Int("session", done).Int("bytes", n).Msg("echo_session_done")
		}
		if err := s.srv.Disconnect(); err != nil {
			return err
		}
		next, err := s.reg.Create(s.cfg.Name, s.cfg.endpoint(2, false))
		if err != nil {
			return fmt.Errorf("create next instance: %w", err)
		}
		if err := s.srv.Close(); err != nil {
			next.Close()
			return err
		}
		s.srv = next
	}
	return nil
}
