package daemon

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/pipectl/internal/admin"
	"github.com/danmuck/pipectl/internal/config"
	"github.com/danmuck/pipectl/internal/echo"
	"github.com/danmuck/pipectl/internal/pipe"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ServiceConfig configures the pipectl daemon.
type ServiceConfig struct {
	ID     string
	Config config.Config
	// Sessions bounds each echo server; 0 serves until shutdown.
	Sessions          int
	HeartbeatInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ID:                "pipectl",
		Config:            config.DefaultConfig(),
		HeartbeatInterval: 30 * time.Second,
	}
}

type runner interface {
	Name() string
	Run(ctx context.Context) error
}

// Service owns one registry and everything the config creates on it.
type Service struct {
	cfg   ServiceConfig
	log   zerolog.Logger
	reg   *pipe.Registry
	ready chan struct{}
}

func NewServiceWithConfig(cfg ServiceConfig, log zerolog.Logger) *Service {
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "pipectl"
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultServiceConfig().HeartbeatInterval
	}
	return &Service{
		cfg:   cfg,
		log:   log,
		reg:   pipe.NewRegistry(pipe.WithLogger(log)),
		ready: make(chan struct{}),
	}
}

func (s *Service) Registry() *pipe.Registry {
	return s.reg
}

// Ready is closed once every configured endpoint exists.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// Serve creates the configured endpoints, runs their echo servers and the
// admin surface, and tears the registry down when ctx ends.
func (s *Service) Serve(ctx context.Context) error {
	defer s.reg.Close()

	if err := config.Validate(s.cfg.Config); err != nil {
		return err
	}
	runners, err := s.bootstrap()
	if err != nil {
		return err
	}
	var ln net.Listener
	if addr := strings.TrimSpace(s.cfg.Config.AdminAddr); addr != "" {
		ln, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("admin listen: %w", err)
		}
	}
	close(s.ready)

	g, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		g.Go(func() error {
			if err := r.Run(ctx); err != nil {
				return fmt.Errorf("echo %s: %w", r.Name(), err)
			}
			return nil
		})
	}
	if ln != nil {
		server := admin.New(s.cfg.ID, s.cfg.Config.CorsOrigins, s.reg, s.log.With().Str("component", "admin").Logger())
		g.Go(func() error { return server.Serve(ctx, ln) })
	}
	g.Go(func() error {
		s.heartbeat(ctx)
		return nil
	})

	err = g.Wait()
	s.log.Info().Msg("pipectl_shutdown")
	return err
}

// bootstrap creates every configured endpoint. Echo endpoints get a server;
// the rest get MaxInstances idle listening instances.
func (s *Service) bootstrap() ([]runner, error) {
	runners := make([]runner, 0, len(s.cfg.Config.Endpoints))
	for _, ep := range s.cfg.Config.Endpoints {
		if ep.Echo == config.EchoNone {
			for range ep.Pipe.MaxInstances {
				if _, err := s.reg.Create(ep.Name, ep.Pipe); err != nil {
					return nil, fmt.Errorf("create %s: %w", ep.Name, err)
				}
			}
			s.log.Info().Str("pipe", ep.Name).Int("instances", ep.Pipe.MaxInstances).Msg("pipe_endpoint_ready")
			continue
		}
		r, err := newEchoServer(s.reg, ep, echo.Config{
			Name:     ep.Name,
			Sessions: s.cfg.Sessions,
			Endpoint: ep.Pipe,
			Log:      s.log,
		})
		if err != nil {
			return nil, fmt.Errorf("echo %s: %w", ep.Name, err)
		}
		s.log.Info().Str("pipe", r.Name()).Str("echo", string(ep.Echo)).Msg("pipe_endpoint_ready")
		runners = append(runners, r)
	}
	return runners, nil
}

func newEchoServer(reg *pipe.Registry, ep config.Endpoint, cfg echo.Config) (runner, error) {
	switch ep.Echo {
	case config.EchoDisconnect:
		return echo.NewDisconnectServer(reg, cfg)
	case config.EchoRecreate:
		return echo.NewRecreateServer(reg, cfg)
	case config.EchoOverlapped:
		return echo.NewOverlappedServer(reg, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEcho, ep.Echo)
	}
}

func (s *Service) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			instances := 0
			snapshot := s.reg.Snapshot()
			for _, set := range snapshot {
				instances += len(set.Instances)
			}
			s.log.Info().Int("pipes", len(snapshot)).Int("instances", instances).Msg("pipectl_heartbeat")
		}
	}
}
