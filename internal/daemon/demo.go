package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/pipectl/internal/client"
	"github.com/danmuck/pipectl/internal/config"
	"github.com/danmuck/pipectl/internal/echo"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// DemoResult is the outcome of exercising one echo endpoint.
type DemoResult struct {
	Pipe     string
	Echo     config.EchoStyle
	Rounds   int
	Duration time.Duration
	Err      error
}

// RunDemo starts every echo endpoint in cfg for rounds sessions and drives
// each with the client exerciser. Endpoints without an echo server are
// skipped. The returned error is the first failure, if any.
func RunDemo(ctx context.Context, cfg config.Config, rounds int, log zerolog.Logger) ([]DemoResult, error) {
	svcCfg := DefaultServiceConfig()
	svcCfg.Config = cfg
	svcCfg.Config.AdminAddr = ""
	svcCfg.Sessions = rounds
	svc := NewServiceWithConfig(svcCfg, log)

	dialer, err := client.NewDialer(svc.Registry(), cfg.ClientRetry, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- svc.Serve(ctx) }()

	select {
	case <-svc.Ready():
	case err := <-served:
		return nil, err
	}

	var endpoints []config.Endpoint
	for _, ep := range cfg.Endpoints {
		if ep.Echo != config.EchoNone {
			endpoints = append(endpoints, ep)
		}
	}
	results := make([]DemoResult, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		g.Go(func() error {
			start := time.Now()
			err := echo.Exercise(gctx, dialer, ep.Name, rounds)
			results[i] = DemoResult{Pipe: ep.Name, Echo: ep.Echo, Rounds: rounds, Duration: time.Since(start), Err: err}
			if err != nil {
				return fmt.Errorf("%s: %w", ep.Name, err)
			}
			return nil
		})
	}
	demoErr := g.Wait()
	cancel()
	if err := <-served; err != nil && demoErr == nil {
		demoErr = err
	}
	return results, demoErr
}
