package config

import (
	"fmt"
	"strings"

	"github.com/danmuck/pipectl/internal/pipe"
)

// fileConfig mirrors the TOML layout. Durations are strings so they read
// as "200ms" in the file.
type fileConfig struct {
	AdminAddr   string         `toml:"admin_addr"`
	CorsOrigins []string       `toml:"cors_origins"`
	LogLevel    string         `toml:"log_level"`
	ClientRetry retryFile      `toml:"client_retry"`
	Endpoints   []endpointFile `toml:"endpoints"`
}

type retryFile struct {
	InitialDelay     string  `toml:"initial_delay"`
	Multiplier       float64 `toml:"multiplier"`
	MaxDelay         string  `toml:"max_delay"`
	Jitter           bool    `toml:"jitter"`
	MaxAttempts      int     `toml:"max_attempts"`
	NotFoundAttempts int     `toml:"not_found_attempts"`
}

type endpointFile struct {
	Name         string `toml:"name"`
	Access       string `toml:"access"`
	Type         string `toml:"type"`
	MaxInstances int    `toml:"max_instances"`
	InBuffer     int    `toml:"in_buffer"`
	OutBuffer    int    `toml:"out_buffer"`
	Overlapped   bool   `toml:"overlapped"`
	Echo         string `toml:"echo"`
}

// convertEndpoints turns file entries into endpoints. Short names get the
// pipe prefix and a missing max_instances means 1.
func convertEndpoints(entries []endpointFile) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(entries))
	for i, entry := range entries {
		access, err := pipe.ParseAccessMode(entry.Access)
		if err != nil {
			return nil, fmt.Errorf("endpoint[%d]: %w", i, err)
		}
		typ, err := pipe.ParseTypeMode(entry.Type)
		if err != nil {
			return nil, fmt.Errorf("endpoint[%d]: %w", i, err)
		}
		maxInstances := entry.MaxInstances
		if maxInstances == 0 {
			maxInstances = 1
		}
		out = append(out, Endpoint{
			Name: pipe.FullName(strings.TrimSpace(entry.Name)),
			Pipe: pipe.EndpointConfig{
				Access:        access,
				Type:          typ,
				MaxInstances:  maxInstances,
				InBufferSize:  entry.InBuffer,
				OutBufferSize: entry.OutBuffer,
				Overlapped:    entry.Overlapped,
			},
			Echo: EchoStyle(strings.ToLower(strings.TrimSpace(entry.Echo))),
		})
	}
	return out, nil
}

// toFile is the inverse of Load's conversion, used to render templates.
func toFile(cfg Config) fileConfig {
	out := fileConfig{
		AdminAddr:   cfg.AdminAddr,
		CorsOrigins: cfg.CorsOrigins,
		LogLevel:    cfg.LogLevel,
		ClientRetry: retryFile{
			InitialDelay:     cfg.ClientRetry.Backoff.InitialDelay.String(),
			Multiplier:       cfg.ClientRetry.Backoff.Multiplier,
			MaxDelay:         cfg.ClientRetry.Backoff.MaxDelay.String(),
			Jitter:           cfg.ClientRetry.Backoff.Jitter,
			MaxAttempts:      cfg.ClientRetry.MaxAttempts,
			NotFoundAttempts: cfg.ClientRetry.NotFoundAttempts,
		},
		Endpoints: make([]endpointFile, 0, len(cfg.Endpoints)),
	}
	for _, ep := range cfg.Endpoints {
		out.Endpoints = append(out.Endpoints, endpointFile{
			Name:         pipe.ShortName(strings.ToLower(ep.Name)),
			Access:       ep.Pipe.Access.String(),
			Type:         ep.Pipe.Type.String(),
			MaxInstances: ep.Pipe.MaxInstances,
			InBuffer:     ep.Pipe.InBufferSize,
			OutBuffer:    ep.Pipe.OutBufferSize,
			Overlapped:   ep.Pipe.Overlapped,
			Echo:         string(ep.Echo),
		})
	}
	return out
}
