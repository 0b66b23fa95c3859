package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/pipectl/internal/client"
	"github.com/danmuck/pipectl/internal/logging"
	"github.com/danmuck/pipectl/internal/pipe"
)

var (
	ErrNoEndpoints       = errors.New("config: at least one endpoint required")
	ErrDuplicateEndpoint = errors.New("config: duplicate endpoint name")
	ErrUnknownEcho       = errors.New("config: unknown echo style")
)

// EchoStyle selects which echo server, if any, owns an endpoint.
type EchoStyle string

const (
	EchoNone       EchoStyle = ""
	EchoDisconnect EchoStyle = "disconnect"
	EchoRecreate   EchoStyle = "recreate"
	EchoOverlapped EchoStyle = "overlapped"
)

func (e EchoStyle) valid() bool {
	switch e {
	case EchoNone, EchoDisconnect, EchoRecreate, EchoOverlapped:
		return true
	}
	return false
}

// Endpoint is one named pipe the daemon creates at startup.
type Endpoint struct {
	Name string
	Pipe pipe.EndpointConfig
	// Echo hands the endpoint to an echo server. Without one the daemon
	// creates Pipe.MaxInstances idle listening instances.
	Echo EchoStyle
}

// Config is the daemon configuration after defaults and overrides.
type Config struct {
	AdminAddr   string
	CorsOrigins []string
	LogLevel    string
	ClientRetry client.Config
	Endpoints   []Endpoint
}

// DefaultConfig serves one pipe per echo style and the admin surface on
// loopback.
func DefaultConfig() Config {
	return Config{
		AdminAddr:   "127.0.0.1:9400",
		CorsOrigins: []string{"http://localhost:3000"},
		LogLevel:    "info",
		ClientRetry: client.DefaultConfig(),
		Endpoints: []Endpoint{
			defaultEchoEndpoint("echo_disconnect", EchoDisconnect, 1, false),
			defaultEchoEndpoint("echo_recreate", EchoRecreate, 2, false),
			defaultEchoEndpoint("echo_overlapped", EchoOverlapped, 1, true),
		},
	}
}

func defaultEchoEndpoint(short string, style EchoStyle, maxInstances int, overlapped bool) Endpoint {
	return Endpoint{
		Name: pipe.FullName(short),
		Pipe: pipe.EndpointConfig{
			Access:        pipe.AccessDuplex,
			Type:          pipe.TypeByte,
			MaxInstances:  maxInstances,
			InBufferSize:  1024,
			OutBufferSize: 1024,
			Overlapped:    overlapped,
		},
		Echo: style,
	}
}

// Load reads path over DefaultConfig. Keys absent from the file keep their
// defaults; a present endpoints array replaces the default endpoints.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if err := applyRetry(&cfg.ClientRetry, raw.ClientRetry, meta); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("endpoints") {
		endpoints, err := convertEndpoints(raw.Endpoints)
		if err != nil {
			return Config{}, err
		}
		cfg.Endpoints = endpoints
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyRetry(cfg *client.Config, raw retryFile, meta toml.MetaData) error {
	if meta.IsDefined("client_retry", "initial_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.InitialDelay))
		if err != nil {
			return fmt.Errorf("parse client_retry.initial_delay: %w", err)
		}
		cfg.Backoff.InitialDelay = d
	}
	if meta.IsDefined("client_retry", "multiplier") {
		cfg.Backoff.Multiplier = raw.Multiplier
	}
	if meta.IsDefined("client_retry", "max_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.MaxDelay))
		if err != nil {
			return fmt.Errorf("parse client_retry.max_delay: %w", err)
		}
		cfg.Backoff.MaxDelay = d
	}
	if meta.IsDefined("client_retry", "jitter") {
		cfg.Backoff.Jitter = raw.Jitter
	}
	if meta.IsDefined("client_retry", "max_attempts") {
		cfg.MaxAttempts = raw.MaxAttempts
	}
	if meta.IsDefined("client_retry", "not_found_attempts") {
		cfg.NotFoundAttempts = raw.NotFoundAttempts
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.AdminAddr) != "" && !strings.Contains(cfg.AdminAddr, ":") {
		return fmt.Errorf("admin_addr %q must be host:port", cfg.AdminAddr)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok && strings.TrimSpace(cfg.LogLevel) != "" {
		return fmt.Errorf("log_level %q unknown", cfg.LogLevel)
	}
	if err := cfg.ClientRetry.Validate(); err != nil {
		return fmt.Errorf("client_retry: %w", err)
	}
	if len(cfg.Endpoints) == 0 {
		return ErrNoEndpoints
	}
	seen := make(map[string]struct{}, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("endpoint[%d] invalid: %w", i, err)
		}
		key, _ := pipe.NormalizeName(ep.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("endpoint[%d]: %w: %s", i, ErrDuplicateEndpoint, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func ValidateEndpoint(ep Endpoint) error {
	if _, err := pipe.NormalizeName(ep.Name); err != nil {
		return err
	}
	if err := ep.Pipe.Validate(); err != nil {
		return err
	}
	if !ep.Echo.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEcho, ep.Echo)
	}
	if ep.Echo != EchoNone && ep.Pipe.Access != pipe.AccessDuplex {
		return fmt.Errorf("echo endpoint %s needs access = \"duplex\"", ep.Name)
	}
	if ep.Echo == EchoRecreate && ep.Pipe.MaxInstances < 2 {
		return fmt.Errorf("recreate echo endpoint %s needs max_instances >= 2", ep.Name)
	}
	return nil
}
