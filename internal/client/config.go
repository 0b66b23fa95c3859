package client

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRetryConfig = errors.New("client: invalid retry config")

// BackoffConfig defines the delay between open attempts.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config is the caller-side policy for opening a pipe that may be busy or
// not yet created.
type Config struct {
	Backoff BackoffConfig
	// MaxAttempts bounds open attempts; 0 retries until ctx ends.
	MaxAttempts int
	// NotFoundAttempts is how many leading attempts treat ErrNotFound as
	// "server not up yet". Later NotFound results are final.
	NotFoundAttempts int
}

// DefaultConfig polls every 200ms, the pace a client uses while a server
// cycles its instance between sessions.
func DefaultConfig() Config {
	return Config{
		Backoff: BackoffConfig{
			InitialDelay: 200 * time.Millisecond,
			Multiplier:   1.0,
			MaxDelay:     2 * time.Second,
		},
		NotFoundAttempts: 1,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff.InitialDelay = def.Backoff.InitialDelay
	}
	if c.Backoff.Multiplier < 1.0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if c.Backoff.MaxDelay <= 0 {
		c.Backoff.MaxDelay = def.Backoff.MaxDelay
	}
	return c
}

func (c Config) Validate() error {
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidRetryConfig)
	}
	if c.Backoff.MaxDelay > 0 && c.Backoff.InitialDelay > c.Backoff.MaxDelay {
		return fmt.Errorf("%w: initial_delay %s exceeds max_delay %s", ErrInvalidRetryConfig, c.Backoff.InitialDelay, c.Backoff.MaxDelay)
	}
	if c.MaxAttempts < 0 || c.NotFoundAttempts < 0 {
		return fmt.Errorf("%w: negative attempt count", ErrInvalidRetryConfig)
	}
	return nil
}
