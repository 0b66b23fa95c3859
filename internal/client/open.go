package client

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/pipectl/internal/observability"
	"github.com/danmuck/pipectl/internal/pipe"
	"github.com/rs/zerolog"
)

// Opener is the part of a registry a client needs.
type Opener interface {
	Open(name string, opts ...pipe.OpenOption) (*pipe.Client, error)
}

// Dialer opens pipes with a retry policy layered over a single-attempt
// Opener. The engine never retries; this is where that policy lives.
type Dialer struct {
	opener Opener
	cfg    Config
	log    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewDialer(opener Opener, cfg Config, log zerolog.Logger) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Dialer{
		opener: opener,
		cfg:    cfg.WithDefaults(),
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Open retries ErrBusy until it binds, ctx ends or MaxAttempts runs out.
// ErrNotFound is retried only for the first NotFoundAttempts attempts; any
// other error is returned at once.
func (d *Dialer) Open(ctx context.Context, name string, opts ...pipe.OpenOption) (*pipe.Client, error) {
	var attempt int
	for {
		attempt++
		c, err := d.opener.Open(name, opts...)
		observability.RecordOpenAttempt(attemptResult(err))
		if err == nil {
			if attempt > 1 {
				d.log.Debug().Str("pipe", name).Int("attempts", attempt).Msg("pipe_open_retried")
			}
			return c, nil
		}
		if !d.retryable(err, attempt) || !d.shouldRetry(attempt) {
			return nil, err
		}
		d.log.Debug().Err(err).Str("pipe", name).Int("attempt", attempt).Msg("pipe_open_retry")
		if err := d.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (d *Dialer) retryable(err error, attempt int) bool {
	switch {
	case errors.Is(err, pipe.ErrBusy):
		return true
	case errors.Is(err, pipe.ErrNotFound):
		return attempt <= d.cfg.NotFoundAttempts
	default:
		return false
	}
}

func (d *Dialer) shouldRetry(attempt int) bool {
	if d.cfg.MaxAttempts <= 0 {
		return true
	}
	return attempt < d.cfg.MaxAttempts
}

func (d *Dialer) sleepBackoff(ctx context.Context, attempt int) error {
	d.mu.Lock()
	delay := NextBackoffDelay(d.cfg.Backoff, attempt, d.rng)
	d.mu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, pipe.ErrBusy):
		return "busy"
	case errors.Is(err, pipe.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
