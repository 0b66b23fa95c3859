package echo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.hybscloud.com/iox"
	"github.com/danmuck/pipectl/internal/pipe"
)

// pollInterval paces Poll-style completion checks.
const pollInterval = time.Millisecond

// CompletionStyle is how the overlapped server learns an op finished.
type CompletionStyle int

const (
	// CompleteByWait blocks in Op.Wait.
	CompleteByWait CompletionStyle = iota
	// CompleteByPoll spins on Op.Poll until it stops reporting would-block.
	CompleteByPoll
)

func (c CompletionStyle) String() string {
	if c == CompleteByPoll {
		return "poll"
	}
	return "wait"
}

// OverlappedServer serves sessions with async ops on an overlapped
// instance. Sessions alternate between the two completion styles.
type OverlappedServer struct {
	cfg Config
	srv *pipe.Server
}

func NewOverlappedServer(reg *pipe.Registry, cfg Config) (*OverlappedServer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	srv, err := reg.Create(cfg.Name, cfg.endpoint(1, true))
	if err != nil {
		return nil, err
	}
	cfg.Log = cfg.Log.With().Str("echo", "overlapped").Str("pipe", srv.Name()).Logger()
	return &OverlappedServer{cfg: cfg, srv: srv}, nil
}

func (s *OverlappedServer) Name() string { return s.srv.Name() }

func (s *OverlappedServer) Run(ctx context.Context) error {
	defer s.srv.Close()
	buf := make([]byte, BufferSize)
	for done := 0; s.cfg.more(done); done++ {
		style := CompletionStyle(done % 2)
		_, err := complete(ctx, s.srv.ConnectAsync(), style)
		if errors.Is(err, pipe.ErrAlreadyConnected) || errors.Is(err, pipe.ErrBrokenPipe) {
			err = nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n, err := s.session(ctx, buf, style)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			sessionFailed(s.cfg.Log, done, err)
		} else {
			s.cfg.Log.Debug().Int("session", done).Int("bytes", n).Stringer("style", style).Msg("echo_session_done")
		}
		if err := s.srv.Disconnect(); err != nil {
			return err
		}
	}
	return nil
}

func (s *OverlappedServer) session(ctx context.Context, buf []byte, style CompletionStyle) (int, error) {
	n, err := complete(ctx, s.srv.ReadAsync(buf), style)
	if err != nil {
		return 0, fmt.Errorf("read request: %w", err)
	}
	written, err := complete(ctx, s.srv.WriteAsync(buf[:n]), style)
	if err != nil {
		return 0, fmt.Errorf("write reply: %w", err)
	}
	if written != n {
		return 0, fmt.Errorf("write reply: short write %d/%d", written, n)
	}
	if err := s.srv.Flush(ctx); err != nil {
		return 0, fmt.Errorf("flush reply: %w", err)
	}
	return n, nil
}

// complete drives op to a result in the given style. The instance close
// in Run is what aborts an op still pending when ctx ends.
func complete(ctx context.Context, op *pipe.Op, style CompletionStyle) (int, error) {
	if style == CompleteByWait {
		return op.Wait(ctx)
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		n, err := op.Poll()
		if !errors.Is(err, iox.ErrWouldBlock) {
			return n, err
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}
