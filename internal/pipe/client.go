package pipe

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// OpenOption configures Registry.Open.
type OpenOption func(*openOptions)

type openOptions struct {
	overlapped bool
}

// WithOverlapped lets *Async calls on the client handle return before they
// complete.
func WithOverlapped() OpenOption {
	return func(o *openOptions) {
		o.overlapped = true
	}
}

// Client is a binding to one connected instance. It does not own the
// instance: closing it only releases the binding, and a server disconnect
// turns every later call into ErrNotConnected.
type Client struct {
	id         uuid.UUID
	in         *instance
	gen        uint64
	overlapped bool
	closed     atomic.Bool
}

func newClient(in *instance, gen uint64, overlapped bool) *Client {
	c := &Client{id: uuid.New(), in: in, gen: gen, overlapped: overlapped}
	in.log.Debug().Str("client", c.id.String()).Uint64("gen", gen).Msg("pipe_client_bound")
	return c
}

func (c *Client) ID() string { return c.id.String() }

// Name is the normalized pipe name.
func (c *Client) Name() string { return c.in.key }

// InstanceID identifies the instance this client is bound to.
func (c *Client) InstanceID() string { return c.in.id.String() }

func (c *Client) Read(ctx context.Context, p []byte) (int, error) {
	return c.in.await(ctx, c.submit(OpRead, p))
}

func (c *Client) ReadAsync(p []byte) *Op {
	return c.settle(c.submit(OpRead, p))
}

func (c *Client) Write(ctx context.Context, p []byte) (int, error) {
	return c.in.await(ctx, c.submit(OpWrite, p))
}

func (c *Client) WriteAsync(p []byte) *Op {
	return c.settle(c.submit(OpWrite, p))
}

// Peek copies buffered server data into p without consuming it.
func (c *Client) Peek(p []byte) (PeekInfo, error) {
	if c.closed.Load() {
		return PeekInfo{}, ErrClosed
	}
	return c.in.peek(SideClient, c.gen, p)
}

// SetReadMode switches between byte and message reads. Message reads need
// a message-type pipe.
func (c *Client) SetReadMode(mode ReadMode) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.in.setReadMode(SideClient, c.gen, mode)
}

func (c *Client) ReadMode() ReadMode {
	return c.in.readModeOf(SideClient)
}

// Close releases the binding. The instance stays with its server.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	c.in.release(c.gen)
	return nil
}

func (c *Client) submit(kind OpKind, p []byte) *Op {
	if c.closed.Load() {
		return failedOp(kind, SideClient, ErrClosed)
	}
	return c.in.submit(newOp(kind, SideClient, c.gen, p))
}

func (c *Client) settle(op *Op) *Op {
	if !c.overlapped {
		<-op.done
	}
	return op
}
