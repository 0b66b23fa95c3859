package pipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/pipectl/internal/testutil/testlog"
)

const testPipe = `\\.\PiPe\tests_pipe`

var (
	bitBucket = []byte("Bit Bucket\x00")
	moreBits  = []byte("More bits\x00")
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	testlog.Start(t)
	reg := NewRegistry(WithLogger(testlog.Logger(t)))
	t.Cleanup(func() { reg.Close() })
	return reg
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func byteConfig(maxInstances int) EndpointConfig {
	return EndpointConfig{
		Access:        AccessDuplex,
		Type:          TypeByte,
		MaxInstances:  maxInstances,
		InBufferSize:  1024,
		OutBufferSize: 1024,
	}
}

func mustCreate(t *testing.T, reg *Registry, name string, cfg EndpointConfig) *Server {
	t.Helper()
	srv, err := reg.Create(name, cfg)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return srv
}

func mustOpen(t *testing.T, reg *Registry, name string, opts ...OpenOption) *Client {
	t.Helper()
	c, err := reg.Open(name, opts...)
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	return c
}

// openEventually retries Open while the server re-arms on another goroutine.
func openEventually(t *testing.T, reg *Registry, name string) *Client {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := reg.Open(name)
		if err == nil {
			return c
		}
		if !errors.Is(err, ErrBusy) || time.Now().After(deadline) {
			t.Fatalf("open %s: %v", name, err)
		}
		time.Sleep(time.Millisecond)
	}
}

type readWriter interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
}

func mustWrite(t *testing.T, ctx context.Context, w readWriter, p []byte) {
	t.Helper()
	n, err := w.Write(ctx, p)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if n != len(p) {
		t.Fatalf("write len got=%d want=%d", n, len(p))
	}
}

func mustRead(t *testing.T, ctx context.Context, r readWriter, size int, want ...[]byte) {
	t.Helper()
	buf := make([]byte, size)
	n, err := r.Read(ctx, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var expected []byte
	for _, w := range want {
		expected = append(expected, w...)
	}
	if string(buf[:n]) != string(expected) {
		t.Fatalf("read got %q (%d bytes) want %q (%d bytes)", buf[:n], n, expected, len(expected))
	}
}

func waitDone(t *testing.T, op *Op) {
	t.Helper()
	select {
	case <-op.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("%s op did not complete", op.Kind())
	}
}
