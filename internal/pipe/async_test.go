package pipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/iox"
)

func overlappedConfig(maxInstances int) EndpointConfig {
	cfg := byteConfig(maxInstances)
	cfg.Overlapped = true
	return cfg
}

func TestOverlappedConnectPollsUntilBound(t *testing.T) {
	reg := newTestRegistry(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))

	op := srv.ConnectAsync()
	n, err := op.Poll()
	if !errors.Is(err, ErrStillPending) || !errors.Is(err, iox.ErrWouldBlock) {
		t.Fatalf("expected still-pending would-block, got n=%d err=%v", n, err)
	}
	if op.Status() != StatusPending {
		t.Fatalf("status got %s", op.Status())
	}

	mustOpen(t, reg, testPipe)
	waitDone(t, op)
	if _, err := op.Poll(); err != nil {
		t.Fatalf("connect result: %v", err)
	}
	if op.Status() != StatusComplete || srv.State() != StateConnected {
		t.Fatalf("status=%s state=%s", op.Status(), srv.State())
	}
}

func TestConnectAfterClientBoundReportsAlreadyConnected(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))
	mustOpen(t, reg, testPipe)

	op := srv.ConnectAsync()
	if _, err := op.Poll(); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if op.Status() != StatusComplete {
		t.Fatalf("already-connected is a success, status got %s", op.Status())
	}
	if err := srv.Connect(ctx); !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("blocking connect: expected ErrAlreadyConnected, got %v", err)
	}
}

func TestOverlappedReadCompletesOnWrite(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))
	c := mustOpen(t, reg, testPipe)

	buf := make([]byte, 32)
	op := srv.ReadAsync(buf)
	if _, err := op.Poll(); !errors.Is(err, ErrStillPending) {
		t.Fatalf("read on empty buffer should pend, got %v", err)
	}
	if op.Requested() != len(buf) {
		t.Fatalf("requested got %d", op.Requested())
	}
	mustWrite(t, ctx, c, bitBucket)
	n, err := op.Wait(ctx)
	if err != nil || n != len(bitBucket) {
		t.Fatalf("wait got n=%d err=%v", n, err)
	}
	if string(buf[:n]) != string(bitBucket) {
		t.Fatalf("read got %q", buf[:n])
	}
}

func TestPendingReadsCompleteInOrder(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	cfg := overlappedConfig(1)
	cfg.Type = TypeMessageMessage
	srv := mustCreate(t, reg, testPipe, cfg)
	c := mustOpen(t, reg, testPipe)

	first := make([]byte, 32)
	second := make([]byte, 32)
	op1 := srv.ReadAsync(first)
	op2 := srv.ReadAsync(second)
	if srv.Info().Pending != 2 {
		t.Fatalf("expected two pending reads, got %d", srv.Info().Pending)
	}

	mustWrite(t, ctx, c, bitBucket)
	waitDone(t, op1)
	if op2.Status() != StatusPending {
		t.Fatalf("second read must wait for a second message")
	}
	mustWrite(t, ctx, c, moreBits)
	waitDone(t, op2)

	n1, _ := op1.Poll()
	n2, _ := op2.Poll()
	if string(first[:n1]) != string(bitBucket) || string(second[:n2]) != string(moreBits) {
		t.Fatalf("out of order: %q then %q", first[:n1], second[:n2])
	}
}

func TestPendingWriteWaitsForRoom(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	cfg := overlappedConfig(1)
	cfg.OutBufferSize = 4
	srv := mustCreate(t, reg, testPipe, cfg)
	c := mustOpen(t, reg, testPipe)

	op1 := srv.WriteAsync(bitBucket)
	waitDone(t, op1)
	if n, err := op1.Poll(); err != nil || n != len(bitBucket) {
		t.Fatalf("write into empty buffer got n=%d err=%v", n, err)
	}
	op2 := srv.WriteAsync(moreBits)
	if op2.Status() != StatusPending {
		t.Fatalf("write over quota should pend")
	}
	mustRead(t, ctx, c, 32, bitBucket)
	waitDone(t, op2)
	mustRead(t, ctx, c, 32, moreBits)
}

func TestNonOverlappedAsyncCompletesBeforeReturn(t *testing.T) {
	reg := newTestRegistry(t)
	srv := mustCreate(t, reg, testPipe, byteConfig(1))
	c := mustOpen(t, reg, testPipe)

	op := c.WriteAsync(bitBucket)
	if op.Status() != StatusComplete {
		t.Fatalf("non-overlapped write returned %s", op.Status())
	}
	buf := make([]byte, 32)
	op = srv.ReadAsync(buf)
	if n, err := op.Poll(); err != nil || n != len(bitBucket) {
		t.Fatalf("non-overlapped read got n=%d err=%v", n, err)
	}
}

func TestOverlappedClientHandle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, byteConfig(1))
	c := mustOpen(t, reg, testPipe, WithOverlapped())

	buf := make([]byte, 32)
	op := c.ReadAsync(buf)
	if op.Status() != StatusPending {
		t.Fatalf("overlapped client read should pend")
	}
	mustWrite(t, ctx, srv, moreBits)
	if n, err := op.Wait(ctx); err != nil || string(buf[:n]) != string(moreBits) {
		t.Fatalf("client read got %q err=%v", buf[:n], err)
	}

	// closing the client aborts its own pending ops
	op = c.ReadAsync(buf)
	if err := c.Close(); err != nil {
		t.Fatalf("client close: %v", err)
	}
	waitDone(t, op)
	if _, err := op.Poll(); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}

func TestCloseAbortsPendingOps(t *testing.T) {
	reg := newTestRegistry(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))
	mustOpen(t, reg, testPipe)

	read := srv.ReadAsync(make([]byte, 8))
	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	waitDone(t, read)
	if _, err := read.Poll(); !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if read.Status() != StatusFailed {
		t.Fatalf("aborted op status got %s", read.Status())
	}
}

func TestDisconnectFailsPendingIO(t *testing.T) {
	reg := newTestRegistry(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))
	c := mustOpen(t, reg, testPipe, WithOverlapped())

	srvRead := srv.ReadAsync(make([]byte, 8))
	cliRead := c.ReadAsync(make([]byte, 8))
	if err := srv.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	for _, op := range []*Op{srvRead, cliRead} {
		waitDone(t, op)
		if _, err := op.Poll(); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("%s %s: expected ErrNotConnected, got %v", op.Side(), op.Kind(), err)
		}
	}
	if err := srv.Disconnect(); err != nil {
		t.Fatalf("second disconnect should be a no-op, got %v", err)
	}
}

func TestPendingServerReadBreaksWhenClientLeaves(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, byteConfig(1))
	c := mustOpen(t, reg, testPipe)

	errs := make(chan error, 1)
	go func() {
		_, err := srv.Read(ctx, make([]byte, 8))
		errs <- err
	}()
	for srv.Info().Pending == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Close()
	if err := <-errs; !errors.Is(err, ErrBrokenPipe) {
		t.Fatalf("expected ErrBrokenPipe, got %v", err)
	}
}

func TestCancelledReadIsWithdrawn(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, byteConfig(1))
	c := mustOpen(t, reg, testPipe)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := srv.Read(short, make([]byte, 8)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if pending := srv.Info().Pending; pending != 0 {
		t.Fatalf("cancelled read left %d pending ops", pending)
	}
	mustWrite(t, ctx, c, bitBucket)
	mustRead(t, ctx, srv, 32, bitBucket)
}

func TestWaitStopsOnContextOnly(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, overlappedConfig(1))
	c := mustOpen(t, reg, testPipe)

	buf := make([]byte, 32)
	op := srv.ReadAsync(buf)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := op.Wait(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	mustWrite(t, ctx, c, bitBucket)
	if n, err := op.Wait(ctx); err != nil || string(buf[:n]) != string(bitBucket) {
		t.Fatalf("op should still complete, got %q err=%v", buf[:n], err)
	}
}

func TestFlushWaitsForClientToDrain(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := testContext(t)
	srv := mustCreate(t, reg, testPipe, byteConfig(1))
	c := mustOpen(t, reg, testPipe)

	mustWrite(t, ctx, srv, bitBucket)
	flushed := make(chan error, 1)
	go func() { flushed <- srv.Flush(ctx) }()
	select {
	case err := <-flushed:
		t.Fatalf("flush returned before the client read: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	mustRead(t, ctx, c, 32, bitBucket)
	if err := <-flushed; err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := srv.Flush(ctx); err != nil {
		t.Fatalf("flush of empty buffer: %v", err)
	}

	mustWrite(t, ctx, srv, moreBits)
	go func() { flushed <- srv.Flush(ctx) }()
	for srv.Info().Pending == 0 {
		time.Sleep(time.Millisecond)
	}
	c.Close()
	if err := <-flushed; !errors.Is(err, ErrBrokenPipe) {
		t.Fatalf("flush after client left: expected ErrBrokenPipe, got %v", err)
	}
}
