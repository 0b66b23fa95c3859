package pipe

import (
	"context"
	"errors"
	"sync"

	"github.com/danmuck/pipectl/internal/frame"
	"github.com/danmuck/pipectl/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// instance is one connection slot of a named pipe. Every state transition,
// buffer mutation and op completion happens under mu.
type instance struct {
	id         uuid.UUID
	key        string
	access     AccessMode
	typ        TypeMode
	overlapped bool
	log        zerolog.Logger

	mu    sync.Mutex
	state State
	// gen counts client bindings; a client handle is live while its gen
	// matches and the instance is connected.
	gen uint64
	// peerGone is set when the bound client closed its handle before the
	// server disconnected.
	peerGone bool
	// buffers is indexed by the writing side: buffers[SideServer] carries
	// server-to-client bytes.
	buffers  [2]*frame.Buffer
	readMode [2]ReadMode
	ops      completionQueue
}

func newInstance(key string, cfg EndpointConfig, log zerolog.Logger) *instance {
	id := uuid.New()
	in := &instance{
		id:         id,
		key:        key,
		access:     cfg.Access,
		typ:        cfg.Type,
		overlapped: cfg.Overlapped,
		log:        log.With().Str("pipe", key).Str("instance", id.String()).Logger(),
		state:      StateListening,
	}
	in.buffers[SideServer] = frame.NewBuffer(cfg.Type.framing(), cfg.OutBufferSize)
	in.buffers[SideClient] = frame.NewBuffer(cfg.Type.framing(), cfg.InBufferSize)
	in.readMode[SideServer] = cfg.Type.serverReadMode()
	in.readMode[SideClient] = ReadByte
	return in
}

func (in *instance) setState(s State) {
	in.log.Debug().Str("from", in.state.String()).Str("state", s.String()).Msg("pipe_state")
	in.state = s
}

// bind attaches a client to a listening instance. It reports false when the
// instance is not free.
func (in *instance) bind() (uint64, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state != StateListening {
		return 0, false
	}
	in.gen++
	in.peerGone = false
	in.readMode[SideClient] = ReadByte
	in.setState(StateConnected)
	in.pump()
	return in.gen, true
}

// listening reports whether a client open would bind right now.
func (in *instance) listening() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state == StateListening
}

// check validates an I/O op against the current state. gen is only
// consulted for client ops.
func (in *instance) check(side Side, kind OpKind, gen uint64) error {
	writer := side
	if kind == OpRead {
		writer = side.peer()
	}
	if kind != OpFlush && !in.access.allows(writer) {
		return ErrAccessDenied
	}
	if side == SideClient {
		switch {
		case in.state == StateClosed:
			return ErrBrokenPipe
		case gen != in.gen || in.state != StateConnected:
			return ErrNotConnected
		}
		return nil
	}
	switch in.state {
	case StateListening:
		return ErrNotYetConnected
	case StateDisconnected:
		return ErrNotConnected
	case StateClosed:
		return ErrClosed
	}
	return nil
}

// submit validates op, queues it and runs the completion pump. On return op
// is either done or pending behind the instance's other ops.
func (in *instance) submit(op *Op) *Op {
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := in.check(op.side, op.kind, op.gen); err != nil {
		op.finish(0, err)
		return op
	}
	in.ops.push(op)
	in.pump()
	return op
}

// pump completes every queued op whose precondition now holds, in FIFO
// order per side and kind. It runs after every change that could unblock a
// waiter: a write, a read, a bind, a peer leaving.
func (in *instance) pump() {
	for progress := true; progress; {
		progress = false
		if op := in.ops.head(SideServer, OpConnect); op != nil && in.state == StateConnected {
			err := error(nil)
			if in.peerGone {
				err = ErrBrokenPipe
			}
			in.ops.complete(SideServer, OpConnect, 0, err)
			progress = true
		}
		for _, side := range []Side{SideServer, SideClient} {
			if in.pumpRead(side) {
				progress = true
			}
			if in.pumpWrite(side) {
				progress = true
			}
		}
		if in.pumpFlush() {
			progress = true
		}
	}
}

func (in *instance) pumpRead(side Side) bool {
	op := in.ops.head(side, OpRead)
	if op == nil {
		return false
	}
	if err := in.check(side, OpRead, op.gen); err != nil {
		in.ops.complete(side, OpRead, 0, err)
		return true
	}
	buf := in.buffers[side.peer()]
	if buf.Empty() {
		if side == SideServer && in.peerGone {
			in.ops.complete(side, OpRead, 0, ErrBrokenPipe)
			return true
		}
		return false
	}
	n, err := buf.Read(op.buf, in.readMode[side].frame())
	if errors.Is(err, frame.ErrTruncated) {
		err = ErrShortBuffer
	}
	observability.RecordPipeBytes(side.peer().String()+"_to_"+side.String(), n)
	in.ops.complete(side, OpRead, n, err)
	return true
}

func (in *instance) pumpWrite(side Side) bool {
	op := in.ops.head(side, OpWrite)
	if op == nil {
		return false
	}
	if err := in.check(side, OpWrite, op.gen); err != nil {
		in.ops.complete(side, OpWrite, 0, err)
		return true
	}
	if side == SideServer && in.peerGone {
		in.ops.complete(side, OpWrite, 0, ErrBrokenPipe)
		return true
	}
	buf := in.buffers[side]
	if !buf.Fits(len(op.buf)) {
		return false
	}
	n, err := buf.Write(op.buf)
	in.ops.complete(side, OpWrite, n, err)
	return true
}

// pumpFlush completes a server flush once the client has drained the
// server-to-client buffer.
func (in *instance) pumpFlush() bool {
	op := in.ops.head(SideServer, OpFlush)
	if op == nil {
		return false
	}
	if err := in.check(SideServer, OpFlush, 0); err != nil {
		in.ops.complete(SideServer, OpFlush, 0, err)
		return true
	}
	if in.buffers[SideServer].Empty() {
		in.ops.complete(SideServer, OpFlush, 0, nil)
		return true
	}
	if in.peerGone {
		in.ops.complete(SideServer, OpFlush, 0, ErrBrokenPipe)
		return true
	}
	return false
}

// await waits for a blocking caller's op. If ctx ends first and the op is
// still queued it is withdrawn so it cannot consume data nobody will see.
func (in *instance) await(ctx context.Context, op *Op) (int, error) {
	select {
	case <-op.done:
		return op.n, op.err
	case <-ctx.Done():
	}
	in.mu.Lock()
	withdrawn := in.ops.withdraw(op)
	in.mu.Unlock()
	if withdrawn {
		return 0, ctx.Err()
	}
	<-op.done
	return op.n, op.err
}

// connect arms the instance for a client and returns the op that completes
// when one binds.
func (in *instance) connect() *Op {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch in.state {
	case StateClosed:
		return failedOp(OpConnect, SideServer, ErrClosed)
	case StateConnected:
		if in.peerGone {
			return failedOp(OpConnect, SideServer, ErrBrokenPipe)
		}
		return failedOp(OpConnect, SideServer, ErrAlreadyConnected)
	case StateDisconnected:
		in.setState(StateListening)
	}
	op := newOp(OpConnect, SideServer, 0, nil)
	in.ops.push(op)
	return op
}

// disconnect drops the client binding and every unread byte.
func (in *instance) disconnect() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch in.state {
	case StateClosed:
		return ErrClosed
	case StateListening:
		return ErrNotYetConnected
	case StateDisconnected:
		return nil
	}
	dropped := in.buffers[SideServer].Len() + in.buffers[SideClient].Len()
	in.buffers[SideServer].Reset()
	in.buffers[SideClient].Reset()
	in.peerGone = false
	in.setState(StateDisconnected)
	in.ops.failKinds(ErrNotConnected, OpRead, OpWrite, OpFlush)
	if dropped > 0 {
		in.log.Debug().Int("dropped", dropped).Msg("pipe_disconnect_discard")
	}
	return nil
}

// close is terminal. Pending ops on either side complete with ErrAborted.
func (in *instance) close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == StateClosed {
		return ErrClosed
	}
	in.setState(StateClosed)
	in.buffers[SideServer].Reset()
	in.buffers[SideClient].Reset()
	in.ops.failAll(ErrAborted)
	return nil
}

// release detaches the client bound at gen. The server keeps its state and
// learns about the departure through ErrBrokenPipe.
func (in *instance) release(gen uint64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if gen != in.gen || in.state != StateConnected {
		return
	}
	in.peerGone = true
	in.ops.failSide(SideClient, ErrAborted)
	in.log.Debug().Msg("pipe_client_released")
	in.pump()
}

// PeekInfo is the result of a non-destructive read.
type PeekInfo struct {
	// N is the number of bytes copied into the caller's buffer.
	N int
	// Available is the unread byte count across every buffered frame.
	Available int
	// LeftThisMessage is the part of the next frame that did not fit.
	LeftThisMessage int
}

func (in *instance) peek(side Side, gen uint64, p []byte) (PeekInfo, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if err := in.check(side, OpRead, gen); err != nil {
		return PeekInfo{}, err
	}
	buf := in.buffers[side.peer()]
	if buf.Empty() && side == SideServer && in.peerGone {
		return PeekInfo{}, ErrBrokenPipe
	}
	// peek frames by pipe type: a message pipe peeks one frame even when
	// the reader consumes bytes.
	n, available, left := buf.Peek(p, in.typ.framing())
	return PeekInfo{N: n, Available: available, LeftThisMessage: left}, nil
}

func (in *instance) setReadMode(side Side, gen uint64, mode ReadMode) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if side == SideClient {
		switch {
		case in.state == StateClosed:
			return ErrBrokenPipe
		case gen != in.gen || in.state != StateConnected:
			return ErrNotConnected
		}
	} else if in.state == StateClosed {
		return ErrClosed
	}
	if mode != ReadByte && mode != ReadMessage {
		return ErrInvalidMode
	}
	if mode == ReadMessage && !in.typ.message() {
		return ErrInvalidMode
	}
	in.readMode[side] = mode
	return nil
}

func (in *instance) readModeOf(side Side) ReadMode {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.readMode[side]
}

// InstanceInfo is a point-in-time view of one instance.
type InstanceInfo struct {
	ID            string `json:"id"`
	State         string `json:"state"`
	Overlapped    bool   `json:"overlapped"`
	ServerRead    string `json:"server_read_mode"`
	ClientRead    string `json:"client_read_mode"`
	ToClientBytes int    `json:"to_client_bytes"`
	ToServerBytes int    `json:"to_server_bytes"`
	Pending       int    `json:"pending_ops"`
	PeerGone      bool   `json:"peer_gone"`
}

func (in *instance) info() InstanceInfo {
	in.mu.Lock()
	defer in.mu.Unlock()
	return InstanceInfo{
		ID:            in.id.String(),
		State:         in.state.String(),
		Overlapped:    in.overlapped,
		ServerRead:    in.readMode[SideServer].String(),
		ClientRead:    in.readMode[SideClient].String(),
		ToClientBytes: in.buffers[SideServer].Len(),
		ToServerBytes: in.buffers[SideClient].Len(),
		Pending:       in.ops.pending(),
		PeerGone:      in.peerGone,
	}
}
