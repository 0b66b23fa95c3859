package pipe

import (
	"context"
	"errors"

	"github.com/danmuck/pipectl/internal/observability"
)

// OpKind is the operation an Op performs.
type OpKind int

const (
	OpConnect OpKind = iota
	OpRead
	OpWrite
	// OpFlush waits until the peer has read everything the server wrote.
	OpFlush

	opKinds = 4
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// OpStatus is where an Op is in its life.
type OpStatus int

const (
	StatusPending OpStatus = iota
	StatusComplete
	StatusFailed
)

func (s OpStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Op is an in-flight or finished connect, read or write. Ops returned by
// the *Async methods may already be done. The buffer handed to a read or
// write belongs to the Op until Done is closed.
type Op struct {
	kind OpKind
	side Side
	gen  uint64
	buf  []byte
	done chan struct{}

	// written once, under the instance lock, before done is closed
	status OpStatus
	n      int
	err    error
}

func newOp(kind OpKind, side Side, gen uint64, buf []byte) *Op {
	return &Op{kind: kind, side: side, gen: gen, buf: buf, done: make(chan struct{})}
}

// failedOp returns an Op that is already finished with err.
func failedOp(kind OpKind, side Side, err error) *Op {
	op := newOp(kind, side, 0, nil)
	op.finish(0, err)
	return op
}

func (o *Op) Kind() OpKind { return o.kind }

func (o *Op) Side() Side { return o.side }

// Requested is the byte count the caller asked to read or write.
func (o *Op) Requested() int { return len(o.buf) }

// Done is closed once the Op has a result.
func (o *Op) Done() <-chan struct{} { return o.done }

// Status reports the current status without blocking.
func (o *Op) Status() OpStatus {
	select {
	case <-o.done:
		return o.status
	default:
		return StatusPending
	}
}

// Poll returns the result if the Op is finished and ErrStillPending otherwise.
func (o *Op) Poll() (int, error) {
	select {
	case <-o.done:
		return o.n, o.err
	default:
		return 0, ErrStillPending
	}
}

// Wait blocks until the Op finishes or ctx ends. An ended ctx only stops the
// wait; the Op stays queued until it completes or its instance closes.
func (o *Op) Wait(ctx context.Context) (int, error) {
	select {
	case <-o.done:
		return o.n, o.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (o *Op) finish(n int, err error) {
	o.n = n
	o.err = err
	o.status = StatusComplete
	if err != nil && !errors.Is(err, ErrShortBuffer) && !errors.Is(err, ErrAlreadyConnected) {
		o.status = StatusFailed
	}
	close(o.done)
	observability.RecordPipeOp(o.kind.String(), o.side.String(), outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrShortBuffer):
		return "truncated"
	case errors.Is(err, ErrAlreadyConnected):
		return "already_connected"
	case errors.Is(err, ErrNotYetConnected):
		return "not_yet_connected"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrBrokenPipe):
		return "broken_pipe"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

// completionQueue holds the pending ops of one instance, FIFO per side and
// kind. It is guarded by the owning instance's lock.
type completionQueue struct {
	queues [2][opKinds][]*Op
}

func (q *completionQueue) push(op *Op) {
	q.queues[op.side][op.kind] = append(q.queues[op.side][op.kind], op)
}

func (q *completionQueue) head(side Side, kind OpKind) *Op {
	if ops := q.queues[side][kind]; len(ops) > 0 {
		return ops[0]
	}
	return nil
}

// complete pops the head op of side/kind and finishes it.
func (q *completionQueue) complete(side Side, kind OpKind, n int, err error) {
	ops := q.queues[side][kind]
	op := ops[0]
	ops[0] = nil
	q.queues[side][kind] = ops[1:]
	op.finish(n, err)
}

// withdraw removes op if it is still queued.
func (q *completionQueue) withdraw(op *Op) bool {
	ops := q.queues[op.side][op.kind]
	for i, queued := range ops {
		if queued == op {
			q.queues[op.side][op.kind] = append(ops[:i:i], ops[i+1:]...)
			return true
		}
	}
	return false
}

// failSide finishes every pending op of side with err.
func (q *completionQueue) failSide(side Side, err error) {
	for kind := range q.queues[side] {
		for _, op := range q.queues[side][kind] {
			op.finish(0, err)
		}
		q.queues[side][kind] = nil
	}
}

func (q *completionQueue) failKinds(err error, kinds ...OpKind) {
	for side := range q.queues {
		for _, kind := range kinds {
			for _, op := range q.queues[side][kind] {
				op.finish(0, err)
			}
			q.queues[side][kind] = nil
		}
	}
}

func (q *completionQueue) failAll(err error) {
	q.failSide(SideServer, err)
	q.failSide(SideClient, err)
}

func (q *completionQueue) pending() int {
	total := 0
	for side := range q.queues {
		for kind := range q.queues[side] {
			total += len(q.queues[side][kind])
		}
	}
	return total
}
