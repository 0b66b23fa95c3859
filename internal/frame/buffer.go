package frame

import "errors"

// Mode is the write discipline of a Buffer.
type Mode int

const (
	// ModeByte stores writes as one undivided byte stream.
	ModeByte Mode = iota
	// ModeMessage records the end of every write as a frame boundary.
	ModeMessage
)

func (m Mode) String() string {
	switch m {
	case ModeByte:
		return "byte"
	case ModeMessage:
		return "message"
	default:
		return "unknown"
	}
}

var (
	ErrTruncated = errors.New("frame: message truncated to buffer")
	ErrFull      = errors.New("frame: buffer quota exceeded")
)

// Buffer is an append-only byte queue with optional frame boundaries.
//
// frames holds the length of every undelivered frame in arrival order. Bytes
// written in byte mode, and the remainder of a frame partially consumed by a
// byte-mode read, are tracked as frames too, so the lengths in frames always
// sum to len(data).
type Buffer struct {
	mode   Mode
	limit  int
	data   []byte
	frames []int
}

// NewBuffer returns an empty buffer. limit bounds the bytes held at once;
// zero or less disables the quota.
func NewBuffer(mode Mode, limit int) *Buffer {
	return &Buffer{mode: mode, limit: limit}
}

// Len reports the number of unread bytes across all frames.
func (b *Buffer) Len() int { return len(b.data) }

// Frames reports the number of undelivered frames.
func (b *Buffer) Frames() int { return len(b.frames) }

// Empty reports whether a read would find nothing. An empty message frame
// still counts as something to read.
func (b *Buffer) Empty() bool { return len(b.frames) == 0 }

// Fits reports whether a write of n bytes would be admitted now. An empty
// buffer admits any write so a single oversized write cannot wait forever.
func (b *Buffer) Fits(n int) bool {
	if b.limit <= 0 || len(b.frames) == 0 {
		return true
	}
	return len(b.data)+n <= b.limit
}

// Write appends p. In message mode p becomes exactly one frame, including
// when p is empty. Byte-mode writes extend the trailing byte run.
func (b *Buffer) Write(p []byte) (int, error) {
	if !b.Fits(len(p)) {
		return 0, ErrFull
	}
	switch b.mode {
	case ModeMessage:
		b.frames = append(b.frames, len(p))
	default:
		if len(p) == 0 {
			return 0, nil
		}
		b.frames = append(b.frames, len(p))
		b.coalesceTail()
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// coalesceTail merges the last two frame records when the buffer carries no
// message boundaries, keeping byte-mode buffers at a single run.
func (b *Buffer) coalesceTail() {
	n := len(b.frames)
	if n < 2 {
		return
	}
	b.frames[n-2] += b.frames[n-1]
	b.frames = b.frames[:n-1]
}

// Read consumes bytes into p.
//
// With ModeByte the read takes up to len(p) bytes and may span or split
// frames. With ModeMessage it delivers exactly the next frame; when the frame
// is longer than p the excess is dropped and ErrTruncated is returned along
// with len(p).
func (b *Buffer) Read(p []byte, read Mode) (int, error) {
	if len(b.frames) == 0 {
		return 0, nil
	}
	if read == ModeMessage {
		size := b.frames[0]
		n := copy(p, b.data[:size])
		b.discard(size, 1)
		if n < size {
			return n, ErrTruncated
		}
		return n, nil
	}
	n := copy(p, b.data)
	b.consume(n)
	return n, nil
}

// Peek copies what Read would return without consuming anything.
// available is the total unread byte count across all frames and left is
// the part of the next frame that did not fit in p (always zero in byte
// read mode).
func (b *Buffer) Peek(p []byte, read Mode) (n, available, left int) {
	available = len(b.data)
	if len(b.frames) == 0 {
		return 0, available, 0
	}
	if read == ModeMessage {
		size := b.frames[0]
		n = copy(p, b.data[:size])
		return n, available, size - n
	}
	n = copy(p, b.data)
	return n, available, 0
}

// NextFrameLen reports the size of the next undelivered frame.
func (b *Buffer) NextFrameLen() (int, bool) {
	if len(b.frames) == 0 {
		return 0, false
	}
	return b.frames[0], true
}

// Reset drops every unread byte and boundary.
func (b *Buffer) Reset() {
	b.data = nil
	b.frames = nil
}

func (b *Buffer) consume(n int) {
	dropped := 0
	rest := n
	for dropped < len(b.frames) && b.frames[dropped] <= rest {
		rest -= b.frames[dropped]
		dropped++
	}
	b.discard(n, dropped)
	if rest > 0 {
		b.frames[0] -= rest
	}
}

func (b *Buffer) discard(n, frames int) {
	b.data = b.data[n:]
	b.frames = b.frames[frames:]
	if len(b.frames) == 0 {
		b.data = nil
		b.frames = nil
	}
}
