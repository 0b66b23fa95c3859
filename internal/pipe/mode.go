package pipe

import (
	"fmt"
	"strings"

	"github.com/danmuck/pipectl/internal/frame"
)

// AccessMode fixes which directions carry data on every instance of a name.
type AccessMode int

const (
	// AccessInbound carries data from client to server only.
	AccessInbound AccessMode = iota + 1
	// AccessOutbound carries data from server to client only.
	AccessOutbound
	AccessDuplex
)

func (a AccessMode) String() string {
	switch a {
	case AccessInbound:
		return "in"
	case AccessOutbound:
		return "out"
	case AccessDuplex:
		return "duplex"
	default:
		return "unknown"
	}
}

func (a AccessMode) valid() bool {
	return a >= AccessInbound && a <= AccessDuplex
}

func (a AccessMode) allows(writer Side) bool {
	switch a {
	case AccessInbound:
		return writer == SideClient
	case AccessOutbound:
		return writer == SideServer
	default:
		return true
	}
}

// ParseAccessMode maps a config spelling onto an AccessMode.
func ParseAccessMode(raw string) (AccessMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in", "inbound":
		return AccessInbound, nil
	case "out", "outbound":
		return AccessOutbound, nil
	case "", "duplex", "inout":
		return AccessDuplex, nil
	default:
		return 0, fmt.Errorf("%w: unknown access mode %q", ErrInvalidConfig, raw)
	}
}

// TypeMode is the framing a pipe is created with. The second word of the
// message types names the server's initial read mode.
type TypeMode int

const (
	TypeByte TypeMode = iota + 1
	TypeMessageByte
	TypeMessageMessage
)

func (t TypeMode) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypeMessageByte:
		return "message-byte"
	case TypeMessageMessage:
		return "message-message"
	default:
		return "unknown"
	}
}

func (t TypeMode) valid() bool {
	return t >= TypeByte && t <= TypeMessageMessage
}

func (t TypeMode) message() bool {
	return t == TypeMessageByte || t == TypeMessageMessage
}

// framing is the write discipline both directions use.
func (t TypeMode) framing() frame.Mode {
	if t.message() {
		return frame.ModeMessage
	}
	return frame.ModeByte
}

// serverReadMode is the read mode a fresh server end starts in.
func (t TypeMode) serverReadMode() ReadMode {
	if t == TypeMessageMessage {
		return ReadMessage
	}
	return ReadByte
}

// ParseTypeMode maps a config spelling onto a TypeMode.
func ParseTypeMode(raw string) (TypeMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "byte":
		return TypeByte, nil
	case "message-byte", "message_byte":
		return TypeMessageByte, nil
	case "message", "message-message", "message_message":
		return TypeMessageMessage, nil
	default:
		return 0, fmt.Errorf("%w: unknown type mode %q", ErrInvalidConfig, raw)
	}
}

// ReadMode selects whether reads honour frame boundaries.
type ReadMode int

const (
	ReadByte ReadMode = iota
	ReadMessage
)

func (r ReadMode) String() string {
	if r == ReadMessage {
		return "message"
	}
	return "byte"
}

func (r ReadMode) frame() frame.Mode {
	if r == ReadMessage {
		return frame.ModeMessage
	}
	return frame.ModeByte
}

// State is the lifecycle position of an instance.
type State int

const (
	StateListening State = iota
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Side names the end of an instance an operation was issued from.
type Side int

const (
	SideServer Side = iota
	SideClient
)

func (s Side) String() string {
	if s == SideClient {
		return "client"
	}
	return "server"
}

func (s Side) peer() Side {
	if s == SideClient {
		return SideServer
	}
	return SideClient
}
