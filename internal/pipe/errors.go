package pipe

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

var (
	ErrNameInvalid       = errors.New("pipe: invalid pipe name")
	ErrPathNotFound      = errors.New("pipe: empty pipe name")
	ErrNotFound          = errors.New("pipe: no listener for name")
	ErrBusy              = errors.New("pipe: all instances busy")
	ErrInstancesExceeded = errors.New("pipe: instance limit exceeded")
	ErrAccessConflict    = errors.New("pipe: access or type mode conflicts with existing instances")
	ErrAccessDenied      = errors.New("pipe: direction not permitted by access mode")
	ErrNotYetConnected   = errors.New("pipe: instance listening, not yet connected")
	ErrNotConnected      = errors.New("pipe: instance not connected")
	ErrAlreadyConnected  = errors.New("pipe: client already connected")
	ErrBrokenPipe        = errors.New("pipe: peer end closed")
	ErrInvalidMode       = errors.New("pipe: invalid read mode for pipe type")
	ErrAborted           = errors.New("pipe: operation aborted by instance close")
	ErrClosed            = errors.New("pipe: handle closed")
	ErrRegistryClosed    = errors.New("pipe: registry closed")
	ErrInvalidConfig     = errors.New("pipe: invalid endpoint config")

	// ErrShortBuffer reports a message-mode read whose frame did not fit in
	// the caller's buffer. The returned byte count is still valid; the rest of
	// the frame is gone.
	ErrShortBuffer = errors.New("pipe: message truncated to buffer")

	// ErrStillPending is returned by Op.Poll while the operation is in
	// flight. It matches iox.ErrWouldBlock under errors.Is.
	ErrStillPending = fmt.Errorf("pipe: operation still pending: %w", iox.ErrWouldBlock)
)
