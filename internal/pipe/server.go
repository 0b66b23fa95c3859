package pipe

import "context"

// Server is the owning handle of one instance. It is returned by
// Registry.Create and is the only handle that can connect, disconnect or
// close the instance.
type Server struct {
	reg *Registry
	set *endpointSet
	in  *instance
}

func (s *Server) ID() string { return s.in.id.String() }

// Name is the normalized pipe name.
func (s *Server) Name() string { return s.in.key }

func (s *Server) State() State {
	s.in.mu.Lock()
	defer s.in.mu.Unlock()
	return s.in.state
}

func (s *Server) Overlapped() bool { return s.in.overlapped }

// Connect waits for a client to open the instance. A Disconnected instance
// is re-armed first. If a client bound before the call, Connect returns
// ErrAlreadyConnected, which callers treat as success.
func (s *Server) Connect(ctx context.Context) error {
	_, err := s.in.await(ctx, s.in.connect())
	return err
}

// ConnectAsync is the overlapped form of Connect.
func (s *Server) ConnectAsync() *Op {
	return s.settle(s.in.connect())
}

// Disconnect drops the client and all unread data in both directions. The
// instance stays Disconnected until the next Connect.
func (s *Server) Disconnect() error {
	return s.in.disconnect()
}

// Read blocks until data arrives. In message read mode exactly one frame is
// returned; a frame longer than p is cut and ErrShortBuffer reported.
func (s *Server) Read(ctx context.Context, p []byte) (int, error) {
	return s.in.await(ctx, s.in.submit(newOp(OpRead, SideServer, 0, p)))
}

func (s *Server) ReadAsync(p []byte) *Op {
	return s.settle(s.in.submit(newOp(OpRead, SideServer, 0, p)))
}

// Write blocks until p fits in the server-to-client buffer.
func (s *Server) Write(ctx context.Context, p []byte) (int, error) {
	return s.in.await(ctx, s.in.submit(newOp(OpWrite, SideServer, 0, p)))
}

func (s *Server) WriteAsync(p []byte) *Op {
	return s.settle(s.in.submit(newOp(OpWrite, SideServer, 0, p)))
}

// Flush blocks until the client has read every byte the server wrote. It
// fails with ErrBrokenPipe if the client leaves first.
func (s *Server) Flush(ctx context.Context) error {
	_, err := s.in.await(ctx, s.in.submit(newOp(OpFlush, SideServer, 0, nil)))
	return err
}

// Peek copies buffered client data into p without consuming it.
func (s *Server) Peek(p []byte) (PeekInfo, error) {
	return s.in.peek(SideServer, 0, p)
}

func (s *Server) SetReadMode(mode ReadMode) error {
	return s.in.setReadMode(SideServer, 0, mode)
}

func (s *Server) ReadMode() ReadMode {
	return s.in.readModeOf(SideServer)
}

// Close destroys the instance. Pending ops on it complete with ErrAborted
// and the name is forgotten once its last instance is gone. A second Close
// returns ErrClosed.
func (s *Server) Close() error {
	return s.reg.release(s.set, s.in)
}

func (s *Server) Info() InstanceInfo {
	return s.in.info()
}

// settle makes op synchronous on instances created without Overlapped.
func (s *Server) settle(op *Op) *Op {
	if !s.in.overlapped {
		<-op.done
	}
	return op
}
