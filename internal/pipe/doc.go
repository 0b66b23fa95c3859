// Package pipe is a host-local named-pipe engine.
//
// Ownership boundary:
// - Registry: name -> endpoint set, created on first instance, dropped with the last
// - endpoint set: max-instance and access/type consistency across instances of a name
// - instance: Listening -> Connected -> Disconnected -> Closed state machine,
//   one frame.Buffer per direction, pending-op completion
// - Server/Client handles: the operations a handle layer dispatches to
//
// Blocking calls take a context. Async calls return an *Op that is polled
// or waited on; closing the instance is the only way to cancel one.
package pipe
