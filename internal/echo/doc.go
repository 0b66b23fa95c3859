// Package echo holds reference servers that drive the pipe engine through
// its whole connect/read/write/disconnect cycle, plus the client exerciser
// that talks to them.
//
// Server styles:
// - DisconnectServer: one instance, Disconnect then Connect between sessions
// - RecreateServer: two-instance name, creates the next instance and closes
//   the current one after each session
// - OverlappedServer: async connect/read/write, alternating Poll and Wait
package echo
