// Package chat provides the connection core shared by the client and server
// roles: the session state machine, its receive loop and its backlog.
package chat

import "context"

// Conn abstracts a bidirectional byte stream for both TCP and WebSocket.
// This interface isolates transport details from chat logic.
type Conn interface {
	// Read returns the next chunk of bytes. Chunks carry no framing.
	// Returns io.EOF when the peer closed the stream.
	Read(ctx context.Context) ([]byte, error)

	// Write sends data in full.
	Write(ctx context.Context, data []byte) error

	// Shutdown gracefully stops both directions without releasing the handle.
	Shutdown() error

	// Close releases the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
