// Package transport abstracts the bidirectional message connection used by
// the chat client and relay.
package transport

import (
	"context"
	"errors"
)

// ErrClosed reports that the peer closed the connection cleanly.
// Read wraps it so callers can tell a close handshake from a failure.
var ErrClosed = errors.New("transport: connection closed")

// Conn abstracts one message-oriented connection for every transport.
// The transport provides message boundaries: one Read returns one payload.
type Conn interface {
	// Read reads a single message payload.
	// Returns an error wrapping ErrClosed when the peer closed cleanly.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message payload.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Dialer opens client connections to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}
