// Package nhooyr provides the nhooyr.io/websocket transport.
package nhooyr

import (
	"context"
	"fmt"

	"github.com/omochice/room-chat/internal/transport"
	"nhooyr.io/websocket"
)

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	binary     bool
	remoteAddr string
}

// NewConn wraps a websocket.Conn dialed to addr.
func NewConn(conn *websocket.Conn, binary bool, addr string) *Conn {
	return &Conn{conn: conn, binary: binary, remoteAddr: addr}
}

// Read implements transport.Conn.
// Any received close status is reported as transport.ErrClosed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) != -1 {
			return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	messageType := websocket.MessageText
	if c.binary {
		messageType = websocket.MessageBinary
	}
	return c.conn.Write(ctx, messageType, data)
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer dials endpoints with nhooyr.io/websocket.
type Dialer struct {
	binary bool
}

// NewDialer creates a Dialer; binary selects binary messages for payloads.
func NewDialer(binary bool) *Dialer {
	return &Dialer{binary: binary}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	addr := endpoint
	if resp != nil && resp.Request != nil {
		addr = resp.Request.URL.Host
	}
	return NewConn(conn, d.binary, addr), nil
}
