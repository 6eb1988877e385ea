// Package ws provides the gorilla/websocket transport.
package ws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/omochice/room-chat/internal/transport"
)

const closeGracePeriod = time.Second

// Conn adapts gorilla/websocket to transport.Conn.
// Payloads are sent as text messages unless binary is set.
type Conn struct {
	conn       *websocket.Conn
	binary     bool
	remoteAddr string
}

// NewConn wraps a websocket.Conn.
func NewConn(conn *websocket.Conn, binary bool) *Conn {
	return &Conn{conn: conn, binary: binary, remoteAddr: conn.RemoteAddr().String()}
}

// Read implements transport.Conn.
// A received close frame is reported as transport.ErrClosed; an abnormal
// closure (no close frame) is an error.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
			return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	messageType := websocket.TextMessage
	if c.binary {
		messageType = websocket.BinaryMessage
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(messageType, data)
}

// Close sends a normal closure frame and closes the connection.
func (c *Conn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Dialer dials ws:// and wss:// endpoints with gorilla/websocket.
type Dialer struct {
	dialer *websocket.Dialer
	binary bool
}

// NewDialer creates a Dialer; binary selects binary messages for payloads.
func NewDialer(binary bool) *Dialer {
	return &Dialer{dialer: websocket.DefaultDialer, binary: binary}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to server (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, d.binary), nil
}
