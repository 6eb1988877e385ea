// Package xnet provides the golang.org/x/net/websocket transport.
package xnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/omochice/room-chat/internal/transport"
	"golang.org/x/net/websocket"
)

// Conn adapts an x/net websocket.Conn to transport.Conn.
type Conn struct {
	conn   *websocket.Conn
	binary bool
	addr   string
}

// NewConn wraps a websocket.Conn.
func NewConn(conn *websocket.Conn, binary bool, addr string) *Conn {
	return &Conn{conn: conn, binary: binary, addr: addr}
}

// Read implements transport.Conn.
// x/net reports a received close frame and a connection dropped without
// one both as io.EOF, so both map to transport.ErrClosed. Callers needing
// to tell an abnormal closure apart should use another transport.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.conn, &data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

// Write implements transport.Conn. Message.Send picks the frame type from
// the value: string for text, []byte for binary.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if c.binary {
		return websocket.Message.Send(c.conn, data)
	}
	return websocket.Message.Send(c.conn, string(data))
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Dialer dials endpoints with golang.org/x/net/websocket.
type Dialer struct {
	binary bool
}

// NewDialer creates a Dialer; binary selects binary messages for payloads.
func NewDialer(binary bool) *Dialer {
	return &Dialer{binary: binary}
}

// Dial implements transport.Dialer. The Origin header is derived from the
// endpoint host.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	origin := "http://" + u.Host
	if u.Scheme == "wss" {
		origin = "https://" + u.Host
	}

	cfg, err := websocket.NewConfig(endpoint, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn, d.binary, u.Host), nil
}
