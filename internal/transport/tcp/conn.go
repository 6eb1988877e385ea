// Package tcp provides a length-prefixed TCP transport for chat frames.
//
// Each message travels as a 4-byte big-endian length followed by the payload.
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/omochice/room-chat/internal/transport"
)

// MaxFrameSize bounds a single payload.
const MaxFrameSize = 1 << 20

// Conn adapts net.Conn to transport.Conn.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	mu     sync.Mutex
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: conn}
}

// NewConnWithReader wraps a net.Conn whose first bytes were already buffered
// by reader, as after protocol detection.
func NewConnWithReader(conn net.Conn, reader io.Reader) *Conn {
	return &Conn{conn: conn, reader: reader}
}

// Read implements transport.Conn.
// EOF on a frame boundary is a clean close.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.reader, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit of %d", size, MaxFrameSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(c.reader, data); err != nil {
		return nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return data, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d", len(data), MaxFrameSize)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(buf)
	return err
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Dialer dials TCP endpoints. Endpoints may be "host:port" or "tcp://host:port".
type Dialer struct {
	dialer net.Dialer
}

// NewDialer creates a TCP Dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	addr := strings.TrimSuffix(strings.TrimPrefix(endpoint, "tcp://"), "/")
	conn, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}
