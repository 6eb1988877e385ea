// Package gobwas provides the gobwas/ws transport, which speaks the
// websocket framing directly on a net.Conn.
package gobwas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/omochice/room-chat/internal/transport"
)

const closeGracePeriod = time.Second

// Conn wraps a client-side net.Conn upgraded with gobwas/ws.
type Conn struct {
	conn   net.Conn
	reader io.Reader
	binary bool
	mu     sync.Mutex // one frame per conn.Write
}

// NewConn wraps an upgraded client connection. buffered carries any bytes
// the server sent right after the handshake and may be nil.
func NewConn(conn net.Conn, buffered io.Reader, binary bool) *Conn {
	var reader io.Reader = conn
	if buffered != nil {
		reader = io.MultiReader(buffered, conn)
	}
	return &Conn{conn: conn, reader: reader, binary: binary}
}

// Read implements transport.Conn.
// Control frames are answered inline; a close frame ends the read with
// transport.ErrClosed.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	rd := wsutil.Reader{
		Source:         c.reader,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, classify(err)
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, &rd); err != nil {
				return nil, classify(err)
			}
			continue
		}
		data, err := io.ReadAll(&rd)
		if err != nil {
			return nil, classify(err)
		}
		return data, nil
	}
}

// handleControl answers ping and close frames. The reply is buffered so it
// goes out in a single write and cannot interleave with a data frame.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	var reply bytes.Buffer
	err := wsutil.ControlHandler{
		Src:                 r,
		Dst:                 &reply,
		State:               ws.StateClientSide,
		DisableSrcCiphering: true,
	}.Handle(hdr)
	if reply.Len() > 0 {
		if werr := c.writeRaw(reply.Bytes()); err == nil {
			err = werr
		}
	}
	return err
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	op := ws.OpText
	if c.binary {
		op = ws.OpBinary
	}

	// Client frames are masked in place, so mask a copy.
	payload := make([]byte, len(data))
	copy(payload, data)

	var frame bytes.Buffer
	if err := wsutil.WriteClientMessage(&frame, op, payload); err != nil {
		return err
	}
	return c.writeRaw(frame.Bytes())
}

func (c *Conn) writeRaw(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write(p)
	return err
}

// Close sends a normal closure frame and closes the connection.
func (c *Conn) Close() error {
	var frame bytes.Buffer
	body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
	if err := wsutil.WriteClientMessage(&frame, ws.OpClose, body); err == nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
		_ = c.writeRaw(frame.Bytes())
	}
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func classify(err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return err
}

// Dialer dials endpoints with gobwas/ws.
type Dialer struct {
	binary bool
}

// NewDialer creates a Dialer; binary selects binary messages for payloads.
func NewDialer(binary bool) *Dialer {
	return &Dialer{binary: binary}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, br, _, err := ws.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	var buffered io.Reader
	if br != nil {
		buffered = br
	}
	return NewConn(conn, buffered, d.binary), nil
}
