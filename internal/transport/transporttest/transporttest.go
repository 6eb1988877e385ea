// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/omochice/room-chat/internal/transport"
)

type inbound struct {
	data []byte
	err  error
}

// Conn is an in-memory transport.Conn. Payloads queued with Deliver are
// returned by Read in order; Write records every payload.
type Conn struct {
	addr      string
	inbound   chan inbound
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
}

// NewConn returns an open Conn reporting addr as its remote address.
func NewConn(addr string) *Conn {
	return &Conn{
		addr:    addr,
		inbound: make(chan inbound, 64),
		closed:  make(chan struct{}),
	}
}

// Deliver queues data for Read.
func (c *Conn) Deliver(data []byte) {
	c.inbound <- inbound{data: data}
}

// Fail makes Read return err once the payloads queued before it are read.
func (c *Conn) Fail(err error) {
	c.inbound <- inbound{err: err}
}

// SetWriteError makes every later Write fail with err.
func (c *Conn) SetWriteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, net.ErrClosed
	case in := <-c.inbound:
		return in.data, in.err
	}
}

func (c *Conn) Write(_ context.Context, data []byte) error {
	if c.Closed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *Conn) RemoteAddr() string {
	return c.addr
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of every payload written so far.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.written...)
}

// WaitWritten polls until at least n payloads were written or timeout
// elapses, and returns what was written.
func (c *Conn) WaitWritten(n int, timeout time.Duration) [][]byte {
	deadline := time.Now().Add(timeout)
	for {
		written := c.Written()
		if len(written) >= n || time.Now().After(deadline) {
			return written
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Dialer hands out a new Conn per Dial and publishes it on Dialed.
type Dialer struct {
	dialed chan *Conn

	mu   sync.Mutex
	err  error
	gate chan struct{}
}

// NewDialer returns a Dialer whose dials succeed.
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 16)}
}

// Dialed receives every Conn the Dialer creates.
func (d *Dialer) Dialed() <-chan *Conn {
	return d.dialed
}

// SetError makes later dials fail with err.
func (d *Dialer) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Hold blocks later dials until Release, regardless of their context.
func (d *Dialer) Hold() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
}

// Release unblocks dials waiting since Hold.
func (d *Dialer) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gate != nil {
		close(d.gate)
		d.gate = nil
	}
}

func (d *Dialer) Dial(_ context.Context, endpoint string) (transport.Conn, error) {
	d.mu.Lock()
	gate, err := d.gate, d.err
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	conn := NewConn(endpoint)
	d.dialed <- conn
	return conn, nil
}

var (
	_ transport.Conn   = (*Conn)(nil)
	_ transport.Dialer = (*Dialer)(nil)
)
