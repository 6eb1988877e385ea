// Package session owns the connection to a chat endpoint. A Manager dials,
// writes the join handshake and outgoing messages, and reports inbound
// broadcasts and connection state transitions to registered listeners.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/omochice/room-chat/internal/transport"
	"github.com/omochice/room-chat/internal/transport/ws"
	"github.com/omochice/room-chat/pkg/protocol"
	"go.uber.org/zap"
)

// ErrNotOpen is returned by Join when the connection is not open.
var ErrNotOpen = errors.New("session: connection is not open")

// Manager holds one connection to a chat endpoint.
//
// All listeners run on the Manager's connection goroutine, one at a time, in
// the order the transport delivers events. Closed and Errored are terminal:
// a new connection needs a new Manager.
type Manager struct {
	endpoint string
	dialer   transport.Dialer
	codec    protocol.Codec
	logger   *zap.Logger

	mu              sync.Mutex
	state           State
	conn            transport.Conn
	ctx             context.Context
	cancel          context.CancelFunc
	started         bool
	closed          bool
	failure         error
	stateListeners  []func(StateChange)
	frameListeners  []func(protocol.BroadcastFrame)
	decodeListeners []func(error)

	writeMu sync.Mutex
	done    chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer sets the transport used to reach the endpoint.
func WithDialer(d transport.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithCodec sets the frame codec.
func WithCodec(c protocol.Codec) Option {
	return func(m *Manager) { m.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager for endpoint in the Connecting state. Register
// listeners, then call Open to start dialing.
func New(endpoint string, opts ...Option) *Manager {
	m := &Manager{
		endpoint: endpoint,
		codec:    protocol.JSONCodec{},
		logger:   zap.NewNop(),
		state:    Connecting,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dialer == nil {
		m.dialer = ws.NewDialer(m.codec.Binary())
	}
	m.logger = m.logger.With(zap.String("endpoint", endpoint))
	return m
}

// Open starts connecting in the background and returns immediately. The
// outcome is reported as a transition to Open or Errored. Open has no
// effect after the first call or after Close.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	go m.run(runCtx)
}

// Endpoint returns the address the Manager connects to.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Done is closed once the connection goroutine has exited, or on Close if
// the Manager was never opened.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// OnStateChange registers fn for every state transition.
func (m *Manager) OnStateChange(fn func(StateChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.stateListeners = append(m.stateListeners, fn)
	}
}

// OnFrame registers fn for every inbound broadcast frame.
func (m *Manager) OnFrame(fn func(protocol.BroadcastFrame)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.frameListeners = append(m.frameListeners, fn)
	}
}

// OnDecodeError registers fn for every inbound payload that was dropped
// because it is not a well-formed broadcast frame.
func (m *Manager) OnDecodeError(fn func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.decodeListeners = append(m.decodeListeners, fn)
	}
}

// Join sends the join handshake. The server sends no confirmation; the
// session is active once the frame is written.
func (m *Manager) Join(room, username string) error {
	if err := m.write(protocol.JoinFrame{Room: room, Name: username}); err != nil {
		return err
	}
	m.logger.Info("joined room", zap.String("room", room), zap.String("user", username))
	return nil
}

// Send writes text as a chat message. Blank text, or a connection that is
// not open, makes Send a no-op that returns nil.
func (m *Manager) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	err := m.write(protocol.SendFrame{Message: text})
	if errors.Is(err, ErrNotOpen) {
		m.logger.Debug("dropping message while not open")
		return nil
	}
	return err
}

// Close releases the connection and unregisters every listener. Listeners
// are not told about a local close. Close is idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	from := m.state
	if !from.Terminal() {
		m.state = Closed
	}
	m.stateListeners = nil
	m.frameListeners = nil
	m.decodeListeners = nil
	conn := m.conn
	m.conn = nil
	cancel := m.cancel
	started := m.started
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("error closing connection", zap.Error(err))
		}
	}
	if !started {
		close(m.done)
	}
	m.logger.Info("session closed", zap.Stringer("from", from))
}

func (m *Manager) write(f protocol.Frame) error {
	m.mu.Lock()
	if m.state != Open || m.conn == nil {
		m.mu.Unlock()
		return ErrNotOpen
	}
	conn, ctx := m.conn, m.ctx
	m.mu.Unlock()

	data, err := m.codec.Encode(f)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	err = conn.Write(ctx, data)
	m.writeMu.Unlock()
	if err != nil {
		m.fail(conn, err)
		return fmt.Errorf("failed to send %s frame: %w", f.Kind(), err)
	}
	return nil
}

// fail records a write failure and closes the connection so the read loop
// reports it as Errored.
func (m *Manager) fail(conn transport.Conn, err error) {
	m.mu.Lock()
	if m.failure == nil {
		m.failure = err
	}
	m.mu.Unlock()
	m.logger.Warn("write failed", zap.Error(err))
	_ = conn.Close()
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	m.logger.Debug("dialing")
	conn, err := m.dialer.Dial(ctx, m.endpoint)
	if err != nil {
		m.logger.Warn("failed to connect", zap.Error(err))
		m.transition(Errored, err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.Info("connected", zap.String("remote", conn.RemoteAddr()))
	m.transition(Open, nil)
	m.readLoop(ctx, conn)
}

func (m *Manager) readLoop(ctx context.Context, conn transport.Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.finish(conn, err)
			return
		}

		frame, err := m.codec.DecodeBroadcast(data)
		if err != nil {
			m.reportDecodeError(err)
			continue
		}
		m.dispatchFrame(frame)
	}
}

// finish maps the error that ended the read loop onto a terminal state.
func (m *Manager) finish(conn transport.Conn, readErr error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	failure := m.failure
	m.conn = nil
	m.mu.Unlock()
	_ = conn.Close()

	switch {
	case failure != nil:
		m.transition(Errored, failure)
	case errors.Is(readErr, transport.ErrClosed):
		m.logger.Info("connection closed by server")
		m.transition(Closed, readErr)
	default:
		m.logger.Warn("connection lost", zap.Error(readErr))
		m.transition(Errored, readErr)
	}
}

func (m *Manager) transition(to State, cause error) {
	m.mu.Lock()
	from := m.state
	if !canTransition(from, to) {
		m.mu.Unlock()
		return
	}
	m.state = to
	listeners := append(([]func(StateChange))(nil), m.stateListeners...)
	m.mu.Unlock()

	m.logger.Debug("state change", zap.Stringer("from", from), zap.Stringer("state", to))
	change := StateChange{From: from, To: to, Err: cause}
	for _, fn := range listeners {
		if m.isClosed() {
			return
		}
		fn(change)
	}
}

func (m *Manager) dispatchFrame(f protocol.BroadcastFrame) {
	m.mu.Lock()
	listeners := append(([]func(protocol.BroadcastFrame))(nil), m.frameListeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		if m.isClosed() {
			return
		}
		fn(f)
	}
}

func (m *Manager) reportDecodeError(err error) {
	m.logger.Warn("dropping malformed frame", zap.Error(err))

	m.mu.Lock()
	listeners := append(([]func(error))(nil), m.decodeListeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		if m.isClosed() {
			return
		}
		fn(err)
	}
}

// isClosed is checked before each listener call so that a Close issued
// mid-dispatch stops the remaining listeners.
func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
