// Package room keeps the view state of one joined chat room: the ordered
// message log, the connection status and the active room binding.
package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/room-chat/internal/session"
	"github.com/omochice/room-chat/pkg/protocol"
	"go.uber.org/zap"
)

// ErrClosed is returned by SwitchRoom after Close.
var ErrClosed = errors.New("room: session closed")

// Handle is the part of a connection the room Session drives.
// *session.Manager implements it.
type Handle interface {
	Open(ctx context.Context)
	Join(room, username string) error
	Send(text string) error
	State() session.State
	OnStateChange(fn func(session.StateChange))
	OnFrame(fn func(protocol.BroadcastFrame))
	Close()
}

var _ Handle = (*session.Manager)(nil)

// Connector creates an unopened Handle for a new binding.
type Connector func() Handle

// ManagerConnector returns a Connector that creates a session.Manager for
// endpoint on every call.
func ManagerConnector(endpoint string, opts ...session.Option) Connector {
	return func() Handle {
		return session.New(endpoint, opts...)
	}
}

// Session is the active room of a chat client.
//
// A Session is bound to one Handle at a time. Events from a Handle that is
// no longer bound are dropped, so a late frame of a previous room never
// reaches the current log.
type Session struct {
	connect Connector
	logger  *zap.Logger
	now     func() time.Time
	newID   func() string

	mu               sync.Mutex
	handle           Handle
	req              JoinRequest
	state            session.State
	messages         []ChatMessage
	closed           bool
	messageListeners []func(ChatMessage)
	stateListeners   []func(session.State)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock sets the clock used to stamp received messages.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithIDGenerator sets the generator of message ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) { s.newID = newID }
}

// New validates req and, if it is valid, connects to it. An invalid request
// returns a *ValidationError without calling connect.
func New(ctx context.Context, connect Connector, req JoinRequest, opts ...Option) (*Session, error) {
	req, err := NewJoinRequest(req.Room, req.Username)
	if err != nil {
		return nil, err
	}

	s := &Session{
		connect: connect,
		logger:  zap.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	h := connect()
	s.mu.Lock()
	s.bind(h, req)
	s.mu.Unlock()

	s.logger.Info("joining room", zap.String("room", req.Room), zap.String("user", req.Username))
	h.Open(ctx)
	return s, nil
}

// bind makes h the current handle. s.mu must be held.
func (s *Session) bind(h Handle, req JoinRequest) {
	s.handle = h
	s.req = req
	s.state = h.State()
	s.messages = nil

	h.OnStateChange(func(c session.StateChange) { s.handleState(h, c) })
	h.OnFrame(func(f protocol.BroadcastFrame) { s.handleFrame(h, f) })
}

func (s *Session) current(h Handle) bool {
	return !s.closed && s.handle == h
}

func (s *Session) handleState(h Handle, c session.StateChange) {
	s.mu.Lock()
	if !s.current(h) {
		s.mu.Unlock()
		return
	}
	req := s.req
	s.mu.Unlock()

	logger := s.logger.With(zap.String("room", req.Room), zap.String("user", req.Username))
	if c.To == session.Open {
		if err := h.Join(req.Room, req.Username); err != nil {
			logger.Warn("failed to join room", zap.Error(err))
			return
		}
	}
	if c.Err != nil {
		logger.Warn("connection ended", zap.Stringer("state", c.To), zap.Error(c.Err))
	}

	s.mu.Lock()
	if !s.current(h) {
		s.mu.Unlock()
		return
	}
	s.state = c.To
	listeners := append(([]func(session.State))(nil), s.stateListeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(c.To)
	}
}

func (s *Session) handleFrame(h Handle, f protocol.BroadcastFrame) {
	msg := ChatMessage{
		ID:         s.newID(),
		Author:     f.Name,
		Content:    f.Message,
		ReceivedAt: s.now(),
	}

	s.mu.Lock()
	if !s.current(h) {
		s.mu.Unlock()
		return
	}
	s.messages = append(s.messages, msg)
	listeners := append(([]func(ChatMessage))(nil), s.messageListeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// SubmitMessage sends text to the room. Blank text, or a room that is not
// connected, makes it a no-op that returns nil. The message is not added to
// the log; it appears when the server broadcasts it back.
func (s *Session) SubmitMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	s.mu.Lock()
	h := s.handle
	connected := !s.closed && s.state == session.Open
	s.mu.Unlock()

	if !connected {
		s.logger.Debug("dropping message while disconnected")
		return nil
	}
	return h.Send(text)
}

// SwitchRoom leaves the current room and joins req on a new connection.
// The log is cleared. An invalid req leaves the current binding untouched.
func (s *Session) SwitchRoom(ctx context.Context, req JoinRequest) error {
	req, err := NewJoinRequest(req.Room, req.Username)
	if err != nil {
		return err
	}

	h := s.connect()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Close()
		return ErrClosed
	}
	prev := s.req
	s.handle.Close()
	s.bind(h, req)
	state := s.state
	listeners := append(([]func(session.State))(nil), s.stateListeners...)
	s.mu.Unlock()

	s.logger.Info("switching room",
		zap.String("from", prev.Room),
		zap.String("room", req.Room),
		zap.String("user", req.Username),
	)
	for _, fn := range listeners {
		fn(state)
	}
	h.Open(ctx)
	return nil
}

// Close leaves the room and releases the connection. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = session.Closed
	h := s.handle
	s.mu.Unlock()

	h.Close()
	s.logger.Info("left room")
}

// OnMessage registers fn for every message appended to the log.
func (s *Session) OnMessage(fn func(ChatMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageListeners = append(s.messageListeners, fn)
}

// OnStateChange registers fn for every connection state change of the
// current binding.
func (s *Session) OnStateChange(fn func(session.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateListeners = append(s.stateListeners, fn)
}

// View returns a snapshot of the room.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Room:      s.req.Room,
		Username:  s.req.Username,
		State:     s.state,
		Connected: !s.closed && s.state == session.Open,
		Messages:  append([]ChatMessage(nil), s.messages...),
	}
}

// Messages returns a copy of the log in arrival order.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatMessage(nil), s.messages...)
}

// Connected reports whether messages can be submitted.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.state == session.Open
}

// State returns the connection state of the current binding.
func (s *Session) State() session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the active room name.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req.Room
}

// Username returns the identity used in the active room.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.req.Username
}
