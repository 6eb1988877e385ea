package room_test

import (
	"context"
	"sync"

	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
	"github.com/omochice/room-chat/pkg/protocol"
)

// fakeHandle is a room.Handle driven directly by tests. Unlike a
// session.Manager it keeps its listeners after Close, so tests can fire
// events on a handle that is no longer bound.
type fakeHandle struct {
	mu       sync.Mutex
	state    session.State
	opened   bool
	closed   bool
	joins    []protocol.JoinFrame
	sent     []string
	stateFns []func(session.StateChange)
	frameFns []func(protocol.BroadcastFrame)
}

func (h *fakeHandle) Open(context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = true
}

func (h *fakeHandle) Join(roomName, username string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != session.Open {
		return session.ErrNotOpen
	}
	h.joins = append(h.joins, protocol.JoinFrame{Room: roomName, Name: username})
	return nil
}

func (h *fakeHandle) Send(text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, text)
	return nil
}

func (h *fakeHandle) State() session.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *fakeHandle) OnStateChange(fn func(session.StateChange)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateFns = append(h.stateFns, fn)
}

func (h *fakeHandle) OnFrame(fn func(protocol.BroadcastFrame)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frameFns = append(h.frameFns, fn)
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *fakeHandle) emitState(to session.State, err error) {
	h.mu.Lock()
	from := h.state
	h.state = to
	fns := append(([]func(session.StateChange))(nil), h.stateFns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(session.StateChange{From: from, To: to, Err: err})
	}
}

func (h *fakeHandle) emitFrame(name, message string) {
	h.mu.Lock()
	fns := append(([]func(protocol.BroadcastFrame))(nil), h.frameFns...)
	h.mu.Unlock()
	for _, fn := range fns {
		fn(protocol.BroadcastFrame{Name: name, Message: message})
	}
}

func (h *fakeHandle) Joins() []protocol.JoinFrame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]protocol.JoinFrame(nil), h.joins...)
}

func (h *fakeHandle) Sent() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeConnector hands out a new fakeHandle per call and remembers them.
type fakeConnector struct {
	mu      sync.Mutex
	handles []*fakeHandle
}

func (c *fakeConnector) Connect() room.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := &fakeHandle{}
	c.handles = append(c.handles, h)
	return h
}

func (c *fakeConnector) Handles() []*fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeHandle(nil), c.handles...)
}

var _ room.Handle = (*fakeHandle)(nil)
