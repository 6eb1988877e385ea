// Package relay is a development chat server. It keeps room membership and
// broadcasts every message to the members of the sender's room, sender
// included.
package relay

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/room-chat/internal/transport"
	"github.com/omochice/room-chat/pkg/protocol"
	"go.uber.org/zap"
)

const outgoingBuffer = 32

// Member is one connection attached to the Hub.
type Member struct {
	ID       string
	Conn     transport.Conn
	Outgoing chan []byte

	// room and name are set by a join frame and guarded by Hub.mu.
	room string
	name string
}

// NewMember creates an unjoined member for conn.
func NewMember(conn transport.Conn) *Member {
	return &Member{
		ID:       uuid.NewString(),
		Conn:     conn,
		Outgoing: make(chan []byte, outgoingBuffer),
	}
}

// Hub manages all connected members and handles broadcast.
// Every transport served by the relay shares a single Hub.
type Hub struct {
	codec   protocol.Codec
	logger  *zap.Logger
	members map[*Member]bool
	mu      sync.RWMutex
}

// NewHub creates a Hub that encodes broadcasts with codec.
func NewHub(codec protocol.Codec, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		codec:   codec,
		logger:  logger,
		members: make(map[*Member]bool),
	}
}

// Register adds a member to the hub.
func (h *Hub) Register(m *Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[m] = true
}

// Unregister removes a member from the hub.
func (h *Hub) Unregister(m *Member) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, m)
}

// MemberCount returns number of connected members.
func (h *Hub) MemberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// RoomMembers returns the sorted names of the members joined to room.
func (h *Hub) RoomMembers(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var names []string
	for m := range h.members {
		if m.room == room {
			names = append(names, m.name)
		}
	}
	sort.Strings(names)
	return names
}

// Join assigns m to room under name, leaving any previous room.
func (h *Hub) Join(m *Member, room, name string) {
	h.mu.Lock()
	prev := m.room
	m.room = room
	m.name = name
	h.mu.Unlock()

	logger := h.logger.With(zap.String("member", m.ID), zap.String("room", room), zap.String("user", name))
	if prev != "" && prev != room {
		logger.Info("member moved", zap.String("from", prev))
		return
	}
	logger.Info("member joined")
}

// Broadcast delivers text from sender to every member of the sender's room.
// A member whose outgoing buffer is full misses the message.
func (h *Hub) Broadcast(sender *Member, text string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if sender.room == "" {
		h.logger.Warn("dropping message from member that has not joined", zap.String("member", sender.ID))
		return
	}

	data, err := h.codec.Encode(protocol.BroadcastFrame{Name: sender.name, Message: text})
	if err != nil {
		h.logger.Error("failed to encode broadcast", zap.Error(err))
		return
	}

	for m := range h.members {
		if m.room != sender.room {
			continue
		}
		select {
		case m.Outgoing <- data:
		default:
			h.logger.Warn("member buffer full, skipping", zap.String("member", m.ID))
		}
	}
}

// Serve attaches conn to the hub and runs it until the connection ends or
// ctx is cancelled. The connection is closed on return.
func (h *Hub) Serve(ctx context.Context, conn transport.Conn) {
	m := NewMember(conn)
	logger := h.logger.With(zap.String("member", m.ID), zap.String("remote", conn.RemoteAddr()))
	h.Register(m)
	logger.Debug("member connected")

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for data := range m.Outgoing {
			if err := conn.Write(ctx, data); err != nil {
				logger.Warn("failed to send message to member", zap.Error(err))
				return
			}
		}
	}()

	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && ctx.Err() == nil {
				logger.Debug("read failed", zap.Error(err))
			}
			break
		}

		frame, err := h.codec.Decode(data)
		if err != nil {
			logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch f := frame.(type) {
		case protocol.JoinFrame:
			h.Join(m, f.Room, f.Name)
		case protocol.SendFrame:
			h.Broadcast(m, f.Message)
		default:
			logger.Warn("dropping unexpected frame", zap.String("kind", string(frame.Kind())))
		}
	}

	h.Unregister(m)
	close(m.Outgoing)
	_ = conn.Close()
	<-writerDone
	logger.Debug("member disconnected")
}
