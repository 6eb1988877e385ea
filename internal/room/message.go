package room

import (
	"time"

	"github.com/omochice/room-chat/internal/session"
)

// ChatMessage is one entry of the room log, built from an inbound broadcast.
type ChatMessage struct {
	ID         string
	Author     string
	Content    string
	ReceivedAt time.Time
}

// View is a snapshot of what a renderer shows for the active room.
type View struct {
	Room      string
	Username  string
	State     session.State
	Connected bool
	Messages  []ChatMessage
}
