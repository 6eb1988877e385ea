// Package ui renders a room session for a terminal, either as plain lines
// or as a full-screen gocui interface.
package ui

import (
	"fmt"
	"strings"

	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
)

const (
	timeLayout = "15:04"
	selfAuthor = "You"
)

// Author returns the name shown for msg; the user's own messages show as
// "You".
func Author(msg room.ChatMessage, username string) string {
	if msg.Author == username {
		return selfAuthor
	}
	return msg.Author
}

// FormatMessage renders one log entry.
func FormatMessage(msg room.ChatMessage, username string) string {
	return fmt.Sprintf("[%s] %s: %s", msg.ReceivedAt.Format(timeLayout), Author(msg, username), msg.Content)
}

// StateText describes a connection state for the status line.
func StateText(st session.State) string {
	switch st {
	case session.Connecting:
		return "Connecting..."
	case session.Open:
		return "Connected"
	case session.Closed:
		return "Disconnected"
	case session.Errored:
		return "Connection failed"
	default:
		return st.String()
	}
}

// FormatStatus renders the status line of v.
func FormatStatus(v room.View) string {
	return fmt.Sprintf("Room: %s | User: %s | %s", v.Room, v.Username, StateText(v.State))
}

// CommandKind identifies a line of user input.
type CommandKind int

const (
	// CommandMessage is plain chat text.
	CommandMessage CommandKind = iota
	// CommandJoin switches to the room named by Arg.
	CommandJoin
	// CommandQuit leaves the client.
	CommandQuit
	// CommandUnknown is a slash command that is not recognized.
	CommandUnknown
)

// Command is one parsed line of user input.
type Command struct {
	Kind CommandKind
	Arg  string
}

// ParseCommand interprets a line of input. Lines that do not start with a
// slash are messages.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CommandMessage, Arg: line}
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/join":
		return Command{Kind: CommandJoin, Arg: arg}
	case "/quit", "/exit":
		return Command{Kind: CommandQuit}
	default:
		return Command{Kind: CommandUnknown, Arg: name}
	}
}

const helpText = "Commands: /join <room> switches room, /quit exits"
