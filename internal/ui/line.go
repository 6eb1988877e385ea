package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/omochice/room-chat/internal/room"
	"github.com/omochice/room-chat/internal/session"
)

// Line is a line-oriented renderer: it prints the log and status changes to
// out and reads messages and commands from in.
type Line struct {
	session *room.Session
	in      io.Reader

	mu        sync.Mutex
	out       io.Writer
	announced bool
	lastState session.State
}

// NewLine creates a Line renderer for s.
func NewLine(s *room.Session, in io.Reader, out io.Writer) *Line {
	l := &Line{session: s, in: in, out: out}
	s.OnMessage(func(msg room.ChatMessage) {
		l.println(FormatMessage(msg, l.session.Username()))
	})
	s.OnStateChange(func(st session.State) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.announceLocked(st)
	})
	return l
}

func (l *Line) println(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, text)
}

// announceLocked prints a state notice unless st was the last one shown.
func (l *Line) announceLocked(st session.State) {
	if l.announced && l.lastState == st {
		return
	}
	l.announced, l.lastState = true, st
	fmt.Fprintln(l.out, "*** "+StateText(st)+" ***")
}

// Run reads input until EOF, /quit or ctx is done. A cancelled ctx returns
// immediately even while a read from in is pending.
func (l *Line) Run(ctx context.Context) error {
	l.mu.Lock()
	view := l.session.View()
	fmt.Fprintln(l.out, FormatStatus(view))
	fmt.Fprintln(l.out, helpText)
	l.announceLocked(view.State)
	l.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	lines, readErr := l.scan(stop)
	for {
		var text string
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-lines:
			if !ok {
				if err := readErr(); err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				return nil
			}
			text = t
		}

		cmd := ParseCommand(text)
		switch cmd.Kind {
		case CommandQuit:
			return nil
		case CommandJoin:
			l.join(ctx, cmd.Arg)
		case CommandUnknown:
			l.println("Unknown command " + cmd.Arg + ". " + helpText)
		case CommandMessage:
			l.submit(cmd.Arg)
		}
	}
}

// scan feeds lines from in on a goroutine. The channel is closed at EOF or
// on a read error, after which readErr reports the error.
func (l *Line) scan(stop <-chan struct{}) (<-chan string, func() error) {
	lines := make(chan string)
	var err error
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
		err = scanner.Err()
	}()
	return lines, func() error { return err }
}

func (l *Line) join(ctx context.Context, roomName string) {
	req := room.JoinRequest{Room: roomName, Username: l.session.Username()}
	if err := l.session.SwitchRoom(ctx, req); err != nil {
		var verr *room.ValidationError
		if errors.As(err, &verr) {
			l.println("Usage: /join <room>")
			return
		}
		l.println("Failed to switch room: " + err.Error())
		return
	}
	l.println(FormatStatus(l.session.View()))
}

func (l *Line) submit(text string) {
	if text == "" {
		return
	}
	if !l.session.Connected() {
		l.println("Not connected; message not sent")
		return
	}
	if err := l.session.SubmitMessage(text); err != nil {
		l.println("Failed to send message: " + err.Error())
	}
}
